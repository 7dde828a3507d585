package ws

import "time"

type MessageType string

const (
	MsgAnnouncement MessageType = "announcement"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type AnnouncementPayload struct {
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
}
