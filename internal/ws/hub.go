// Package ws pushes broadcast announcements to WebSocket subscribers.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

// ErrTooManyConnections is returned by AddClient when the hub is full.
var ErrTooManyConnections = errors.New("too many websocket connections")

type client struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.hub.RemoveClient(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// Hub fans announcements out to every connected subscriber. It implements
// broadcast.Publisher.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int
	last     []byte
	log      zerolog.Logger
}

// NewHub creates a hub accepting at most maxConns subscribers; 0 means no
// limit.
func NewHub(maxConns int, log zerolog.Logger) *Hub {
	return &Hub{
		clients:  make(map[*client]bool),
		maxConns: maxConns,
		log:      log,
	}
}

// AddClient registers conn and starts its write pump. The most recent
// announcement, if any, is queued right away.
func (h *Hub) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{
		conn: conn,
		hub:  h,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.maxConns > 0 && len(h.clients) >= h.maxConns {
		h.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	h.clients[c] = true
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()

	go c.writePump()
	return c, nil
}

func (h *Hub) RemoveClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) Name() string {
	return "websocket"
}

// Publish queues text for every subscriber. Subscribers that cannot keep up
// are disconnected.
func (h *Hub) Publish(_ context.Context, text string) error {
	data, err := json.Marshal(WSMessage{
		Type: MsgAnnouncement,
		Payload: AnnouncementPayload{
			Text:   text,
			SentAt: time.Now().UTC(),
		},
	})
	if err != nil {
		return errors.Wrap(err, "marshal announcement failed")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("ws client too slow, disconnecting")
			delete(h.clients, c)
			close(c.send)
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
