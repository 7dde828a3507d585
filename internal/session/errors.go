package session

import "github.com/pkg/errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrSinkFull        = errors.New("session outbound buffer full")
)
