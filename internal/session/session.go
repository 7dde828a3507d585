package session

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// DefaultBuffer is the number of outbound lines a session queues before
// further sends are refused.
const DefaultBuffer = 64

// Session is the server-side handle of one live connection. Outbound lines are
// queued on a buffered channel and written by a dedicated pump goroutine, so
// pushes from other connections never block on this peer's socket.
type Session struct {
	ID int

	w    io.Writer
	mu   sync.Mutex
	send chan string
	shut bool
	quit chan struct{}
	done chan struct{}
	err  error
}

func newSession(id int, w io.Writer, buffer int) *Session {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Session{
		ID:   id,
		w:    w,
		send: make(chan string, buffer),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.writePump()
	return s
}

// writePump writes queued lines until the session is closed, then drains
// whatever is still queued. send is never closed.
func (s *Session) writePump() {
	defer close(s.done)
	for {
		select {
		case line := <-s.send:
			if !s.write(line) {
				return
			}
		case <-s.quit:
			for {
				select {
				case line := <-s.send:
					if !s.write(line) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) write(line string) bool {
	if _, err := io.WriteString(s.w, line+"\n"); err != nil {
		s.mu.Lock()
		s.err = errors.Wrap(err, "write line failed")
		s.mu.Unlock()
		return false
	}
	return true
}

// Send queues one line without blocking. It is used for lines pushed by
// other connections.
func (s *Session) Send(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shut {
		return ErrSessionClosed
	}
	if s.err != nil {
		return s.err
	}
	select {
	case s.send <- line:
		return nil
	default:
		return ErrSinkFull
	}
}

// Write queues one of the session's own replies, waiting for room when the
// queue is full. It returns once the line is queued, the session is closed or
// the write pump has stopped.
func (s *Session) Write(line string) error {
	s.mu.Lock()
	if s.shut {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	select {
	case s.send <- line:
		return nil
	case <-s.quit:
		return ErrSessionClosed
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrSessionClosed
	}
}

// Done is closed once the write pump has exited, either because the session
// was closed and its queue drained or because a write failed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the write error that stopped the pump, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// close stops accepting lines; lines already queued are still written.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shut {
		return
	}
	s.shut = true
	close(s.quit)
}
