package session

import (
	"io"
	"sort"
	"sync"
)

// Registry maps live session ids to sessions. Ids start at 1 and are never
// reused for the lifetime of the registry.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int]*Session
	lastID   int
	buffer   int
}

func NewRegistry(buffer int) *Registry {
	return &Registry{
		sessions: make(map[int]*Session),
		buffer:   buffer,
	}
}

// Register allocates the next id and starts a session writing to w.
func (r *Registry) Register(w io.Writer) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID++
	s := newSession(r.lastID, w, r.buffer)
	r.sessions[s.ID] = s
	return s
}

// Unregister removes the session and closes its outbound queue. Unknown ids
// are ignored.
func (r *Registry) Unregister(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		s.close()
	}
}

func (r *Registry) Lookup(id int) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Deliver pushes a line to session id. It holds the read lock across lookup
// and enqueue, so a session removed by Unregister never receives the line.
func (r *Registry) Deliver(id int, line string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if err := s.Send(line); err != nil {
		if err == ErrSessionClosed {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the live session ids in ascending order.
func (r *Registry) IDs() []int {
	r.mu.RLock()
	ids := make([]int, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Ints(ids)
	return ids
}
