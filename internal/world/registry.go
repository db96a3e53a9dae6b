package world

import "github.com/gearedup/server/internal/net/packet"

// Registry holds every live session in insertion order.
// Single-writer: only the server loop goroutine touches it, no locks.
type Registry struct {
	sessions []*Session
	index    map[int64]int // connection id → position in sessions
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[int64]int)}
}

// Create registers a session for id. Calling it again for a live id
// returns the existing session.
func (r *Registry) Create(id int64) *Session {
	if i, ok := r.index[id]; ok {
		return r.sessions[i]
	}
	s := newSession(id)
	r.index[id] = len(r.sessions)
	r.sessions = append(r.sessions, s)
	return s
}

// Authenticate marks the session as logged in under name and gives it a
// fresh PlayerState. Returns false for unknown ids.
func (r *Registry) Authenticate(id int64, name string) (*Session, bool) {
	s := r.Lookup(id)
	if s == nil {
		return nil, false
	}
	s.Name = name
	s.State = packet.StateAuthenticated
	s.Player = &PlayerState{}
	return s, true
}

// Remove drops the session for id. The last session is swapped into the
// freed slot. Unknown ids are a no-op.
func (r *Registry) Remove(id int64) *Session {
	i, ok := r.index[id]
	if !ok {
		return nil
	}
	s := r.sessions[i]
	last := len(r.sessions) - 1
	if i != last {
		moved := r.sessions[last]
		r.sessions[i] = moved
		r.index[moved.ID] = i
	}
	r.sessions[last] = nil
	r.sessions = r.sessions[:last]
	delete(r.index, id)
	return s
}

func (r *Registry) Lookup(id int64) *Session {
	if i, ok := r.index[id]; ok {
		return r.sessions[i]
	}
	return nil
}

// All returns a snapshot of the live sessions.
func (r *Registry) All() []*Session {
	out := make([]*Session, len(r.sessions))
	copy(out, r.sessions)
	return out
}

// ForEach calls fn for every live session. fn must not add or remove
// sessions.
func (r *Registry) ForEach(fn func(*Session)) {
	for _, s := range r.sessions {
		fn(s)
	}
}

func (r *Registry) Len() int {
	return len(r.sessions)
}
