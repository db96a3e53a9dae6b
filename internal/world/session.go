package world

import (
	"github.com/gearedup/server/internal/net/packet"
	"github.com/gearedup/server/internal/sim"
)

// DefaultName is the display name a session carries until it logs in.
const DefaultName = "unnamed"

// PlayerState is the authoritative physical state of one player.
type PlayerState struct {
	Position sim.Vec2
	Velocity sim.Vec2

	// Last position broadcast in a MovementUpdate, used to skip
	// unchanged players between full refreshes.
	SentPosition sim.Vec2
	Sent         bool
}

// Moved reports whether the position differs from the last one sent.
func (p *PlayerState) Moved() bool {
	return !p.Sent || p.Position != p.SentPosition
}

// MarkSent records the current position as broadcast.
func (p *PlayerState) MarkSent() {
	p.SentPosition = p.Position
	p.Sent = true
}

// Session is the server-side record of one live connection.
// Accessed only from the server loop goroutine.
type Session struct {
	ID     int64
	Name   string
	State  packet.SessionState
	Player *PlayerState
}

func newSession(id int64) *Session {
	return &Session{
		ID:     id,
		Name:   DefaultName,
		State:  packet.StateUnauthenticated,
		Player: &PlayerState{},
	}
}

func (s *Session) Authenticated() bool {
	return s.State == packet.StateAuthenticated
}
