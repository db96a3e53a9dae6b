package system

import (
	"time"

	coresys "github.com/gearedup/server/internal/core/system"
	"github.com/gearedup/server/internal/sim"
	"github.com/gearedup/server/internal/world"
)

// MovementSystem advances every player by one tick: friction, then
// position += velocity. Phase 1 (Update).
type MovementSystem struct {
	sessions *world.Registry
	friction float32
}

func NewMovementSystem(sessions *world.Registry, friction float32) *MovementSystem {
	return &MovementSystem{sessions: sessions, friction: friction}
}

func (s *MovementSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *MovementSystem) Update(_ time.Duration) {
	s.sessions.ForEach(func(sess *world.Session) {
		p := sess.Player
		v, delta := sim.Integrate(p.Velocity, sim.Vec2{}, s.friction)
		p.Velocity = v
		p.Position = p.Position.Add(delta)
	})
}
