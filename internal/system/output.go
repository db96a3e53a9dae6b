package system

import (
	"time"

	coresys "github.com/gearedup/server/internal/core/system"
	"github.com/gearedup/server/internal/handler"
	"github.com/gearedup/server/internal/net/packet"
	"github.com/gearedup/server/internal/world"
	"go.uber.org/zap"
)

// OutputSystem broadcasts authoritative positions. Players whose position
// did not change since their last update are skipped, except on every
// fullEvery-th tick when everyone is resent. Phase 2 (Output).
type OutputSystem struct {
	net       handler.Transport
	sessions  *world.Registry
	fullEvery int
	tick      int
	metrics   *Metrics
	log       *zap.Logger
}

func NewOutputSystem(t handler.Transport, sessions *world.Registry, fullEvery int, metrics *Metrics, log *zap.Logger) *OutputSystem {
	return &OutputSystem{
		net:       t,
		sessions:  sessions,
		fullEvery: fullEvery,
		metrics:   metrics,
		log:       log,
	}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.tick++
	full := s.fullEvery > 0 && s.tick%s.fullEvery == 0

	s.sessions.ForEach(func(sess *world.Session) {
		p := sess.Player
		if !full && !p.Moved() {
			return
		}
		data := packet.MustEncode(&packet.MovementUpdate{ID: sess.ID, X: p.Position.X, Y: p.Position.Y})
		if err := s.net.Broadcast(data, packet.Unreliable); err != nil {
			s.log.Debug("snapshot broadcast failed", zap.Error(err))
			return
		}
		p.MarkSent()
		s.metrics.IncSnapshots()
	})
}
