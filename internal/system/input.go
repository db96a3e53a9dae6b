package system

import (
	"errors"
	"time"

	coresys "github.com/gearedup/server/internal/core/system"
	"github.com/gearedup/server/internal/handler"
	"github.com/gearedup/server/internal/net"
	"github.com/gearedup/server/internal/net/packet"
	"go.uber.org/zap"
)

// Source is the inbound half of the network peer.
type Source interface {
	NextIncoming() (net.Incoming, bool)
	RespondDiscovery(addr string) error
}

// InputSystem drains the transport queue and dispatches every item
// through the message registry. Phase 0 (Input).
type InputSystem struct {
	src        Source
	registry   *packet.Registry
	deps       *handler.Deps
	maxPerTick int // 0 = drain everything queued
	metrics    *Metrics
	log        *zap.Logger
}

func NewInputSystem(src Source, registry *packet.Registry, deps *handler.Deps, maxPerTick int, metrics *Metrics) *InputSystem {
	return &InputSystem{
		src:        src,
		registry:   registry,
		deps:       deps,
		maxPerTick: maxPerTick,
		metrics:    metrics,
		log:        deps.Log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	for i := 0; s.maxPerTick == 0 || i < s.maxPerTick; i++ {
		in, ok := s.src.NextIncoming()
		if !ok {
			return
		}
		s.handle(in)
	}
}

func (s *InputSystem) handle(in net.Incoming) {
	switch in.Kind {
	case net.KindDiscoveryRequest:
		if err := s.src.RespondDiscovery(in.Addr); err != nil {
			s.log.Debug("discovery response failed", zap.String("addr", in.Addr), zap.Error(err))
		}

	case net.KindStatusChanged:
		switch in.Status {
		case net.StatusConnected:
			handler.OnConnected(in.ConnID, s.deps)
		case net.StatusDisconnected:
			handler.OnDisconnected(in.ConnID, in.Reason, s.deps)
		}

	case net.KindData:
		sess := s.deps.Sessions.Lookup(in.ConnID)
		if sess == nil {
			s.log.Debug("data from unknown session discarded", zap.Int64("conn", in.ConnID))
			return
		}
		s.metrics.IncMessages()
		if err := s.registry.Dispatch(sess, sess.State, in.Payload); err != nil {
			var de *packet.DecodeError
			if errors.As(err, &de) {
				s.metrics.IncDecodeErrors()
			} else {
				s.metrics.IncRejected()
			}
			s.log.Debug("dispatch error",
				zap.Int64("conn", in.ConnID),
				zap.Error(err),
			)
		}
	}
}
