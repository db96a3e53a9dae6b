package handler

import (
	"github.com/gearedup/server/internal/account"
	"github.com/gearedup/server/internal/config"
	"github.com/gearedup/server/internal/net/packet"
	"github.com/gearedup/server/internal/scripting"
	"github.com/gearedup/server/internal/world"
	"go.uber.org/zap"
)

// Transport is the outbound half of the network peer.
type Transport interface {
	Send(id int64, payload []byte, mode packet.Delivery) error
	Broadcast(payload []byte, mode packet.Delivery) error
	Disconnect(id int64, reason string) error
}

// Deps holds shared dependencies injected into all message handlers.
type Deps struct {
	Config    *config.Config
	Log       *zap.Logger
	Net       Transport
	Sessions  *world.Registry
	World     *world.World
	Accounts  *account.Table
	Scripting *scripting.Engine
}

var anyState = []packet.SessionState{packet.StateUnauthenticated, packet.StateAuthenticated}

// RegisterAll registers all message handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	// Re-sending credentials on a live session re-authenticates it.
	reg.Register(packet.TagAccountLogin, anyState,
		func(sess any, m packet.Message) {
			HandleLogin(sess.(*world.Session), m.(*packet.AccountLogin), deps)
		},
	)
	reg.Register(packet.TagChatMessage, anyState,
		func(sess any, m packet.Message) {
			HandleChat(sess.(*world.Session), m.(*packet.ChatMessage), deps)
		},
	)
	reg.Register(packet.TagMovementRequest, anyState,
		func(sess any, m packet.Message) {
			HandleMovement(sess.(*world.Session), m.(*packet.MovementRequest), deps)
		},
	)
	reg.Register(packet.TagRequestUID, anyState,
		func(sess any, _ packet.Message) {
			HandleRequestUID(sess.(*world.Session), deps)
		},
	)
	reg.Register(packet.TagTest, anyState,
		func(sess any, _ packet.Message) {
			HandleTest(sess.(*world.Session), deps)
		},
	)
}

// send encodes m and queues it for one connection with the delivery mode
// the protocol assigns to its tag.
func send(deps *Deps, id int64, m packet.Message) {
	data, err := packet.Encode(m)
	if err != nil {
		deps.Log.Error("encode failed", zap.Int64("conn", id), zap.Error(err))
		return
	}
	if err := deps.Net.Send(id, data, packet.DeliveryFor(m.Tag())); err != nil {
		deps.Log.Debug("send failed", zap.Int64("conn", id), zap.Stringer("tag", m.Tag()), zap.Error(err))
	}
}

func broadcast(deps *Deps, m packet.Message) {
	data, err := packet.Encode(m)
	if err != nil {
		deps.Log.Error("encode failed", zap.Error(err))
		return
	}
	if err := deps.Net.Broadcast(data, packet.DeliveryFor(m.Tag())); err != nil {
		deps.Log.Debug("broadcast failed", zap.Stringer("tag", m.Tag()), zap.Error(err))
	}
}
