package handler

import (
	"github.com/gearedup/server/internal/net/packet"
	"go.uber.org/zap"
)

// ConnectNotice is the chat line broadcast when a peer connects.
const ConnectNotice = "A new player is connecting"

// OnConnected announces a new connection, registers its session, sends it
// the world and asks for credentials.
func OnConnected(id int64, deps *Deps) {
	broadcast(deps, &packet.ChatMessage{Text: ConnectNotice})
	broadcast(deps, &packet.NewPlayer{ID: id})

	deps.Sessions.Create(id)
	deps.Log.Info("session created", zap.Int64("conn", id), zap.Int("sessions", deps.Sessions.Len()))

	if deps.World != nil {
		sendWorld(id, deps)
	}
	send(deps, id, &packet.AccountLogin{})
}

func sendWorld(id int64, deps *Deps) {
	if deps.World.Map != nil {
		send(deps, id, deps.World.Map.Download())
	}
	for _, obj := range deps.World.Objects {
		d, err := obj.Download()
		if err != nil {
			deps.Log.Error("object download failed", zap.String("object", obj.Name), zap.Error(err))
			continue
		}
		send(deps, id, d)
	}
}

// OnDisconnected drops the session of a closed connection.
func OnDisconnected(id int64, reason string, deps *Deps) {
	if s := deps.Sessions.Remove(id); s != nil {
		deps.Log.Info("session removed",
			zap.Int64("conn", id),
			zap.String("name", s.Name),
			zap.String("reason", reason),
		)
	}
}
