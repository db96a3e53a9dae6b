package handler

import (
	"github.com/gearedup/server/internal/net/packet"
	"github.com/gearedup/server/internal/scripting"
	"github.com/gearedup/server/internal/world"
	"go.uber.org/zap"
)

// HandleChat broadcasts a chat line prefixed with the sender's name.
func HandleChat(sess *world.Session, m *packet.ChatMessage, deps *Deps) {
	line, ok := scripting.DefaultChatLine(sess.Name, m.Text), true
	if deps.Scripting != nil {
		line, ok = deps.Scripting.FormatChat(sess.Name, m.Text)
	}
	if !ok {
		deps.Log.Debug("chat dropped by script", zap.Int64("conn", sess.ID))
		return
	}

	deps.Log.Debug("chat",
		zap.String("player", sess.Name),
		zap.String("text", m.Text),
	)
	broadcast(deps, &packet.ChatMessage{Text: line})
}
