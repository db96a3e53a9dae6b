package handler

import (
	"github.com/gearedup/server/internal/net/packet"
	"github.com/gearedup/server/internal/world"
	"go.uber.org/zap"
)

// ReasonAuthFailed is the disconnect reason sent on a rejected login.
const ReasonAuthFailed = "NErr01"

// HandleLogin processes AccountLogin. On success the session is renamed
// after the account and the peer learns every other logged-in player.
func HandleLogin(sess *world.Session, m *packet.AccountLogin, deps *Deps) {
	name, ok := deps.Accounts.Login(m.Username, m.Password)
	if !ok {
		deps.Log.Warn("login failed",
			zap.Int64("conn", sess.ID),
			zap.String("account", m.Username),
		)
		if err := deps.Net.Disconnect(sess.ID, ReasonAuthFailed); err != nil {
			deps.Log.Debug("disconnect failed", zap.Int64("conn", sess.ID), zap.Error(err))
		}
		deps.Sessions.Remove(sess.ID)
		return
	}

	if sess.Authenticated() {
		deps.Log.Info("session re-authenticated", zap.Int64("conn", sess.ID), zap.String("account", name))
	}
	deps.Sessions.Authenticate(sess.ID, name)
	deps.Log.Info("login ok", zap.Int64("conn", sess.ID), zap.String("account", name))

	broadcast(deps, &packet.NewPlayer{ID: sess.ID})
	deps.Sessions.ForEach(func(other *world.Session) {
		if other.ID == sess.ID || !other.Authenticated() {
			return
		}
		send(deps, sess.ID, &packet.NewPlayer{ID: other.ID})
	})
}
