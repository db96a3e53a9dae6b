package handler

import (
	"go.uber.org/zap"

	"github.com/gearedup/server/internal/net/packet"
	"github.com/gearedup/server/internal/world"
)

// testProbeID is the id answered to a Test probe. It does not fit in 32
// bits, which exercises the 64-bit id path on clients.
const testProbeID int64 = 4294967296

// HandleRequestUID tells the sender its own connection id.
func HandleRequestUID(sess *world.Session, deps *Deps) {
	deps.Log.Debug("uid requested", zap.Int64("conn", sess.ID))
	send(deps, sess.ID, &packet.RequestUID{ID: sess.ID})
}

// HandleTest answers the debug probe.
func HandleTest(sess *world.Session, deps *Deps) {
	deps.Log.Debug("test probe", zap.Int64("conn", sess.ID))
	send(deps, sess.ID, &packet.NewPlayer{ID: testProbeID})
}
