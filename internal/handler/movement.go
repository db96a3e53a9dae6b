package handler

import (
	"go.uber.org/zap"

	"github.com/gearedup/server/internal/net/packet"
	"github.com/gearedup/server/internal/sim"
	"github.com/gearedup/server/internal/world"
)

// HandleMovement adds the requested acceleration to the player's velocity
// right away, so several requests within one tick compose.
func HandleMovement(sess *world.Session, m *packet.MovementRequest, deps *Deps) {
	accel := sim.Acceleration(m.Directions, deps.Config.Simulation.Acceleration)
	sess.Player.Velocity = sess.Player.Velocity.Add(accel)

	deps.Log.Debug("movement",
		zap.Int64("conn", sess.ID),
		zap.Int("keys", len(m.Directions)),
		zap.Float32("vx", sess.Player.Velocity.X),
		zap.Float32("vy", sess.Player.Velocity.Y),
	)
}
