// Package sim holds the movement math shared by the authoritative server
// simulation and any client-side prediction. Everything here is pure.
package sim

// Vec2 is a 2D float32 vector, the precision positions travel at on the wire.
type Vec2 struct {
	X, Y float32
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

func (v Vec2) Scale(s float32) Vec2 { return Vec2{X: v.X * s, Y: v.Y * s} }

func (v Vec2) IsZero() bool { return v.X == 0 && v.Y == 0 }

// Direction is a movement key code as sent by clients.
type Direction byte

const (
	DirLeft  Direction = 0
	DirUp    Direction = 1
	DirDown  Direction = 2
	DirRight Direction = 3
)

// Unit returns the unit contribution of d in screen coordinates (y grows
// downward). Unknown codes contribute nothing.
func (d Direction) Unit() Vec2 {
	switch d {
	case DirLeft:
		return Vec2{X: -1}
	case DirUp:
		return Vec2{Y: -1}
	case DirDown:
		return Vec2{Y: 1}
	case DirRight:
		return Vec2{X: 1}
	}
	return Vec2{}
}

// Acceleration sums the unit contributions of dirs and scales the result
// by accel, the per-key constant.
func Acceleration(dirs []Direction, accel float32) Vec2 {
	var sum Vec2
	for _, d := range dirs {
		sum = sum.Add(d.Unit())
	}
	return sum.Scale(accel)
}

// snapRatio is the share of one friction step under which a leftover axis
// velocity counts as rounding error and snaps to zero.
const snapRatio = 1.0 / 64

// ApplyFriction reduces the magnitude of each axis of v by friction,
// clamping at zero so the sign never flips. An axis starting at |v| stops
// within ceil(|v|/friction) calls.
func ApplyFriction(v Vec2, friction float32) Vec2 {
	if friction <= 0 {
		return v
	}
	return Vec2{X: decay(v.X, friction), Y: decay(v.Y, friction)}
}

func decay(v, f float32) float32 {
	switch {
	case v > 0:
		v -= f
		if v <= f*snapRatio {
			v = 0
		}
	case v < 0:
		v += f
		if v >= -f*snapRatio {
			v = 0
		}
	}
	return v
}

// Integrate advances one tick: acceleration is added to velocity, friction
// is applied, and the resulting velocity is the position delta for the
// tick.
func Integrate(velocity, acceleration Vec2, friction float32) (Vec2, Vec2) {
	v := ApplyFriction(velocity.Add(acceleration), friction)
	return v, v
}
