package client

import (
	"math"

	"github.com/gearedup/server/internal/sim"
)

// aimOffset turns the player texture, which points up, toward the cursor.
const aimOffset = 1.55

// Mirror is the client's copy of one player, local or remote.
type Mirror struct {
	ID       int64
	X, Y     int32 // draw position, truncated from the server's floats
	Rotation float32
	Visible  bool
	Local    bool
}

// Mirrors holds every player the client has heard of, in arrival order.
// Entries are only ever removed all at once by Reset.
type Mirrors struct {
	spawn    sim.Vec2
	byID     map[int64]*Mirror
	order    []*Mirror
	localID  int64
	hasLocal bool
}

func NewMirrors(spawn sim.Vec2) *Mirrors {
	return &Mirrors{spawn: spawn, byID: make(map[int64]*Mirror)}
}

// ApplyNewPlayer creates a visible mirror for id at the spawn point.
// Returns false when id is already known.
func (m *Mirrors) ApplyNewPlayer(id int64) bool {
	if _, ok := m.byID[id]; ok {
		return false
	}
	mir := &Mirror{
		ID:      id,
		X:       truncate(m.spawn.X),
		Y:       truncate(m.spawn.Y),
		Visible: true,
		Local:   m.hasLocal && id == m.localID,
	}
	m.byID[id] = mir
	m.order = append(m.order, mir)
	return true
}

// ApplyMovementSnapshot overwrites the position of id. Updates for players
// the client has not been told about are ignored.
func (m *Mirrors) ApplyMovementSnapshot(id int64, x, y float32) bool {
	mir, ok := m.byID[id]
	if !ok {
		return false
	}
	mir.X = truncate(x)
	mir.Y = truncate(y)
	return true
}

// SetLocalID records the client's own connection id as the server sees it.
func (m *Mirrors) SetLocalID(id int64) {
	if m.hasLocal {
		if old, ok := m.byID[m.localID]; ok {
			old.Local = false
		}
	}
	m.localID = id
	m.hasLocal = true
	if mir, ok := m.byID[id]; ok {
		mir.Local = true
	}
}

func (m *Mirrors) LocalID() (int64, bool) {
	return m.localID, m.hasLocal
}

// LocalMirror returns the locally controlled mirror, or nil before the
// client knows its id or has been announced.
func (m *Mirrors) LocalMirror() *Mirror {
	if !m.hasLocal {
		return nil
	}
	return m.byID[m.localID]
}

// Aim points the local mirror at the cursor. The rotation stays on the
// client.
func (m *Mirrors) Aim(cursorX, cursorY float32) (float32, bool) {
	mir := m.LocalMirror()
	if mir == nil {
		return 0, false
	}
	dx := float64(cursorX) - float64(mir.X)
	dy := float64(cursorY) - float64(mir.Y)
	mir.Rotation = float32(math.Atan2(dy, dx) - aimOffset)
	return mir.Rotation, true
}

func (m *Mirrors) Get(id int64) *Mirror {
	return m.byID[id]
}

// All returns copies of every mirror in arrival order.
func (m *Mirrors) All() []Mirror {
	out := make([]Mirror, len(m.order))
	for i, mir := range m.order {
		out[i] = *mir
	}
	return out
}

func (m *Mirrors) Len() int {
	return len(m.order)
}

// Reset forgets every mirror and the local id.
func (m *Mirrors) Reset() {
	clear(m.byID)
	m.order = m.order[:0]
	m.localID = 0
	m.hasLocal = false
}

// truncate converts toward zero, saturating at the int32 range.
func truncate(f float32) int32 {
	switch {
	case math.IsNaN(float64(f)):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}
