package client

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gearedup/server/internal/sim"
)

func TestApplyNewPlayerSpawnsOnce(t *testing.T) {
	m := NewMirrors(sim.Vec2{X: 10, Y: 250})
	if !m.ApplyNewPlayer(3) {
		t.Fatal("expected first NewPlayer to create a mirror")
	}
	m.ApplyMovementSnapshot(3, 40, 50)
	if m.ApplyNewPlayer(3) {
		t.Fatal("expected duplicate NewPlayer to be ignored")
	}
	want := []Mirror{{ID: 3, X: 40, Y: 50, Visible: true}}
	if diff := cmp.Diff(want, m.All()); diff != "" {
		t.Fatalf("mirrors mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyNewPlayerPlacesAtSpawn(t *testing.T) {
	m := NewMirrors(sim.Vec2{X: 10, Y: 250})
	m.ApplyNewPlayer(1)
	if got := m.Get(1); got.X != 10 || got.Y != 250 || !got.Visible {
		t.Fatalf("expected visible mirror at (10,250), got %+v", got)
	}
}

func TestMovementSnapshotTruncates(t *testing.T) {
	tests := []struct {
		x, y   float32
		wx, wy int32
	}{
		{12.9, -3.7, 12, -3},
		{-0.5, 0.99, 0, 0},
		{1e20, -1e20, math.MaxInt32, math.MinInt32},
		{float32(math.NaN()), 7, 0, 7},
	}
	m := NewMirrors(sim.Vec2{})
	m.ApplyNewPlayer(1)
	for _, tt := range tests {
		m.ApplyMovementSnapshot(1, tt.x, tt.y)
		if got := m.Get(1); got.X != tt.wx || got.Y != tt.wy {
			t.Errorf("(%v,%v): expected (%d,%d), got (%d,%d)", tt.x, tt.y, tt.wx, tt.wy, got.X, got.Y)
		}
	}
}

func TestMovementSnapshotForUnknownIgnored(t *testing.T) {
	m := NewMirrors(sim.Vec2{})
	if m.ApplyMovementSnapshot(9, 1, 1) {
		t.Fatal("expected update for unknown player to be ignored")
	}
	if m.Len() != 0 {
		t.Fatalf("expected no mirrors, got %d", m.Len())
	}
}

func TestLocalMirror(t *testing.T) {
	m := NewMirrors(sim.Vec2{})
	if m.LocalMirror() != nil {
		t.Fatal("no local mirror before the id is known")
	}

	// The uid reply may come before or after the NewPlayer.
	m.SetLocalID(5)
	m.ApplyNewPlayer(5)
	m.ApplyNewPlayer(6)
	if lm := m.LocalMirror(); lm == nil || lm.ID != 5 || !lm.Local {
		t.Fatalf("expected local mirror 5, got %+v", lm)
	}
	if m.Get(6).Local {
		t.Fatal("remote mirror marked local")
	}

	m.SetLocalID(6)
	if m.Get(5).Local || !m.Get(6).Local {
		t.Fatal("local flag did not move with the id")
	}
}

func TestAimUsesOffset(t *testing.T) {
	m := NewMirrors(sim.Vec2{})
	if _, ok := m.Aim(1, 1); ok {
		t.Fatal("aim without a local mirror must fail")
	}
	m.SetLocalID(1)
	m.ApplyNewPlayer(1)

	got, ok := m.Aim(0, 10)
	if !ok {
		t.Fatal("expected aim to succeed")
	}
	want := float32(math.Pi/2 - aimOffset)
	if math.Abs(float64(got-want)) > 1e-6 {
		t.Fatalf("expected rotation %v, got %v", want, got)
	}
	if m.LocalMirror().Rotation != got {
		t.Fatal("rotation not stored on the mirror")
	}
}

func TestResetClearsEverything(t *testing.T) {
	m := NewMirrors(sim.Vec2{})
	m.SetLocalID(1)
	m.ApplyNewPlayer(1)
	m.ApplyNewPlayer(2)
	m.Reset()
	if m.Len() != 0 || m.LocalMirror() != nil {
		t.Fatal("expected empty mirrors after reset")
	}
	if _, ok := m.LocalID(); ok {
		t.Fatal("expected local id forgotten")
	}
	if !m.ApplyNewPlayer(1) {
		t.Fatal("expected ids to be reusable after reset")
	}
}

func TestChatLogKeepsLastTen(t *testing.T) {
	var c ChatLog
	for i := 0; i < 15; i++ {
		c.Add(string(rune('a' + i)))
	}
	want := []string{"f", "g", "h", "i", "j", "k", "l", "m", "n", "o"}
	if diff := cmp.Diff(want, c.Lines()); diff != "" {
		t.Fatalf("chat mismatch (-want +got):\n%s", diff)
	}
}

func TestChatLogPartial(t *testing.T) {
	var c ChatLog
	c.Add("one")
	c.Add("two")
	if diff := cmp.Diff([]string{"one", "two"}, c.Lines()); diff != "" {
		t.Fatalf("chat mismatch (-want +got):\n%s", diff)
	}
}
