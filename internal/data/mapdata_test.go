package data

import (
	"testing"

	"github.com/gearedup/server/internal/asset"
)

func TestLoadWorldDefaultsToFlatgrass(t *testing.T) {
	w, err := LoadWorld("", 11, 11)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if w.Map.Width != 11 || w.Map.Height != 11 || len(w.Map.Tiles) != 121 {
		t.Fatalf("unexpected map %dx%d (%d tiles)", w.Map.Width, w.Map.Height, len(w.Map.Tiles))
	}
	if len(w.Objects) != 0 {
		t.Fatalf("expected no objects, got %d", len(w.Objects))
	}
}

func TestParseWorld(t *testing.T) {
	doc := []byte(`
name: test
width: 3
height: 2
pattern: fill
default_texture: sand
tiles:
  - {x: 1, y: 1, texture: water, solid: true}
  - {x: 2, y: 0, solid: true}
objects:
  - {name: rock, x: 16, y: 8, width: 16, height: 16, texture: rock}
  - {name: marker, visible: false, texture: flag}
`)
	w, err := ParseWorld(doc, 11, 11)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if w.Map.Width != 3 || w.Map.Height != 2 {
		t.Fatalf("expected 3x2, got %dx%d", w.Map.Width, w.Map.Height)
	}
	if tile := w.Map.At(1, 1); tile.Texture != "water" || !tile.Solid {
		t.Fatalf("override lost: %+v", tile)
	}
	if tile := w.Map.At(2, 0); tile.Texture != "sand" || !tile.Solid {
		t.Fatalf("solid-only override: %+v", tile)
	}
	if tile := w.Map.At(0, 0); tile.Texture != "sand" || tile.Solid {
		t.Fatalf("fill texture: %+v", tile)
	}
	if len(w.Objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(w.Objects))
	}
	if o := w.Objects[0]; o.Texture != asset.Name("rock") || !o.Visible || o.Width != 16 {
		t.Fatalf("unexpected object %+v", o)
	}
	if w.Objects[1].Visible {
		t.Fatal("expected marker hidden")
	}
}

func TestParseWorldErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"tile out of bounds", "width: 2\nheight: 2\ntiles:\n  - {x: 2, y: 0}\n"},
		{"unknown pattern", "pattern: lava\n"},
		{"fill without texture", "pattern: fill\n"},
		{"bad yaml", "width: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseWorld([]byte(tt.doc), 4, 4); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
