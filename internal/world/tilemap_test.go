package world

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gearedup/server/internal/net/packet"
)

func TestFlatgrassAlternatesByIndex(t *testing.T) {
	m := Flatgrass(3, 2)
	if len(m.Tiles) != 6 {
		t.Fatalf("expected 6 tiles, got %d", len(m.Tiles))
	}
	for i, tile := range m.Tiles {
		want := textureGrassLeft
		if i%2 == 1 {
			want = textureGrassRight
		}
		if tile.Texture != want || tile.Solid {
			t.Fatalf("tile %d: expected %s walkable, got %+v", i, want, tile)
		}
	}
	// x-major: (1, 0) follows the whole first column.
	if i, _ := m.Index(1, 0); i != 2 {
		t.Fatalf("expected index 2 for (1,0), got %d", i)
	}
	if m.At(3, 0) != nil || m.At(0, -1) != nil {
		t.Fatal("expected nil for out-of-bounds tiles")
	}
}

func TestTilemapDownloadRoundTrip(t *testing.T) {
	m := Flatgrass(4, 3)
	m.At(2, 1).Solid = true

	data := packet.MustEncode(m.Download())
	msg, err := packet.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, err := TilemapFromDownload(msg.(*packet.TilemapDownload))
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Fatalf("tilemap mismatch (-want +got):\n%s", diff)
	}
}

func TestTilemapFromDownloadRejectsMismatch(t *testing.T) {
	d := &packet.TilemapDownload{Width: 2, Height: 2, Tiles: make([]packet.TileData, 3)}
	if _, err := TilemapFromDownload(d); err == nil {
		t.Fatal("expected error for tile count mismatch")
	}
}

func TestCoordsInvertsIndex(t *testing.T) {
	m := NewTilemap(3, 4, "")
	for i := range m.Tiles {
		x, y := m.Coords(i)
		if j, ok := m.Index(x, y); !ok || j != i {
			t.Fatalf("Coords(%d) = (%d, %d), Index gives %d %v", i, x, y, j, ok)
		}
	}
}

func TestTileRectOverlapsRows(t *testing.T) {
	got := TileRect(2, 3)
	want := Rect{X: 32, Y: 24, W: TileSize, H: TileSize}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestStaticEntityDownloadRoundTrip(t *testing.T) {
	e := &StaticEntity{Name: "rock", X: 40, Y: 80, Width: 16, Height: 16, Visible: true, Texture: "rock"}
	d, err := e.Download()
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if d.Texture != "rock" || !d.Static {
		t.Fatalf("unexpected download %+v", d)
	}
	got, err := EntityFromDownload(d)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if diff := cmp.Diff(e, got); diff != "" {
		t.Fatalf("entity mismatch (-want +got):\n%s", diff)
	}
}
