package world

import (
	"fmt"

	"github.com/gearedup/server/internal/asset"
	"github.com/gearedup/server/internal/net/packet"
)

// TileSize is the edge length of a tile texture in pixels. Rows overlap by
// half a tile when drawn.
const TileSize = 16

const (
	textureGrassLeft  asset.Name = "grass_left"
	textureGrassRight asset.Name = "grass_right"
)

// Tile is one map cell.
type Tile struct {
	Solid   bool
	Texture asset.Name
}

// Rect is an axis-aligned rectangle in world pixels.
type Rect struct {
	X, Y, W, H int32
}

// Tilemap is the world grid. Tiles are stored x-major: the tile at (x, y)
// lives at index x*Height + y.
type Tilemap struct {
	Width  int
	Height int
	Tiles  []Tile
}

// NewTilemap returns a width × height map with every tile set to texture.
func NewTilemap(width, height int, texture asset.Name) *Tilemap {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	m := &Tilemap{Width: width, Height: height, Tiles: make([]Tile, width*height)}
	for i := range m.Tiles {
		m.Tiles[i].Texture = texture
	}
	return m
}

// Flatgrass builds the default map: grass textures alternating by index.
func Flatgrass(width, height int) *Tilemap {
	m := NewTilemap(width, height, "")
	for i := range m.Tiles {
		if i%2 == 0 {
			m.Tiles[i].Texture = textureGrassLeft
		} else {
			m.Tiles[i].Texture = textureGrassRight
		}
	}
	return m
}

func (m *Tilemap) Index(x, y int) (int, bool) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return 0, false
	}
	return x*m.Height + y, true
}

// At returns the tile at (x, y), or nil when out of bounds.
func (m *Tilemap) At(x, y int) *Tile {
	i, ok := m.Index(x, y)
	if !ok {
		return nil
	}
	return &m.Tiles[i]
}

// Coords is the inverse of Index.
func (m *Tilemap) Coords(i int) (x, y int) {
	return i / m.Height, i % m.Height
}

// TileRect returns the draw rectangle of the tile at (x, y).
func TileRect(x, y int) Rect {
	return Rect{X: int32(x * TileSize), Y: int32(y * (TileSize / 2)), W: TileSize, H: TileSize}
}

// Textures lists the texture name of every tile in storage order.
func (m *Tilemap) Textures() []asset.Name {
	names := make([]asset.Name, len(m.Tiles))
	for i, t := range m.Tiles {
		names[i] = t.Texture
	}
	return names
}

// Download converts the map to its wire form.
func (m *Tilemap) Download() *packet.TilemapDownload {
	tiles := make([]packet.TileData, len(m.Tiles))
	for i, t := range m.Tiles {
		tiles[i] = packet.TileData{Solid: t.Solid, Texture: t.Texture}
	}
	return &packet.TilemapDownload{Width: int32(m.Width), Height: int32(m.Height), Tiles: tiles}
}

// TilemapFromDownload rebuilds a map received from the server.
func TilemapFromDownload(d *packet.TilemapDownload) (*Tilemap, error) {
	if d.Width < 0 || d.Height < 0 || int64(len(d.Tiles)) != int64(d.Width)*int64(d.Height) {
		return nil, fmt.Errorf("tilemap download: %d tiles for %dx%d grid", len(d.Tiles), d.Width, d.Height)
	}
	m := &Tilemap{Width: int(d.Width), Height: int(d.Height), Tiles: make([]Tile, len(d.Tiles))}
	for i, t := range d.Tiles {
		m.Tiles[i] = Tile{Solid: t.Solid, Texture: t.Texture}
	}
	return m, nil
}
