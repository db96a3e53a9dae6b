package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gearedup/server/internal/asset"
	"github.com/gearedup/server/internal/world"
)

// Base tile layouts a map file can start from.
const (
	PatternFlatgrass = "flatgrass"
	PatternFill      = "fill"
)

// tileEntry overrides a single cell of the base layout.
type tileEntry struct {
	X       int    `yaml:"x"`
	Y       int    `yaml:"y"`
	Texture string `yaml:"texture"`
	Solid   bool   `yaml:"solid"`
}

type objectEntry struct {
	Name    string `yaml:"name"`
	X       int32  `yaml:"x"`
	Y       int32  `yaml:"y"`
	Width   int32  `yaml:"width"`
	Height  int32  `yaml:"height"`
	Visible *bool  `yaml:"visible"` // default true
	Texture string `yaml:"texture"`
}

type mapFile struct {
	Name           string        `yaml:"name"`
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	Pattern        string        `yaml:"pattern"`
	DefaultTexture string        `yaml:"default_texture"`
	Tiles          []tileEntry   `yaml:"tiles"`
	Objects        []objectEntry `yaml:"objects"`
}

// LoadWorld builds the world from a YAML map file. An empty path yields a
// flatgrass map of the given size with no objects.
func LoadWorld(path string, width, height int) (*world.World, error) {
	if path == "" {
		return &world.World{Map: world.Flatgrass(width, height)}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map %s: %w", path, err)
	}
	w, err := ParseWorld(raw, width, height)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	return w, nil
}

// ParseWorld decodes a map document. Width and height fall back to the
// given defaults when the document leaves them out.
func ParseWorld(raw []byte, width, height int) (*world.World, error) {
	var file mapFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse map: %w", err)
	}
	if file.Width == 0 {
		file.Width = width
	}
	if file.Height == 0 {
		file.Height = height
	}
	if file.Width < 0 || file.Height < 0 {
		return nil, fmt.Errorf("negative map size %dx%d", file.Width, file.Height)
	}

	var m *world.Tilemap
	switch file.Pattern {
	case "", PatternFlatgrass:
		m = world.Flatgrass(file.Width, file.Height)
	case PatternFill:
		if file.DefaultTexture == "" {
			return nil, fmt.Errorf("pattern %q needs default_texture", PatternFill)
		}
		m = world.NewTilemap(file.Width, file.Height, asset.Name(file.DefaultTexture))
	default:
		return nil, fmt.Errorf("unknown pattern %q", file.Pattern)
	}

	for _, te := range file.Tiles {
		tile := m.At(te.X, te.Y)
		if tile == nil {
			return nil, fmt.Errorf("tile (%d,%d) outside %dx%d map", te.X, te.Y, file.Width, file.Height)
		}
		if te.Texture != "" {
			tile.Texture = asset.Name(te.Texture)
		}
		tile.Solid = te.Solid
	}

	w := &world.World{Map: m}
	for _, oe := range file.Objects {
		visible := true
		if oe.Visible != nil {
			visible = *oe.Visible
		}
		w.Objects = append(w.Objects, &world.StaticEntity{
			Name:    oe.Name,
			X:       oe.X,
			Y:       oe.Y,
			Width:   oe.Width,
			Height:  oe.Height,
			Visible: visible,
			Texture: asset.Name(oe.Texture),
		})
	}
	return w, nil
}
