package world

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/gearedup/server/internal/asset"
	"github.com/gearedup/server/internal/net/packet"
)

// StaticEntity is a drawable world object that never updates.
type StaticEntity struct {
	Name    string     `yaml:"name"`
	X       int32      `yaml:"x"`
	Y       int32      `yaml:"y"`
	Width   int32      `yaml:"width"`
	Height  int32      `yaml:"height"`
	Visible bool       `yaml:"visible"`
	Texture asset.Name `yaml:"-"`
}

// Bounds is the entity's draw rectangle.
func (e *StaticEntity) Bounds() Rect {
	return Rect{X: e.X, Y: e.Y, W: e.Width, H: e.Height}
}

// Download serializes the entity for an ObjectDownload. The texture name
// travels outside the entity document.
func (e *StaticEntity) Download() (*packet.ObjectDownload, error) {
	doc, err := yaml.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal entity %q: %w", e.Name, err)
	}
	return &packet.ObjectDownload{Static: true, Entity: string(doc), Texture: e.Texture}, nil
}

// EntityFromDownload decodes an entity received from the server.
func EntityFromDownload(d *packet.ObjectDownload) (*StaticEntity, error) {
	if !d.Static {
		return nil, fmt.Errorf("object download: only static entities are supported")
	}
	e := &StaticEntity{}
	if err := yaml.Unmarshal([]byte(d.Entity), e); err != nil {
		return nil, fmt.Errorf("unmarshal entity: %w", err)
	}
	e.Texture = d.Texture
	return e, nil
}

// World is the shared, read-mostly map content sent to every new client.
type World struct {
	Map     *Tilemap
	Objects []*StaticEntity
}
