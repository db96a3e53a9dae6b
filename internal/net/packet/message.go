package packet

import (
	"fmt"

	"github.com/gearedup/server/internal/asset"
	"github.com/gearedup/server/internal/sim"
)

// Tag is the one-byte message type prefix.
type Tag byte

const (
	TagTilemapDownload Tag = 0
	TagObjectDownload  Tag = 1
	TagTest            Tag = 2
	TagChatMessage     Tag = 3
	TagNewPlayer       Tag = 4
	TagRequestUID      Tag = 5
	TagMovementRequest Tag = 6
	TagMovementUpdate  Tag = 7
	TagAccountLogin    Tag = 8

	tagCount = 9
)

var tagNames = [tagCount]string{
	"TilemapDownload",
	"ObjectDownload",
	"Test",
	"ChatMessage",
	"NewPlayer",
	"RequestUID",
	"MovementRequest",
	"MovementUpdate",
	"AccountLogin",
}

func (t Tag) String() string {
	if int(t) < tagCount {
		return tagNames[t]
	}
	return fmt.Sprintf("Unknown(%d)", byte(t))
}

// Delivery is the transport guarantee a message is sent with.
type Delivery int

const (
	ReliableOrdered Delivery = iota
	Unreliable
)

func (d Delivery) String() string {
	if d == Unreliable {
		return "Unreliable"
	}
	return "ReliableOrdered"
}

// DeliveryFor returns the delivery mode the protocol assigns to tag.
func DeliveryFor(tag Tag) Delivery {
	switch tag {
	case TagMovementRequest, TagMovementUpdate:
		return Unreliable
	}
	return ReliableOrdered
}

// Message is one variant of the protocol catalogue.
type Message interface {
	Tag() Tag
	encode(w *Writer) error
	decode(r *Reader)
}

// TileData is one map cell as it travels on the wire.
type TileData struct {
	Solid   bool
	Texture asset.Name
}

// TilemapDownload carries the full world grid, x-major.
type TilemapDownload struct {
	Width  int32
	Height int32
	Tiles  []TileData
}

func (*TilemapDownload) Tag() Tag { return TagTilemapDownload }

func (m *TilemapDownload) encode(w *Writer) error {
	if m.Width < 0 || m.Height < 0 {
		return fmt.Errorf("tilemap: negative size %dx%d", m.Width, m.Height)
	}
	if int64(len(m.Tiles)) != int64(m.Width)*int64(m.Height) {
		return fmt.Errorf("tilemap: %d tiles for %dx%d grid", len(m.Tiles), m.Width, m.Height)
	}
	w.WriteD(m.Width)
	w.WriteD(m.Height)
	for _, t := range m.Tiles {
		w.WriteBool(t.Solid)
		w.WriteS(string(t.Texture))
	}
	return nil
}

func (m *TilemapDownload) decode(r *Reader) {
	m.Width = r.ReadD()
	m.Height = r.ReadD()
	if r.Err() != nil {
		return
	}
	n := int64(m.Width) * int64(m.Height)
	// Every cell takes at least two bytes, which bounds n by the payload.
	if m.Width < 0 || m.Height < 0 || n*2 > int64(r.Remaining()) {
		r.err = ErrTruncated
		return
	}
	if n == 0 {
		return
	}
	m.Tiles = make([]TileData, n)
	for i := range m.Tiles {
		m.Tiles[i].Solid = r.ReadBool()
		m.Tiles[i].Texture = asset.Name(r.ReadS())
	}
}

// ObjectDownload carries one serialized world entity plus the name of its
// texture.
type ObjectDownload struct {
	Static  bool
	Entity  string
	Texture asset.Name
}

func (*ObjectDownload) Tag() Tag { return TagObjectDownload }

func (m *ObjectDownload) encode(w *Writer) error {
	w.WriteBool(m.Static)
	w.WriteS(m.Entity)
	w.WriteS(string(m.Texture))
	return nil
}

func (m *ObjectDownload) decode(r *Reader) {
	m.Static = r.ReadBool()
	m.Entity = r.ReadS()
	m.Texture = asset.Name(r.ReadS())
}

// Test is an empty debug probe.
type Test struct{}

func (*Test) Tag() Tag             { return TagTest }
func (*Test) encode(*Writer) error { return nil }
func (*Test) decode(*Reader)       {}

// ChatMessage is one line of chat. Clients send raw text; the server
// broadcasts the formatted line.
type ChatMessage struct {
	Text string
}

func (*ChatMessage) Tag() Tag { return TagChatMessage }

func (m *ChatMessage) encode(w *Writer) error {
	w.WriteS(m.Text)
	return nil
}

func (m *ChatMessage) decode(r *Reader) {
	m.Text = r.ReadS()
}

// NewPlayer announces a player by connection id.
type NewPlayer struct {
	ID int64
}

func (*NewPlayer) Tag() Tag { return TagNewPlayer }

func (m *NewPlayer) encode(w *Writer) error {
	w.WriteQ(m.ID)
	return nil
}

func (m *NewPlayer) decode(r *Reader) {
	m.ID = r.ReadQ()
}

// RequestUID asks for (ID == 0, empty body) or answers with the sender's
// connection id.
type RequestUID struct {
	ID int64
}

func (*RequestUID) Tag() Tag { return TagRequestUID }

func (m *RequestUID) encode(w *Writer) error {
	if m.ID != 0 {
		w.WriteQ(m.ID)
	}
	return nil
}

func (m *RequestUID) decode(r *Reader) {
	if r.Remaining() == 0 {
		return
	}
	m.ID = r.ReadQ()
}

// MovementRequest lists the movement keys a client holds this frame.
type MovementRequest struct {
	Directions []sim.Direction
}

func (*MovementRequest) Tag() Tag { return TagMovementRequest }

func (m *MovementRequest) encode(w *Writer) error {
	if len(m.Directions) > 255 {
		return fmt.Errorf("movement request: %d directions exceed 255", len(m.Directions))
	}
	w.WriteC(byte(len(m.Directions)))
	for _, d := range m.Directions {
		w.WriteC(byte(d))
	}
	return nil
}

func (m *MovementRequest) decode(r *Reader) {
	n := int(r.ReadC())
	if n == 0 {
		return
	}
	raw := r.ReadBytes(n)
	if r.Err() != nil {
		return
	}
	m.Directions = make([]sim.Direction, n)
	for i, b := range raw {
		m.Directions[i] = sim.Direction(b)
	}
}

// MovementUpdate is the authoritative position of one player.
type MovementUpdate struct {
	ID int64
	X  float32
	Y  float32
}

func (*MovementUpdate) Tag() Tag { return TagMovementUpdate }

func (m *MovementUpdate) encode(w *Writer) error {
	w.WriteQ(m.ID)
	w.WriteF(m.X)
	w.WriteF(m.Y)
	return nil
}

func (m *MovementUpdate) decode(r *Reader) {
	m.ID = r.ReadQ()
	m.X = r.ReadF()
	m.Y = r.ReadF()
}

// AccountLogin carries credentials from client to server. Sent from the
// server (typically empty) it prompts the client to log in.
type AccountLogin struct {
	Username string
	Password string
}

func (*AccountLogin) Tag() Tag { return TagAccountLogin }

func (m *AccountLogin) encode(w *Writer) error {
	w.WriteS(m.Username)
	w.WriteS(m.Password)
	return nil
}

func (m *AccountLogin) decode(r *Reader) {
	if r.Remaining() == 0 {
		return
	}
	m.Username = r.ReadS()
	m.Password = r.ReadS()
}
