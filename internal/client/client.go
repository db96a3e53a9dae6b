// Package client is the headless client: it mirrors the server's players
// and world from the messages it receives once per frame.
package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gearedup/server/internal/asset"
	"github.com/gearedup/server/internal/config"
	gonet "github.com/gearedup/server/internal/net"
	"github.com/gearedup/server/internal/net/packet"
	"github.com/gearedup/server/internal/sim"
	"github.com/gearedup/server/internal/world"
	"go.uber.org/zap"
)

const (
	// ReasonAuthFailed is the server's disconnect reason for bad credentials.
	ReasonAuthFailed = "NErr01"
	// ReasonUserExit is sent when the user disconnects on purpose.
	ReasonUserExit = "UEXIT"
)

// ErrStopTimeout is returned by Stop when the frame loop does not exit in time.
var ErrStopTimeout = errors.New("client loop did not stop in time")

// State is the client's view of its connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	}
	return "Unknown"
}

// Peer is the part of the transport the client drives.
type Peer interface {
	NextIncoming() (gonet.Incoming, bool)
	Send(id int64, payload []byte, mode packet.Delivery) error
	Connect(addr string) error
	Discover(addr string) error
	Disconnect(id int64, reason string) error
}

// Input is polled once per connected frame for the keys held down.
type Input interface {
	Poll(v View) []sim.Direction
}

// View is a read-only copy of what the client currently knows, for
// rendering or inspection from another goroutine.
type View struct {
	State      State
	LocalID    int64
	HasLocal   bool
	Mirrors    []Mirror
	Chat       []string
	Map        *world.Tilemap // replaced wholesale, never mutated
	Objects    []*world.StaticEntity
	Sprites    []Sprite     // tiles in storage order, then visible objects
	Missing    []asset.Name // texture names the resolver could not find
	AuthFailed bool
	LastReason string
}

// Sprite is one resolved drawable. Anything whose texture did not resolve
// has no sprite.
type Sprite struct {
	Bounds world.Rect
	Handle asset.Handle
}

// Client runs the per-frame drain/apply loop. Everything except View and
// Stop must be called from the goroutine running Frame.
type Client struct {
	cfg      config.ClientConfig
	peer     Peer
	resolver asset.Resolver
	input    Input
	log      *zap.Logger
	registry *packet.Registry

	state       State
	connID      int64
	dialing     bool
	waitFrames  int
	uidAsked    bool
	credentials bool
	authFailed  bool
	lastReason  string

	mirrors *Mirrors
	chat    ChatLog
	tiles   *world.Tilemap
	objects []*world.StaticEntity
	missing []asset.Name

	tileSprites   []Sprite
	objectSprites []Sprite

	viewMu sync.RWMutex
	view   View

	started  atomic.Bool
	stopping atomic.Bool
	done     chan struct{}
}

// New builds a client. resolver and input may be nil.
func New(cfg config.ClientConfig, peer Peer, resolver asset.Resolver, input Input, log *zap.Logger) *Client {
	c := &Client{
		cfg:      cfg,
		peer:     peer,
		resolver: resolver,
		input:    input,
		log:      log,
		registry: packet.NewRegistry(log),
		mirrors:  NewMirrors(sim.Vec2{X: cfg.SpawnX, Y: cfg.SpawnY}),
		done:     make(chan struct{}),
	}
	c.registerHandlers()
	c.publish()
	return c
}

func (c *Client) registerHandlers() {
	both := []packet.SessionState{packet.StateUnauthenticated, packet.StateAuthenticated}
	on := func(tag packet.Tag, fn func(packet.Message)) {
		c.registry.Register(tag, both, func(_ any, m packet.Message) { fn(m) })
	}
	on(packet.TagTilemapDownload, func(m packet.Message) { c.onTilemap(m.(*packet.TilemapDownload)) })
	on(packet.TagObjectDownload, func(m packet.Message) { c.onObject(m.(*packet.ObjectDownload)) })
	on(packet.TagChatMessage, func(m packet.Message) { c.chat.Add(m.(*packet.ChatMessage).Text) })
	on(packet.TagNewPlayer, func(m packet.Message) { c.mirrors.ApplyNewPlayer(m.(*packet.NewPlayer).ID) })
	on(packet.TagRequestUID, func(m packet.Message) { c.mirrors.SetLocalID(m.(*packet.RequestUID).ID) })
	on(packet.TagAccountLogin, func(packet.Message) { c.sendCredentials() })
	on(packet.TagMovementUpdate, func(m packet.Message) {
		u := m.(*packet.MovementUpdate)
		c.mirrors.ApplyMovementSnapshot(u.ID, u.X, u.Y)
	})
}

// Connect starts a connection attempt: a discovery probe when discovery
// is enabled, otherwise a direct dial. The attempt is abandoned after
// ConnectTimeoutTicks frames.
func (c *Client) Connect() error {
	if c.state != StateDisconnected {
		return nil
	}
	c.authFailed = false
	c.waitFrames = 0
	c.dialing = false
	if c.cfg.Discover {
		if err := c.peer.Discover(c.cfg.ServerAddress); err != nil {
			return err
		}
	} else {
		if err := c.peer.Connect(c.cfg.ServerAddress); err != nil {
			return err
		}
		c.dialing = true
	}
	c.state = StateConnecting
	c.log.Info("connecting", zap.String("addr", c.cfg.ServerAddress), zap.Bool("discover", c.cfg.Discover))
	c.publish()
	return nil
}

// Frame drains everything queued on the transport, polls input and
// publishes a fresh View. It never blocks on the network.
func (c *Client) Frame() {
	for {
		in, ok := c.peer.NextIncoming()
		if !ok {
			break
		}
		c.handle(in)
	}

	switch c.state {
	case StateConnecting:
		c.waitFrames++
		if limit := c.cfg.ConnectTimeoutTicks; limit > 0 && c.waitFrames >= limit {
			c.log.Warn("connection attempt timed out", zap.Int("frames", c.waitFrames))
			c.state = StateDisconnected
			c.waitFrames = 0
			c.dialing = false
		}
	case StateConnected:
		if c.input != nil {
			if dirs := c.input.Poll(c.snapshot()); len(dirs) > 0 {
				if err := c.SendMovement(dirs); err != nil {
					c.log.Debug("movement send failed", zap.Error(err))
				}
			}
		}
	}
	c.publish()
}

func (c *Client) handle(in gonet.Incoming) {
	switch in.Kind {
	case gonet.KindDiscoveryResponse:
		if c.state != StateConnecting || c.dialing {
			return
		}
		if err := c.peer.Connect(in.Addr); err != nil {
			c.log.Warn("connect after discovery failed", zap.String("addr", in.Addr), zap.Error(err))
			return
		}
		c.dialing = true
		c.log.Info("server discovered", zap.String("addr", in.Addr))

	case gonet.KindStatusChanged:
		switch in.Status {
		case gonet.StatusConnected:
			c.onConnected(in.ConnID)
		case gonet.StatusDisconnected:
			if in.ConnID != 0 && in.ConnID != c.connID {
				return
			}
			if in.ConnID == 0 && c.state != StateConnecting {
				return
			}
			c.onDisconnected(in.Reason)
		}

	case gonet.KindData:
		if in.ConnID != c.connID || c.state == StateDisconnected {
			return
		}
		if err := c.registry.Dispatch(c, c.sessionState(), in.Payload); err != nil {
			c.log.Warn("discarding server message", zap.Error(err))
		}
	}
}

func (c *Client) sessionState() packet.SessionState {
	if c.credentials {
		return packet.StateAuthenticated
	}
	return packet.StateUnauthenticated
}

func (c *Client) onConnected(id int64) {
	if c.state != StateConnecting {
		// A dial that outlived its timeout.
		if err := c.peer.Disconnect(id, ReasonUserExit); err != nil {
			c.log.Debug("drop late connection", zap.Error(err))
		}
		return
	}
	c.state = StateConnected
	c.connID = id
	c.waitFrames = 0
	c.log.Info("connected", zap.Int64("conn", id))
	if !c.uidAsked {
		c.uidAsked = true
		if err := c.send(&packet.RequestUID{}); err != nil {
			c.log.Warn("uid request failed", zap.Error(err))
		}
	}
}

func (c *Client) onDisconnected(reason string) {
	if reason != "" {
		c.chat.Add(reason)
	}
	c.lastReason = reason
	c.authFailed = reason == ReasonAuthFailed
	if c.authFailed {
		c.log.Warn("authentication failed")
	} else {
		c.log.Info("disconnected", zap.String("reason", reason))
	}

	c.state = StateDisconnected
	c.connID = 0
	c.dialing = false
	c.waitFrames = 0
	c.uidAsked = false
	c.credentials = false
	c.mirrors.Reset()
	c.tiles = nil
	c.objects = nil
	c.missing = nil
	c.tileSprites = nil
	c.objectSprites = nil
}

func (c *Client) onTilemap(d *packet.TilemapDownload) {
	tm, err := world.TilemapFromDownload(d)
	if err != nil {
		c.log.Warn("bad tilemap", zap.Error(err))
		return
	}
	c.tiles = tm
	handles, missing := asset.ResolveAll(c.resolver, tm.Textures())
	c.noteMissing(missing)

	c.tileSprites = c.tileSprites[:0]
	for i, h := range handles {
		if h == nil {
			continue
		}
		x, y := tm.Coords(i)
		c.tileSprites = append(c.tileSprites, Sprite{Bounds: world.TileRect(x, y), Handle: h})
	}
}

func (c *Client) onObject(d *packet.ObjectDownload) {
	e, err := world.EntityFromDownload(d)
	if err != nil {
		c.log.Warn("bad object", zap.Error(err))
		return
	}
	c.objects = append(c.objects, e)
	handles, missing := asset.ResolveAll(c.resolver, []asset.Name{e.Texture})
	c.noteMissing(missing)
	if e.Visible && handles[0] != nil {
		c.objectSprites = append(c.objectSprites, Sprite{Bounds: e.Bounds(), Handle: handles[0]})
	}
}

func (c *Client) noteMissing(names []asset.Name) {
	for _, n := range names {
		if containsName(c.missing, n) {
			continue
		}
		c.missing = append(c.missing, n)
		c.log.Warn("texture not found", zap.String("texture", string(n)))
	}
}

func containsName(names []asset.Name, n asset.Name) bool {
	for _, x := range names {
		if x == n {
			return true
		}
	}
	return false
}

func (c *Client) sendCredentials() {
	c.credentials = true
	if err := c.send(&packet.AccountLogin{Username: c.cfg.Username, Password: c.cfg.Password}); err != nil {
		c.log.Warn("login send failed", zap.Error(err))
	}
}

func (c *Client) send(m packet.Message) error {
	data, err := packet.Encode(m)
	if err != nil {
		return err
	}
	return c.peer.Send(c.connID, data, packet.DeliveryFor(m.Tag()))
}

// SendMovement submits the keys held this frame.
func (c *Client) SendMovement(dirs []sim.Direction) error {
	if c.state != StateConnected {
		return gonet.ErrNotStarted
	}
	return c.send(&packet.MovementRequest{Directions: dirs})
}

// SendChat sends text as a chat message. Text starting with "." is a
// local command.
func (c *Client) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, ".") {
		switch text {
		case ".disconnect":
			return c.Disconnect(ReasonUserExit)
		default:
			c.chat.Add("unknown command " + text)
			return nil
		}
	}
	if c.state != StateConnected {
		return gonet.ErrNotStarted
	}
	return c.send(&packet.ChatMessage{Text: text})
}

// Disconnect closes the connection with reason. The state returns to
// Disconnected once the transport confirms.
func (c *Client) Disconnect(reason string) error {
	if c.state != StateConnected {
		return nil
	}
	c.state = StateDisconnecting
	return c.peer.Disconnect(c.connID, reason)
}

// Aim rotates the local mirror toward the cursor.
func (c *Client) Aim(cursorX, cursorY float32) (float32, bool) {
	return c.mirrors.Aim(cursorX, cursorY)
}

func (c *Client) State() State { return c.state }

func (c *Client) Mirrors() *Mirrors { return c.mirrors }

func (c *Client) snapshot() View {
	localID, hasLocal := c.mirrors.LocalID()
	objects := make([]*world.StaticEntity, len(c.objects))
	copy(objects, c.objects)
	missing := make([]asset.Name, len(c.missing))
	copy(missing, c.missing)
	sprites := make([]Sprite, 0, len(c.tileSprites)+len(c.objectSprites))
	sprites = append(sprites, c.tileSprites...)
	sprites = append(sprites, c.objectSprites...)
	return View{
		State:      c.state,
		LocalID:    localID,
		HasLocal:   hasLocal,
		Mirrors:    c.mirrors.All(),
		Chat:       c.chat.Lines(),
		Map:        c.tiles,
		Objects:    objects,
		Sprites:    sprites,
		Missing:    missing,
		AuthFailed: c.authFailed,
		LastReason: c.lastReason,
	}
}

func (c *Client) publish() {
	v := c.snapshot()
	c.viewMu.Lock()
	c.view = v
	c.viewMu.Unlock()
}

// View returns the state published at the end of the last frame. Safe
// from any goroutine.
func (c *Client) View() View {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view
}

// Run calls Frame every FrameRate until ctx is cancelled or Stop is
// called.
func (c *Client) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("client already running")
	}
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.FrameRate)
	defer ticker.Stop()
	for !c.stopping.Load() {
		select {
		case <-ctx.Done():
			c.stopping.Store(true)
			continue
		case <-ticker.C:
		}
		c.Frame()
	}
	if c.state == StateConnected {
		if err := c.Disconnect(ReasonUserExit); err != nil {
			c.log.Debug("disconnect on stop", zap.Error(err))
		}
	}
	return nil
}

// Stop asks the frame loop to exit and waits up to timeout for it.
func (c *Client) Stop(timeout time.Duration) error {
	c.stopping.Store(true)
	if !c.started.Load() {
		return nil
	}
	select {
	case <-c.done:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}
