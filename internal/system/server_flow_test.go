package system

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gearedup/server/internal/account"
	"github.com/gearedup/server/internal/config"
	coresys "github.com/gearedup/server/internal/core/system"
	"github.com/gearedup/server/internal/handler"
	"github.com/gearedup/server/internal/net"
	"github.com/gearedup/server/internal/net/packet"
	"github.com/gearedup/server/internal/sim"
	"github.com/gearedup/server/internal/world"
)

type delivered struct {
	msg  packet.Message
	mode packet.Delivery
}

// fakeNet stands in for the peer: it feeds queued items to the input
// system and fans outgoing traffic into per-connection inboxes.
type fakeNet struct {
	t          *testing.T
	queue      []net.Incoming
	live       []int64
	inbox      map[int64][]delivered
	reasons    map[int64]string
	discovered []string
}

func newFakeNet(t *testing.T) *fakeNet {
	return &fakeNet{t: t, inbox: make(map[int64][]delivered), reasons: make(map[int64]string)}
}

func (f *fakeNet) connect(id int64) {
	f.queue = append(f.queue, net.Incoming{Kind: net.KindStatusChanged, ConnID: id, Status: net.StatusConnected})
}

func (f *fakeNet) data(id int64, m packet.Message) {
	f.queue = append(f.queue, net.Incoming{Kind: net.KindData, ConnID: id, Payload: packet.MustEncode(m)})
}

func (f *fakeNet) NextIncoming() (net.Incoming, bool) {
	if len(f.queue) == 0 {
		return net.Incoming{}, false
	}
	in := f.queue[0]
	f.queue = f.queue[1:]
	if in.Kind == net.KindStatusChanged {
		switch in.Status {
		case net.StatusConnected:
			f.live = append(f.live, in.ConnID)
		case net.StatusDisconnected:
			f.drop(in.ConnID)
		}
	}
	return in, true
}

func (f *fakeNet) RespondDiscovery(addr string) error {
	f.discovered = append(f.discovered, addr)
	return nil
}

func (f *fakeNet) isLive(id int64) bool {
	for _, l := range f.live {
		if l == id {
			return true
		}
	}
	return false
}

func (f *fakeNet) drop(id int64) {
	for i, l := range f.live {
		if l == id {
			f.live = append(f.live[:i], f.live[i+1:]...)
			return
		}
	}
}

func (f *fakeNet) deliver(id int64, payload []byte, mode packet.Delivery) {
	m, err := packet.Decode(payload)
	if err != nil {
		f.t.Fatalf("server sent undecodable payload: %v", err)
	}
	f.inbox[id] = append(f.inbox[id], delivered{msg: m, mode: mode})
}

func (f *fakeNet) Send(id int64, payload []byte, mode packet.Delivery) error {
	if !f.isLive(id) {
		return net.ErrUnknownConnection
	}
	f.deliver(id, payload, mode)
	return nil
}

func (f *fakeNet) Broadcast(payload []byte, mode packet.Delivery) error {
	for _, id := range f.live {
		f.deliver(id, payload, mode)
	}
	return nil
}

func (f *fakeNet) Disconnect(id int64, reason string) error {
	if !f.isLive(id) {
		return net.ErrUnknownConnection
	}
	f.reasons[id] = reason
	f.queue = append(f.queue, net.Incoming{Kind: net.KindStatusChanged, ConnID: id, Status: net.StatusDisconnected, Reason: reason})
	return nil
}

// take returns and clears the messages delivered to id.
func (f *fakeNet) take(id int64) []delivered {
	out := f.inbox[id]
	delete(f.inbox, id)
	return out
}

func messages(ds []delivered) []packet.Message {
	out := make([]packet.Message, len(ds))
	for i, d := range ds {
		out[i] = d.msg
	}
	return out
}

func newPlayers(ds []delivered) []int64 {
	var ids []int64
	for _, d := range ds {
		if np, ok := d.msg.(*packet.NewPlayer); ok {
			ids = append(ids, np.ID)
		}
	}
	return ids
}

type serverHarness struct {
	net      *fakeNet
	deps     *handler.Deps
	runner   *coresys.Runner
	metrics  *Metrics
	sessions *world.Registry
}

func newServerHarness(t *testing.T, tweak func(*config.Config)) *serverHarness {
	t.Helper()
	cfg := config.Default()
	if tweak != nil {
		tweak(cfg)
	}
	accounts, err := account.NewTable(account.Builtin)
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	log := zaptest.NewLogger(t)
	fn := newFakeNet(t)
	sessions := world.NewRegistry()
	w := &world.World{
		Map:     world.Flatgrass(2, 2),
		Objects: []*world.StaticEntity{{Name: "rock", X: 3, Y: 4, Width: 16, Height: 16, Visible: true, Texture: "rock"}},
	}
	deps := &handler.Deps{
		Config:   cfg,
		Log:      log,
		Net:      fn,
		Sessions: sessions,
		World:    w,
		Accounts: accounts,
	}
	reg := packet.NewRegistry(log)
	handler.RegisterAll(reg, deps)

	m := &Metrics{}
	runner := coresys.NewRunner()
	runner.Register(NewOutputSystem(fn, sessions, cfg.Simulation.FullSnapshotTicks, m, log))
	runner.Register(NewMovementSystem(sessions, cfg.Simulation.Friction))
	runner.Register(NewInputSystem(fn, reg, deps, cfg.Network.MaxMessagesPerTick, m))
	return &serverHarness{net: fn, deps: deps, runner: runner, metrics: m, sessions: sessions}
}

func (h *serverHarness) tick() { h.runner.Tick(0) }

// login connects id, completes the login and discards everything sent so far.
func (h *serverHarness) login(t *testing.T, id int64, user, pass string) {
	t.Helper()
	h.net.connect(id)
	h.net.data(id, &packet.AccountLogin{Username: user, Password: pass})
	h.tick()
	if s := h.sessions.Lookup(id); s == nil || !s.Authenticated() {
		t.Fatalf("session %d not authenticated", id)
	}
	for k := range h.net.inbox {
		delete(h.net.inbox, k)
	}
}

func TestConnectSendsWorldAndLoginPrompt(t *testing.T) {
	h := newServerHarness(t, nil)
	h.net.connect(7)
	h.runner.TickPhase(coresys.PhaseInput, 0)

	got := messages(h.net.take(7))
	if len(got) != 5 {
		t.Fatalf("expected 5 messages on connect, got %d: %#v", len(got), got)
	}
	if diff := cmp.Diff(&packet.ChatMessage{Text: handler.ConnectNotice}, got[0]); diff != "" {
		t.Errorf("connect notice mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(&packet.NewPlayer{ID: 7}, got[1]); diff != "" {
		t.Errorf("new player mismatch (-want +got):\n%s", diff)
	}
	if tm, ok := got[2].(*packet.TilemapDownload); !ok || tm.Width != 2 || tm.Height != 2 {
		t.Errorf("expected 2x2 tilemap download, got %#v", got[2])
	}
	if od, ok := got[3].(*packet.ObjectDownload); !ok || od.Texture != "rock" {
		t.Errorf("expected rock object download, got %#v", got[3])
	}
	if diff := cmp.Diff(&packet.AccountLogin{}, got[4]); diff != "" {
		t.Errorf("login prompt mismatch (-want +got):\n%s", diff)
	}

	s := h.sessions.Lookup(7)
	if s == nil || s.Authenticated() || s.Name != world.DefaultName {
		t.Fatalf("expected unauthenticated placeholder session, got %+v", s)
	}
}

func TestLoginEnumeratesAuthenticatedPeers(t *testing.T) {
	h := newServerHarness(t, nil)
	h.login(t, 1, "billy", "password")
	h.login(t, 2, "cody", "baraboo")

	// Connected but never logged in: must not appear in the roster.
	h.net.connect(3)
	h.tick()
	h.net.take(1)
	h.net.take(2)
	h.net.take(3)

	h.net.connect(100)
	h.runner.TickPhase(coresys.PhaseInput, 0)
	h.net.take(100)
	h.net.take(1)

	h.net.data(100, &packet.AccountLogin{Username: "billy", Password: "password"})
	h.runner.TickPhase(coresys.PhaseInput, 0)

	if got := newPlayers(h.net.take(1)); !cmp.Equal(got, []int64{100}) {
		t.Errorf("existing peer expected NewPlayer(100), got %v", got)
	}
	if got := newPlayers(h.net.take(100)); !cmp.Equal(got, []int64{100, 1, 2}) {
		t.Errorf("new peer expected itself then the roster, got %v", got)
	}

	s := h.sessions.Lookup(100)
	if !s.Authenticated() || s.Name != "billy" {
		t.Fatalf("expected session 100 logged in as billy, got %+v", s)
	}
}

func TestLoginFailureDisconnectsAndRemoves(t *testing.T) {
	h := newServerHarness(t, nil)
	h.net.connect(5)
	h.net.data(5, &packet.AccountLogin{Username: "billy", Password: "wrong"})
	h.runner.TickPhase(coresys.PhaseInput, 0)

	if got := h.net.reasons[5]; got != handler.ReasonAuthFailed {
		t.Fatalf("expected disconnect reason %q, got %q", handler.ReasonAuthFailed, got)
	}
	if h.sessions.Lookup(5) != nil {
		t.Fatal("session must be removed after failed login")
	}
	// The transport's own disconnect notice arrives later and is harmless.
	h.runner.TickPhase(coresys.PhaseInput, 0)
	if h.sessions.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", h.sessions.Len())
	}
}

func TestRepeatedLoginIsLastWriteWins(t *testing.T) {
	h := newServerHarness(t, nil)
	h.login(t, 1, "billy", "password")
	h.net.data(1, &packet.AccountLogin{Username: "cody", Password: "baraboo"})
	h.tick()

	if s := h.sessions.Lookup(1); s.Name != "cody" {
		t.Fatalf("expected second login to win, got %q", s.Name)
	}
	if h.sessions.Len() != 1 {
		t.Fatalf("expected one session, got %d", h.sessions.Len())
	}
}

func TestMovementAccumulatesWithoutFriction(t *testing.T) {
	h := newServerHarness(t, func(c *config.Config) { c.Simulation.Friction = 0 })
	h.login(t, 1, "billy", "password")
	a := h.deps.Config.Simulation.Acceleration

	for i := 0; i < 3; i++ {
		h.net.data(1, &packet.MovementRequest{Directions: []sim.Direction{sim.DirRight, sim.DirUp}})
		h.tick()
	}

	p := h.sessions.Lookup(1).Player
	if want := (sim.Vec2{X: 3 * a, Y: -3 * a}); p.Velocity != want {
		t.Fatalf("expected velocity %+v, got %+v", want, p.Velocity)
	}
	// Velocity grows a, 2a, 3a over the three ticks.
	if want := (sim.Vec2{X: 6 * a, Y: -6 * a}); p.Position != want {
		t.Fatalf("expected position %+v, got %+v", want, p.Position)
	}
}

func TestSingleMovementRequestCoasts(t *testing.T) {
	h := newServerHarness(t, func(c *config.Config) { c.Simulation.Friction = 0 })
	h.login(t, 1, "billy", "password")
	a := h.deps.Config.Simulation.Acceleration

	h.net.data(1, &packet.MovementRequest{Directions: []sim.Direction{sim.DirRight, sim.DirUp}})
	for i := 0; i < 3; i++ {
		h.tick()
	}
	if want := (sim.Vec2{X: 3 * a, Y: -3 * a}); h.sessions.Lookup(1).Player.Position != want {
		t.Fatalf("expected position %+v, got %+v", want, h.sessions.Lookup(1).Player.Position)
	}
}

func TestMovementRequestsComposeWithinTick(t *testing.T) {
	h := newServerHarness(t, func(c *config.Config) { c.Simulation.Friction = 0 })
	h.login(t, 1, "billy", "password")
	a := h.deps.Config.Simulation.Acceleration

	h.net.data(1, &packet.MovementRequest{Directions: []sim.Direction{sim.DirLeft}})
	h.net.data(1, &packet.MovementRequest{Directions: []sim.Direction{sim.DirLeft}})
	h.tick()
	if want := (sim.Vec2{X: -2 * a}); h.sessions.Lookup(1).Player.Velocity != want {
		t.Fatalf("expected velocity %+v, got %+v", want, h.sessions.Lookup(1).Player.Velocity)
	}
}

func TestFrictionStopsPlayer(t *testing.T) {
	h := newServerHarness(t, nil)
	h.login(t, 1, "billy", "password")
	h.login(t, 2, "cody", "baraboo")

	// Three presses at the default acceleration give velocity 6, which
	// friction 0.6 brings to rest in ceil(6/0.6) = 10 ticks.
	for i := 0; i < 3; i++ {
		h.net.data(1, &packet.MovementRequest{Directions: []sim.Direction{sim.DirDown}})
	}
	for i := 0; i < 10; i++ {
		h.tick()
	}
	if v := h.sessions.Lookup(1).Player.Velocity; !v.IsZero() {
		t.Fatalf("expected friction to stop the player after 10 ticks, velocity %+v", v)
	}

	h.net.take(2)
	h.tick()
	for _, d := range h.net.take(2) {
		if _, ok := d.msg.(*packet.MovementUpdate); ok {
			t.Fatalf("resting player still broadcast: %#v", d.msg)
		}
	}
}

func TestOutputSendsOnlyMovedPlayers(t *testing.T) {
	h := newServerHarness(t, func(c *config.Config) {
		c.Simulation.Friction = 0
		c.Simulation.FullSnapshotTicks = 0
	})
	h.login(t, 1, "billy", "password")
	h.login(t, 2, "cody", "baraboo")

	h.tick() // nobody moves
	h.net.take(1)
	h.net.take(2)

	h.net.data(2, &packet.MovementRequest{Directions: []sim.Direction{sim.DirRight}})
	h.tick()

	got := h.net.take(1)
	if len(got) != 1 {
		t.Fatalf("expected one update, got %#v", messages(got))
	}
	up, ok := got[0].msg.(*packet.MovementUpdate)
	if !ok || up.ID != 2 {
		t.Fatalf("expected update for player 2, got %#v", got[0].msg)
	}
	if got[0].mode != packet.Unreliable {
		t.Fatalf("movement updates must be unreliable, got %s", got[0].mode)
	}
}

func TestOutputFullSnapshotResendsEveryone(t *testing.T) {
	h := newServerHarness(t, func(c *config.Config) { c.Simulation.FullSnapshotTicks = 2 })
	h.login(t, 1, "billy", "password")

	// login ran one tick; the next one is the full refresh.
	h.tick()
	h.net.take(1)
	h.tick()
	if got := h.net.take(1); len(got) != 0 {
		t.Fatalf("expected no update for a resting player, got %#v", messages(got))
	}
	h.tick()
	if got := h.net.take(1); len(got) != 1 {
		t.Fatalf("expected the full refresh to resend, got %#v", messages(got))
	}
}

func TestChatIsPrefixedAndBroadcast(t *testing.T) {
	h := newServerHarness(t, nil)
	h.login(t, 1, "billy", "password")
	h.login(t, 2, "cody", "baraboo")

	h.net.data(1, &packet.ChatMessage{Text: "hello"})
	h.runner.TickPhase(coresys.PhaseInput, 0)

	want := []packet.Message{&packet.ChatMessage{Text: "billy: hello"}}
	for _, id := range []int64{1, 2} {
		if diff := cmp.Diff(want, messages(h.net.take(id))); diff != "" {
			t.Errorf("peer %d chat mismatch (-want +got):\n%s", id, diff)
		}
	}
}

func TestRequestUIDAndTestProbe(t *testing.T) {
	h := newServerHarness(t, nil)
	h.net.connect(42)
	h.runner.TickPhase(coresys.PhaseInput, 0)
	h.net.take(42)

	h.net.data(42, &packet.RequestUID{})
	h.net.data(42, &packet.Test{})
	h.runner.TickPhase(coresys.PhaseInput, 0)

	want := []packet.Message{&packet.RequestUID{ID: 42}, &packet.NewPlayer{ID: 4294967296}}
	if diff := cmp.Diff(want, messages(h.net.take(42))); diff != "" {
		t.Fatalf("reply mismatch (-want +got):\n%s", diff)
	}
}

func TestHandlersLogTraffic(t *testing.T) {
	h := newServerHarness(t, nil)
	h.login(t, 1, "billy", "password")
	core, logs := observer.New(zapcore.DebugLevel)
	h.deps.Log = zap.New(core)

	h.net.data(1, &packet.MovementRequest{Directions: []sim.Direction{sim.DirRight, sim.DirUp}})
	h.net.data(1, &packet.RequestUID{})
	h.net.data(1, &packet.Test{})
	h.runner.TickPhase(coresys.PhaseInput, 0)

	for _, msg := range []string{"movement", "uid requested", "test probe"} {
		got := logs.FilterMessage(msg).FilterField(zap.Int64("conn", 1)).All()
		if len(got) != 1 || got[0].Level != zapcore.DebugLevel {
			t.Errorf("expected one debug %q entry for conn 1, got %v", msg, got)
		}
	}
	mv := logs.FilterMessage("movement").All()
	if len(mv) == 1 {
		want := map[string]any{"conn": int64(1), "keys": int64(2), "vx": float32(2), "vy": float32(-2)}
		if diff := cmp.Diff(want, mv[0].ContextMap()); diff != "" {
			t.Errorf("movement fields mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestInputDiscardsUnknownAndMalformed(t *testing.T) {
	h := newServerHarness(t, nil)
	h.net.data(99, &packet.ChatMessage{Text: "ghost"})
	h.net.connect(1)
	h.net.queue = append(h.net.queue, net.Incoming{Kind: net.KindData, ConnID: 1, Payload: []byte{200}})
	h.runner.TickPhase(coresys.PhaseInput, 0)

	if h.sessions.Lookup(99) != nil {
		t.Fatal("data from an unknown connection must not create a session")
	}
	if h.sessions.Lookup(1) == nil {
		t.Fatal("malformed data must not tear the session down")
	}
	if got := h.metrics.DecodeErrors.Load(); got != 1 {
		t.Fatalf("expected 1 decode error, got %d", got)
	}
	if got := h.metrics.Messages.Load(); got != 1 {
		t.Fatalf("expected 1 dispatched message, got %d", got)
	}
}

func TestDisconnectRemovesSession(t *testing.T) {
	h := newServerHarness(t, nil)
	h.login(t, 1, "billy", "password")
	h.net.queue = append(h.net.queue, net.Incoming{Kind: net.KindStatusChanged, ConnID: 1, Status: net.StatusDisconnected, Reason: "bye"})
	h.tick()
	if h.sessions.Len() != 0 {
		t.Fatalf("expected session removed, %d left", h.sessions.Len())
	}
}

func TestInputAnswersDiscovery(t *testing.T) {
	h := newServerHarness(t, nil)
	h.net.queue = append(h.net.queue, net.Incoming{Kind: net.KindDiscoveryRequest, Addr: "10.0.0.5:5000"})
	h.tick()
	if !cmp.Equal(h.net.discovered, []string{"10.0.0.5:5000"}) {
		t.Fatalf("expected one discovery response, got %v", h.net.discovered)
	}
}

func TestInputRespectsPerTickLimit(t *testing.T) {
	h := newServerHarness(t, func(c *config.Config) { c.Network.MaxMessagesPerTick = 2 })
	for id := int64(1); id <= 5; id++ {
		h.net.connect(id)
	}
	h.runner.TickPhase(coresys.PhaseInput, 0)
	if h.sessions.Len() != 2 {
		t.Fatalf("expected 2 sessions after one limited tick, got %d", h.sessions.Len())
	}
	if len(h.net.queue) != 3 {
		t.Fatalf("expected 3 items left queued, got %d", len(h.net.queue))
	}
}
