package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/gearedup/server/internal/net/packet"
)

// Path is the HTTP path the WebSocket endpoint is served on.
const Path = "/ws"

// Config holds the peer's network parameters.
type Config struct {
	AppID          string // handshake identifier, both peers must agree
	ListenAddr     string // empty for a client-only peer
	InQueueSize    int
	OutQueueSize   int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxConnections int // 0 = unlimited
	Discovery      bool
}

func (c *Config) applyDefaults() {
	if c.InQueueSize <= 0 {
		c.InQueueSize = 1024
	}
	if c.OutQueueSize <= 0 {
		c.OutQueueSize = 256
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// Peer is the message transport shared by server and client. It owns every
// connection and funnels their traffic into a single bounded queue that
// the owning loop drains with NextIncoming.
type Peer struct {
	cfg Config
	log *zap.Logger

	mux      *http.ServeMux
	httpSrv  *http.Server
	listener net.Listener
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer
	sem      *semaphore.Weighted
	disc     *discovery

	nextID atomic.Int64

	mu    sync.Mutex
	conns map[int64]*conn

	incoming chan Incoming
	errc     chan error
	ctx      context.Context // cancelled by Stop, bounds outgoing dials
	cancel   context.CancelFunc
	started  atomic.Bool
	stopped  atomic.Bool
	closeCh  chan struct{}
	wg       sync.WaitGroup

	stats Stats
}

func NewPeer(cfg Config, log *zap.Logger) *Peer {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		log:      log,
		mux:      http.NewServeMux(),
		conns:    make(map[int64]*conn),
		incoming: make(chan Incoming, cfg.InQueueSize),
		errc:     make(chan error, 1),
		closeCh:  make(chan struct{}),
	}
	p.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    []string{cfg.AppID},
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	p.dialer = &websocket.Dialer{
		HandshakeTimeout: cfg.WriteTimeout,
		Subprotocols:     []string{cfg.AppID},
	}
	if cfg.MaxConnections > 0 {
		p.sem = semaphore.NewWeighted(int64(cfg.MaxConnections))
	}
	p.mux.HandleFunc(Path, p.serveWS)
	return p
}

// Handle registers an extra HTTP route next to the WebSocket endpoint.
// Must be called before Start.
func (p *Peer) Handle(pattern string, h http.Handler) {
	p.mux.Handle(pattern, h)
}

// Start opens the listener (when configured) and the discovery socket.
func (p *Peer) Start() error {
	if p.stopped.Load() {
		return errors.New("peer already stopped")
	}
	if !p.started.CompareAndSwap(false, true) {
		return nil
	}
	if p.cfg.ListenAddr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", p.cfg.ListenAddr)
	if err != nil {
		p.started.Store(false)
		return fmt.Errorf("listen %s: %w", p.cfg.ListenAddr, err)
	}
	p.listener = ln
	p.httpSrv = &http.Server{Handler: p.mux, ReadHeaderTimeout: 5 * time.Second}

	if p.cfg.Discovery {
		tcpAddr := ln.Addr().(*net.TCPAddr)
		d, err := listenDiscovery(p, &net.UDPAddr{IP: tcpAddr.IP, Port: tcpAddr.Port}, tcpAddr.Port)
		if err != nil {
			ln.Close()
			p.started.Store(false)
			return fmt.Errorf("discovery: %w", err)
		}
		p.mu.Lock()
		p.disc = d
		p.mu.Unlock()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Error("http serve failed", zap.Error(err))
			select {
			case p.errc <- err:
			default:
			}
		}
	}()
	p.log.Info("transport listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("app_id", p.cfg.AppID),
		zap.Bool("discovery", p.cfg.Discovery),
	)
	return nil
}

// Stop closes the listener and every connection and waits for their
// goroutines to exit.
func (p *Peer) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	close(p.closeCh)
	p.cancel()
	if p.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		p.httpSrv.Shutdown(ctx)
		cancel()
	}
	p.mu.Lock()
	if p.disc != nil {
		p.disc.close()
	}
	for _, c := range p.conns {
		c.setReason("shutdown")
		c.shutdown()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Err delivers the error that stopped the listener, if it failed on its
// own. It never fires after Stop.
func (p *Peer) Err() <-chan error {
	return p.errc
}

// Addr returns the listener's address, or "" for a client-only peer.
func (p *Peer) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

func (p *Peer) serveWS(w http.ResponseWriter, r *http.Request) {
	if !hasProtocol(websocket.Subprotocols(r), p.cfg.AppID) {
		p.log.Info("handshake rejected", zap.String("remote", r.RemoteAddr))
		http.Error(w, "application id mismatch", http.StatusForbidden)
		return
	}
	if p.sem != nil && !p.sem.TryAcquire(1) {
		p.log.Warn("connection limit reached", zap.String("remote", r.RemoteAddr))
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}
	ws, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if p.sem != nil {
			p.sem.Release(1)
		}
		p.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	var release func()
	if p.sem != nil {
		release = func() { p.sem.Release(1) }
	}
	p.attach(ws, release)
}

func hasProtocol(offered []string, want string) bool {
	for _, s := range offered {
		if s == want {
			return true
		}
	}
	return false
}

// Connect dials addr in the background. The outcome arrives through
// NextIncoming as StatusConnected or StatusDisconnected.
func (p *Peer) Connect(addr string) error {
	if !p.started.Load() || p.stopped.Load() {
		return ErrNotStarted
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		url := "ws://" + addr + Path
		ws, resp, err := p.dialer.DialContext(p.ctx, url, nil)
		if err != nil {
			reason := "connect failed"
			if resp != nil && resp.StatusCode == http.StatusForbidden {
				reason = "handshake rejected"
			}
			p.log.Info("connect failed", zap.String("addr", addr), zap.Error(err))
			p.push(Incoming{Kind: KindStatusChanged, Status: StatusDisconnected, Reason: reason})
			return
		}
		if ws.Subprotocol() != p.cfg.AppID {
			ws.Close()
			p.push(Incoming{Kind: KindStatusChanged, Status: StatusDisconnected, Reason: "handshake rejected"})
			return
		}
		p.attach(ws, nil)
	}()
	return nil
}

// attach registers a live socket and starts its I/O goroutines. release
// runs once when the socket is torn down.
func (p *Peer) attach(ws *websocket.Conn, release func()) {
	id := p.nextID.Add(1)
	c := newConn(p, id, ws)
	c.onRelease = release

	p.mu.Lock()
	if p.stopped.Load() {
		p.mu.Unlock()
		ws.Close()
		if release != nil {
			release()
		}
		return
	}
	p.conns[id] = c
	p.wg.Add(2)
	p.mu.Unlock()

	p.log.Info("connection established", zap.Int64("conn", id), zap.String("remote", ws.RemoteAddr().String()))
	p.stats.connections.Add(1)
	p.push(Incoming{Kind: KindStatusChanged, ConnID: id, Status: StatusConnected})
	go c.readLoop()
	go c.writeLoop()
}

func (p *Peer) detach(c *conn) {
	p.mu.Lock()
	delete(p.conns, c.id)
	p.mu.Unlock()
	p.stats.connections.Add(-1)
	p.log.Info("connection closed", zap.Int64("conn", c.id), zap.String("reason", c.getReason()))
}

func (p *Peer) lookup(id int64) *conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns[id]
}

// push blocks until the queue has space or the peer stops.
func (p *Peer) push(in Incoming) bool {
	select {
	case p.incoming <- in:
		return true
	case <-p.closeCh:
		return false
	}
}

// NextIncoming returns the next queued item without blocking.
func (p *Peer) NextIncoming() (Incoming, bool) {
	select {
	case in := <-p.incoming:
		return in, true
	default:
		return Incoming{}, false
	}
}

// Send queues payload for one connection.
func (p *Peer) Send(id int64, payload []byte, mode packet.Delivery) error {
	if !p.started.Load() {
		return ErrNotStarted
	}
	c := p.lookup(id)
	if c == nil {
		return ErrUnknownConnection
	}
	return c.enqueue(payload, mode == packet.ReliableOrdered)
}

// Broadcast queues payload for every connection. Per-connection failures
// are logged, not returned.
func (p *Peer) Broadcast(payload []byte, mode packet.Delivery) error {
	if !p.started.Load() {
		return ErrNotStarted
	}
	p.mu.Lock()
	targets := make([]*conn, 0, len(p.conns))
	for _, c := range p.conns {
		targets = append(targets, c)
	}
	p.mu.Unlock()

	for _, c := range targets {
		if err := c.enqueue(payload, mode == packet.ReliableOrdered); err != nil {
			c.log.Debug("broadcast failed", zap.Error(err))
		}
	}
	return nil
}

// Disconnect flushes pending frames to id, then closes it with reason.
func (p *Peer) Disconnect(id int64, reason string) error {
	c := p.lookup(id)
	if c == nil {
		return ErrUnknownConnection
	}
	c.disconnect(reason)
	return nil
}

// Connections returns the number of live connections.
func (p *Peer) Connections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

func (p *Peer) Stats() StatsSnapshot {
	return p.stats.snapshot()
}
