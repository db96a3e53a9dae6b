// Package server runs the authoritative tick loop.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gearedup/server/internal/account"
	"github.com/gearedup/server/internal/config"
	coresys "github.com/gearedup/server/internal/core/system"
	"github.com/gearedup/server/internal/data"
	"github.com/gearedup/server/internal/handler"
	gonet "github.com/gearedup/server/internal/net"
	"github.com/gearedup/server/internal/net/packet"
	"github.com/gearedup/server/internal/scripting"
	"github.com/gearedup/server/internal/system"
	"github.com/gearedup/server/internal/world"
	"go.uber.org/zap"
)

// ErrStopTimeout is returned by Stop when the loop does not exit in time.
var ErrStopTimeout = errors.New("server loop did not stop in time")

// Server owns the transport, the session registry and the systems that
// advance them. Everything except Stop and the HTTP handlers runs on the
// goroutine that calls Run.
type Server struct {
	cfg     *config.Config
	log     *zap.Logger
	peer    *gonet.Peer
	deps    *handler.Deps
	runner  *coresys.Runner
	metrics *system.Metrics
	scripts *scripting.Engine

	transportErr <-chan error

	started  atomic.Bool
	stopping atomic.Bool
	done     chan struct{}
}

// New loads the world, accounts and scripts and wires the systems. The
// transport is not opened until Start or Run.
func New(cfg *config.Config, log *zap.Logger) (*Server, error) {
	w, err := data.LoadWorld(cfg.World.MapFile, cfg.World.Width, cfg.World.Height)
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	accounts, err := account.NewTable(account.Builtin)
	if err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}
	scripts, err := scripting.NewEngine(cfg.Scripting.Dir, log.Named("lua"))
	if err != nil {
		return nil, fmt.Errorf("scripting: %w", err)
	}

	peer := gonet.NewPeer(gonet.Config{
		AppID:          cfg.App.ID,
		ListenAddr:     cfg.Network.BindAddress,
		InQueueSize:    cfg.Network.InQueueSize,
		OutQueueSize:   cfg.Network.OutQueueSize,
		ReadTimeout:    cfg.Network.ReadTimeout,
		WriteTimeout:   cfg.Network.WriteTimeout,
		MaxConnections: cfg.Network.MaxConnections,
		Discovery:      cfg.Network.Discovery,
	}, log.Named("net"))

	deps := &handler.Deps{
		Config:    cfg,
		Log:       log,
		Net:       peer,
		Sessions:  world.NewRegistry(),
		World:     w,
		Accounts:  accounts,
		Scripting: scripts,
	}
	reg := packet.NewRegistry(log)
	handler.RegisterAll(reg, deps)

	metrics := &system.Metrics{}
	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(peer, reg, deps, cfg.Network.MaxMessagesPerTick, metrics))
	runner.Register(system.NewMovementSystem(deps.Sessions, cfg.Simulation.Friction))
	runner.Register(system.NewOutputSystem(peer, deps.Sessions, cfg.Simulation.FullSnapshotTicks, metrics, log))

	s := &Server{
		cfg:     cfg,
		log:     log,
		peer:    peer,
		deps:    deps,
		runner:  runner,
		metrics: metrics,
		scripts: scripts,
		done:    make(chan struct{}),

		transportErr: peer.Err(),
	}
	peer.Handle("/healthz", http.HandlerFunc(s.handleHealth))
	peer.Handle("/metrics", http.HandlerFunc(s.handleMetrics))

	log.Info("server ready",
		zap.String("app_id", cfg.App.ID),
		zap.Int("map_width", w.Map.Width),
		zap.Int("map_height", w.Map.Height),
		zap.Int("objects", len(w.Objects)),
		zap.Int("accounts", accounts.Len()),
	)
	return s, nil
}

// Start opens the transport so Addr is known before Run.
func (s *Server) Start() error {
	return s.peer.Start()
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	return s.peer.Addr()
}

func (s *Server) Metrics() *system.Metrics {
	return s.metrics
}

// Run ticks the systems until ctx is cancelled or Stop is called. The stop
// flag is checked before every tick. A transport that fails to open, or
// whose listener dies, ends the loop with that error.
func (s *Server) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("server already running")
	}
	defer close(s.done)
	defer s.scripts.Close()
	defer s.peer.Stop()

	if err := s.peer.Start(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	tick := s.cfg.Network.TickRate
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var runErr error
	s.log.Info("server loop started", zap.String("addr", s.peer.Addr()), zap.Duration("tick", tick))
	for !s.stopping.Load() {
		select {
		case <-ctx.Done():
			s.stopping.Store(true)
			continue
		case err := <-s.transportErr:
			s.log.Error("transport failed, stopping loop", zap.Error(err))
			s.stopping.Store(true)
			runErr = fmt.Errorf("transport: %w", err)
			continue
		case <-ticker.C:
		}
		s.metrics.AddTick(s.runner.Tick(tick))
	}
	s.log.Info("server loop stopped", zap.Int64("ticks", s.metrics.TickCount.Load()))
	return runErr
}

// Stop asks the loop to exit and waits up to timeout for it.
func (s *Server) Stop(timeout time.Duration) error {
	s.stopping.Store(true)
	if !s.started.Load() {
		s.peer.Stop()
		s.scripts.Close()
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.stopping.Load() {
		http.Error(w, "stopping", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

// GET /metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"app_id":   s.cfg.App.ID,
		"uptime_s": time.Now().Unix() - s.cfg.App.StartTime,
		"loop":     s.metrics.Snapshot(),
		"net":      s.peer.Stats(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
