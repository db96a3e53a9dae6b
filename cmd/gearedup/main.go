package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/gearedup/server/internal/client"
	"github.com/gearedup/server/internal/config"
	"github.com/gearedup/server/internal/diag"
	gonet "github.com/gearedup/server/internal/net"
	"github.com/gearedup/server/internal/server"
	"github.com/gearedup/server/internal/sim"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	mode := flag.String("mode", "server", "server, client or listen")
	cfgFlag := flag.String("config", "", "config file (default $"+config.EnvPath+" or "+config.DefaultPath+")")
	walk := flag.Bool("walk", false, "client walks in a square once logged in")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(config.Resolve(*cfgFlag))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger + diagnostics console
	stream := diag.NewStream(zapcore.WarnLevel, 256)
	log := newLogger(cfg.Logging, stream)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go runConsole(ctx, stream)

	printBanner(cfg.App.Name, cfg.App.ID, *mode)

	var input client.Input
	if *walk {
		input = &squareWalk{side: 60}
	}

	switch *mode {
	case "server":
		return runServer(ctx, cfg, log)
	case "client":
		return runClient(ctx, cfg, input, log)
	case "listen":
		return runListen(ctx, cfg, input, log)
	}
	return fmt.Errorf("unknown mode %q", *mode)
}

func runServer(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	srv, err := startServer(cfg, log)
	if err != nil {
		return err
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Run(ctx) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutdown requested")
	if err := srv.Stop(cfg.Network.StopTimeout); err != nil {
		return err
	}
	return <-errc
}

func runClient(ctx context.Context, cfg *config.Config, input client.Input, log *zap.Logger) error {
	cl, peer, err := startClient(cfg, cfg.Client.ServerAddress, input, log)
	if err != nil {
		return err
	}
	defer peer.Stop()

	errc := make(chan error, 1)
	go func() { errc <- cl.Run(ctx) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	if err := cl.Stop(cfg.Network.StopTimeout); err != nil {
		return err
	}
	return <-errc
}

// runListen hosts a server and plays on it from the same process. The two
// loops share nothing but the loopback connection.
func runListen(ctx context.Context, cfg *config.Config, input client.Input, log *zap.Logger) error {
	srv, err := startServer(cfg, log.Named("server"))
	if err != nil {
		return err
	}
	_, port, err := net.SplitHostPort(srv.Addr())
	if err != nil {
		srv.Stop(cfg.Network.StopTimeout)
		return err
	}
	ccfg := *cfg
	ccfg.Client.Discover = false
	cl, peer, err := startClient(&ccfg, "127.0.0.1:"+port, input, log.Named("client"))
	if err != nil {
		srv.Stop(cfg.Network.StopTimeout)
		return err
	}
	defer peer.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return cl.Run(gctx) })

	<-gctx.Done()
	log.Info("shutdown requested")
	if err := errors.Join(cl.Stop(cfg.Network.StopTimeout), srv.Stop(cfg.Network.StopTimeout)); err != nil {
		return err
	}
	return g.Wait()
}

func startServer(cfg *config.Config, log *zap.Logger) (*server.Server, error) {
	printSection("Server")
	srv, err := server.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("server start: %w", err)
	}
	printStat("tick", cfg.Network.TickRate)
	printStat("friction", cfg.Simulation.Friction)
	printReady(fmt.Sprintf("listening on %s", srv.Addr()))
	fmt.Println()
	return srv, nil
}

func startClient(cfg *config.Config, addr string, input client.Input, log *zap.Logger) (*client.Client, *gonet.Peer, error) {
	printSection("Client")
	peer := gonet.NewPeer(gonet.Config{
		AppID:        cfg.App.ID,
		InQueueSize:  cfg.Network.InQueueSize,
		OutQueueSize: cfg.Network.OutQueueSize,
		ReadTimeout:  cfg.Network.ReadTimeout,
		WriteTimeout: cfg.Network.WriteTimeout,
	}, log.Named("net"))
	if err := peer.Start(); err != nil {
		return nil, nil, fmt.Errorf("client transport: %w", err)
	}

	ccfg := cfg.Client
	ccfg.ServerAddress = addr
	cl := client.New(ccfg, peer, nil, input, log)
	if err := cl.Connect(); err != nil {
		peer.Stop()
		return nil, nil, fmt.Errorf("client connect: %w", err)
	}
	printReady(fmt.Sprintf("connecting to %s as %s", addr, ccfg.Username))
	fmt.Println()
	return cl, peer, nil
}

// squareWalk holds each direction for side frames in turn.
type squareWalk struct {
	side  int
	frame int
}

var walkOrder = []sim.Direction{sim.DirRight, sim.DirDown, sim.DirLeft, sim.DirUp}

func (w *squareWalk) Poll(v client.View) []sim.Direction {
	if !v.HasLocal {
		return nil
	}
	d := walkOrder[(w.frame/w.side)%len(walkOrder)]
	w.frame++
	return []sim.Direction{d}
}
