package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/traffic.replay/internal/api"
	"github.com/banshee-data/traffic.replay/internal/config"
	"github.com/banshee-data/traffic.replay/internal/dataset"
	"github.com/banshee-data/traffic.replay/internal/db"
	"github.com/banshee-data/traffic.replay/internal/roadmap"
	"github.com/banshee-data/traffic.replay/internal/scene"
	"github.com/banshee-data/traffic.replay/internal/session"
	"github.com/banshee-data/traffic.replay/internal/transport/grpcstream"
	"github.com/banshee-data/traffic.replay/internal/transport/ws"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the replay server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	f := cmd.Flags()
	f.String("listen", "", "HTTP listen address")
	f.String("grpc-listen", "", "gRPC listen address (empty disables gRPC)")
	f.String("data-dir", "", "Directory holding highD_map/ and LevelX/")
	f.String("db", "", "Stream history database (empty disables history)")
	f.String("origin-table", "", "YAML table of per-recording alignment offsets")
	f.Bool("dev", false, "Development mode: permissive CORS and WebSocket origins")
	a.bind(cmd, "server.listen", "listen")
	a.bind(cmd, "server.grpc_listen", "grpc-listen")
	a.bind(cmd, "data.dir", "data-dir")
	a.bind(cmd, "db.path", "db")
	a.bind(cmd, "alignment.origin_table", "origin-table")
	a.bind(cmd, "server.dev", "dev")
	return cmd
}

// sameOrigin accepts requests without an Origin header and those whose
// Origin host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

func serve(ctx context.Context, cfg *config.Config) error {
	if cfg.File != "" {
		log.Printf("using config file %s", cfg.File)
	}

	var history *db.DB
	regOpts := []session.Option{
		session.WithTTL(cfg.Sessions.TTL),
		session.WithMaxSessions(cfg.Sessions.MaxSessions),
	}
	if cfg.DB.Path != "" {
		d, err := db.NewDB(cfg.DB.Path)
		if err != nil {
			return fmt.Errorf("failed to open stream history: %w", err)
		}
		defer d.Close()
		history = d
		regOpts = append(regOpts, session.WithHistory(d))
		log.Printf("stream history in %s", d.Path())
	}

	var origins *scene.OriginTable
	if cfg.Alignment.OriginTable != "" {
		t, err := scene.LoadOriginTable(cfg.Alignment.OriginTable)
		if err != nil {
			return err
		}
		origins = t
		log.Printf("loaded %d alignment origins from %s", t.Len(), cfg.Alignment.OriginTable)
	}

	registry := session.NewRegistry(regOpts...)
	streamer := session.NewStreamer(registry, session.StreamerConfig{
		DefaultFPS: cfg.Stream.DefaultFPS,
		MaxFPS:     cfg.Stream.MaxFPS,
	}, nil)

	wsCfg := ws.Config{
		MaxConnections: cfg.WS.MaxConnections,
		SendBuffer:     cfg.Stream.SendBuffer,
		PingInterval:   cfg.WS.PingInterval,
		InboundRate:    cfg.WS.InboundRate,
	}
	if !cfg.Server.Dev {
		wsCfg.CheckOrigin = sameOrigin
	}
	hub := ws.NewHub(wsCfg, streamer)

	srv := api.NewServer(api.Options{
		DataDir:           cfg.Data.Dir,
		SupportedDatasets: cfg.Data.SupportedDatasets,
		Dev:               cfg.Server.Dev,
		Registry:          registry,
		Streamer:          streamer,
		Hub:               hub,
		Scanner:           dataset.NewScanner(cfg.Data.Dir),
		Source:            dataset.LevelX{},
		Maps:              roadmap.NewLoader(1),
		DB:                history,
		Origins:           origins,
	})
	handler, err := srv.Handler()
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Listen, err)
	}
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcServer *grpcstream.Server
	if cfg.Server.GRPCListen != "" {
		grpcServer = grpcstream.NewServer(grpcstream.Config{ListenAddr: cfg.Server.GRPCListen}, streamer)
		if err := grpcServer.Start(); err != nil {
			lis.Close()
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("serving on http://%s (data dir %s)", lis.Addr(), cfg.Data.Dir)
		if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return registry.RunJanitor(gctx, cfg.Sessions.JanitorInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if grpcServer != nil {
			grpcServer.Stop()
		}
		if err := streamer.Shutdown(shutdownCtx); err != nil {
			log.Printf("stream shutdown: %v", err)
		}
		hub.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Printf("Graceful shutdown complete")
	return err
}
