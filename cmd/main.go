// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main runs the XMPP-over-WebSocket bridge with metrics and health
// endpoints.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/beevik/etree"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/absmach/xmppws"
	"github.com/absmach/xmppws/pkg/health"
	"github.com/absmach/xmppws/pkg/metrics"
	"github.com/absmach/xmppws/pkg/parser"
	"github.com/absmach/xmppws/pkg/server"
	"github.com/absmach/xmppws/pkg/session"
	"github.com/absmach/xmppws/pkg/ws"
)

const envPrefix = "XMPPWS_"

func main() {
	dotenvErr := godotenv.Load()

	cfg, err := xmppws.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	if dotenvErr != nil {
		logger.Warn("no .env file found, using environment variables")
	}
	logger.Info("starting xmppws bridge",
		slog.String("domain", cfg.Domain),
		slog.String("address", cfg.Host+":"+cfg.Port))

	pool := parser.NewPool(parser.PoolConfig{})
	defer pool.Close()

	registry := session.NewRegistry(logger)

	m := metrics.New("xmppws",
		func() float64 { return float64(registry.Count()) },
		func() float64 { idle, _ := pool.Stats(); return float64(idle) },
		func() float64 { _, active := pool.Stats(); return float64(active) },
	)

	connCfg := ws.Config{
		Info: &ws.StaticInfo{
			XMPPDomain: cfg.Domain,
		},
		Registry:          registry,
		Authenticator:     session.NewPlainAuthenticator(verifyCredentials),
		Route:             logRoute(logger),
		Pool:              pool,
		Metrics:           m,
		Flags:             xmppws.NewFlags(cfg),
		ValidateHost:      cfg.ValidateHost,
		KeepaliveInterval: cfg.KeepaliveInterval,
		Logger:            logger,
	}
	if cfg.RateLimitEnabled {
		connCfg.RateLimitCapacity = cfg.RateLimitCapacity
		connCfg.RateLimitRefill = cfg.RateLimitRefill
	}

	srv := server.New(server.Config{
		Address:         cfg.Host + ":" + cfg.Port,
		Path:            cfg.Path,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	}, connCfg)

	checker := health.NewChecker(10 * time.Second)
	checker.Register("goroutines", func(ctx context.Context) error {
		m.GoroutinesActive.Set(float64(runtime.NumGoroutine()))
		return nil
	})
	checker.Register("memory", func(ctx context.Context) error {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		m.MemoryAllocated.WithLabelValues("heap").Set(float64(stats.HeapAlloc))
		m.MemoryAllocated.WithLabelValues("sys").Set(float64(stats.Sys))
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Listen(ctx)
	})
	g.Go(func() error {
		return serveMetrics(ctx, cfg.MetricsPort, logger)
	})
	g.Go(func() error {
		return serveHealth(ctx, cfg.HealthPort, checker, logger)
	})
	g.Go(func() error {
		return stopSignalHandler(ctx, cancel, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("bridge terminated with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("bridge stopped")
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// verifyCredentials is the standalone credential check: accept any
// non-empty pair. Deployments embedding the bridge supply their own
// session.CredentialFunc.
func verifyCredentials(username, password string) bool {
	return username != "" && password != ""
}

// logRoute is the standalone stanza sink: log and drop. Deployments
// embedding the bridge route into their server core instead.
func logRoute(logger *slog.Logger) session.RouteFunc {
	return func(s *session.Session, stanza *etree.Element) error {
		logger.Debug("stanza routed",
			slog.String("session", s.ID()),
			slog.String("kind", stanza.Tag))
		return nil
	}
}

func serveMetrics(ctx context.Context, port string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return serveHTTP(ctx, ":"+port, mux, "metrics", logger)
}

func serveHealth(ctx context.Context, port string, checker *health.Checker, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HTTPHandler())
	mux.HandleFunc("/health/live", health.LivenessHandler())
	mux.HandleFunc("/health/ready", checker.ReadinessHandler())
	return serveHTTP(ctx, ":"+port, mux, "health", logger)
}

func serveHTTP(ctx context.Context, addr string, mux *http.ServeMux, name string, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info(name+" server started", slog.String("address", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func stopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-c:
		logger.Info("received shutdown signal")
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
