// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package server accepts WebSocket connections, upgrades them with the
// xmpp subprotocol, and drives one bridge connection per peer.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/absmach/xmppws/pkg/ws"
)

// ErrShutdownTimeout is returned when graceful shutdown exceeds the
// configured timeout.
var ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

// Config holds the WebSocket server configuration.
type Config struct {
	// Address is the listen address (host:port).
	Address string

	// Path is the HTTP path clients connect to.
	Path string

	// ShutdownTimeout is the maximum time to wait for active connections
	// to drain during graceful shutdown.
	ShutdownTimeout time.Duration

	// Logger for server events.
	Logger *slog.Logger
}

// Server accepts WebSocket connections and runs the per-connection bridge
// state machine for each.
type Server struct {
	config   Config
	connCfg  ws.Config
	upgrader websocket.Upgrader
	wg       sync.WaitGroup
}

// New creates a WebSocket server. connCfg is the template configuration
// each accepted connection is built from.
func New(cfg Config, connCfg ws.Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}

	return &Server{
		config:  cfg,
		connCfg: connCfg,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"xmpp"},
			CheckOrigin: func(r *http.Request) bool {
				// Browsers are not the primary clients here; XMPP has its
				// own authentication.
				return true
			},
		},
	}
}

// Listen starts the server and blocks until the context is cancelled. It
// implements graceful shutdown with connection draining.
func (s *Server) Listen(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, s)

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}

	srv := &http.Server{Handler: mux}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	s.config.Logger.Info("websocket server started",
		slog.String("address", s.config.Address),
		slog.String("path", s.config.Path))

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	s.config.Logger.Info("shutdown signal received, closing listener")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.config.Logger.Error("http shutdown failed", slog.String("error", err.Error()))
	}

	// Wait for active bridge connections to drain with timeout.
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.config.Logger.Info("all connections closed gracefully")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		s.config.Logger.Warn("shutdown timeout exceeded, forcing connection closure")
		srv.Close()
		return ErrShutdownTimeout
	}
}

// ServeHTTP upgrades the request and runs the connection's read loop. Each
// frame is handed to the bridge synchronously, so message handling for one
// connection never interleaves.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.config.Logger.Error("failed to upgrade connection",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	s.config.Logger.Debug("websocket connection upgraded",
		slog.String("remote", r.RemoteAddr))

	t := newTransport(wsConn, r.TLS != nil)

	connCfg := s.connCfg
	connCfg.RemoteAddr = r.RemoteAddr
	conn := ws.NewConnection(t, connCfg)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop(conn, t, wsConn)
	}()
}

// readLoop pumps inbound frames into the bridge until the connection dies,
// then fires the close callback (and the error callback first, for
// abnormal termination).
func (s *Server) readLoop(conn *ws.Connection, t *transport, wsConn *websocket.Conn) {
	for {
		msgType, data, err := wsConn.ReadMessage()
		if err != nil {
			// The write side may still be usable after a read failure, so
			// the error callback runs before the transport is marked
			// closed: abnormal termination owes the peer a stream error.
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				conn.HandleError(err)
			}
			t.markClosed()
			conn.HandleClose()
			return
		}

		if msgType != websocket.TextMessage {
			// RFC 7395 section 3.2: XMPP frames must be text.
			s.config.Logger.Debug("ignoring non-text frame",
				slog.String("connection", conn.ID()))
			continue
		}

		conn.HandleMessage(string(data))
	}
}
