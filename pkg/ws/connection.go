// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/absmach/xmppws"
	"github.com/absmach/xmppws/pkg/errors"
	"github.com/absmach/xmppws/pkg/metrics"
	"github.com/absmach/xmppws/pkg/parser"
	"github.com/absmach/xmppws/pkg/ratelimit"
	"github.com/absmach/xmppws/pkg/session"
	"github.com/absmach/xmppws/pkg/xmpp"
)

// Config holds the collaborators and settings for one connection. Info,
// Registry, Authenticator and Pool are required; the rest are optional.
type Config struct {
	// Info provides the server identity and capability queries.
	Info ServerInfo

	// Registry is the server-wide session registry.
	Registry *session.Registry

	// Authenticator handles the SASL exchange.
	Authenticator session.Authenticator

	// Route is where authenticated stanzas go once the router accepts
	// them.
	Route session.RouteFunc

	// Pool supplies stanza parsers for inbound frames.
	Pool *parser.Pool

	// Metrics records bridge instrumentation. Optional.
	Metrics *metrics.Metrics

	// Flags carries the runtime-toggleable switches. Optional.
	Flags *xmppws.Flags

	// ValidateHost enforces the to attribute on stream opens against the
	// server domain.
	ValidateHost bool

	// KeepaliveInterval is the ping period. Defaults to one minute.
	KeepaliveInterval time.Duration

	// RateLimitCapacity and RateLimitRefill configure the per-connection
	// inbound frame budget. Zero capacity disables limiting.
	RateLimitCapacity int64
	RateLimitRefill   int64

	// RemoteAddr is the peer address, for logging and session metadata.
	RemoteAddr string

	// Logger for connection events.
	Logger *slog.Logger
}

// Connection drives one WebSocket peer through the XMPP stream lifecycle.
//
// The transport's read loop delivers frames through HandleMessage one at a
// time, so dispatch state (SASL progress, router choice) needs no locking.
// The transport handle, the open-check plus send pair, and the session
// reference are also touched by the close path and the keepalive
// goroutine, so mu guards those.
type Connection struct {
	mu        sync.Mutex
	transport Transport
	sess      *session.Session

	id     string
	cfg    Config
	logger *slog.Logger

	limiter *ratelimit.TokenBucket

	// Dispatch state, touched only on the message path.
	startedSASL bool
	saslStatus  session.Status
	router      session.Router

	keepaliveStop chan struct{}
	keepaliveOnce sync.Once
}

// NewConnection creates a connection around an open transport and starts
// its keepalive timer.
func NewConnection(t Transport, cfg Config) *Connection {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.KeepaliveInterval == 0 {
		cfg.KeepaliveInterval = time.Minute
	}

	c := &Connection{
		transport:     t,
		id:            uuid.New().String(),
		cfg:           cfg,
		keepaliveStop: make(chan struct{}),
	}
	c.logger = cfg.Logger.With(
		slog.String("connection", c.id),
		slog.String("remote", cfg.RemoteAddr))

	if cfg.RateLimitCapacity > 0 {
		c.limiter = ratelimit.NewTokenBucket(cfg.RateLimitCapacity, cfg.RateLimitRefill)
	}

	if cfg.Metrics != nil {
		cfg.Metrics.ActiveConnections.Inc()
		cfg.Metrics.ConnectionsTotal.Inc()
	}

	go c.keepalive()
	return c
}

// ID returns the connection identifier.
func (c *Connection) ID() string { return c.id }

// Session returns the bound XMPP session, or nil before negotiation.
func (c *Connection) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// IsOpen reports whether the transport can still carry frames.
func (c *Connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOpenLocked()
}

func (c *Connection) isOpenLocked() bool {
	return c.transport != nil && c.transport.IsOpen()
}

func (c *Connection) sessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionIDLocked()
}

func (c *Connection) sessionIDLocked() string {
	if c.sess == nil {
		return ""
	}
	return c.sess.ID()
}

// IsSecure reports whether the transport is TLS-protected.
func (c *Connection) IsSecure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport != nil && c.transport.IsSecure()
}

// HandleMessage processes one inbound text frame: rate limit, parse, then
// either stream negotiation or stanza dispatch. Failures never escape; the
// peer gets a protocol response or a stream close, and the parser always
// goes back to the pool.
func (c *Connection) HandleMessage(frame string) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.FramesTotal.WithLabelValues("in").Inc()
	}

	if c.limiter != nil && !c.limiter.Allow() {
		lErr := errors.New("read", c.sessionID(), c.cfg.RemoteAddr, errors.ErrRateLimited)
		c.logger.Warn("inbound frame rate limit exceeded", slog.String("error", lErr.Error()))
		c.CloseSession(xmpp.NewStreamError(xmpp.PolicyViolation))
		return
	}

	p, err := c.cfg.Pool.Get()
	if err != nil {
		// Treated like a parse failure: logged, nothing processed.
		err = errors.Wrap(err, "acquire stanza parser")
		c.logger.Error("dropping inbound frame", slog.String("error", err.Error()))
		return
	}
	defer c.cfg.Pool.Put(p)

	if c.cfg.Flags != nil && c.cfg.Flags.StreamSubstitution() {
		frame = substituteLegacyStream(frame)
	}

	root, err := p.Parse(frame)
	if err != nil {
		c.logger.Error("failed to parse inbound frame", slog.String("error", err.Error()))
		return
	}

	if c.Session() == nil {
		c.initiateSession(root)
	} else {
		c.processStanza(root)
	}
}

// HandleError is the transport error callback. If the stream is still
// writable the peer gets an internal-server-error close; final teardown is
// left to HandleClose. Callers must not hold transport locks.
func (c *Connection) HandleError(err error) {
	c.logger.Error("transport error", slog.String("error", err.Error()))
	c.closeStream(xmpp.NewStreamError(xmpp.InternalServerError))
}

// HandleClose is the transport close callback. It runs the full teardown,
// so the read loop does not finish until the session is disposed of.
func (c *Connection) HandleClose() {
	c.CloseSession(nil)
}

// Deliver sends one serialized packet to the peer. It implements
// session.Deliverer, so routed replies and SASL results come back through
// the same open-check plus send critical section as everything else.
func (c *Connection) Deliver(packet string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deliverLocked(packet)
}

func (c *Connection) deliverLocked(packet string) error {
	if !c.isOpenLocked() {
		c.logger.Warn("dropping packet, transport is closed")
		return errors.New("deliver", c.sessionIDLocked(), c.cfg.RemoteAddr, errors.ErrTransportClosed)
	}

	if c.sess != nil {
		c.sess.IncrementServerPacketCount()
	} else {
		// Happens when emitting errors before negotiation completes.
		c.logger.Debug("delivering packet with no session bound")
	}

	if err := c.transport.SendText(packet); err != nil {
		dErr := errors.New("deliver", c.sessionIDLocked(), c.cfg.RemoteAddr, err)
		c.logger.Error("packet delivery failed", slog.String("error", dErr.Error()))
		return dErr
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.FramesTotal.WithLabelValues("out").Inc()
	}
	return nil
}

// CloseSession tears the connection down: close envelope (preceded by the
// stream error, if any) and transport close first, then session disposal.
// A session with negotiated resumption is only detached and stays
// registered for pickup by a new transport; otherwise it is closed and
// deregistered. Safe to call from any goroutine and idempotent: every
// close trigger funnels through here.
func (c *Connection) CloseSession(streamErr *xmpp.StreamError) {
	c.mu.Lock()
	if c.isOpenLocked() {
		c.closeStreamLocked(streamErr)
	}
	c.closeTransportLocked()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	if sess != nil {
		if sess.StreamManager().Resume() {
			c.logger.Debug("detaching resumable session", slog.String("session", sess.ID()))
			sess.Detach()
		} else {
			c.logger.Debug("closing session", slog.String("session", sess.ID()))
			sess.Close()
			c.cfg.Registry.RemoveSession(sess)
		}
	}

	c.stopKeepalive()
}

// closeStream emits the optional stream error and the close envelope, then
// closes the transport.
func (c *Connection) closeStream(streamErr *xmpp.StreamError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeStreamLocked(streamErr)
}

func (c *Connection) closeStreamLocked(streamErr *xmpp.StreamError) {
	if !c.isOpenLocked() {
		return
	}

	if streamErr != nil {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.StreamErrorsTotal.WithLabelValues(string(streamErr.Condition)).Inc()
		}
		c.deliverLocked(streamErr.XML())
	}

	c.deliverLocked("<close xmlns='" + xmpp.FramingNamespace + "'/>")
	c.closeTransportLocked()
}

func (c *Connection) closeTransportLocked() {
	if c.transport == nil {
		return
	}
	if c.transport.IsOpen() {
		if err := c.transport.Close(); err != nil {
			c.logger.Debug("transport close failed", slog.String("error", err.Error()))
		}
	}
	c.transport = nil
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.ActiveConnections.Dec()
	}
}

func (c *Connection) stopKeepalive() {
	c.keepaliveOnce.Do(func() { close(c.keepaliveStop) })
}
