// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package xmppws bridges the XMPP client protocol onto WebSocket
// transports as described in RFC 7395.
package xmppws

import (
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the bridge configuration, loaded from the environment.
type Config struct {
	// Host is the listen host for the WebSocket endpoint.
	Host string `env:"HOST" envDefault:""`

	// Port is the listen port for the WebSocket endpoint.
	Port string `env:"PORT" envDefault:"5443"`

	// Path is the HTTP path clients connect to.
	Path string `env:"PATH" envDefault:"/ws"`

	// Domain is the XMPP domain this server answers for. It is echoed in
	// the from attribute of every stream open response.
	Domain string `env:"DOMAIN" envDefault:"localhost"`

	// ValidateHost enables enforcement of the to attribute on inbound
	// stream opens against Domain.
	ValidateHost bool `env:"VALIDATE_HOST" envDefault:"false"`

	// StreamSubstitutionEnabled enables the legacy textual rewrite that
	// lets non-framing-aware clients connect. Runtime-toggleable.
	StreamSubstitutionEnabled bool `env:"STREAM_SUBSTITUTION_ENABLED" envDefault:"false"`

	// RateLimitEnabled enables per-connection inbound frame limiting.
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"false"`

	// RateLimitCapacity is the token bucket capacity per connection.
	RateLimitCapacity int64 `env:"RATE_LIMIT_CAPACITY" envDefault:"100"`

	// RateLimitRefill is tokens added per second per connection.
	RateLimitRefill int64 `env:"RATE_LIMIT_REFILL" envDefault:"50"`

	// KeepaliveInterval is the keepalive ping period.
	KeepaliveInterval time.Duration `env:"KEEPALIVE_INTERVAL" envDefault:"1m"`

	// ShutdownTimeout is the maximum time to wait for active connections
	// to drain during graceful shutdown.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// MetricsPort serves Prometheus metrics.
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	// HealthPort serves health and readiness probes.
	HealthPort string `env:"HEALTH_PORT" envDefault:"8080"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// NewConfig loads configuration from the environment using the given options.
func NewConfig(opts env.Options) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Flags holds the runtime-toggleable switches derived from Config. A single
// Flags value is shared by every connection, so toggles take effect on the
// next inbound frame without a restart.
type Flags struct {
	streamSubstitution atomic.Bool
}

// NewFlags seeds runtime flags from the loaded configuration.
func NewFlags(cfg Config) *Flags {
	f := &Flags{}
	f.streamSubstitution.Store(cfg.StreamSubstitutionEnabled)
	return f
}

// StreamSubstitution reports whether legacy stream rewriting is active.
func (f *Flags) StreamSubstitution() bool {
	return f.streamSubstitution.Load()
}

// SetStreamSubstitution toggles legacy stream rewriting at runtime.
func (f *Flags) SetStreamSubstitution(v bool) {
	f.streamSubstitution.Store(v)
}
