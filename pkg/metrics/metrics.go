// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	// Connection metrics
	ActiveConnections prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	// Frame and stanza metrics
	FramesTotal  *prometheus.CounterVec
	StanzasTotal *prometheus.CounterVec

	// Error metrics
	StreamErrorsTotal *prometheus.CounterVec
	StanzaErrorsTotal *prometheus.CounterVec

	// Auth metrics
	AuthAttemptsTotal prometheus.Counter
	AuthFailuresTotal prometheus.Counter

	// Keepalive metrics
	PingsTotal *prometheus.CounterVec

	// Session metrics
	ActiveSessions prometheus.GaugeFunc

	// Parser pool metrics
	PoolParsersIdle   prometheus.GaugeFunc
	PoolParsersActive prometheus.GaugeFunc

	// Resource metrics
	GoroutinesActive prometheus.Gauge
	MemoryAllocated  *prometheus.GaugeVec
}

// New creates a new Metrics instance. sessionCount, poolIdle and poolActive
// feed the corresponding gauges on every scrape; any of them may be nil.
func New(namespace string, sessionCount, poolIdle, poolActive func() float64) *Metrics {
	if namespace == "" {
		namespace = "xmppws"
	}
	zero := func() float64 { return 0 }
	if sessionCount == nil {
		sessionCount = zero
	}
	if poolIdle == nil {
		poolIdle = zero
	}
	if poolActive == nil {
		poolActive = zero
	}

	return &Metrics{
		ActiveConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Number of currently active WebSocket connections",
			},
		),
		ConnectionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Total number of accepted WebSocket connections",
			},
		),
		FramesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Total number of WebSocket text frames",
			},
			[]string{"direction"},
		),
		StanzasTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stanzas_total",
				Help:      "Total number of stanzas routed, by kind",
			},
			[]string{"kind"},
		),
		StreamErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_errors_total",
				Help:      "Total number of stream errors emitted",
			},
			[]string{"condition"},
		),
		StanzaErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stanza_errors_total",
				Help:      "Total number of stanza error replies emitted",
			},
			[]string{"condition"},
		),
		AuthAttemptsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Total number of SASL elements relayed",
			},
		),
		AuthFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of failed SASL exchanges",
			},
		),
		PingsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pings_total",
				Help:      "Total number of keepalive pings",
			},
			[]string{"result"},
		),
		ActiveSessions: promauto.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of registered XMPP sessions",
			},
			sessionCount,
		),
		PoolParsersIdle: promauto.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_parsers_idle",
				Help:      "Number of idle parsers in the pool",
			},
			poolIdle,
		),
		PoolParsersActive: promauto.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_parsers_active",
				Help:      "Number of parsers currently in use",
			},
			poolActive,
		),
		GoroutinesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutines_active",
				Help:      "Number of active goroutines",
			},
		),
		MemoryAllocated: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_allocated_bytes",
				Help:      "Memory allocated in bytes",
			},
			[]string{"type"},
		),
	}
}
