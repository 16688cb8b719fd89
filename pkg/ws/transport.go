// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ws implements the per-connection bridge between a WebSocket
// transport and an XMPP client stream (RFC 7395): stream negotiation, SASL
// relay, stanza dispatch, keepalive pings and the shutdown sequence that
// reconciles the transport lifecycle with the session lifecycle.
package ws

// Transport is the WebSocket connection as seen by the bridge. The
// implementation lives in pkg/server; tests substitute fakes.
type Transport interface {
	// IsOpen reports whether the transport can still carry frames.
	IsOpen() bool

	// IsSecure reports whether the transport is TLS-protected.
	IsSecure() bool

	// Close closes the transport. Closing a closed transport is a no-op.
	Close() error

	// SendText writes one text frame.
	SendText(data string) error

	// SendPing writes one ping control frame with no payload
	// (RFC 6455 section 5.5.2).
	SendPing() error
}

// ServerInfo describes the server identity and the capabilities the bridge
// consults during stream negotiation and router selection.
type ServerInfo interface {
	// Domain is the XMPP domain this server answers for.
	Domain() string

	// CapsHash is the entity capabilities verification hash advertised in
	// stream features, or empty when unavailable.
	CapsHash() string

	// SupportsIQAuth reports whether the IQ router advertises the legacy
	// jabber:iq:auth namespace.
	SupportsIQAuth() bool

	// StreamManagementActive reports whether stream management is active
	// server-wide.
	StreamManagementActive() bool
}

// StaticInfo is a fixed ServerInfo, used by standalone deployments and
// tests.
type StaticInfo struct {
	XMPPDomain       string
	EntityCapsHash   string
	IQAuthSupported  bool
	StreamManagement bool
}

var _ ServerInfo = (*StaticInfo)(nil)

func (i *StaticInfo) Domain() string               { return i.XMPPDomain }
func (i *StaticInfo) CapsHash() string             { return i.EntityCapsHash }
func (i *StaticInfo) SupportsIQAuth() bool         { return i.IQAuthSupported }
func (i *StaticInfo) StreamManagementActive() bool { return i.StreamManagement }
