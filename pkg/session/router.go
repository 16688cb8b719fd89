// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// ErrUnknownStanza is returned by routers for a stanza kind they do not
// recognize. The connection answers it with a bad-request reply instead of
// tearing the stream down.
var ErrUnknownStanza = errors.New("unknown stanza")

// Router routes authenticated stanzas on behalf of a session.
type Router interface {
	Route(stanza *etree.Element) error
}

// RouteFunc is where a routed stanza ultimately goes: the server core, a
// federation link, or a test sink.
type RouteFunc func(s *Session, stanza *etree.Element) error

// PacketRouter is the plain per-session router: it validates the stanza
// kind and hands it to the route sink.
type PacketRouter struct {
	session *Session
	route   RouteFunc
}

// NewPacketRouter creates a router for the given session.
func NewPacketRouter(s *Session, route RouteFunc) *PacketRouter {
	return &PacketRouter{session: s, route: route}
}

// Route implements Router.
func (r *PacketRouter) Route(stanza *etree.Element) error {
	switch stanza.Tag {
	case "message", "presence", "iq":
	default:
		return fmt.Errorf("%w: %s", ErrUnknownStanza, stanza.Tag)
	}

	r.session.IncrementClientPacketCount()
	if r.route == nil {
		return nil
	}
	return r.route(r.session, stanza)
}

// StreamManagementRouter wraps a router with stream management accounting:
// every successfully routed stanza is counted as handled so the server can
// acknowledge it.
type StreamManagementRouter struct {
	inner   Router
	session *Session
}

// NewStreamManagementRouter creates the accounting wrapper for sessions on
// a stream-management-active server.
func NewStreamManagementRouter(s *Session, route RouteFunc) *StreamManagementRouter {
	return &StreamManagementRouter{
		inner:   NewPacketRouter(s, route),
		session: s,
	}
}

// Route implements Router.
func (r *StreamManagementRouter) Route(stanza *etree.Element) error {
	if err := r.inner.Route(stanza); err != nil {
		return err
	}
	r.session.StreamManager().CountHandled()
	return nil
}
