// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package session manages the server side of XMPP client sessions: the
// session objects themselves, the process-wide registry, stanza routing and
// SASL authentication. Connections consume these through narrow interfaces
// so the transport layer stays independent of routing internals.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/absmach/xmppws/pkg/errors"
)

// Deliverer is the transport binding a session writes outbound packets to.
type Deliverer interface {
	// Deliver sends one serialized packet to the remote peer.
	Deliver(packet string) error
}

// Session is one authenticated-or-authenticating client stream. A session
// normally lives exactly as long as its transport, except when stream
// management has negotiated resumption: then the session outlives the
// transport and may be rebound to a new one.
type Session struct {
	mu sync.Mutex

	id         string
	streamID   string
	language   string
	remoteAddr string
	websocket  bool

	deliverer Deliverer

	lastActive    time.Time
	clientPackets uint64
	serverPackets uint64

	sm     StreamManager
	closed bool
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// StreamID returns the stream identifier echoed in the open response.
func (s *Session) StreamID() string { return s.streamID }

// Language returns the negotiated stream language.
func (s *Session) Language() string { return s.language }

// RemoteAddr returns the peer address the session was created for.
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// WebSocket reports whether the session originated on a WebSocket binding.
func (s *Session) WebSocket() bool { return s.websocket }

// StreamManager returns the per-session stream management state.
func (s *Session) StreamManager() *StreamManager { return &s.sm }

// Deliver writes one packet to the session's transport binding.
func (s *Session) Deliver(packet string) error {
	s.mu.Lock()
	closed := s.closed
	d := s.deliverer
	s.mu.Unlock()
	if closed {
		return errors.ErrSessionClosed
	}
	if d == nil {
		return ErrSessionDetached
	}
	return d.Deliver(packet)
}

// Rebind attaches the session to a new transport binding, used when a
// resumable session is picked up by a fresh connection.
func (s *Session) Rebind(d Deliverer) {
	s.mu.Lock()
	s.deliverer = d
	s.mu.Unlock()
}

// Detach drops the transport binding while keeping the session alive for
// resumption.
func (s *Session) Detach() {
	s.Rebind(nil)
}

// IncrementClientPacketCount records one inbound packet and refreshes the
// activity clock.
func (s *Session) IncrementClientPacketCount() {
	s.mu.Lock()
	s.clientPackets++
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// IncrementServerPacketCount records one outbound packet and refreshes the
// activity clock.
func (s *Session) IncrementServerPacketCount() {
	s.mu.Lock()
	s.serverPackets++
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// PacketCounts returns the inbound and outbound packet totals.
func (s *Session) PacketCounts() (client, server uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientPackets, s.serverPackets
}

// LastActive returns the time of the most recent packet in either
// direction.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Close marks the session closed and releases its transport binding.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.deliverer = nil
	s.mu.Unlock()
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func newSession(d Deliverer, language, remoteAddr string) *Session {
	return &Session{
		id:         uuid.New().String(),
		streamID:   uuid.New().String(),
		language:   language,
		remoteAddr: remoteAddr,
		websocket:  true,
		deliverer:  d,
		lastActive: time.Now(),
	}
}

// StreamManager holds the per-session stream management (XEP-0198) state
// the bridge cares about: whether resumption was negotiated and whether the
// peer performed a formal close.
type StreamManager struct {
	mu             sync.Mutex
	resume         bool
	formallyClosed bool
	handled        uint64
}

// Resume reports whether resumption is negotiated for this session.
func (m *StreamManager) Resume() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resume
}

// SetResume records the outcome of resumption negotiation.
func (m *StreamManager) SetResume(v bool) {
	m.mu.Lock()
	m.resume = v
	m.mu.Unlock()
}

// FormalClose records a formal stream close. A formally closed stream
// relinquishes resumption: the peer has said goodbye.
func (m *StreamManager) FormalClose() {
	m.mu.Lock()
	m.formallyClosed = true
	m.resume = false
	m.mu.Unlock()
}

// FormallyClosed reports whether the peer performed a formal close.
func (m *StreamManager) FormallyClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.formallyClosed
}

// CountHandled records one stanza handled on an acknowledged stream.
func (m *StreamManager) CountHandled() {
	m.mu.Lock()
	m.handled++
	m.mu.Unlock()
}

// Handled returns the number of stanzas handled on this stream.
func (m *StreamManager) Handled() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handled
}
