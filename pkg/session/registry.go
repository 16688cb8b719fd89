// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrSessionDetached is returned when delivering to a session that has
	// no transport binding.
	ErrSessionDetached = errors.New("session has no transport binding")
)

// Registry is the server-wide session registry. Sessions are registered on
// creation and stay registered until removed; a resumable session whose
// transport died remains registered so a new connection can pick it up.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// CreateSession creates a session bound to the given transport binding and
// registers it.
func (r *Registry) CreateSession(d Deliverer, language, remoteAddr string) *Session {
	s := newSession(d, language, remoteAddr)

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	r.logger.Debug("session created",
		slog.String("session", s.id),
		slog.String("stream", s.streamID),
		slog.String("remote", remoteAddr))
	return s
}

// RemoveSession deregisters a session. Removing an unknown session is a
// no-op.
func (r *Registry) RemoveSession(s *Session) {
	if s == nil {
		return
	}

	r.mu.Lock()
	_, known := r.sessions[s.id]
	delete(r.sessions, s.id)
	r.mu.Unlock()

	if known {
		r.logger.Debug("session removed", slog.String("session", s.id))
	}
}

// Lookup returns the registered session with the given ID, if any.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
