// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured error handling for the bridge.
package errors

import (
	"errors"
	"fmt"
)

// Common error types
var (
	// ErrTransportClosed indicates a delivery attempt on a closed
	// transport.
	ErrTransportClosed = errors.New("transport closed")

	// ErrRateLimited indicates the inbound frame allowance was exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrSessionClosed indicates a delivery attempt on a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// BridgeError wraps an error with connection context.
type BridgeError struct {
	Op         string // Operation that failed
	SessionID  string // Session identifier
	RemoteAddr string // Client address
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s [%s] %s: %v", e.Op, e.SessionID, e.RemoteAddr, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.RemoteAddr, e.Err)
}

// Unwrap returns the underlying error.
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// New creates a new BridgeError.
func New(op, sessionID, remoteAddr string, err error) error {
	if err == nil {
		return nil
	}
	return &BridgeError{
		Op:         op,
		SessionID:  sessionID,
		RemoteAddr: remoteAddr,
		Err:        err,
	}
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
