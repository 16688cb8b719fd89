// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/beevik/etree"
)

// Status is the outcome of handling one SASL element.
type Status int

const (
	// StatusNone means no authentication exchange has happened yet.
	StatusNone Status = iota
	// StatusChallenge means the mechanism needs another response.
	StatusChallenge
	// StatusFailed means the exchange failed; the peer may retry.
	StatusFailed
	// StatusAuthenticated means the exchange completed successfully.
	StatusAuthenticated
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusChallenge:
		return "challenge"
	case StatusFailed:
		return "failed"
	case StatusAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Authenticator is the pluggable SASL collaborator. The connection feeds it
// auth, response and abort elements and records the returned status; it
// also asks it for the mechanism list advertised in stream features.
type Authenticator interface {
	// Handle processes one SASL element for the session. The returned
	// status tells the connection whether the exchange is still in
	// progress, failed, or completed. The error return is reserved for
	// internal failures; a rejected credential is StatusFailed, not an
	// error.
	Handle(s *Session, el *etree.Element) (Status, error)

	// Mechanisms returns the XML fragment advertising the mechanisms
	// available to the session.
	Mechanisms(s *Session) string
}

// CredentialFunc verifies a username/password pair.
type CredentialFunc func(username, password string) bool

// PlainAuthenticator implements the SASL PLAIN mechanism against a
// credential verification callback.
type PlainAuthenticator struct {
	verify CredentialFunc
}

// NewPlainAuthenticator creates a PLAIN-only authenticator.
func NewPlainAuthenticator(verify CredentialFunc) *PlainAuthenticator {
	return &PlainAuthenticator{verify: verify}
}

var _ Authenticator = (*PlainAuthenticator)(nil)

// Handle implements Authenticator.
func (a *PlainAuthenticator) Handle(s *Session, el *etree.Element) (Status, error) {
	switch el.Tag {
	case "abort":
		s.Deliver(saslFailure("aborted"))
		return StatusFailed, nil
	case "auth", "response":
	default:
		return StatusFailed, fmt.Errorf("unexpected sasl element: %s", el.Tag)
	}

	if el.Tag == "auth" && el.SelectAttrValue("mechanism", "") != "PLAIN" {
		s.Deliver(saslFailure("invalid-mechanism"))
		return StatusFailed, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(el.Text())
	if err != nil {
		s.Deliver(saslFailure("incorrect-encoding"))
		return StatusFailed, nil
	}

	// PLAIN payload: [authzid] NUL authcid NUL passwd (RFC 4616).
	parts := bytes.Split(decoded, []byte{0})
	if len(parts) != 3 {
		s.Deliver(saslFailure("malformed-request"))
		return StatusFailed, nil
	}

	username, password := string(parts[1]), string(parts[2])
	if a.verify == nil || !a.verify(username, password) {
		s.Deliver(saslFailure("not-authorized"))
		return StatusFailed, nil
	}

	s.Deliver(fmt.Sprintf("<success xmlns='%s'/>", saslNamespace))
	return StatusAuthenticated, nil
}

// Mechanisms implements Authenticator.
func (a *PlainAuthenticator) Mechanisms(s *Session) string {
	return fmt.Sprintf("<mechanisms xmlns='%s'><mechanism>PLAIN</mechanism></mechanisms>", saslNamespace)
}

const saslNamespace = "urn:ietf:params:xml:ns:xmpp-sasl"

func saslFailure(condition string) string {
	return fmt.Sprintf("<failure xmlns='%s'><%s/></failure>", saslNamespace, condition)
}
