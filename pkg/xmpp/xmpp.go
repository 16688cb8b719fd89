// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package xmpp holds the protocol constants and error vocabulary shared by
// the bridge: RFC 7395 framing names, stream error conditions, and stanza
// error reply construction.
package xmpp

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

const (
	// StreamHeader is the local name of the framed stream open element.
	StreamHeader = "open"

	// StreamFooter is the local name of the framed stream close element.
	StreamFooter = "close"

	// FramingNamespace is the XMPP-over-WebSocket framing namespace
	// (RFC 7395 section 3.3.2).
	FramingNamespace = "urn:ietf:params:xml:ns:xmpp-framing"

	// SASLNamespace is the stream authentication namespace.
	SASLNamespace = "urn:ietf:params:xml:ns:xmpp-sasl"

	// StreamsNamespace is the stream qualifier used by features and errors.
	StreamsNamespace = "http://etherx.jabber.org/streams"

	// BindNamespace advertises resource binding after authentication.
	BindNamespace = "urn:ietf:params:xml:ns:xmpp-bind"

	// SessionNamespace advertises legacy session establishment.
	SessionNamespace = "urn:ietf:params:xml:ns:xmpp-session"

	// StreamManagementNamespace is stream management version 3.
	StreamManagementNamespace = "urn:xmpp:sm:3"

	// CapsNamespace carries the entity capabilities advertisement.
	CapsNamespace = "http://jabber.org/protocol/caps"

	// IQAuthFeatureNamespace advertises legacy jabber:iq:auth support.
	IQAuthFeatureNamespace = "http://jabber.org/features/iq-auth"

	// IQAuthNamespace is the legacy non-SASL authentication namespace.
	IQAuthNamespace = "jabber:iq:auth"

	streamErrorNamespace = "urn:ietf:params:xml:ns:xmpp-streams"
	stanzaErrorNamespace = "urn:ietf:params:xml:ns:xmpp-stanzas"
)

// StreamErrorCondition identifies a stream-fatal error condition.
type StreamErrorCondition string

// Stream error conditions emitted by the bridge.
const (
	UnsupportedStanzaType StreamErrorCondition = "unsupported-stanza-type"
	InvalidNamespace      StreamErrorCondition = "invalid-namespace"
	HostUnknown           StreamErrorCondition = "host-unknown"
	InternalServerError   StreamErrorCondition = "internal-server-error"
	PolicyViolation       StreamErrorCondition = "policy-violation"
)

// StreamError is a stream-fatal error. Emitting one terminates the stream;
// the peer must reconnect.
type StreamError struct {
	Condition StreamErrorCondition
}

// NewStreamError creates a stream error for the given condition.
func NewStreamError(condition StreamErrorCondition) *StreamError {
	return &StreamError{Condition: condition}
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	return string(e.Condition)
}

// XML renders the wire form of the stream error.
func (e *StreamError) XML() string {
	return fmt.Sprintf("<stream:error xmlns:stream='%s'><%s xmlns='%s'/></stream:error>",
		StreamsNamespace, e.Condition, streamErrorNamespace)
}

// StanzaErrorCondition identifies a stanza-level error condition. The stream
// survives; only the offending stanza is answered with an error reply.
type StanzaErrorCondition string

// Stanza error conditions emitted by the bridge.
const (
	BadRequest    StanzaErrorCondition = "bad-request"
	NotAuthorized StanzaErrorCondition = "not-authorized"
)

// errorType returns the RFC 6120 error type attribute for a condition.
func (c StanzaErrorCondition) errorType() string {
	switch c {
	case NotAuthorized:
		return "auth"
	default:
		return "modify"
	}
}

// StanzaErrorReply builds the error reply for a rejected stanza: the stanza
// is echoed back with type=error, the to and from attributes swapped, and a
// standard error element appended. Echoing the offending stanza helps the
// peer correlate the failure.
func StanzaErrorReply(stanza *etree.Element, condition StanzaErrorCondition) *etree.Element {
	reply := stanza.Copy()
	reply.CreateAttr("type", "error")
	reply.RemoveAttr("to")
	reply.RemoveAttr("from")
	if v := stanza.SelectAttrValue("from", ""); v != "" {
		reply.CreateAttr("to", v)
	}
	if v := stanza.SelectAttrValue("to", ""); v != "" {
		reply.CreateAttr("from", v)
	}

	errEl := reply.CreateElement("error")
	errEl.CreateAttr("type", condition.errorType())
	cond := errEl.CreateElement(string(condition))
	cond.CreateAttr("xmlns", stanzaErrorNamespace)
	return reply
}

// Marshal renders an element to its wire form.
func Marshal(el *etree.Element) string {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	doc.WriteSettings.CanonicalEndTags = false
	s, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// Namespace returns the effective namespace of an element as declared by
// its xmlns attribute. The stanza parser does not resolve prefixes, so the
// bridge checks the declaration the peer actually sent.
func Namespace(el *etree.Element) string {
	return el.SelectAttrValue("xmlns", "")
}

// Lang returns the xml:lang attribute, defaulting to "en" when absent.
func Lang(el *etree.Element) string {
	if v := el.SelectAttrValue("xml:lang", ""); v != "" {
		return v
	}
	return "en"
}
