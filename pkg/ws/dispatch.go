// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ws

import (
	"log/slog"

	"github.com/beevik/etree"

	"github.com/absmach/xmppws/pkg/errors"
	"github.com/absmach/xmppws/pkg/session"
	"github.com/absmach/xmppws/pkg/xmpp"
)

// processStanza classifies one parsed element on an established stream.
// Stream framing and authentication elements are handled locally; anything
// else goes to the stanza router once the peer is authenticated, and is
// rejected as not-authorized before that.
func (c *Connection) processStanza(stanza *etree.Element) {
	sess := c.Session()
	if sess == nil {
		return
	}

	switch {
	case stanza.Tag == xmpp.StreamFooter:
		sess.StreamManager().FormalClose()
		c.closeStream(nil)

	case stanza.Tag == "auth":
		c.startedSASL = true
		c.relaySASL(sess, stanza)

	case c.startedSASL && (stanza.Tag == "response" || stanza.Tag == "abort"):
		c.relaySASL(sess, stanza)

	case stanza.Tag == xmpp.StreamHeader:
		// Stream restart: re-announce features without a new session.
		c.openStream(xmpp.Lang(stanza), stanza.SelectAttrValue("from", ""))
		c.configureStream()

	case c.saslStatus == session.StatusAuthenticated:
		c.routeStanza(stanza)

	default:
		c.logger.Warn("rejecting stanza from unauthenticated peer",
			slog.String("stanza", xmpp.Marshal(stanza)))
		c.sendStanzaError(stanza, xmpp.NotAuthorized)
	}
}

// relaySASL forwards one SASL element to the authenticator and records the
// resulting status. Internal authenticator failures are stream-fatal.
func (c *Connection) relaySASL(sess *session.Session, el *etree.Element) {
	sess.IncrementClientPacketCount()
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.AuthAttemptsTotal.Inc()
	}

	status, err := c.cfg.Authenticator.Handle(sess, el)
	if err != nil {
		c.logger.Error("sasl handler failed",
			slog.String("element", el.Tag),
			slog.String("error", err.Error()))
		c.closeStream(xmpp.NewStreamError(xmpp.InternalServerError))
		return
	}

	c.saslStatus = status
	if status == session.StatusFailed && c.cfg.Metrics != nil {
		c.cfg.Metrics.AuthFailuresTotal.Inc()
	}
}

// routeStanza hands an authenticated stanza to the router, selecting the
// router once per connection: stream-management-aware when the server has
// stream management active, plain otherwise.
func (c *Connection) routeStanza(stanza *etree.Element) {
	sess := c.Session()
	if sess == nil {
		return
	}

	if c.router == nil {
		if c.cfg.Info.StreamManagementActive() {
			c.router = session.NewStreamManagementRouter(sess, c.cfg.Route)
		} else {
			c.router = session.NewPacketRouter(sess, c.cfg.Route)
		}
	}

	err := c.router.Route(stanza)
	switch {
	case err == nil:
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.StanzasTotal.WithLabelValues(stanza.Tag).Inc()
		}
	case errors.Is(err, session.ErrUnknownStanza):
		c.logger.Warn("received invalid stanza",
			slog.String("stanza", xmpp.Marshal(stanza)))
		c.sendStanzaError(stanza, xmpp.BadRequest)
	default:
		rErr := errors.New("route", sess.ID(), c.cfg.RemoteAddr, err)
		c.logger.Error("failed to process incoming stanza",
			slog.String("stanza", xmpp.Marshal(stanza)),
			slog.String("error", rErr.Error()))
		c.closeStream(xmpp.NewStreamError(xmpp.InternalServerError))
	}
}

// sendStanzaError answers an offending stanza with an error reply that
// echoes the stanza back to its sender.
func (c *Connection) sendStanzaError(stanza *etree.Element, condition xmpp.StanzaErrorCondition) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.StanzaErrorsTotal.WithLabelValues(string(condition)).Inc()
	}
	c.Deliver(xmpp.Marshal(xmpp.StanzaErrorReply(stanza, condition)))
}
