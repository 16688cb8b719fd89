// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ws

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/beevik/etree"

	"github.com/absmach/xmppws/pkg/session"
	"github.com/absmach/xmppws/pkg/xmpp"
)

// initiateSession validates the initial stream header and either binds a
// new XMPP session to this connection or rejects the stream. The first
// failing check wins; a premature footer is logged but gets no stream
// error.
func (c *Connection) initiateSession(root *etree.Element) {
	host := root.SelectAttrValue("to", "")
	lang := xmpp.Lang(root)

	var streamErr *xmpp.StreamError
	var sess *session.Session

	switch {
	case root.Tag == xmpp.StreamFooter:
		c.logger.Warn("client closed stream before session was established")
	case root.Tag != xmpp.StreamHeader:
		streamErr = xmpp.NewStreamError(xmpp.UnsupportedStanzaType)
		c.logger.Warn("closing stream due to incorrect stream header",
			slog.String("tag", root.Tag))
	case xmpp.Namespace(root) != xmpp.FramingNamespace:
		// RFC 7395 section 3.3.2 requires the framing namespace.
		streamErr = xmpp.NewStreamError(xmpp.InvalidNamespace)
		c.logger.Warn("closing stream due to invalid namespace in stream header",
			slog.String("namespace", xmpp.Namespace(root)))
	case !c.validateHost(host):
		streamErr = xmpp.NewStreamError(xmpp.HostUnknown)
		c.logger.Warn("closing stream due to incorrect hostname in stream header",
			slog.String("host", host))
	default:
		sess = c.cfg.Registry.CreateSession(c, lang, c.cfg.RemoteAddr)
		c.mu.Lock()
		c.sess = sess
		c.mu.Unlock()
	}

	if sess == nil {
		c.closeStream(streamErr)
		return
	}

	c.openStream(lang, root.SelectAttrValue("from", ""))
	c.configureStream()
}

// validateHost checks the stream header's to attribute against the server
// domain when enforcement is enabled.
func (c *Connection) validateHost(host string) bool {
	if !c.cfg.ValidateHost {
		return true
	}
	return c.cfg.Info.Domain() == host
}

// openStream emits the open response, echoing the peer's address and the
// negotiated language alongside the server domain and stream ID.
func (c *Connection) openStream(lang, jid string) {
	sess := c.Session()
	if sess == nil {
		return
	}
	sess.IncrementClientPacketCount()

	var sb strings.Builder
	sb.WriteString("<open ")
	if jid != "" {
		fmt.Fprintf(&sb, "to='%s' ", jid)
	}
	fmt.Fprintf(&sb, "from='%s' ", c.cfg.Info.Domain())
	fmt.Fprintf(&sb, "id='%s' ", sess.StreamID())
	fmt.Fprintf(&sb, "xmlns='%s' ", xmpp.FramingNamespace)
	fmt.Fprintf(&sb, "xml:lang='%s' ", lang)
	sb.WriteString("version='1.0'/>")
	c.Deliver(sb.String())
}

// configureStream advertises stream features for the current
// authentication state: SASL mechanisms (plus legacy iq-auth when the IQ
// router supports it) before authentication, bind/session/stream-management
// after, and the entity capabilities hash whenever one is available so
// peers can skip service discovery.
func (c *Connection) configureStream() {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<stream:features xmlns:stream='%s'>", xmpp.StreamsNamespace)

	switch {
	case c.saslStatus == session.StatusNone:
		sb.WriteString(c.cfg.Authenticator.Mechanisms(c.Session()))
		if c.cfg.Info.SupportsIQAuth() {
			fmt.Fprintf(&sb, "<auth xmlns='%s'/>", xmpp.IQAuthFeatureNamespace)
		}
	case c.saslStatus == session.StatusAuthenticated:
		fmt.Fprintf(&sb, "<bind xmlns='%s'/>", xmpp.BindNamespace)
		fmt.Fprintf(&sb, "<session xmlns='%s'><optional/></session>", xmpp.SessionNamespace)
		if c.cfg.Info.StreamManagementActive() {
			fmt.Fprintf(&sb, "<sm xmlns='%s'/>", xmpp.StreamManagementNamespace)
		}
	}

	if ver := c.cfg.Info.CapsHash(); ver != "" {
		fmt.Fprintf(&sb, "<c xmlns='%s' hash='sha-1' node='%s' ver='%s'/>",
			xmpp.CapsNamespace, capsNode, ver)
	}

	sb.WriteString("</stream:features>")
	c.Deliver(sb.String())
}

// capsNode identifies this server in entity capabilities advertisements
// (XEP-0115).
const capsNode = "https://github.com/absmach/xmppws"

// Legacy stream substitution rewrites the non-framing stream open and close
// a non-WebSocket-aware client sends into their RFC 7395 equivalents. This
// is a literal prefix match on the raw text, applied before parsing.
// Broadening it risks mis-rewriting valid framed input, so the matching
// rules stay exactly as narrow as they look.
const (
	legacyStreamOpenPrefix  = "<?xml version='1.0'?><stream:stream "
	legacyStreamClosePrefix = "</stream:stream>"
)

func substituteLegacyStream(frame string) string {
	if strings.HasPrefix(frame, legacyStreamOpenPrefix) {
		frame = strings.Replace(frame, legacyStreamOpenPrefix, "<open ", 1)
		frame = strings.ReplaceAll(frame, "jabber:client", xmpp.FramingNamespace)
		frame += "</open>"
	}
	if strings.HasPrefix(frame, legacyStreamClosePrefix) {
		frame = strings.Replace(frame, legacyStreamClosePrefix,
			"<close xmlns='"+xmpp.FramingNamespace+"' />", 1)
	}
	return frame
}
