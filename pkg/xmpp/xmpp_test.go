// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package xmpp

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
)

func parseElement(t *testing.T, s string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromString(s); err != nil {
		t.Fatalf("failed to parse %q: %v", s, err)
	}
	return doc.Root()
}

func TestStreamErrorXML(t *testing.T) {
	tests := []struct {
		condition StreamErrorCondition
	}{
		{UnsupportedStanzaType},
		{InvalidNamespace},
		{HostUnknown},
		{InternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.condition), func(t *testing.T) {
			out := NewStreamError(tt.condition).XML()
			if !strings.Contains(out, "<stream:error") {
				t.Errorf("missing stream:error element: %s", out)
			}
			if !strings.Contains(out, "<"+string(tt.condition)+" ") {
				t.Errorf("missing condition %s: %s", tt.condition, out)
			}
			if !strings.Contains(out, StreamsNamespace) {
				t.Errorf("missing streams namespace: %s", out)
			}
		})
	}
}

func TestStanzaErrorReply(t *testing.T) {
	stanza := parseElement(t, `<message from="romeo@example.com" to="juliet@example.com" id="m1"><body>hi</body></message>`)

	reply := StanzaErrorReply(stanza, BadRequest)

	if got := reply.SelectAttrValue("type", ""); got != "error" {
		t.Errorf("type = %q, want error", got)
	}
	if got := reply.SelectAttrValue("to", ""); got != "romeo@example.com" {
		t.Errorf("to = %q, want sender address", got)
	}
	if got := reply.SelectAttrValue("from", ""); got != "juliet@example.com" {
		t.Errorf("from = %q, want original destination", got)
	}
	// Original content is echoed back.
	if reply.SelectElement("body") == nil {
		t.Error("reply does not echo original child elements")
	}
	if got := reply.SelectAttrValue("id", ""); got != "m1" {
		t.Errorf("id = %q, original attributes must be preserved", got)
	}

	errEl := reply.SelectElement("error")
	if errEl == nil {
		t.Fatal("reply has no error element")
	}
	if got := errEl.SelectAttrValue("type", ""); got != "modify" {
		t.Errorf("error type = %q, want modify", got)
	}
	if errEl.SelectElement("bad-request") == nil {
		t.Error("error element has no bad-request condition")
	}
}

func TestStanzaErrorReplyNotAuthorized(t *testing.T) {
	stanza := parseElement(t, `<response xmlns="urn:ietf:params:xml:ns:xmpp-sasl"/>`)

	reply := StanzaErrorReply(stanza, NotAuthorized)

	errEl := reply.SelectElement("error")
	if errEl == nil {
		t.Fatal("reply has no error element")
	}
	if got := errEl.SelectAttrValue("type", ""); got != "auth" {
		t.Errorf("error type = %q, want auth", got)
	}
	if errEl.SelectElement("not-authorized") == nil {
		t.Error("error element has no not-authorized condition")
	}
	// The stanza had no addresses, so the reply must not invent any.
	if reply.SelectAttr("to") != nil || reply.SelectAttr("from") != nil {
		t.Error("reply has addresses the original stanza lacked")
	}
}

func TestLang(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"explicit", `<open xml:lang="de"/>`, "de"},
		{"missing", `<open/>`, "en"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Lang(parseElement(t, tt.input)); got != tt.want {
				t.Errorf("Lang() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNamespace(t *testing.T) {
	el := parseElement(t, `<open xmlns="urn:ietf:params:xml:ns:xmpp-framing"/>`)
	if got := Namespace(el); got != FramingNamespace {
		t.Errorf("Namespace() = %q, want framing namespace", got)
	}

	el = parseElement(t, `<open/>`)
	if got := Namespace(el); got != "" {
		t.Errorf("Namespace() = %q, want empty", got)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	el := parseElement(t, `<message to="a@b"><body>hello</body></message>`)
	out := Marshal(el)
	if !strings.Contains(out, `to="a@b"`) || !strings.Contains(out, "hello") {
		t.Errorf("Marshal() lost content: %s", out)
	}
}
