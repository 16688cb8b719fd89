// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// transport adapts a gorilla WebSocket connection to the ws.Transport
// interface. Writes are serialized with an internal mutex because gorilla
// allows at most one concurrent writer, and data frames and control frames
// come from different goroutines.
type transport struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	secure bool
	open   bool
}

func newTransport(conn *websocket.Conn, secure bool) *transport {
	return &transport{conn: conn, secure: secure, open: true}
}

// IsOpen implements ws.Transport.
func (t *transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// IsSecure implements ws.Transport.
func (t *transport) IsSecure() bool {
	return t.secure
}

// Close implements ws.Transport. It attempts a clean close handshake and
// then drops the underlying connection.
func (t *transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return nil
	}
	t.open = false

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return t.conn.Close()
}

// SendText implements ws.Transport.
func (t *transport) SendText(data string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return websocket.ErrCloseSent
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, []byte(data))
}

// SendPing implements ws.Transport. The ping carries no payload
// (RFC 6455 section 5.5.2).
func (t *transport) SendPing() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return websocket.ErrCloseSent
	}
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// markClosed records that the peer or the read loop tore the connection
// down, without initiating another close handshake.
func (t *transport) markClosed() {
	t.mu.Lock()
	t.open = false
	t.mu.Unlock()
}
