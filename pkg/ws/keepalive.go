// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ws

import (
	"log/slog"
	"time"
)

// keepalive probes an idle peer once per interval for the lifetime of the
// connection. A single failed ping is tolerated; two consecutive failures
// mean the peer is gone and the session is closed. The loop stops itself
// when the transport is no longer open and is also cancelled by
// CloseSession, whichever comes first.
func (c *Connection) keepalive() {
	ticker := time.NewTicker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()

	lastPingFailed := false
	for {
		select {
		case <-c.keepaliveStop:
			return
		case <-ticker.C:
		}

		failed, stop := c.pingOnce(lastPingFailed)
		if stop {
			return
		}
		lastPingFailed = failed
	}
}

// pingOnce runs one keepalive tick. It reports whether this tick's ping
// failed and whether the loop should stop. Ticks are skipped while the
// session has seen traffic within the last interval.
func (c *Connection) pingOnce(lastPingFailed bool) (failed, stop bool) {
	c.mu.Lock()
	if !c.isOpenLocked() {
		c.mu.Unlock()
		return false, true
	}

	if c.sess != nil && time.Since(c.sess.LastActive()) < c.cfg.KeepaliveInterval {
		c.mu.Unlock()
		return lastPingFailed, false
	}

	err := c.transport.SendPing()
	c.mu.Unlock()

	if err == nil {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.PingsTotal.WithLabelValues("ok").Inc()
		}
		return false, false
	}

	c.logger.Error("failed to ping remote peer", slog.String("error", err.Error()))
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.PingsTotal.WithLabelValues("failed").Inc()
	}

	if lastPingFailed {
		c.CloseSession(nil)
		return true, true
	}
	return true, false
}
