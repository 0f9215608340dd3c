// File: server/io.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Off-loop frame reads and the outbound drain.

package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/momentics/hioload-appserver/api"
	"github.com/momentics/hioload-appserver/framing"
	"github.com/momentics/hioload-appserver/internal/netpoll"
	"github.com/momentics/hioload-appserver/session"
)

// scheduleReads starts one asynchronous frame read per connection that has
// bytes waiting and no read in flight.
func (e *Engine) scheduleReads() {
	for _, c := range e.Connections() {
		if c.ShouldRemove() || c.Reading() || !wantsRead(c) {
			continue
		}
		if !c.TryBeginRead() {
			continue
		}
		if err := e.exec.Submit(func() { e.readFrame(c) }); err != nil {
			c.EndRead()
		}
	}
}

// wantsRead reports whether the socket has bytes, or a read was requested
// because the TLS layer may hold decrypted bytes the socket no longer shows.
func wantsRead(c *session.Connection) bool {
	if c.TLS() != nil && c.TakeReadRequest() {
		return true
	}
	readable, ok := netpoll.Readable(c.Raw())
	return !ok || readable
}

func (e *Engine) readFrame(c *session.Connection) {
	defer e.signal()
	defer c.EndRead()

	data, err := framing.NewReader(c.Stream(), e.cfg.MaxFrameSize).ReadFrame(e.cfg.ReadTimeout)
	switch {
	case err == nil:
		c.Enqueue(session.NewMessage(data, time.Now()))
		if c.TLS() != nil {
			c.RequestRead()
		}
		e.stats.msgIn.Add(1)
		e.stats.bytesIn.Add(uint64(len(data)))
	case errors.Is(err, framing.ErrReadTimeout):
	case errors.Is(err, framing.ErrConnectionClosed):
		c.MarkDisconnected()
	case errors.Is(err, framing.ErrFrameTooLarge), errors.Is(err, framing.ErrFrameTruncated):
		c.MarkDisconnected()
		e.handleException(api.WrapError(api.ErrCodeTransport, "read frame", err).WithContext("conn", c.ID()), c)
	default:
		// Reset by peer, or closed locally while the read was in flight.
		c.MarkDisconnected()
		e.log.Debug("read failed", slog.String("conn", c.ID()), slog.Any("err", err))
	}
}

// drainOutbound writes queued frames in enqueue order. Each frame passes
// through HandleSendMessage in reverse pipeline order first.
func (e *Engine) drainOutbound() {
	for _, out := range e.outbound.Drain() {
		e.send(out)
	}
}

func (e *Engine) send(out outboundEntry) {
	c := out.conn
	if c.Disconnected() || !e.admitted(c) {
		return
	}
	m := session.NewMessage(out.data, time.Now())
	for i := len(e.handlers) - 1; i >= 0; i-- {
		h := e.handlers[i]
		if err := guard(func() error { return h.HandleSendMessage(c, m) }); err != nil {
			e.handleException(err, c)
			return
		}
	}

	stream := c.Stream()
	if e.cfg.WriteTimeout > 0 {
		_ = stream.SetWriteDeadline(time.Now().Add(e.cfg.WriteTimeout))
	}
	if err := framing.WriteFrame(stream, m.Data); err != nil {
		c.MarkDisconnected()
		e.handleException(api.WrapError(api.ErrCodeTransport, "write frame", err).WithContext("conn", c.ID()), c)
		return
	}
	c.RecordSent(len(m.Data))
	e.stats.msgOut.Add(1)
	e.stats.bytesOut.Add(uint64(len(m.Data)))
	if out.closeAfter {
		c.MarkForRemoval()
	}
}

func (e *Engine) admitted(c *session.Connection) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.conns[c.ID()] == c
}
