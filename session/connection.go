// File: session/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection is the per-client record owned by the server engine.

package session

import (
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
)

// ErrNoOutbox is returned by Send when the connection is not attached to an engine.
var ErrNoOutbox = errors.New("connection has no outbox")

// Outbox accepts outbound payloads. The engine drains it once per tick.
type Outbox interface {
	Post(conn *Connection, data []byte, closeAfter bool)
}

// Owner identifies the handler holding exclusive dispatch rights on a connection.
type Owner interface {
	Name() string
}

// Connection owns a socket, an optional TLS stream and all per-connection state.
type Connection struct {
	id     string
	raw    net.Conn
	tlsc   *tls.Conn
	outbox Outbox

	createdAt    time.Time
	lastReceived atomic.Int64
	lastActivity atomic.Int64

	remove       atomic.Bool
	disconnected atomic.Bool
	reading      atomic.Bool
	readAgain    atomic.Bool

	mu       sync.Mutex // guards inbox and affinity
	inbox    *queue.Queue
	affinity Owner

	resources *Resources
	closeOnce sync.Once
	closeErr  error

	bytesReceived  atomic.Int64
	bytesSent      atomic.Int64
	framesReceived atomic.Int64
	framesSent     atomic.Int64
}

// NewConnection wraps raw. tlsConn is nil for plain TCP; when set it must wrap raw.
func NewConnection(raw net.Conn, tlsConn *tls.Conn, out Outbox) *Connection {
	now := time.Now()
	c := &Connection{
		id:        uuid.NewString(),
		raw:       raw,
		tlsc:      tlsConn,
		outbox:    out,
		createdAt: now,
		inbox:     queue.New(),
		resources: NewResources(),
	}
	c.lastReceived.Store(now.UnixNano())
	c.lastActivity.Store(now.UnixNano())
	return c
}

// ID returns the unique connection identifier.
func (c *Connection) ID() string { return c.id }

// Stream returns the TLS stream when present, otherwise the raw socket.
func (c *Connection) Stream() net.Conn {
	if c.tlsc != nil {
		return c.tlsc
	}
	return c.raw
}

// Raw returns the underlying socket.
func (c *Connection) Raw() net.Conn { return c.raw }

// TLS returns the TLS stream or nil.
func (c *Connection) TLS() *tls.Conn { return c.tlsc }

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// LocalAddr returns the local address.
func (c *Connection) LocalAddr() net.Addr { return c.raw.LocalAddr() }

// CreatedAt returns the admission time.
func (c *Connection) CreatedAt() time.Time { return c.createdAt }

// LastReceived returns the time the last frame arrived.
func (c *Connection) LastReceived() time.Time {
	return time.Unix(0, c.lastReceived.Load())
}

// LastActivity returns the time of the last inbound or outbound frame.
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Resources returns the connection's typed resource bag.
func (c *Connection) Resources() *Resources { return c.resources }

// MarkForRemoval schedules the connection for disposal at the next tick.
func (c *Connection) MarkForRemoval() { c.remove.Store(true) }

// MarkDisconnected records that the peer or the transport went away.
func (c *Connection) MarkDisconnected() { c.disconnected.Store(true) }

// Disconnected reports whether the transport went away.
func (c *Connection) Disconnected() bool { return c.disconnected.Load() }

// ShouldRemove reports whether the engine must drop the connection.
func (c *Connection) ShouldRemove() bool {
	return c.remove.Load() || c.disconnected.Load()
}

// Affinity returns the handler holding exclusive dispatch, if any.
func (c *Connection) Affinity() (Owner, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.affinity, c.affinity != nil
}

// SetAffinity binds the connection to o until ClearAffinity.
func (c *Connection) SetAffinity(o Owner) {
	c.mu.Lock()
	c.affinity = o
	c.mu.Unlock()
}

// ClearAffinity removes any handler binding.
func (c *Connection) ClearAffinity() {
	c.mu.Lock()
	c.affinity = nil
	c.mu.Unlock()
}

// HasAffinity reports whether o currently owns the connection.
func (c *Connection) HasAffinity(o Owner) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.affinity != nil && c.affinity == o
}

// Enqueue appends an inbound message and refreshes the receive timestamps.
func (c *Connection) Enqueue(m *Message) {
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = time.Now()
	}
	ts := m.ReceivedAt.UnixNano()
	c.lastReceived.Store(ts)
	c.lastActivity.Store(ts)
	c.framesReceived.Add(1)
	c.bytesReceived.Add(int64(len(m.Data)))

	c.mu.Lock()
	c.inbox.Add(m)
	c.mu.Unlock()
}

// Dequeue pops the oldest inbound message.
func (c *Connection) Dequeue() (*Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inbox.Length() == 0 {
		return nil, false
	}
	return c.inbox.Remove().(*Message), true
}

// Pending returns the number of queued inbound messages.
func (c *Connection) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inbox.Length()
}

// TryBeginRead claims the read slot; false means a read is already in flight.
func (c *Connection) TryBeginRead() bool {
	return c.reading.CompareAndSwap(false, true)
}

// EndRead releases the read slot.
func (c *Connection) EndRead() { c.reading.Store(false) }

// Reading reports whether a read is in flight.
func (c *Connection) Reading() bool { return c.reading.Load() }

// RequestRead asks for one read even if the socket shows no bytes. TLS
// streams use it after a frame because decrypted bytes may remain buffered.
func (c *Connection) RequestRead() { c.readAgain.Store(true) }

// TakeReadRequest reports and clears a pending RequestRead.
func (c *Connection) TakeReadRequest() bool { return c.readAgain.Swap(false) }

// Send posts data to the outbound queue.
func (c *Connection) Send(data []byte) error {
	return c.post(data, false)
}

// SendAndClose posts data and marks the connection for removal once it is written.
func (c *Connection) SendAndClose(data []byte) error {
	return c.post(data, true)
}

func (c *Connection) post(data []byte, closeAfter bool) error {
	if c.outbox == nil {
		return ErrNoOutbox
	}
	c.outbox.Post(c, data, closeAfter)
	return nil
}

// RecordSent updates outbound counters after a frame has been written.
func (c *Connection) RecordSent(n int) {
	c.framesSent.Add(1)
	c.bytesSent.Add(int64(n))
	c.lastActivity.Store(time.Now().UnixNano())
}

// Stats returns a snapshot of connection counters.
func (c *Connection) Stats() map[string]int64 {
	return map[string]int64{
		"bytes_received":  c.bytesReceived.Load(),
		"bytes_sent":      c.bytesSent.Load(),
		"frames_received": c.framesReceived.Load(),
		"frames_sent":     c.framesSent.Load(),
	}
}

// Close disposes the resource bag and the socket. It is idempotent.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.remove.Store(true)
		resErr := c.resources.Close()
		var connErr error
		if c.tlsc != nil {
			connErr = c.tlsc.Close()
		} else {
			connErr = c.raw.Close()
		}
		c.closeErr = errors.Join(resErr, connErr)
	})
	return c.closeErr
}
