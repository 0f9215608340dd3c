// File: client/client.go
// Package client dials a hioload app server and exchanges length-prefixed
// frames with it, with helpers for HTTP requests and WebSocket sessions
// carried over those frames.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-appserver/framing"
	"github.com/momentics/hioload-appserver/http1"
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("client closed")

// Config holds all configurable parameters for the client.
type Config struct {
	Addr         string        // host:port
	TLS          *tls.Config   // nil dials plain TCP
	DialTimeout  time.Duration // per attempt
	ReadTimeout  time.Duration // wait for a frame to start; 0 waits forever
	WriteTimeout time.Duration // 0 disables write deadlines
	MaxFrameSize int
	ReconnectMax int // extra dial attempts after the first failure
}

// DefaultConfig returns settings suitable for interactive use.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		MaxFrameSize: framing.DefaultMaxFrameSize,
	}
}

// Client is one framed connection. Send and Recv may be used from
// different goroutines; concurrent Sends are serialized.
type Client struct {
	cfg    Config
	conn   net.Conn
	reader *framing.Reader

	wmu    sync.Mutex
	closed atomic.Bool
}

// Dial connects, retrying up to cfg.ReconnectMax times with linear backoff.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.ReconnectMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		conn, err := dial(ctx, cfg)
		if err == nil {
			return &Client{
				cfg:    cfg,
				conn:   conn,
				reader: framing.NewReader(conn, cfg.MaxFrameSize),
			}, nil
		}
		lastErr = err
	}
	if cfg.ReconnectMax > 0 {
		return nil, fmt.Errorf("client: %d attempts failed: %w", cfg.ReconnectMax+1, lastErr)
	}
	return nil, lastErr
}

func dial(ctx context.Context, cfg Config) (net.Conn, error) {
	d := &net.Dialer{Timeout: cfg.DialTimeout}
	if cfg.TLS == nil {
		return d.DialContext(ctx, "tcp", cfg.Addr)
	}
	td := &tls.Dialer{NetDialer: d, Config: cfg.TLS}
	return td.DialContext(ctx, "tcp", cfg.Addr)
}

// Conn returns the underlying connection.
func (c *Client) Conn() net.Conn { return c.conn }

// Send writes one frame.
func (c *Client) Send(payload []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return framing.WriteFrame(c.conn, payload)
}

// Recv reads one frame. Only one goroutine may call Recv at a time.
func (c *Client) Recv() ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return c.reader.ReadFrame(c.cfg.ReadTimeout)
}

// Do sends req as one frame and reads frames until a final response has
// been parsed. Interim 1xx responses are skipped.
func (c *Client) Do(req *http1.Request) (*http1.Response, error) {
	if err := c.Send(req.Bytes()); err != nil {
		return nil, err
	}
	p := http1.NewResponseParser()
	for {
		data, err := c.Recv()
		if err != nil {
			return nil, err
		}
		done, err := p.Feed(data)
		if err != nil {
			return nil, err
		}
		if !done {
			continue
		}
		resp := p.Response()
		if resp.StatusCode >= 200 || resp.StatusCode == http1.StatusSwitchingProtocols {
			return resp, nil
		}
		p.Reset()
	}
}

// Close closes the connection; it is idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}
