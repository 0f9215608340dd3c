// File: server/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package server implements the engine: it owns the listener, admits
// connections, and drives the tick loop that reads frames, dispatches them
// through the handler pipeline and flushes outbound frames.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/momentics/hioload-appserver/api"
	"github.com/momentics/hioload-appserver/internal/concurrency"
	"github.com/momentics/hioload-appserver/logging"
	"github.com/momentics/hioload-appserver/scheduler"
	"github.com/momentics/hioload-appserver/session"
)

const tracerName = "github.com/momentics/hioload-appserver/server"

// outboundEntry is one queued frame.
type outboundEntry struct {
	conn       *session.Connection
	data       []byte
	closeAfter bool
}

// Engine is the socket server. Configure it before Run; handler,
// exception-handler and monitor lists are read-only while running.
type Engine struct {
	cfg       Config
	tlsConfig *tls.Config
	log       *slog.Logger
	tracer    trace.Tracer
	sched     api.Scheduler
	exec      api.Executor

	handlers          []api.Handler
	exceptionHandlers []api.ExceptionHandler
	monitors          []api.UsageMonitor

	state    atomic.Int32
	started  atomic.Bool // an Engine runs once
	stopping atomic.Bool
	wake     chan struct{}
	ready    chan struct{}
	listener net.Listener
	acceptWG sync.WaitGroup

	// Handshakes run on their own goroutines so a silent peer never holds
	// a read worker. pending lets shutdown abort them.
	hsMu      sync.Mutex
	pending   map[net.Conn]struct{}
	handshake sync.WaitGroup

	mu    sync.RWMutex
	conns map[string]*session.Connection

	admissions *concurrency.Queue[*session.Connection]
	outbound   *concurrency.Queue[outboundEntry]
	inflight   atomic.Int64 // accepted, not yet admitted

	stats     counters
	startedAt time.Time
}

type counters struct {
	accepted, rejected, handshakeFailures, removed atomic.Uint64
	msgIn, msgOut, bytesIn, bytesOut               atomic.Uint64
	exceptions, ticks                              atomic.Uint64
}

var (
	_ api.Engine     = (*Engine)(nil)
	_ session.Outbox = (*Engine)(nil)
)

// New builds an engine. A nil cfg selects DefaultConfig.
func New(cfg *Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:        c,
		wake:       make(chan struct{}, 1),
		ready:      make(chan struct{}),
		conns:      make(map[string]*session.Connection),
		pending:    make(map[net.Conn]struct{}),
		admissions: concurrency.NewQueue[*session.Connection](),
		outbound:   concurrency.NewQueue[outboundEntry](),
	}
	if c.TLS != nil {
		tc, err := c.TLS.Build()
		if err != nil {
			return nil, err
		}
		e.tlsConfig = tc
	}
	for _, o := range opts {
		o(e)
	}
	e.log = logging.Component(e.log, "engine")
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if e.sched == nil {
		if c.Scheduler == SchedulerSequential {
			e.sched = scheduler.Sequential{}
		} else {
			e.sched = scheduler.NewParallel(c.SchedulerLimit)
		}
	}
	if e.exec == nil {
		e.exec = concurrency.NewExecutor(c.Workers, func(v any, stack []byte) {
			e.handleException(&api.PanicError{Value: v, Stack: stack}, nil)
		})
	}
	return e, nil
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// AddHandler appends a handler to the pipeline.
func (e *Engine) AddHandler(h api.Handler) error {
	if e.State() == api.EngineRunning {
		return api.ErrAlreadyRunning
	}
	e.handlers = append(e.handlers, h)
	return nil
}

// AddExceptionHandler appends an exception handler.
func (e *Engine) AddExceptionHandler(h api.ExceptionHandler) error {
	if e.State() == api.EngineRunning {
		return api.ErrAlreadyRunning
	}
	e.exceptionHandlers = append(e.exceptionHandlers, h)
	return nil
}

// AddUsageMonitor appends a usage monitor.
func (e *Engine) AddUsageMonitor(m api.UsageMonitor) error {
	if e.State() == api.EngineRunning {
		return api.ErrAlreadyRunning
	}
	e.monitors = append(e.monitors, m)
	return nil
}

// State implements api.Engine.
func (e *Engine) State() api.EngineState { return api.EngineState(e.state.Load()) }

// ConnectionCount implements api.Engine.
func (e *Engine) ConnectionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.conns)
}

// Connections returns a snapshot of admitted connections.
func (e *Engine) Connections() []*session.Connection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*session.Connection, 0, len(e.conns))
	for _, c := range e.conns {
		out = append(out, c)
	}
	return out
}

// Stats implements api.Engine.
func (e *Engine) Stats() api.EngineStats {
	return api.EngineStats{
		Connections:       e.ConnectionCount(),
		Accepted:          e.stats.accepted.Load(),
		Rejected:          e.stats.rejected.Load(),
		HandshakeFailures: e.stats.handshakeFailures.Load(),
		Removed:           e.stats.removed.Load(),
		MessagesReceived:  e.stats.msgIn.Load(),
		MessagesSent:      e.stats.msgOut.Load(),
		InboundTraffic:    e.stats.bytesIn.Load(),
		OutboundTraffic:   e.stats.bytesOut.Load(),
		Exceptions:        e.stats.exceptions.Load(),
		Ticks:             e.stats.ticks.Load(),
		StartedAt:         e.startedAt,
	}
}

// Ready is closed once the listener is bound.
func (e *Engine) Ready() <-chan struct{} { return e.ready }

// Addr returns the bound address; nil before Ready.
func (e *Engine) Addr() net.Addr {
	select {
	case <-e.ready:
		return e.listener.Addr()
	default:
		return nil
	}
}

// Post implements session.Outbox.
func (e *Engine) Post(conn *session.Connection, data []byte, closeAfter bool) {
	e.outbound.Push(outboundEntry{conn: conn, data: data, closeAfter: closeAfter})
}

// Stop asks Run to return after the current tick.
func (e *Engine) Stop() {
	e.stopping.Store(true)
	e.signal()
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Run binds the listener and drives the tick loop until Stop is called or
// ctx is done. Failures inside handlers never end Run. An Engine runs once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return api.ErrAlreadyRunning
	}
	e.state.Store(int32(api.EngineRunning))
	ln, err := net.Listen("tcp", e.cfg.ListenAddr)
	if err != nil {
		e.state.Store(int32(api.EngineStopped))
		return api.WrapError(api.ErrCodeTransport, "listen", err).WithContext("addr", e.cfg.ListenAddr)
	}
	e.listener = ln
	e.startedAt = time.Now()
	close(e.ready)
	e.log.Info("engine started",
		slog.String("addr", ln.Addr().String()),
		slog.Bool("tls", e.tlsConfig != nil),
		slog.Int("handlers", len(e.handlers)))

	e.acceptWG.Add(1)
	go e.acceptLoop(ln)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for !e.stopping.Load() && ctx.Err() == nil {
		e.tick(ctx)
		select {
		case <-ctx.Done():
		case <-ticker.C:
		case <-e.wake:
		}
	}
	e.shutdown()
	return nil
}

func (e *Engine) tick(ctx context.Context) {
	e.stats.ticks.Add(1)
	e.removeFlagged()
	e.admit()
	e.scheduleReads()
	e.dispatchPending(ctx)
	e.tickHandlers()
	e.drainOutbound()
	e.tickMonitors()
}

func (e *Engine) acceptLoop(ln net.Listener) {
	defer e.acceptWG.Done()
	for {
		raw, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || e.stopping.Load() {
				return
			}
			e.log.Warn("accept failed", slog.Any("err", err))
			continue
		}
		if limit := e.cfg.MaxConnections; limit > 0 && e.ConnectionCount()+int(e.inflight.Load()) >= limit {
			e.stats.rejected.Add(1)
			e.log.Debug("connection rejected", slog.String("remote", raw.RemoteAddr().String()))
			_ = raw.Close()
			continue
		}
		e.inflight.Add(1)
		e.hsMu.Lock()
		e.pending[raw] = struct{}{}
		e.hsMu.Unlock()
		e.handshake.Add(1)
		go e.handshakeConn(raw)
	}
}

// handshakeConn completes TLS if configured and queues the connection for
// admission. A failed or aborted handshake closes raw.
func (e *Engine) handshakeConn(raw net.Conn) {
	defer e.handshake.Done()
	var tlsConn *tls.Conn
	if e.tlsConfig != nil {
		tlsConn = tls.Server(raw, e.tlsConfig)
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.HandshakeTimeout)
		err := tlsConn.HandshakeContext(ctx)
		cancel()
		if err != nil {
			e.untrack(raw)
			e.inflight.Add(-1)
			_ = raw.Close()
			if e.stopping.Load() {
				return
			}
			e.stats.handshakeFailures.Add(1)
			e.log.Debug("tls handshake failed",
				slog.String("remote", raw.RemoteAddr().String()),
				slog.Any("err", err))
			return
		}
	}
	c := session.NewConnection(raw, tlsConn, e)
	if tlsConn != nil {
		// Application data may have arrived with the handshake.
		c.RequestRead()
	}
	e.untrack(raw)
	e.admissions.Push(c)
	e.signal()
}

func (e *Engine) untrack(raw net.Conn) {
	e.hsMu.Lock()
	delete(e.pending, raw)
	e.hsMu.Unlock()
}

func (e *Engine) admit() {
	for _, c := range e.admissions.Drain() {
		e.inflight.Add(-1)
		if e.stopping.Load() {
			_ = c.Close()
			continue
		}
		e.mu.Lock()
		e.conns[c.ID()] = c
		e.mu.Unlock()
		e.stats.accepted.Add(1)
		e.log.Debug("connection admitted",
			slog.String("conn", c.ID()),
			slog.String("remote", c.RemoteAddr().String()))
		for _, h := range e.handlers {
			if err := guard(func() error { return h.HandleClient(c) }); err != nil {
				e.handleException(err, c)
			}
		}
	}
}

func (e *Engine) removeFlagged() {
	for _, c := range e.Connections() {
		if c.ShouldRemove() {
			e.remove(c)
		}
	}
}

func (e *Engine) remove(c *session.Connection) {
	for _, h := range e.handlers {
		if err := guard(func() error { return h.ClientRemoved(c) }); err != nil {
			e.handleException(err, c)
		}
	}
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		e.log.Debug("connection close", slog.String("conn", c.ID()), slog.Any("err", err))
	}
	e.mu.Lock()
	delete(e.conns, c.ID())
	e.mu.Unlock()
	e.stats.removed.Add(1)
	e.log.Debug("connection removed", slog.String("conn", c.ID()))
}

func (e *Engine) tickHandlers() {
	for _, h := range e.handlers {
		if err := guard(h.Tick); err != nil {
			e.handleException(fmt.Errorf("%s tick: %w", h.Name(), err), nil)
		}
	}
}

func (e *Engine) tickMonitors() {
	for _, m := range e.monitors {
		if err := guard(func() error { return m.Tick(e) }); err != nil {
			e.handleException(err, nil)
		}
	}
}

// handleException offers err to the exception chain; the first handler
// returning true stops propagation. Unhandled errors are logged.
func (e *Engine) handleException(err error, c *session.Connection) {
	e.stats.exceptions.Add(1)
	for _, eh := range e.exceptionHandlers {
		handled := false
		if perr := guard(func() error {
			handled = eh.HandleException(err, c)
			return nil
		}); perr != nil {
			e.log.Error("exception handler failed", slog.Any("err", perr))
			continue
		}
		if handled {
			return
		}
	}
	attrs := []any{slog.Any("err", err), slog.String("code", api.CodeOf(err).String())}
	if c != nil {
		attrs = append(attrs, slog.String("conn", c.ID()))
	}
	e.log.Error("unhandled exception", attrs...)
}

func (e *Engine) shutdown() {
	e.stopping.Store(true)
	_ = e.listener.Close()
	e.acceptWG.Wait()
	e.hsMu.Lock()
	for raw := range e.pending {
		_ = raw.Close()
	}
	e.hsMu.Unlock()
	e.handshake.Wait()
	for _, c := range e.Connections() {
		e.remove(c)
	}
	e.exec.Close()
	for _, c := range e.admissions.Drain() {
		_ = c.Close()
	}
	e.outbound.Drain()
	e.inflight.Store(0)
	e.state.Store(int32(api.EngineStopped))
	e.log.Info("engine stopped", slog.Uint64("ticks", e.stats.ticks.Load()))
}

// guard runs fn, converting a panic into *api.PanicError.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &api.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
