// File: handlers/httphandler/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package httphandler is the pipeline handler that assembles HTTP requests
// from transport frames and dispatches them to modules.
//
// A request split across frames is kept in the connection's resource bag
// and the connection is bound to this handler until the request completes,
// is rejected for size, or expires.
package httphandler

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/momentics/hioload-appserver/api"
	"github.com/momentics/hioload-appserver/http1"
	"github.com/momentics/hioload-appserver/logging"
	"github.com/momentics/hioload-appserver/session"
)

// Name is the handler name reported to the pipeline.
const Name = "http"

// partialRequest is the reassembly state kept in the resource bag.
type partialRequest struct {
	parser    *http1.Parser
	continued bool
}

// Handler implements api.Handler for HTTP/1.x.
type Handler struct {
	api.NopHandler

	cfg       Config
	log       *slog.Logger
	now       func() time.Time
	modules   []Module
	loggers   []RequestLogger
	upgraders []Upgrader

	mu      sync.Mutex
	pending map[*session.Connection]struct{}
}

var _ api.Handler = (*Handler)(nil)

// New returns a handler. Zero Config fields take DefaultConfig values.
func New(cfg Config, opts ...Option) *Handler {
	def := DefaultConfig()
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = def.MaxRequestSize
	}
	if cfg.ExpirationWindow <= 0 {
		cfg.ExpirationWindow = def.ExpirationWindow
	}
	h := &Handler{
		cfg:     cfg,
		now:     time.Now,
		pending: make(map[*session.Connection]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	h.log = logging.Component(h.log, Name)
	return h
}

// Name implements api.Handler.
func (h *Handler) Name() string { return Name }

// AddModule appends a module. Call before the engine runs.
func (h *Handler) AddModule(m Module) { h.modules = append(h.modules, m) }

// PendingCount returns the number of connections holding a partial request.
func (h *Handler) PendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// HandleReceivedMessage feeds msg into the connection's request parser.
// Bytes that do not start a valid request are declined.
func (h *Handler) HandleReceivedMessage(conn *session.Connection, msg *session.Message) (bool, error) {
	st, resumed := session.TryGet[*partialRequest](conn.Resources())
	if !resumed {
		st = &partialRequest{parser: http1.NewRequestParser()}
	}

	done, err := st.parser.Feed(msg.Data)
	if st.parser.Buffered() > h.cfg.MaxRequestSize {
		h.discard(conn)
		h.log.Warn("request exceeds size limit",
			slog.String("conn", conn.ID()),
			slog.Int("buffered", st.parser.Buffered()),
			slog.Int("limit", h.cfg.MaxRequestSize))
		return true, h.reject(conn, "request exceeds maximum size")
	}
	if err != nil {
		h.discard(conn)
		h.log.Debug("declined malformed request",
			slog.String("conn", conn.ID()),
			slog.String("stage", st.parser.Stage().String()),
			slog.Any("err", err))
		return false, nil
	}

	if !done {
		if !resumed {
			session.Set(conn.Resources(), st)
			h.track(conn)
			conn.SetAffinity(h)
		}
		if !st.continued && st.parser.HeadersComplete() && st.parser.Request().ExpectsContinue() {
			st.continued = true
			if err := conn.Send(http1.NewResponse(http1.StatusContinue).Bytes()); err != nil {
				return true, err
			}
		}
		return true, nil
	}

	if resumed {
		h.discard(conn)
	}
	return true, h.complete(conn, st.parser.Request())
}

// Tick answers partial requests that saw no fragment within the expiration window.
func (h *Handler) Tick() error {
	now := h.now()
	h.mu.Lock()
	var expired []*session.Connection
	for conn := range h.pending {
		if now.Sub(conn.LastReceived()) > h.cfg.ExpirationWindow {
			expired = append(expired, conn)
		}
	}
	h.mu.Unlock()

	var errs []error
	for _, conn := range expired {
		h.discard(conn)
		if conn.ShouldRemove() {
			continue
		}
		h.log.Debug("partial request expired", slog.String("conn", conn.ID()))
		if err := h.reject(conn, "request timed out"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClientRemoved drops reassembly tracking for conn.
func (h *Handler) ClientRemoved(conn *session.Connection) error {
	h.untrack(conn)
	return nil
}

func (h *Handler) complete(conn *session.Connection, req *http1.Request) error {
	for _, l := range h.loggers {
		l.LogRequest(conn, req)
	}
	start := h.now()

	for _, u := range h.upgraders {
		resp, ok, err := u.Upgrade(conn, req)
		if err != nil {
			return fmt.Errorf("httphandler: upgrade: %w", err)
		}
		if !ok {
			continue
		}
		if err := h.respond(conn, req, resp, start, !resp.Header.HasToken("Connection", "close")); err != nil {
			return err
		}
		if resp.StatusCode == http1.StatusSwitchingProtocols {
			return u.Upgraded(conn, req)
		}
		return nil
	}

	var resp *http1.Response
	for _, m := range h.modules {
		r, err := callModule(m, conn, req)
		if err != nil {
			if !h.cfg.ErrorsAsInternalServerError {
				return api.WrapError(api.ErrCodeHandler, "http module failed", err).
					WithContext("uri", req.URI)
			}
			h.log.Error("module failed", slog.String("conn", conn.ID()), slog.Any("err", err))
			resp = http1.NewTextResponse(http1.StatusInternalServerError, http1.StatusText(http1.StatusInternalServerError))
			break
		}
		if r != nil {
			resp = r
			break
		}
	}
	if resp == nil {
		resp = http1.NewTextResponse(http1.StatusNotFound, http1.StatusText(http1.StatusNotFound))
	}

	keep := req.KeepAlive() && !resp.Header.HasToken("Connection", "close")
	if keep {
		resp.Header.Set("Connection", "keep-alive")
	} else {
		resp.Header.Set("Connection", "close")
	}
	return h.respond(conn, req, resp, start, keep)
}

func (h *Handler) respond(conn *session.Connection, req *http1.Request, resp *http1.Response, start time.Time, keep bool) error {
	var err error
	if keep {
		err = conn.Send(resp.Bytes())
	} else {
		err = conn.SendAndClose(resp.Bytes())
	}
	for _, l := range h.loggers {
		if rl, ok := l.(ResponseLogger); ok {
			rl.LogResponse(conn, req, resp, h.now().Sub(start))
		}
	}
	return err
}

// reject sends a synthetic 400 and closes the connection once it is written.
func (h *Handler) reject(conn *session.Connection, reason string) error {
	resp := http1.NewTextResponse(http1.StatusBadRequest, reason)
	resp.Header.Set("Connection", "close")
	return conn.SendAndClose(resp.Bytes())
}

// discard clears reassembly state and releases affinity.
func (h *Handler) discard(conn *session.Connection) {
	session.RemoveIfExists[*partialRequest](conn.Resources())
	if conn.HasAffinity(h) {
		conn.ClearAffinity()
	}
	h.untrack(conn)
}

func (h *Handler) track(conn *session.Connection) {
	h.mu.Lock()
	h.pending[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Handler) untrack(conn *session.Connection) {
	h.mu.Lock()
	delete(h.pending, conn)
	h.mu.Unlock()
}

func callModule(m Module, conn *session.Connection, req *http1.Request) (resp *http1.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &api.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return m.HandleRequest(conn, req)
}
