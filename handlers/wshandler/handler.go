// File: handlers/wshandler/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package wshandler is the pipeline handler for RFC6455 connections. It
// accepts upgrades, decodes frames, reassembles fragmented messages and
// delivers them to modules.
package wshandler

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/momentics/hioload-appserver/api"
	"github.com/momentics/hioload-appserver/handlers/httphandler"
	"github.com/momentics/hioload-appserver/http1"
	"github.com/momentics/hioload-appserver/logging"
	"github.com/momentics/hioload-appserver/protocol"
	"github.com/momentics/hioload-appserver/session"
)

// Name is the handler name reported to the pipeline.
const Name = "websocket"

// Phase is the connection's WebSocket state.
type Phase uint8

const (
	PhaseInitial Phase = iota
	PhaseEstablished
	PhaseClosed
)

// connState lives in the connection's resource bag once upgraded.
type connState struct {
	phase     Phase
	handshake Handshake
	pending   []byte // undecoded bytes of a partial frame
	msgOp     protocol.Opcode
	msgBuf    []byte
	inMessage bool
	notified  bool
}

// Handler implements api.Handler for WebSocket traffic.
type Handler struct {
	api.NopHandler

	cfg     Config
	log     *slog.Logger
	enc     *protocol.Encoder
	modules []Module

	mu    sync.RWMutex
	conns map[*session.Connection]struct{}
}

var (
	_ api.Handler          = (*Handler)(nil)
	_ httphandler.Upgrader = (*Handler)(nil)
)

// New returns a handler. Zero limits take DefaultConfig values.
func New(cfg Config, opts ...Option) *Handler {
	def := DefaultConfig()
	if cfg.Role == "" {
		cfg.Role = def.Role
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = def.MaxFrameSize
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	h := &Handler{
		cfg:   cfg,
		enc:   &protocol.Encoder{Mask: cfg.Role == RoleClient},
		conns: make(map[*session.Connection]struct{}),
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

// PreHandleReceivedMessage claims every frame of an upgraded connection.
func (h *Handler) PreHandleReceivedMessage(conn *session.Connection, msg *session.Message) (bool, error) {
	st, ok := session.TryGet[*connState](conn.Resources())
	if !ok {
		return false, nil
	}
	return true, h.process(conn, st, msg.Data)
}

// HandleReceivedMessage handles frames while this handler holds affinity,
// and upgrade requests that arrive complete in one message.
func (h *Handler) HandleReceivedMessage(conn *session.Connection, msg *session.Message) (bool, error) {
	if st, ok := session.TryGet[*connState](conn.Resources()); ok {
		return true, h.process(conn, st, msg.Data)
	}
	if !bytes.HasPrefix(msg.Data, []byte("GET ")) {
		return false, nil
	}
	req, err := http1.ParseRequest(msg.Data)
	if err != nil || !protocol.IsUpgrade(req) {
		return false, nil
	}
	resp, ok, err := h.Upgrade(conn, req)
	if err != nil || !ok {
		return ok, err
	}
	if resp.StatusCode != http1.StatusSwitchingProtocols {
		return true, conn.SendAndClose(resp.Bytes())
	}
	if err := conn.Send(resp.Bytes()); err != nil {
		return true, err
	}
	return true, h.Upgraded(conn, req)
}

// Upgrade validates an upgrade request and switches the connection to
// WebSocket framing. A failed handshake yields a 400 response.
func (h *Handler) Upgrade(conn *session.Connection, req *http1.Request) (*http1.Response, bool, error) {
	if !protocol.IsUpgrade(req) {
		return nil, false, nil
	}
	if len(h.cfg.Paths) > 0 && !slices.Contains(h.cfg.Paths, req.URI) {
		return nil, false, nil
	}
	resp, sub, err := protocol.AcceptUpgrade(req, h.cfg.Subprotocols)
	if err != nil {
		h.log.Debug("handshake rejected", slog.String("conn", conn.ID()), slog.Any("err", err))
		return protocol.RejectUpgrade(err), true, nil
	}
	session.Set(conn.Resources(), &connState{
		phase: PhaseEstablished,
		handshake: Handshake{
			Path:        req.URI,
			Query:       req.Query,
			Subprotocol: sub,
			Header:      req.Header.Clone(),
		},
	})
	return resp, true, nil
}

// Upgraded joins conn to the broadcast set and notifies modules. It runs
// after the 101 response is queued so no data frame can precede it.
func (h *Handler) Upgraded(conn *session.Connection, _ *http1.Request) error {
	st, ok := session.TryGet[*connState](conn.Resources())
	if !ok || st.phase != PhaseEstablished {
		return nil
	}
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("connection upgraded", slog.String("conn", conn.ID()), slog.String("path", st.handshake.Path))
	var errs []error
	for _, m := range h.modules {
		if err := m.ConnectionInitialized(conn, st.handshake); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClientRemoved reports an abnormal closure to modules if no Close frame was seen.
func (h *Handler) ClientRemoved(conn *session.Connection) error {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	st, ok := session.TryGet[*connState](conn.Resources())
	if !ok {
		return nil
	}
	st.phase = PhaseClosed
	return h.notifyClosed(conn, st, protocol.CloseAbnormalClosure, "")
}

// Tick forwards the engine tick to modules.
func (h *Handler) Tick() error {
	var errs []error
	for _, m := range h.modules {
		if err := m.Tick(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Connections returns the established connections.
func (h *Handler) Connections() []*session.Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*session.Connection, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Send queues one final data frame on conn.
func (h *Handler) Send(conn *session.Connection, op protocol.Opcode, payload []byte) error {
	wire, err := h.enc.Encode(protocol.Frame{Fin: true, Opcode: op, Payload: payload})
	if err != nil {
		return err
	}
	return conn.Send(wire)
}

// SendText queues a text frame.
func (h *Handler) SendText(conn *session.Connection, s string) error {
	return h.Send(conn, protocol.OpcodeText, []byte(s))
}

// Broadcast queues a data frame on every established connection except skip.
func (h *Handler) Broadcast(op protocol.Opcode, payload []byte, skip *session.Connection) error {
	var errs []error
	for _, c := range h.Connections() {
		if c == skip {
			continue
		}
		if err := h.Send(c, op, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close sends a Close frame, notifies modules and removes conn once the frame is written.
func (h *Handler) Close(conn *session.Connection, code int, reason string) error {
	st, ok := session.TryGet[*connState](conn.Resources())
	if !ok || st.phase == PhaseClosed {
		return nil
	}
	return h.closeWith(conn, st, code, reason, code, reason)
}

func (h *Handler) process(conn *session.Connection, st *connState, data []byte) error {
	if st.phase == PhaseClosed {
		return nil
	}
	st.pending = append(st.pending, data...)
	for st.phase != PhaseClosed {
		f, n, err := protocol.Decode(st.pending, h.cfg.MaxFrameSize)
		if errors.Is(err, protocol.ErrIncomplete) {
			break
		}
		if err != nil {
			code := protocol.CloseProtocolError
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				code = protocol.CloseMessageTooBig
			}
			h.log.Debug("bad frame", slog.String("conn", conn.ID()), slog.Any("err", err))
			return h.closeWith(conn, st, code, "", code, err.Error())
		}
		st.pending = st.pending[n:]
		if err := h.handleFrame(conn, st, f); err != nil {
			return err
		}
	}
	if len(st.pending) == 0 {
		st.pending = nil
	}

	// Hold the connection while a frame or message is split across messages.
	if st.phase != PhaseClosed && (len(st.pending) > 0 || st.inMessage) {
		conn.SetAffinity(h)
	} else if conn.HasAffinity(h) {
		conn.ClearAffinity()
	}
	return nil
}

func (h *Handler) handleFrame(conn *session.Connection, st *connState, f protocol.Frame) error {
	switch f.Opcode {
	case protocol.OpcodeText, protocol.OpcodeBinary:
		if st.inMessage {
			return h.closeWith(conn, st, protocol.CloseProtocolError, "expected continuation", protocol.CloseProtocolError, "")
		}
		if f.Fin {
			return h.deliver(conn, Message{Opcode: f.Opcode, Payload: f.Payload})
		}
		st.inMessage, st.msgOp, st.msgBuf = true, f.Opcode, f.Payload
		return h.checkMessageSize(conn, st)

	case protocol.OpcodeContinuation:
		if !st.inMessage {
			return h.closeWith(conn, st, protocol.CloseProtocolError, "unexpected continuation", protocol.CloseProtocolError, "")
		}
		st.msgBuf = append(st.msgBuf, f.Payload...)
		if err := h.checkMessageSize(conn, st); err != nil || st.phase == PhaseClosed {
			return err
		}
		if !f.Fin {
			return nil
		}
		msg := Message{Opcode: st.msgOp, Payload: st.msgBuf}
		st.inMessage, st.msgBuf = false, nil
		return h.deliver(conn, msg)

	case protocol.OpcodePing:
		if !h.cfg.AutoPong {
			return nil
		}
		wire, err := h.enc.Pong(f.Payload)
		if err != nil {
			return err
		}
		return conn.Send(wire)

	case protocol.OpcodePong:
		return nil

	case protocol.OpcodeClose:
		code, reason, err := protocol.ParseClosePayload(f.Payload)
		if err != nil {
			return h.closeWith(conn, st, protocol.CloseProtocolError, "", protocol.CloseProtocolError, "")
		}
		reply := code
		if code == protocol.CloseNoStatusRcvd {
			reply = 0
		}
		return h.closeWith(conn, st, reply, "", code, reason)
	}
	return h.closeWith(conn, st, protocol.CloseProtocolError, "reserved opcode", protocol.CloseProtocolError, "")
}

func (h *Handler) checkMessageSize(conn *session.Connection, st *connState) error {
	if len(st.msgBuf) <= h.cfg.MaxMessageSize {
		return nil
	}
	return h.closeWith(conn, st, protocol.CloseMessageTooBig, "", protocol.CloseMessageTooBig, "")
}

func (h *Handler) deliver(conn *session.Connection, msg Message) error {
	for _, m := range h.modules {
		claimed, err := m.HandleReceivedMessage(conn, msg)
		if err != nil {
			return fmt.Errorf("wshandler: module: %w", err)
		}
		if claimed {
			return nil
		}
	}
	return nil
}

// closeWith sends a Close frame carrying sendCode (0 for an empty body),
// queues removal after it is written and notifies modules.
func (h *Handler) closeWith(conn *session.Connection, st *connState, sendCode int, sendReason string, notifyCode int, notifyReason string) error {
	st.phase = PhaseClosed
	st.pending, st.msgBuf, st.inMessage = nil, nil, false
	if conn.HasAffinity(h) {
		conn.ClearAffinity()
	}
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()

	var sendErr error
	wire, err := h.enc.Close(sendCode, sendReason)
	if err == nil {
		sendErr = conn.SendAndClose(wire)
	} else {
		sendErr = err
		conn.MarkForRemoval()
	}
	return errors.Join(sendErr, h.notifyClosed(conn, st, notifyCode, notifyReason))
}

func (h *Handler) notifyClosed(conn *session.Connection, st *connState, code int, reason string) error {
	if st.notified {
		return nil
	}
	st.notified = true
	var errs []error
	for _, m := range h.modules {
		if err := m.ConnectionClosed(conn, code, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
