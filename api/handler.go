// File: api/handler.go
// Package api defines the handler pipeline contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "github.com/momentics/hioload-appserver/session"

// Handler is one protocol unit of the pipeline.
//
// PreHandleReceivedMessage and HandleReceivedMessage return true when the
// handler claimed the message; dispatch stops at the first claim. A handler
// that needs every following frame of a connection (reassembly, handshake)
// calls conn.SetAffinity(h) and clears it once done.
//
// HandleSendMessage runs in reverse pipeline order and may replace msg.Data.
type Handler interface {
	Name() string
	HandleClient(conn *session.Connection) error
	PreHandleReceivedMessage(conn *session.Connection, msg *session.Message) (bool, error)
	HandleReceivedMessage(conn *session.Connection, msg *session.Message) (bool, error)
	HandleSendMessage(conn *session.Connection, msg *session.Message) error
	ClientRemoved(conn *session.Connection) error
	Tick() error
}

// NopHandler implements every callback as a no-op. Embed it and override
// what the protocol needs.
type NopHandler struct{}

func (NopHandler) Name() string                            { return "nop" }
func (NopHandler) HandleClient(*session.Connection) error  { return nil }
func (NopHandler) ClientRemoved(*session.Connection) error { return nil }
func (NopHandler) Tick() error                             { return nil }
func (NopHandler) HandleSendMessage(*session.Connection, *session.Message) error {
	return nil
}
func (NopHandler) PreHandleReceivedMessage(*session.Connection, *session.Message) (bool, error) {
	return false, nil
}
func (NopHandler) HandleReceivedMessage(*session.Connection, *session.Message) (bool, error) {
	return false, nil
}

// ExceptionHandler is offered errors escaping handlers, monitors and transport.
// Returning true stops propagation to later exception handlers.
type ExceptionHandler interface {
	HandleException(err error, conn *session.Connection) bool
}

// ExceptionHandlerFunc adapts a function to ExceptionHandler.
type ExceptionHandlerFunc func(err error, conn *session.Connection) bool

// HandleException calls f.
func (f ExceptionHandlerFunc) HandleException(err error, conn *session.Connection) bool {
	return f(err, conn)
}

// UsageMonitor observes the engine once per tick.
type UsageMonitor interface {
	Tick(engine Engine) error
}
