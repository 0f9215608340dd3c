// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package httphandler

import (
	"log/slog"
	"time"

	"github.com/momentics/hioload-appserver/http1"
	"github.com/momentics/hioload-appserver/session"
)

// Module answers requests. A nil response with a nil error means the module
// does not claim the request and the next one is asked.
type Module interface {
	HandleRequest(conn *session.Connection, req *http1.Request) (*http1.Response, error)
}

// ModuleFunc adapts a function to Module.
type ModuleFunc func(conn *session.Connection, req *http1.Request) (*http1.Response, error)

// HandleRequest calls f.
func (f ModuleFunc) HandleRequest(conn *session.Connection, req *http1.Request) (*http1.Response, error) {
	return f(conn, req)
}

// Upgrader takes over a connection that asks to switch protocols. Upgrade
// reports ok=false when req is not an upgrade it handles. Upgraded runs once
// a 101 response has been queued, so frames sent from it follow the response.
type Upgrader interface {
	Upgrade(conn *session.Connection, req *http1.Request) (resp *http1.Response, ok bool, err error)
	Upgraded(conn *session.Connection, req *http1.Request) error
}

// RequestLogger observes every completed request before it is answered.
type RequestLogger interface {
	LogRequest(conn *session.Connection, req *http1.Request)
}

// ResponseLogger is implemented by loggers that also want the outcome.
type ResponseLogger interface {
	LogResponse(conn *session.Connection, req *http1.Request, resp *http1.Response, elapsed time.Duration)
}

// SlogLogger writes one record per request and response.
type SlogLogger struct {
	Log *slog.Logger
}

// LogRequest implements RequestLogger.
func (l SlogLogger) LogRequest(conn *session.Connection, req *http1.Request) {
	l.Log.Debug("http request",
		slog.String("conn", conn.ID()),
		slog.String("method", req.Method),
		slog.String("uri", req.Target()),
		slog.Int("body", len(req.Body)))
}

// LogResponse implements ResponseLogger.
func (l SlogLogger) LogResponse(conn *session.Connection, req *http1.Request, resp *http1.Response, elapsed time.Duration) {
	l.Log.Info("http response",
		slog.String("conn", conn.ID()),
		slog.String("remote", conn.RemoteAddr().String()),
		slog.String("method", req.Method),
		slog.String("uri", req.Target()),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(resp.Body)),
		slog.Duration("elapsed", elapsed))
}
