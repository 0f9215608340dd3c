// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package httphandler

import (
	"log/slog"
	"time"
)

// Config controls request reassembly.
type Config struct {
	// MaxRequestSize bounds the bytes buffered for one request.
	MaxRequestSize int `yaml:"max_request_size"`
	// ExpirationWindow is how long a partial request may wait for its next fragment.
	ExpirationWindow time.Duration `yaml:"expiration_window"`
	// ErrorsAsInternalServerError answers module failures with 500 instead
	// of passing them to the engine's exception handlers.
	ErrorsAsInternalServerError bool `yaml:"errors_as_internal_server_error"`
}

// DefaultConfig returns a 1 MiB limit and a 5s expiration window.
func DefaultConfig() Config {
	return Config{
		MaxRequestSize:   1 << 20,
		ExpirationWindow: 5 * time.Second,
	}
}

// Option customizes a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithModules appends request modules in priority order.
func WithModules(m ...Module) Option {
	return func(h *Handler) { h.modules = append(h.modules, m...) }
}

// WithRequestLoggers appends request observers.
func WithRequestLoggers(l ...RequestLogger) Option {
	return func(h *Handler) { h.loggers = append(h.loggers, l...) }
}

// WithUpgrader appends a protocol upgrader consulted before modules.
func WithUpgrader(u Upgrader) Option {
	return func(h *Handler) { h.upgraders = append(h.upgraders, u) }
}
