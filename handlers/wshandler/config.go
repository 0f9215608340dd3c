// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wshandler

import "log/slog"

// Role selects outbound masking: clients mask every frame, servers never do.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Config controls the WebSocket handler.
type Config struct {
	Role Role `yaml:"role"`
	// Paths restricts upgrades to these request paths; empty accepts any.
	Paths []string `yaml:"paths"`
	// Subprotocols lists supported subprotocols in server preference order.
	Subprotocols   []string `yaml:"subprotocols"`
	MaxFrameSize   int64    `yaml:"max_frame_size"`
	MaxMessageSize int      `yaml:"max_message_size"`
	// AutoPong answers pings without involving modules.
	AutoPong bool `yaml:"auto_pong"`
}

// DefaultConfig returns server-role settings.
func DefaultConfig() Config {
	return Config{
		Role:           RoleServer,
		MaxFrameSize:   1 << 20,
		MaxMessageSize: 4 << 20,
		AutoPong:       true,
	}
}

// Option customizes a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// WithModules appends modules in priority order.
func WithModules(m ...Module) Option {
	return func(h *Handler) { h.modules = append(h.modules, m...) }
}
