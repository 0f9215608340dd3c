// control/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// YAML configuration file covering every configurable component.

package control

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-appserver/handlers/httphandler"
	"github.com/momentics/hioload-appserver/handlers/wshandler"
	"github.com/momentics/hioload-appserver/logging"
	"github.com/momentics/hioload-appserver/server"
)

// FileConfig is the on-disk configuration. TLS settings live under
// server.tls.
type FileConfig struct {
	Server    server.Config      `yaml:"server"`
	HTTP      httphandler.Config `yaml:"http"`
	WebSocket wshandler.Config   `yaml:"websocket"`
	Logging   LoggingConfig      `yaml:"logging"`
	Metrics   MetricsConfig      `yaml:"metrics"`
}

// LoggingConfig selects level and format by name.
type LoggingConfig struct {
	Level     string `yaml:"level"`  // debug, info, warn, error
	Format    string `yaml:"format"` // text or json
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig controls the admin listener.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// DefaultFileConfig returns the configuration used when no file is given.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		Server:    *server.DefaultConfig(),
		HTTP:      httphandler.DefaultConfig(),
		WebSocket: wshandler.DefaultConfig(),
		Logging:   LoggingConfig{Level: "info", Format: string(logging.FormatText)},
		Metrics:   MetricsConfig{Addr: "127.0.0.1:9090", Namespace: DefaultNamespace},
	}
}

// LoadConfig reads path over the defaults. Unknown keys are rejected so a
// misspelt option does not silently fall back to its default.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("control: read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("control: %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(data []byte) (*FileConfig, error) {
	cfg := DefaultFileConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *FileConfig) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	switch c.WebSocket.Role {
	case wshandler.RoleServer, wshandler.RoleClient:
	default:
		return fmt.Errorf("websocket.role: unknown role %q", c.WebSocket.Role)
	}
	if c.HTTP.MaxRequestSize <= 0 {
		return errors.New("http.max_request_size must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	return nil
}

// LoggingSettings builds the logger configuration; lv, when non-nil, carries the
// level so it can be changed on reload.
func (c *FileConfig) LoggingSettings(out io.Writer, lv *slog.LevelVar) logging.Config {
	level := logging.ParseLevel(c.Logging.Level)
	if lv != nil {
		lv.Set(level)
	}
	return logging.Config{
		Level:     level,
		LevelVar:  lv,
		Format:    logging.ParseFormat(c.Logging.Format),
		Output:    out,
		AddSource: c.Logging.AddSource,
	}
}
