// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/momentics/hioload-appserver/api"
	"github.com/momentics/hioload-appserver/framing"
)

// Scheduler policy names accepted in Config.Scheduler.
const (
	SchedulerParallel   = "parallel"
	SchedulerSequential = "sequential"
)

// Config holds all engine configuration parameters.
type Config struct {
	ListenAddr       string        `yaml:"listen_addr"`       // TCP bind address, e.g. ":9000"
	TLS              *TLSConfig    `yaml:"tls"`               // nil serves plain TCP
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"` // TLS handshake bound
	ReadTimeout      time.Duration `yaml:"read_timeout"`      // per-frame read bound
	WriteTimeout     time.Duration `yaml:"write_timeout"`     // 0 disables write deadlines
	TickInterval     time.Duration `yaml:"tick_interval"`     // idle wait between ticks
	MaxFrameSize     int           `yaml:"max_frame_size"`
	MaxConnections   int           `yaml:"max_connections"` // 0 means unlimited
	Workers          int           `yaml:"workers"`         // off-loop executor size
	Scheduler        string        `yaml:"scheduler"`       // "parallel" or "sequential"
	SchedulerLimit   int           `yaml:"scheduler_limit"` // 0 selects GOMAXPROCS
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:       ":9000",
		HandshakeTimeout: time.Second,
		ReadTimeout:      50 * time.Millisecond,
		WriteTimeout:     5 * time.Second,
		TickInterval:     time.Millisecond,
		MaxFrameSize:     framing.DefaultMaxFrameSize,
		Workers:          runtime.NumCPU() * 4,
		Scheduler:        SchedulerParallel,
	}
}

// Validate checks the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = def.ListenAddr
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = def.MaxFrameSize
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	switch c.Scheduler {
	case "":
		c.Scheduler = def.Scheduler
	case SchedulerParallel, SchedulerSequential:
	default:
		return api.NewError(api.ErrCodeInvalidArgument, "unknown scheduler").WithContext("scheduler", c.Scheduler)
	}
	if c.MaxConnections < 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "max_connections must not be negative")
	}
	return nil
}

// TLSConfig configures the optional TLS layer.
type TLSConfig struct {
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	MinVersion        string `yaml:"min_version"` // "1.0" .. "1.3"
	MaxVersion        string `yaml:"max_version"`
	RequestClientCert bool   `yaml:"request_client_cert"`

	// Certificates are used in addition to CertFile/KeyFile.
	Certificates []tls.Certificate `yaml:"-"`
	// VerifyPeerCertificate checks the client certificate, if any.
	VerifyPeerCertificate func(rawCerts [][]byte, chains [][]*x509.Certificate) error `yaml:"-"`
	// GetCertificate selects the server certificate per ClientHello.
	GetCertificate func(*tls.ClientHelloInfo) (*tls.Certificate, error) `yaml:"-"`
}

// Build produces the crypto/tls server configuration.
func (t *TLSConfig) Build() (*tls.Config, error) {
	cfg := &tls.Config{
		Certificates:          append([]tls.Certificate(nil), t.Certificates...),
		VerifyPeerCertificate: t.VerifyPeerCertificate,
		GetCertificate:        t.GetCertificate,
	}
	if t.CertFile != "" || t.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("server: load key pair: %w", err)
		}
		cfg.Certificates = append(cfg.Certificates, cert)
	}
	if len(cfg.Certificates) == 0 && cfg.GetCertificate == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "tls enabled without a certificate")
	}
	var err error
	if cfg.MinVersion, err = ParseTLSVersion(t.MinVersion, tls.VersionTLS12); err != nil {
		return nil, err
	}
	if cfg.MaxVersion, err = ParseTLSVersion(t.MaxVersion, 0); err != nil {
		return nil, err
	}
	if cfg.MaxVersion != 0 && cfg.MaxVersion < cfg.MinVersion {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "tls max_version below min_version")
	}
	if t.RequestClientCert {
		// Verification is left to VerifyPeerCertificate.
		cfg.ClientAuth = tls.RequestClientCert
	}
	return cfg, nil
}

// ParseTLSVersion maps "1.0".."1.3" (optionally prefixed with "TLS") to the
// crypto/tls constant; "" yields def.
func ParseTLSVersion(s string, def uint16) (uint16, error) {
	v := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "TLS")
	switch strings.TrimSpace(v) {
	case "":
		return def, nil
	case "1.0", "10":
		return tls.VersionTLS10, nil
	case "1.1", "11":
		return tls.VersionTLS11, nil
	case "1.2", "12":
		return tls.VersionTLS12, nil
	case "1.3", "13":
		return tls.VersionTLS13, nil
	}
	return 0, api.NewError(api.ErrCodeInvalidArgument, "unknown tls version").WithContext("version", s)
}
