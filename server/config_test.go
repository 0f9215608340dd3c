package server

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-appserver/api"
	"github.com/momentics/hioload-appserver/framing"
	"github.com/momentics/hioload-appserver/scheduler"
)

func TestValidateFillsDefaults(t *testing.T) {
	var c Config
	require.NoError(t, c.Validate())
	def := DefaultConfig()
	assert.Equal(t, def.ListenAddr, c.ListenAddr)
	assert.Equal(t, def.ReadTimeout, c.ReadTimeout)
	assert.Equal(t, framing.DefaultMaxFrameSize, c.MaxFrameSize)
	assert.Equal(t, SchedulerParallel, c.Scheduler)
	assert.Positive(t, c.Workers)
}

func TestValidateRejects(t *testing.T) {
	c := Config{Scheduler: "round-robin"}
	err := c.Validate()
	require.Error(t, err)
	assert.Equal(t, api.ErrCodeInvalidArgument, api.CodeOf(err))

	c = Config{MaxConnections: -1}
	assert.Error(t, c.Validate())
}

func TestNewSelectsScheduler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scheduler = SchedulerSequential
	e, err := New(cfg)
	require.NoError(t, err)
	defer e.exec.Close()
	assert.IsType(t, scheduler.Sequential{}, e.sched)

	cfg.Scheduler = SchedulerParallel
	cfg.SchedulerLimit = 3
	e2, err := New(cfg)
	require.NoError(t, err)
	defer e2.exec.Close()
	require.IsType(t, &scheduler.Parallel{}, e2.sched)
	assert.Equal(t, 3, e2.sched.(*scheduler.Parallel).Limit())
}

func TestParseTLSVersion(t *testing.T) {
	cases := map[string]uint16{
		"":        tls.VersionTLS12,
		"1.0":     tls.VersionTLS10,
		"tls1.1":  tls.VersionTLS11,
		"TLS 1.3": tls.VersionTLS13,
		"12":      tls.VersionTLS12,
	}
	for in, want := range cases {
		got, err := ParseTLSVersion(in, tls.VersionTLS12)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTLSVersion("2.0", 0)
	assert.Error(t, err)
}

func TestTLSConfigBuild(t *testing.T) {
	_, err := (&TLSConfig{}).Build()
	assert.Error(t, err, "a certificate source is required")

	_, err = (&TLSConfig{CertFile: "missing.pem", KeyFile: "missing.key"}).Build()
	assert.Error(t, err)

	getCert := func(*tls.ClientHelloInfo) (*tls.Certificate, error) { return nil, nil }
	tc, err := (&TLSConfig{GetCertificate: getCert, MaxVersion: "1.3", RequestClientCert: true}).Build()
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), tc.MinVersion)
	assert.Equal(t, uint16(tls.VersionTLS13), tc.MaxVersion)
	assert.Equal(t, tls.RequestClientCert, tc.ClientAuth)

	_, err = (&TLSConfig{GetCertificate: getCert, MinVersion: "1.3", MaxVersion: "1.2"}).Build()
	assert.Error(t, err)
}
