package control

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-appserver/handlers/wshandler"
	"github.com/momentics/hioload-appserver/logging"
	"github.com/momentics/hioload-appserver/server"
)

const sampleConfig = `
server:
  listen_addr: "127.0.0.1:7000"
  read_timeout: 20ms
  max_connections: 64
  scheduler: sequential
  tls:
    cert_file: /etc/app/cert.pem
    key_file: /etc/app/key.pem
    min_version: "1.3"
http:
  max_request_size: 4096
  expiration_window: 2s
websocket:
  paths: ["/ws"]
  subprotocols: ["chat"]
logging:
  level: debug
  format: json
metrics:
  enabled: true
  addr: ":9100"
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Server.ListenAddr)
	assert.Equal(t, 20*time.Millisecond, cfg.Server.ReadTimeout)
	assert.Equal(t, 64, cfg.Server.MaxConnections)
	assert.Equal(t, server.SchedulerSequential, cfg.Server.Scheduler)
	require.NotNil(t, cfg.Server.TLS)
	assert.Equal(t, "1.3", cfg.Server.TLS.MinVersion)
	assert.Equal(t, server.DefaultConfig().WriteTimeout, cfg.Server.WriteTimeout, "unset keys keep defaults")

	assert.Equal(t, 4096, cfg.HTTP.MaxRequestSize)
	assert.Equal(t, 2*time.Second, cfg.HTTP.ExpirationWindow)
	assert.Equal(t, []string{"/ws"}, cfg.WebSocket.Paths)
	assert.Equal(t, wshandler.RoleServer, cfg.WebSocket.Role)
	assert.True(t, cfg.WebSocket.AutoPong)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, DefaultNamespace, cfg.Metrics.Namespace)

	lv := new(slog.LevelVar)
	lc := cfg.LoggingSettings(os.Stderr, lv)
	assert.Equal(t, logging.LevelDebug, lv.Level())
	assert.Equal(t, logging.FormatJSON, lc.Format)
}

func TestParseConfigEmptyUsesDefaults(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultFileConfig(), cfg)
}

func TestParseConfigRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "server:\n  listen_adr: x\n",
		"bad scheduler":    "server:\n  scheduler: random\n",
		"bad role":         "websocket:\n  role: proxy\n",
		"zero request cap": "http:\n  max_request_size: 0\n",
		"metrics no addr":  "metrics:\n  enabled: true\n  addr: \"\"\n",
		"not yaml":         "server: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Server.MaxConnections)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
