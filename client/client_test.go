package client_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-appserver/client"
	"github.com/momentics/hioload-appserver/handlers/httphandler"
	"github.com/momentics/hioload-appserver/handlers/wshandler"
	"github.com/momentics/hioload-appserver/http1"
	"github.com/momentics/hioload-appserver/logging"
	"github.com/momentics/hioload-appserver/protocol"
	"github.com/momentics/hioload-appserver/server"
	"github.com/momentics/hioload-appserver/session"
)

type echoModule struct {
	wshandler.BaseModule
	h *wshandler.Handler
}

func (m *echoModule) HandleReceivedMessage(c *session.Connection, msg wshandler.Message) (bool, error) {
	if msg.Text() == "ping-me" {
		if err := m.h.Send(c, protocol.OpcodePing, []byte("p")); err != nil {
			return true, err
		}
	}
	return true, m.h.Send(c, msg.Opcode, msg.Payload)
}

func startServer(t *testing.T) string {
	t.Helper()
	mod := &echoModule{}
	wsCfg := wshandler.DefaultConfig()
	wsCfg.Subprotocols = []string{"chat"}
	ws := wshandler.New(wsCfg, wshandler.WithModules(mod))
	mod.h = ws
	hello := httphandler.ModuleFunc(func(_ *session.Connection, req *http1.Request) (*http1.Response, error) {
		if req.URI != "/hello" {
			return nil, nil
		}
		resp := http1.NewTextResponse(http1.StatusOK, "hello "+req.Params().Get("name"))
		resp.SetCookie("seen", "1")
		return resp, nil
	})
	hh := httphandler.New(httphandler.DefaultConfig(), httphandler.WithModules(hello), httphandler.WithUpgrader(ws))

	cfg := server.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	e, err := server.New(cfg, server.WithHandlers(ws, hh), server.WithLogger(logging.Nop()))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	<-e.Ready()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e.Addr().String()
}

func TestDo(t *testing.T) {
	addr := startServer(t)
	c, err := client.Dial(context.Background(), client.DefaultConfig(addr))
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Do(http1.NewRequest("GET", "/hello?name=ada"))
	require.NoError(t, err)
	assert.Equal(t, http1.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello ada", string(resp.Body))
	require.Len(t, resp.Cookies, 1)
	assert.Equal(t, "seen", resp.Cookies[0].Name)

	resp, err = c.Do(http1.NewRequest("GET", "/missing"))
	require.NoError(t, err)
	assert.Equal(t, http1.StatusNotFound, resp.StatusCode)
}

func TestDialRetries(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := client.DefaultConfig(addr)
	cfg.ReconnectMax = 1
	cfg.DialTimeout = 200 * time.Millisecond
	_, err = client.Dial(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 attempts failed")
}

func TestClosedClient(t *testing.T) {
	addr := startServer(t)
	c, err := client.Dial(context.Background(), client.DefaultConfig(addr))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send([]byte("x")), client.ErrClosed)
	_, err = c.Recv()
	assert.ErrorIs(t, err, client.ErrClosed)
}

func TestWebSocketSession(t *testing.T) {
	addr := startServer(t)
	ws, err := client.DialWebSocket(context.Background(), client.DefaultConfig(addr), "/chat", "chat")
	require.NoError(t, err)
	assert.Equal(t, "chat", ws.Subprotocol())

	require.NoError(t, ws.WriteText("hi"))
	op, payload, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, protocol.OpcodeText, op)
	assert.Equal(t, "hi", string(payload))

	require.NoError(t, ws.WriteText("ping-me"))
	_, payload, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "ping-me", string(payload))

	require.NoError(t, ws.WriteMessage(protocol.OpcodeBinary, []byte{1, 2, 3}))
	op, payload, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, protocol.OpcodeBinary, op)
	assert.Equal(t, []byte{1, 2, 3}, payload)

	assert.NoError(t, ws.CloseHandshake(protocol.CloseNormalClosure, "bye"))
}
