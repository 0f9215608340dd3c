package netpoll_test

import (
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-appserver/internal/netpoll"
)

func TestReadablePipeUnsupported(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	_, ok := netpoll.Readable(a)
	assert.False(t, ok)
}

func TestReadableTCP(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("poll probe is linux only")
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	server, err := ln.Accept()
	require.NoError(t, err)
	defer server.Close()

	readable, ok := netpoll.Readable(server)
	require.True(t, ok)
	assert.False(t, readable)

	_, err = client.Write([]byte("x"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		r, _ := netpoll.Readable(server)
		return r
	}, time.Second, 5*time.Millisecond)
}
