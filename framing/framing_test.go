package framing_test

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-appserver/framing"
)

func pipe(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 125, 4096, 70000} {
		client, server := pipe(t)
		payload := bytes.Repeat([]byte{0xAB}, size)

		errCh := make(chan error, 1)
		go func() { errCh <- framing.WriteFrame(client, payload) }()

		got, err := framing.ReadFrame(server, time.Second)
		require.NoError(t, err, "size %d", size)
		require.NoError(t, <-errCh)
		assert.Equal(t, payload, got)
	}
}

func TestPrefixIsLittleEndian(t *testing.T) {
	buf := framing.AppendFrame(nil, []byte("abc"))
	require.Len(t, buf, 7)
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(buf[:4]))
	assert.Equal(t, []byte{3, 0, 0, 0}, buf[:4])
}

func TestReadTimeoutWithoutData(t *testing.T) {
	_, server := pipe(t)
	_, err := framing.ReadFrame(server, 20*time.Millisecond)
	assert.ErrorIs(t, err, framing.ErrReadTimeout)
}

func TestReadTimeoutIsRecoverable(t *testing.T) {
	client, server := pipe(t)
	_, err := framing.ReadFrame(server, 10*time.Millisecond)
	require.ErrorIs(t, err, framing.ErrReadTimeout)

	go framing.WriteFrame(client, []byte("late"))
	got, err := framing.ReadFrame(server, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("late"), got)
}

func TestPeerClosed(t *testing.T) {
	client, server := pipe(t)
	client.Close()
	_, err := framing.ReadFrame(server, time.Second)
	assert.ErrorIs(t, err, framing.ErrConnectionClosed)
}

func TestStalledFrameIsTruncated(t *testing.T) {
	client, server := pipe(t)
	go func() {
		var hdr [4]byte
		binary.LittleEndian.PutUint32(hdr[:], 10)
		client.Write(append(hdr[:], 'a', 'b', 'c'))
	}()
	_, err := framing.ReadFrame(server, 30*time.Millisecond)
	assert.ErrorIs(t, err, framing.ErrFrameTruncated)
}

func TestCloseMidFrameIsTruncated(t *testing.T) {
	client, server := pipe(t)
	go func() {
		client.Write([]byte{8, 0})
		client.Close()
	}()
	_, err := framing.ReadFrame(server, time.Second)
	assert.ErrorIs(t, err, framing.ErrFrameTruncated)
}

func TestFrameTooLarge(t *testing.T) {
	client, server := pipe(t)
	go framing.WriteFrame(client, make([]byte, 64))
	_, err := framing.NewReader(server, 16).ReadFrame(time.Second)
	assert.ErrorIs(t, err, framing.ErrFrameTooLarge)
}
