package protocol_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-appserver/protocol"
)

func payload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i * 7)
	}
	return p
}

func TestEncodeDecodeLengthBoundaries(t *testing.T) {
	for _, n := range []int{0, 125, 126, 65535, 65536} {
		for _, masked := range []bool{false, true} {
			f := protocol.Frame{Fin: true, Opcode: protocol.OpcodeBinary, Masked: masked, Payload: payload(n)}
			if masked {
				f.Mask = [4]byte{0xA1, 0xB2, 0xC3, 0xD4}
			}
			wire := protocol.AppendFrame(nil, f)
			require.Len(t, wire, protocol.HeaderLen(n, masked)+n)

			got, used, err := protocol.Decode(wire, 0)
			require.NoError(t, err, "n=%d masked=%v", n, masked)
			assert.Equal(t, len(wire), used)
			assert.Equal(t, f.Payload, got.Payload)
			assert.Equal(t, wire, protocol.AppendFrame(nil, got), "n=%d masked=%v", n, masked)
		}
	}
}

func TestLengthClassIsMinimal(t *testing.T) {
	cases := map[int]byte{0: 0, 125: 125, 126: 126, 65535: 126, 65536: 127}
	for n, want := range cases {
		wire := protocol.AppendFrame(nil, protocol.Frame{Fin: true, Opcode: protocol.OpcodeText, Payload: payload(n)})
		assert.Equal(t, want, wire[1]&protocol.LenBits, "n=%d", n)
	}
	wire := protocol.AppendFrame(nil, protocol.Frame{Fin: true, Opcode: protocol.OpcodeText, Payload: payload(300)})
	assert.Equal(t, uint16(300), binary.BigEndian.Uint16(wire[2:4]))
}

func TestMaskingLeavesSourceIntact(t *testing.T) {
	src := []byte("hello")
	f := protocol.Frame{Fin: true, Opcode: protocol.OpcodeText, Masked: true, Mask: [4]byte{1, 2, 3, 4}, Payload: src}
	wire := protocol.AppendFrame(nil, f)
	assert.Equal(t, "hello", string(src))
	assert.NotEqual(t, src, wire[6:])
	assert.Equal(t, byte('h')^1, wire[6])
}

func TestDecodeIncomplete(t *testing.T) {
	wire := protocol.AppendFrame(nil, protocol.Frame{Fin: true, Opcode: protocol.OpcodeBinary, Masked: true, Payload: payload(300)})
	for i := 0; i < len(wire); i++ {
		_, _, err := protocol.Decode(wire[:i], 0)
		require.ErrorIs(t, err, protocol.ErrIncomplete, "prefix %d", i)
	}
}

func TestDecodeRejects(t *testing.T) {
	bad := []byte{0x82, 127, 0x80, 0, 0, 0, 0, 0, 0, 1}
	_, _, err := protocol.Decode(bad, 0)
	assert.ErrorIs(t, err, protocol.ErrBadLength)

	big := protocol.AppendFrame(nil, protocol.Frame{Fin: true, Opcode: protocol.OpcodeBinary, Payload: payload(2000)})
	_, _, err = protocol.Decode(big, 1024)
	assert.ErrorIs(t, err, protocol.ErrFrameTooLarge)

	_, _, err = protocol.Decode([]byte{0xC1, 0}, 0)
	assert.ErrorIs(t, err, protocol.ErrProtocol)

	_, _, err = protocol.Decode([]byte{0x09, 0}, 0) // ping without FIN
	assert.ErrorIs(t, err, protocol.ErrProtocol)
}

func TestDecodeConsumesOneFrame(t *testing.T) {
	a := protocol.AppendFrame(nil, protocol.Frame{Fin: false, Opcode: protocol.OpcodeText, Payload: []byte("hel")})
	b := protocol.AppendFrame(nil, protocol.Frame{Fin: true, Opcode: protocol.OpcodeContinuation, Payload: []byte("lo")})
	buf := append(append([]byte{}, a...), b...)

	f1, n, err := protocol.Decode(buf, 0)
	require.NoError(t, err)
	assert.False(t, f1.Fin)
	assert.Equal(t, protocol.OpcodeText, f1.Opcode)
	f2, m, err := protocol.Decode(buf[n:], 0)
	require.NoError(t, err)
	assert.True(t, f2.Fin)
	assert.Equal(t, protocol.OpcodeContinuation, f2.Opcode)
	assert.Equal(t, len(buf), n+m)
}

func TestEncoderFreshMaskPerFrame(t *testing.T) {
	enc := protocol.Encoder{Mask: true, Rand: bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8})}
	w1, err := enc.Text("ab")
	require.NoError(t, err)
	w2, err := enc.Text("ab")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, w1[2:6])
	assert.Equal(t, []byte{5, 6, 7, 8}, w2[2:6])

	_, err = enc.Text("ab")
	assert.Error(t, err, "exhausted mask source")

	f, _, err := protocol.Decode(w2, 0)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(f.Payload))
}

func TestServerEncoderDoesNotMask(t *testing.T) {
	wire, err := protocol.ServerEncoder().Binary([]byte{9, 9})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x82, 0x02, 9, 9}, wire)
}

func TestClosePayload(t *testing.T) {
	wire, err := protocol.ServerEncoder().Close(protocol.CloseGoingAway, "bye")
	require.NoError(t, err)
	f, _, err := protocol.Decode(wire, 0)
	require.NoError(t, err)
	code, reason, err := protocol.ParseClosePayload(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.CloseGoingAway, code)
	assert.Equal(t, "bye", reason)

	code, _, err = protocol.ParseClosePayload(nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.CloseNoStatusRcvd, code)
	_, _, err = protocol.ParseClosePayload([]byte{3})
	assert.ErrorIs(t, err, protocol.ErrProtocol)
}

func TestCloseCodesOnTheWire(t *testing.T) {
	for _, code := range []int{0, 999, 1004, protocol.CloseNoStatusRcvd, protocol.CloseAbnormalClosure, 1015, 1016, 2999, 5000} {
		_, _, err := protocol.ParseClosePayload([]byte{byte(code >> 8), byte(code)})
		assert.ErrorIs(t, err, protocol.ErrProtocol, "code %d", code)
	}
	for _, code := range []int{protocol.CloseNormalClosure, protocol.CloseProtocolError, protocol.CloseInternalServerErr, 1014, 3000, 4999} {
		got, _, err := protocol.ParseClosePayload(protocol.ClosePayload(code, "r"))
		require.NoError(t, err, "code %d", code)
		assert.Equal(t, code, got)
	}
}
