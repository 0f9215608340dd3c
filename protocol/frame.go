// File: protocol/frame.go
// Package protocol implements the RFC6455 frame codec and opening handshake.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frames are decoded from a byte slice that may hold a partial frame; the
// caller keeps the bytes and retries once more arrive. Payloads are always
// unmasked in memory and masked only while encoding.

package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

var (
	// ErrIncomplete means more bytes are needed to decode a frame.
	ErrIncomplete = errors.New("websocket: incomplete frame")
	// ErrBadLength means the 64-bit length field has its most significant bit set.
	ErrBadLength     = errors.New("websocket: invalid payload length")
	ErrFrameTooLarge = errors.New("websocket: frame exceeds maximum payload")
	ErrProtocol      = errors.New("websocket: protocol violation")
)

// Frame is one WebSocket frame.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	Mask    [4]byte
	Payload []byte // unmasked
}

// Decode parses one frame from the front of b and returns it with the
// number of bytes consumed. maxPayload <= 0 selects DefaultMaxPayload.
func Decode(b []byte, maxPayload int64) (Frame, int, error) {
	var f Frame
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	if len(b) < 2 {
		return f, 0, ErrIncomplete
	}
	if b[0]&RsvBits != 0 {
		return f, 0, fmt.Errorf("%w: reserved bits set", ErrProtocol)
	}
	f.Fin = b[0]&FinBit != 0
	f.Opcode = Opcode(b[0] & OpcodeBit)
	f.Masked = b[1]&MaskBit != 0
	length := uint64(b[1] & LenBits)
	off := 2

	switch length {
	case len16:
		if len(b) < off+2 {
			return f, 0, ErrIncomplete
		}
		length = uint64(binary.BigEndian.Uint16(b[off:]))
		off += 2
	case len64:
		if len(b) < off+8 {
			return f, 0, ErrIncomplete
		}
		length = binary.BigEndian.Uint64(b[off:])
		if length>>63 != 0 {
			return f, 0, ErrBadLength
		}
		off += 8
	}

	if f.Opcode.IsControl() && (!f.Fin || length > MaxControlPayloadLen) {
		return f, 0, fmt.Errorf("%w: fragmented or oversized control frame", ErrProtocol)
	}
	if length > uint64(maxPayload) {
		return f, 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	if f.Masked {
		if len(b) < off+4 {
			return f, 0, ErrIncomplete
		}
		copy(f.Mask[:], b[off:off+4])
		off += 4
	}

	end := off + int(length)
	if len(b) < end {
		return f, 0, ErrIncomplete
	}
	f.Payload = make([]byte, length)
	copy(f.Payload, b[off:end])
	if f.Masked {
		maskBytes(f.Payload, f.Mask)
	}
	return f, end, nil
}

// HeaderLen returns the encoded header size for a payload of n bytes.
func HeaderLen(n int, masked bool) int {
	h := 2
	switch {
	case n > len16Max:
		h += 8
	case n > len7Max:
		h += 2
	}
	if masked {
		h += 4
	}
	return h
}

// AppendFrame encodes f onto dst using the minimal length class. When
// f.Masked is set the payload is masked with f.Mask; f.Payload is not modified.
func AppendFrame(dst []byte, f Frame) []byte {
	b0 := byte(f.Opcode) & OpcodeBit
	if f.Fin {
		b0 |= FinBit
	}
	var maskBit byte
	if f.Masked {
		maskBit = MaskBit
	}

	n := len(f.Payload)
	dst = append(dst, b0)
	switch {
	case n <= len7Max:
		dst = append(dst, byte(n)|maskBit)
	case n <= len16Max:
		dst = append(dst, len16|maskBit)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, len64|maskBit)
		dst = binary.BigEndian.AppendUint64(dst, uint64(n))
	}

	if !f.Masked {
		return append(dst, f.Payload...)
	}
	dst = append(dst, f.Mask[:]...)
	start := len(dst)
	dst = append(dst, f.Payload...)
	maskBytes(dst[start:], f.Mask)
	return dst
}

func maskBytes(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i&3]
	}
}

// Encoder serializes outbound frames for one side of a connection.
// Clients mask, servers do not; a fresh mask is drawn for every frame.
type Encoder struct {
	Mask bool
	Rand io.Reader // mask source; nil selects crypto/rand
}

// ServerEncoder returns an encoder for frames sent by a server.
func ServerEncoder() *Encoder { return &Encoder{} }

// ClientEncoder returns an encoder for frames sent by a client.
func ClientEncoder() *Encoder { return &Encoder{Mask: true} }

// Encode serializes f with the encoder's masking role, ignoring f.Masked and f.Mask.
func (e *Encoder) Encode(f Frame) ([]byte, error) {
	f.Masked = e.Mask
	if e.Mask {
		src := e.Rand
		if src == nil {
			src = rand.Reader
		}
		if _, err := io.ReadFull(src, f.Mask[:]); err != nil {
			return nil, fmt.Errorf("websocket: mask: %w", err)
		}
	} else {
		f.Mask = [4]byte{}
	}
	return AppendFrame(make([]byte, 0, HeaderLen(len(f.Payload), e.Mask)+len(f.Payload)), f), nil
}

// Text encodes a final text frame.
func (e *Encoder) Text(s string) ([]byte, error) {
	return e.Encode(Frame{Fin: true, Opcode: OpcodeText, Payload: []byte(s)})
}

// Binary encodes a final binary frame.
func (e *Encoder) Binary(p []byte) ([]byte, error) {
	return e.Encode(Frame{Fin: true, Opcode: OpcodeBinary, Payload: p})
}

// Ping encodes a ping frame.
func (e *Encoder) Ping(p []byte) ([]byte, error) {
	return e.Encode(Frame{Fin: true, Opcode: OpcodePing, Payload: p})
}

// Pong encodes a pong frame.
func (e *Encoder) Pong(p []byte) ([]byte, error) {
	return e.Encode(Frame{Fin: true, Opcode: OpcodePong, Payload: p})
}

// Close encodes a close frame carrying code and reason.
func (e *Encoder) Close(code int, reason string) ([]byte, error) {
	return e.Encode(Frame{Fin: true, Opcode: OpcodeClose, Payload: ClosePayload(code, reason)})
}

// ClosePayload builds a close body. Code 0 yields an empty body.
func ClosePayload(code int, reason string) []byte {
	if code == 0 {
		return nil
	}
	if len(reason) > MaxControlPayloadLen-2 {
		reason = reason[:MaxControlPayloadLen-2]
	}
	p := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(reason)), uint16(code))
	return append(p, reason...)
}

// ParseClosePayload splits a close body into code and reason. An empty body
// yields CloseNoStatusRcvd. Codes that must not appear on the wire are
// rejected with ErrProtocol.
func ParseClosePayload(p []byte) (int, string, error) {
	switch {
	case len(p) == 0:
		return CloseNoStatusRcvd, "", nil
	case len(p) == 1:
		return 0, "", fmt.Errorf("%w: one-byte close payload", ErrProtocol)
	}
	code := int(binary.BigEndian.Uint16(p))
	if !ValidCloseCode(code) {
		return 0, "", fmt.Errorf("%w: close code %d", ErrProtocol, code)
	}
	reason := p[2:]
	if !utf8.Valid(reason) {
		return 0, "", fmt.Errorf("%w: close reason is not UTF-8", ErrProtocol)
	}
	return code, string(reason), nil
}

// ValidCloseCode reports whether code may be sent in a Close frame: the
// registered codes 1000-1014 other than 1004, 1005 and 1006, or the
// 3000-4999 range reserved for libraries and applications.
func ValidCloseCode(code int) bool {
	switch {
	case code >= 3000 && code <= 4999:
		return true
	case code < CloseNormalClosure || code > 1014:
		return false
	}
	switch code {
	case 1004, CloseNoStatusRcvd, CloseAbnormalClosure:
		return false
	}
	return true
}
