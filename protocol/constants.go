// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WebSocket wire protocol constants

package protocol

// Opcode is the 4-bit frame type.
type Opcode byte

const (
	// Data opcodes
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2

	// Control opcodes (>= 0x8)
	OpcodeClose Opcode = 0x8
	OpcodePing  Opcode = 0x9
	OpcodePong  Opcode = 0xA
)

// IsControl reports whether o is a control opcode.
func (o Opcode) IsControl() bool { return o&0x8 != 0 }

func (o Opcode) String() string {
	switch o {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	}
	return "reserved"
}

const (
	// Frame limit settings
	MaxControlPayloadLen = 125
	MaxFrameHeaderLen    = 14 // for extended payloads with masking

	// Length-class thresholds
	len7Max  = 125
	len16Max = 0xFFFF
	len16    = 126
	len64    = 127

	// Bit masks
	FinBit    = 0x80
	RsvBits   = 0x70
	OpcodeBit = 0x0F
	MaskBit   = 0x80
	LenBits   = 0x7F

	// DefaultMaxPayload caps a single decoded frame.
	DefaultMaxPayload = 16 << 20
)

// Close codes
const (
	CloseNormalClosure      = 1000
	CloseGoingAway          = 1001
	CloseProtocolError      = 1002
	CloseUnsupportedData    = 1003
	CloseNoStatusRcvd       = 1005
	CloseAbnormalClosure    = 1006
	CloseInvalidPayloadData = 1007
	ClosePolicyViolation    = 1008
	CloseMessageTooBig      = 1009
	CloseMissingExtension   = 1010
	CloseInternalServerErr  = 1011
)

// Handshake header names and values.
const (
	WebSocketGUID            = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	RequiredWebSocketVersion = "13"

	HeaderConnection           = "Connection"
	HeaderUpgrade              = "Upgrade"
	HeaderSecWebSocketKey      = "Sec-WebSocket-Key"
	HeaderSecWebSocketAccept   = "Sec-WebSocket-Accept"
	HeaderSecWebSocketVersion  = "Sec-WebSocket-Version"
	HeaderSecWebSocketProtocol = "Sec-WebSocket-Protocol"

	ValueUpgrade   = "upgrade"
	ValueWebSocket = "websocket"
)
