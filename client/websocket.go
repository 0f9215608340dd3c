// File: client/websocket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WebSocket session over a framed client connection. Each WebSocket frame
// travels in its own length-prefixed frame.

package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/momentics/hioload-appserver/protocol"
)

// CloseError reports the close frame that ended a session.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("websocket closed: %d %s", e.Code, e.Reason)
}

// WebSocket is a client-role session. Frames are masked.
type WebSocket struct {
	*Client
	enc         *protocol.Encoder
	subprotocol string
	maxPayload  int64
	closeSent   bool
}

// DialWebSocket connects and performs the opening handshake for target.
func DialWebSocket(ctx context.Context, cfg Config, target string, protocols ...string) (*WebSocket, error) {
	c, err := Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	key, err := protocol.NewClientKey(nil)
	if err != nil {
		c.Close()
		return nil, err
	}
	resp, err := c.Do(protocol.NewUpgradeRequest(target, cfg.Addr, key, protocols...))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("websocket handshake: %w", err)
	}
	if err := protocol.VerifyUpgradeResponse(resp, key); err != nil {
		c.Close()
		return nil, err
	}
	maxPayload := int64(cfg.MaxFrameSize)
	if maxPayload <= 0 {
		maxPayload = protocol.DefaultMaxPayload
	}
	return &WebSocket{
		Client:      c,
		enc:         protocol.ClientEncoder(),
		subprotocol: resp.Header.Get(protocol.HeaderSecWebSocketProtocol),
		maxPayload:  maxPayload,
	}, nil
}

// Subprotocol returns the protocol selected by the server, if any.
func (ws *WebSocket) Subprotocol() string { return ws.subprotocol }

// WriteMessage sends one unfragmented message.
func (ws *WebSocket) WriteMessage(op protocol.Opcode, payload []byte) error {
	b, err := ws.enc.Encode(protocol.Frame{Fin: true, Opcode: op, Payload: payload})
	if err != nil {
		return err
	}
	return ws.Send(b)
}

// WriteText sends a text message.
func (ws *WebSocket) WriteText(s string) error {
	return ws.WriteMessage(protocol.OpcodeText, []byte(s))
}

// ReadMessage returns the next data message, assembling continuation
// frames. Pings are answered; a close frame is echoed and returned as
// *CloseError.
func (ws *WebSocket) ReadMessage() (protocol.Opcode, []byte, error) {
	var (
		op  protocol.Opcode
		buf []byte
		in  bool
	)
	for {
		data, err := ws.Recv()
		if err != nil {
			return 0, nil, err
		}
		f, _, err := protocol.Decode(data, ws.maxPayload)
		if err != nil {
			return 0, nil, err
		}
		switch f.Opcode {
		case protocol.OpcodePing:
			b, err := ws.enc.Pong(f.Payload)
			if err != nil {
				return 0, nil, err
			}
			if err := ws.Send(b); err != nil {
				return 0, nil, err
			}
			continue
		case protocol.OpcodePong:
			continue
		case protocol.OpcodeClose:
			code, reason, err := protocol.ParseClosePayload(f.Payload)
			if err != nil {
				return 0, nil, err
			}
			if !ws.closeSent {
				ws.closeSent = true
				reply := protocol.Frame{Fin: true, Opcode: protocol.OpcodeClose}
				if code != protocol.CloseNoStatusRcvd {
					reply.Payload = protocol.ClosePayload(code, "")
				}
				if b, err := ws.enc.Encode(reply); err == nil {
					_ = ws.Send(b)
				}
			}
			return 0, nil, &CloseError{Code: code, Reason: reason}
		case protocol.OpcodeContinuation:
			if !in {
				return 0, nil, fmt.Errorf("%w: unexpected continuation", protocol.ErrProtocol)
			}
		default:
			if in {
				return 0, nil, fmt.Errorf("%w: expected continuation", protocol.ErrProtocol)
			}
			op, in = f.Opcode, true
		}
		buf = append(buf, f.Payload...)
		if f.Fin {
			return op, buf, nil
		}
	}
}

// CloseHandshake sends a close frame and waits for the server's reply.
func (ws *WebSocket) CloseHandshake(code int, reason string) error {
	b, err := ws.enc.Close(code, reason)
	if err != nil {
		return err
	}
	ws.closeSent = true
	if err := ws.Send(b); err != nil {
		return err
	}
	for {
		_, _, err := ws.ReadMessage()
		var ce *CloseError
		if errors.As(err, &ce) {
			return ws.Close()
		}
		if err != nil {
			ws.Close()
			return err
		}
	}
}
