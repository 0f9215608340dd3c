// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wshandler

import (
	"github.com/momentics/hioload-appserver/http1"
	"github.com/momentics/hioload-appserver/protocol"
	"github.com/momentics/hioload-appserver/session"
)

// Message is one complete data message, reassembled from continuation frames.
type Message struct {
	Opcode  protocol.Opcode // OpcodeText or OpcodeBinary
	Payload []byte
}

// Text returns the payload as a string.
func (m Message) Text() string { return string(m.Payload) }

// Handshake describes an accepted upgrade.
type Handshake struct {
	Path        string
	Query       string
	Subprotocol string
	Header      http1.Header
}

// Module receives WebSocket events. HandleReceivedMessage returns true to
// stop later modules from seeing the message.
type Module interface {
	ConnectionInitialized(conn *session.Connection, hs Handshake) error
	HandleReceivedMessage(conn *session.Connection, msg Message) (bool, error)
	ConnectionClosed(conn *session.Connection, code int, reason string) error
	Tick() error
}

// BaseModule implements Module with no-ops.
type BaseModule struct{}

func (BaseModule) ConnectionInitialized(*session.Connection, Handshake) error { return nil }
func (BaseModule) ConnectionClosed(*session.Connection, int, string) error    { return nil }
func (BaseModule) Tick() error                                                { return nil }
func (BaseModule) HandleReceivedMessage(*session.Connection, Message) (bool, error) {
	return false, nil
}
