// File: session/message.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package session

import "time"

// Message is one wire frame travelling through the handler pipeline.
// Handlers may replace Data while the message is in their hands.
type Message struct {
	Data       []byte
	ReceivedAt time.Time
}

// NewMessage wraps data received at t.
func NewMessage(data []byte, t time.Time) *Message {
	return &Message{Data: data, ReceivedAt: t}
}

// Len returns the payload length.
func (m *Message) Len() int {
	return len(m.Data)
}
