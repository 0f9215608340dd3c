// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

import "time"

// EngineState enumerates the server lifecycle.
type EngineState int32

const (
	EngineStopped EngineState = iota
	EngineRunning
)

func (s EngineState) String() string {
	if s == EngineRunning {
		return "running"
	}
	return "stopped"
}

// EngineStats is a snapshot of cumulative engine counters.
type EngineStats struct {
	Connections       int
	Accepted          uint64
	Rejected          uint64
	HandshakeFailures uint64
	Removed           uint64
	MessagesReceived  uint64
	MessagesSent      uint64
	InboundTraffic    uint64 // payload bytes received
	OutboundTraffic   uint64 // payload bytes sent
	Exceptions        uint64
	Ticks             uint64
	StartedAt         time.Time
}

// Engine is the read-only view of the server handed to usage monitors.
type Engine interface {
	State() EngineState
	Stats() EngineStats
	ConnectionCount() int
}
