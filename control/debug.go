// control/debug.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Named debug probes reporting live engine and process state.

package control

import (
	"sync"

	"github.com/momentics/hioload-appserver/api"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts or replaces a named probe.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// DumpState evaluates every probe.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any, len(dp.probes))
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	return out
}

// RegisterEngineProbes exposes the engine state and counters.
func RegisterEngineProbes(dp *DebugProbes, e api.Engine) {
	dp.RegisterProbe("engine.state", func() any { return e.State().String() })
	dp.RegisterProbe("engine.connections", func() any { return e.ConnectionCount() })
	dp.RegisterProbe("engine.stats", func() any { return e.Stats() })
}
