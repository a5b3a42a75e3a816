package worker

import "sync/atomic"

// Gate is the enabled flag. The control plane writes it, the loop reads it.
type Gate struct {
	enabled atomic.Bool
}

// NewGate returns a gate in the given state.
func NewGate(enabled bool) *Gate {
	g := &Gate{}
	g.enabled.Store(enabled)
	return g
}

func (g *Gate) SetEnabled(v bool) { g.enabled.Store(v) }

func (g *Gate) Enabled() bool { return g.enabled.Load() }
