// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Runtime debug handler and probe reflector for internal inspection.

package control

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/momentics/hioload-msgpool/api"
	"github.com/momentics/hioload-msgpool/msgpool"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

var _ api.Debug = (*DebugProbes)(nil)

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts a named debug hook.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// DumpState returns output of all probes.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any, len(dp.probes))
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	return out
}

// LogState writes every probe as one log entry, ordered by name.
func (dp *DebugProbes) LogState(log *zap.Logger) {
	state := dp.DumpState()
	names := make([]string, 0, len(state))
	for k := range state {
		names = append(names, k)
	}
	sort.Strings(names)
	fields := make([]zap.Field, 0, len(names))
	for _, k := range names {
		fields = append(fields, zap.Any(k, state[k]))
	}
	log.Info("debug state", fields...)
}

// RegisterPoolProbes exposes allocator and channel statistics of p.
func RegisterPoolProbes(dp *DebugProbes, p *msgpool.Pool) {
	dp.RegisterProbe("pool.allocator", func() any { return p.Stats().Pool })
	dp.RegisterProbe("pool.channels", func() any { return p.Stats().Channels })
	dp.RegisterProbe("pool.signals", func() any {
		st := p.Stats()
		return map[string]int64{"sent": st.SignalsSent, "dropped": st.SignalsDropped}
	})
}
