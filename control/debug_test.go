package control

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/momentics/hioload-msgpool/api"
	"github.com/momentics/hioload-msgpool/msgpool"
	"github.com/momentics/hioload-msgpool/pool"
)

func TestDebugProbes(t *testing.T) {
	p, err := msgpool.New(msgpool.Config{Allocator: pool.Config{MaxMessageSize: 16}})
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close()) }()

	dp := NewDebugProbes()
	RegisterPoolProbes(dp, p)
	RegisterPlatformProbes(dp)
	dp.RegisterProbe("workers", func() any { return 4 })

	state := dp.DumpState()
	assert.Equal(t, 4, state["workers"])
	assert.Positive(t, state["platform.cpus"])
	assert.IsType(t, api.PoolStats{}, state["pool.allocator"])
	chans, ok := state["pool.channels"].([]api.ChannelStats)
	require.True(t, ok)
	assert.Len(t, chans, api.DefaultChannels)

	core, logs := observer.New(zap.InfoLevel)
	dp.LogState(zap.New(core))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "debug state", entry.Message)
	keys := make([]string, len(entry.Context))
	for i, f := range entry.Context {
		keys[i] = f.Key
	}
	assert.True(t, sort.StringsAreSorted(keys), "%v", keys)
	assert.Contains(t, keys, "pool.allocator")
	assert.Equal(t, "workers", keys[len(keys)-1])
}
