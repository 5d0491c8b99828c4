//go:build linux
// +build linux

package channel

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-msgpool/api"
	"github.com/momentics/hioload-msgpool/pool"
)

func TestReadinessFailureIsCounted(t *testing.T) {
	c, err := New(api.Downstream, Options{Readiness: true})
	require.NoError(t, err)

	// push the eventfd counter to its ceiling so the next increment fails
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 0xfffffffffffffffe)
	_, err = unix.Write(c.ready.fd, b[:])
	require.NoError(t, err)

	a, err := pool.NewBlockAllocator(pool.Config{MaxMessageSize: 8, Capacity: 8 * 1024})
	require.NoError(t, err)
	defer a.Close()
	m, err := a.Alloc(8)
	require.NoError(t, err)

	require.NoError(t, c.Post(m))
	st := c.Stats()
	assert.Equal(t, 1, st.Depth)
	assert.Equal(t, int64(1), st.ReadinessErrors)

	got, err := c.TryWait()
	require.NoError(t, err)
	assert.Same(t, m, got)
	require.NoError(t, a.Free(got))
	assert.Equal(t, int64(1), c.Stats().ReadinessErrors)

	require.NoError(t, c.Close())
	assert.Empty(t, c.Drain())
}
