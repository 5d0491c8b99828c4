//go:build linux
// +build linux

package channel_test

import (
	"sync"
	"testing"

	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-msgpool/api"
	"github.com/momentics/hioload-msgpool/channel"
)

func readable(t *testing.T, p api.Pollable) bool {
	t.Helper()
	fds := []unix.PollFd{{Fd: int32(p.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	require.NoError(t, err)
	return n == 1 && fds[0].Revents&unix.POLLIN != 0
}

func TestReadinessTracksQueueLength(t *testing.T) {
	a := newAllocator(t)
	c, err := channel.New(api.Downstream, channel.Options{Readiness: true})
	require.NoError(t, err)
	h, err := c.ReadinessHandle()
	require.NoError(t, err)

	assert.False(t, readable(t, h))
	require.NoError(t, c.Post(newMsg(t, a, 1)))
	require.NoError(t, c.Post(newMsg(t, a, 2)))
	assert.True(t, readable(t, h))

	for i := 0; i < 2; i++ {
		require.True(t, readable(t, h))
		_, err := c.TryWait()
		require.NoError(t, err)
	}
	assert.False(t, readable(t, h))

	// speculative consume after the counter drained
	_, err = c.TryWait()
	require.ErrorIs(t, err, api.ErrEmpty)
	assert.False(t, readable(t, h))
}

func TestReadinessReleasedAfterCloseAndDrain(t *testing.T) {
	c, err := channel.New(api.Downstream, channel.Options{Readiness: true})
	require.NoError(t, err)
	require.NoError(t, c.Close())
	c.Drain()
	_, err = c.ReadinessHandle()
	require.ErrorIs(t, err, api.ErrUnavailable)
}

func TestReadinessHandleConcurrentWithClose(t *testing.T) {
	defer leaktest.AfterTest(t)()
	for round := 0; round < 50; round++ {
		c, err := channel.New(api.Downstream, channel.Options{Readiness: true})
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if _, err := c.ReadinessHandle(); err != nil {
					assert.ErrorIs(t, err, api.ErrUnavailable)
					return
				}
			}
		}()
		require.NoError(t, c.Close())
		c.Drain()
		wg.Wait()

		_, err = c.ReadinessHandle()
		require.ErrorIs(t, err, api.ErrUnavailable)
	}
}
