package msgpool_test

import (
	"context"
	"encoding/binary"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/lni/goutils/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-msgpool/api"
	"github.com/momentics/hioload-msgpool/msgpool"
	"github.com/momentics/hioload-msgpool/pool"
	"github.com/momentics/hioload-msgpool/watcher"
)

func newPool(t *testing.T, cfg msgpool.Config) *msgpool.Pool {
	t.Helper()
	p, err := msgpool.New(cfg)
	require.NoError(t, err)
	return p
}

func put(t *testing.T, p *msgpool.Pool, id api.ChannelID, v uint32) {
	t.Helper()
	m, err := p.Alloc(4)
	require.NoError(t, err)
	binary.BigEndian.PutUint32(m.Bytes(), v)
	require.NoError(t, p.Post(id, m))
}

func value(m *pool.Message) uint32 { return binary.BigEndian.Uint32(m.Bytes()) }

func TestDefaultChannels(t *testing.T) {
	p := newPool(t, msgpool.Config{Allocator: pool.Config{MaxMessageSize: 64}})
	defer func() { require.NoError(t, p.Close()) }()

	assert.Equal(t, api.DefaultChannels, p.NumChannels())
	assert.Equal(t, 64, p.MaxMessageSize())

	_, err := p.ReadinessHandle(api.Upstream)
	assert.ErrorIs(t, err, api.ErrUnavailable)

	_, err = p.TryWait(api.ChannelID(2))
	assert.ErrorIs(t, err, api.ErrUnknownChannel)
	assert.ErrorIs(t, p.Post(api.ChannelID(-1), nil), api.ErrUnknownChannel)
	_, err = p.Wait(context.Background(), api.ChannelID(7))
	assert.ErrorIs(t, err, api.ErrUnknownChannel)
	_, err = p.RegisterWatcher(api.ChannelID(9), watcher.Policy{High: 1})
	assert.ErrorIs(t, err, api.ErrUnknownChannel)
}

func TestFIFOAcrossWaitAndTryWait(t *testing.T) {
	p := newPool(t, msgpool.Config{Allocator: pool.Config{MaxMessageSize: 16}})
	defer func() { require.NoError(t, p.Close()) }()

	for i := uint32(0); i < 20; i++ {
		put(t, p, api.Downstream, i)
	}
	for i := uint32(0); i < 20; i++ {
		var m *pool.Message
		var err error
		if i%2 == 0 {
			m, err = p.TryWait(api.Downstream)
		} else {
			m, err = p.Wait(context.Background(), api.Downstream)
		}
		require.NoError(t, err)
		assert.Equal(t, i, value(m))
		require.NoError(t, p.FreeSized(m, 4))
	}
	_, err := p.TryWait(api.Downstream)
	assert.ErrorIs(t, err, api.ErrEmpty)
	// the other channel is independent
	_, err = p.TryWait(api.Upstream)
	assert.ErrorIs(t, err, api.ErrEmpty)
}

func TestProducersConsumerNoLoss(t *testing.T) {
	defer leaktest.AfterTest(t)()
	const producers, perProducer = 6, 400

	for run := 0; run < 4; run++ {
		p := newPool(t, msgpool.Config{
			Allocator: pool.Config{MaxMessageSize: 8, Capacity: 8 * producers * perProducer},
		})
		var wg sync.WaitGroup
		for g := 0; g < producers; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				r := rand.New(rand.NewSource(int64(run*producers + g)))
				for i := 0; i < perProducer; i++ {
					m, err := p.Alloc(4)
					if !assert.NoError(t, err) {
						return
					}
					binary.BigEndian.PutUint32(m.Bytes(), uint32(g*perProducer+i))
					assert.NoError(t, p.Post(api.Upstream, m))
					if r.Intn(8) == 0 {
						time.Sleep(time.Duration(r.Intn(50)) * time.Microsecond)
					}
				}
			}(g)
		}

		seen := make(map[uint32]bool, producers*perProducer)
		for len(seen) < producers*perProducer {
			m, err := p.Wait(context.Background(), api.Upstream)
			require.NoError(t, err)
			v := value(m)
			require.False(t, seen[v], "duplicate %d", v)
			seen[v] = true
			require.NoError(t, p.Free(m))
		}
		wg.Wait()
		st := p.Stats()
		assert.EqualValues(t, 0, st.Pool.InUseBlocks)
		assert.EqualValues(t, producers*perProducer, st.Channels[api.Upstream].Delivered)
		require.NoError(t, p.Close())
	}
}

func TestCancelledWaitLeavesChannelUsable(t *testing.T) {
	defer leaktest.AfterTest(t)()
	p := newPool(t, msgpool.Config{Allocator: pool.Config{MaxMessageSize: 8}})
	defer func() { require.NoError(t, p.Close()) }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Wait(ctx, api.Upstream)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		put(t, p, api.Upstream, 42)
		m, err := p.TryWait(api.Upstream)
		assert.NoError(t, err)
		assert.EqualValues(t, 42, value(m))
		assert.NoError(t, p.Free(m))
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("channel stayed locked after cancelled wait")
	}
}

func TestWatcherSignalsReachSubscribers(t *testing.T) {
	defer leaktest.AfterTest(t)()
	p := newPool(t, msgpool.Config{
		Allocator: pool.Config{MaxMessageSize: 8},
		Channels: []msgpool.ChannelConfig{
			{Watch: &watcher.Policy{High: 10, Increment: 3}},
			{},
		},
	})

	var mu sync.Mutex
	var got []api.Signal
	p.Subscribe(watcher.HandlerFunc(func(sig api.Signal) {
		mu.Lock()
		got = append(got, sig)
		mu.Unlock()
	}))

	for i := uint32(0); i < 14; i++ {
		put(t, p, api.Upstream, i)
	}
	for i := 0; i < 14; i++ {
		m, err := p.TryWait(api.Upstream)
		require.NoError(t, err)
		require.NoError(t, p.Free(m))
	}
	// Close flushes the notifier
	require.NoError(t, p.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []api.Signal{
		{Channel: api.Upstream, Kind: api.SignalScaleUp, Depth: 11},
		{Channel: api.Upstream, Kind: api.SignalScaleUp, Depth: 14},
		{Channel: api.Upstream, Kind: api.SignalEmpty},
	}, got)
}

func TestRegisterWatcherReplacesPolicy(t *testing.T) {
	p := newPool(t, msgpool.Config{Allocator: pool.Config{MaxMessageSize: 8}})
	defer func() { require.NoError(t, p.Close()) }()

	w1, err := p.RegisterWatcher(api.Downstream, watcher.Policy{High: 5})
	require.NoError(t, err)
	w2, err := p.RegisterWatcher(api.Downstream, watcher.Policy{High: 7, Increment: 1})
	require.NoError(t, err)
	assert.Same(t, w1, w2)
	assert.Equal(t, 7, w2.Policy().High)

	got, ok := p.Watcher(api.Downstream)
	assert.True(t, ok)
	assert.Same(t, w1, got)
	_, ok = p.Watcher(api.Upstream)
	assert.False(t, ok)

	_, err = p.RegisterWatcher(api.Upstream, watcher.Policy{Low: 3, High: 1})
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestCloseReleasesWaitersAndQueuedMessages(t *testing.T) {
	defer leaktest.AfterTest(t)()
	p := newPool(t, msgpool.Config{Allocator: pool.Config{MaxMessageSize: 8}})

	done := make(chan error, 1)
	go func() {
		_, err := p.Wait(context.Background(), api.Downstream)
		done <- err
	}()
	put(t, p, api.Upstream, 1)
	put(t, p, api.Upstream, 2)

	require.Eventually(t, func() bool {
		return p.Stats().Channels[api.Downstream].Waiters == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, p.Close())
	assert.ErrorIs(t, <-done, api.ErrPoolClosed)

	_, err := p.Alloc(1)
	assert.ErrorIs(t, err, api.ErrPoolClosed)
	assert.ErrorIs(t, p.Post(api.Upstream, &pool.Message{}), api.ErrPoolClosed)
	assert.NoError(t, p.Close())
}

func TestCloseWithOutstandingMessage(t *testing.T) {
	p := newPool(t, msgpool.Config{Allocator: pool.Config{MaxMessageSize: 8}})
	m, err := p.Alloc(8)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Close(), api.ErrInUse)
	require.NoError(t, p.Free(m))
	assert.NoError(t, p.Close())
}

func TestAllocatorBoundThroughPool(t *testing.T) {
	p := newPool(t, msgpool.Config{Allocator: pool.Config{MaxMessageSize: 16, MinClassSize: 16, Capacity: 32}})
	defer func() { require.NoError(t, p.Close()) }()

	a, err := p.Alloc(16)
	require.NoError(t, err)
	b, err := p.Alloc(10)
	require.NoError(t, err)
	_, err = p.Alloc(1)
	assert.ErrorIs(t, err, api.ErrOutOfMemory)
	_, err = p.Alloc(17)
	assert.ErrorIs(t, err, api.ErrTooLarge)

	st := p.Stats()
	assert.LessOrEqual(t, st.Pool.InUseBytes, int64(st.Pool.Capacity))
	require.NoError(t, p.Free(a))
	require.NoError(t, p.Free(b))
}

func TestReadinessEnabledChannel(t *testing.T) {
	p, err := msgpool.New(msgpool.Config{
		Allocator: pool.Config{MaxMessageSize: 8},
		Channels:  []msgpool.ChannelConfig{{}, {Readiness: true}},
	})
	if err != nil {
		require.ErrorIs(t, err, api.ErrNotSupported)
		t.Skip("readiness handles not supported on this platform")
	}
	defer func() { require.NoError(t, p.Close()) }()
	h, err := p.ReadinessHandle(api.Downstream)
	require.NoError(t, err)
	assert.NotZero(t, h.Fd())
	assert.True(t, p.Stats().Channels[api.Downstream].Readiness)
}
