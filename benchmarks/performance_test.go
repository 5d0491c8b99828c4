// Package benchmarks
// Author: momentics <momentics@gmail.com>
//
// Performance benchmarks for message pool components.

package benchmarks

import (
	"context"
	"testing"

	"github.com/momentics/hioload-msgpool/api"
	"github.com/momentics/hioload-msgpool/channel"
	"github.com/momentics/hioload-msgpool/internal/echo"
	"github.com/momentics/hioload-msgpool/msgpool"
	"github.com/momentics/hioload-msgpool/pool"
	"github.com/momentics/hioload-msgpool/watcher"
)

// BenchmarkAllocatorAllocFree measures the allocation round trip across classes.
func BenchmarkAllocatorAllocFree(b *testing.B) {
	a, err := pool.NewBlockAllocator(pool.Config{MaxMessageSize: 4096})
	if err != nil {
		b.Fatal(err)
	}
	defer a.Close()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		size := 1
		for pb.Next() {
			m, err := a.Alloc(size)
			if err != nil {
				b.Error(err)
				return
			}
			a.Free(m)
			size = size*2%4096 + 1
		}
	})
}

// BenchmarkChannelPostTryWait measures queue throughput without waiters.
func BenchmarkChannelPostTryWait(b *testing.B) {
	a, err := pool.NewBlockAllocator(pool.Config{MaxMessageSize: 16})
	if err != nil {
		b.Fatal(err)
	}
	defer a.Close()
	c, _ := channel.New(api.Upstream, channel.Options{})
	m, _ := a.Alloc(8)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Post(m)
		if _, err := c.TryWait(); err != nil {
			b.Fatal(err)
		}
	}
	b.StopTimer()
	a.Free(m)
}

// BenchmarkChannelHandoff measures post to a parked waiter.
func BenchmarkChannelHandoff(b *testing.B) {
	a, err := pool.NewBlockAllocator(pool.Config{MaxMessageSize: 16})
	if err != nil {
		b.Fatal(err)
	}
	defer a.Close()
	c, _ := channel.New(api.Upstream, channel.Options{})
	m, _ := a.Alloc(8)
	back := make(chan struct{})

	go func() {
		for i := 0; i < b.N; i++ {
			if _, err := c.Wait(context.Background()); err != nil {
				return
			}
			back <- struct{}{}
		}
	}()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Post(m)
		<-back
	}
	b.StopTimer()
	a.Free(m)
}

// BenchmarkChannelWatched adds a depth watcher to every post and pop.
func BenchmarkChannelWatched(b *testing.B) {
	a, err := pool.NewBlockAllocator(pool.Config{MaxMessageSize: 16})
	if err != nil {
		b.Fatal(err)
	}
	defer a.Close()
	n := watcher.NewNotifier(0)
	n.Start()
	defer n.Stop()
	c, _ := channel.New(api.Upstream, channel.Options{})
	w, _ := watcher.New(api.Upstream, watcher.Policy{High: 8, Increment: 8}, n)
	c.AddObserver(w)
	m, _ := a.Alloc(8)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Post(m)
		c.TryWait()
	}
	b.StopTimer()
	a.Free(m)
}

// BenchmarkEchoRoundTrip runs requests through the uppercase service.
func BenchmarkEchoRoundTrip(b *testing.B) {
	p, err := msgpool.New(msgpool.Config{Allocator: pool.Config{MaxMessageSize: 64}})
	if err != nil {
		b.Fatal(err)
	}
	defer p.Close()
	svc := echo.NewService(p, 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < 4; i++ {
		go svc.Run(ctx, i)
	}
	payload := []byte("benchmark payload")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m, err := echo.Encode(p, payload)
		if err != nil {
			b.Fatal(err)
		}
		p.Post(api.Upstream, m)
		out, err := p.Wait(ctx, api.Downstream)
		if err != nil {
			b.Fatal(err)
		}
		echo.Release(p, out)
	}
}
