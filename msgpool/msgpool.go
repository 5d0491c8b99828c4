// File: msgpool/msgpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package msgpool composes one block allocator, a fixed set of channels and
// their depth watchers into a single in-process message pool.

package msgpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/momentics/hioload-msgpool/api"
	"github.com/momentics/hioload-msgpool/channel"
	"github.com/momentics/hioload-msgpool/pool"
	"github.com/momentics/hioload-msgpool/watcher"
)

// ChannelConfig configures one channel slot. The slot index is the channel id.
type ChannelConfig struct {
	Readiness bool
	Watch     *watcher.Policy
}

// Config is the construction-time pool configuration.
type Config struct {
	Allocator pool.Config
	// Channels defaults to Upstream and Downstream without readiness.
	Channels []ChannelConfig
	// SignalBuffer is the notifier inbox size; zero selects the default.
	SignalBuffer int
}

// Pool is the message pool. All methods are safe for concurrent use.
type Pool struct {
	alloc    *pool.BlockAllocator
	chans    []*channel.Channel
	notifier *watcher.Notifier

	mu       sync.Mutex
	watchers map[api.ChannelID]*watcher.Watcher

	closed atomic.Bool
}

// New builds the pool. It fails if the arena cannot be reserved or a
// readiness handle cannot be created; partially built resources are released.
func New(cfg Config) (*Pool, error) {
	chCfg := cfg.Channels
	if len(chCfg) == 0 {
		chCfg = make([]ChannelConfig, api.DefaultChannels)
	}
	alloc, err := pool.NewBlockAllocator(cfg.Allocator)
	if err != nil {
		return nil, fmt.Errorf("msgpool: allocator: %w", err)
	}
	p := &Pool{
		alloc:    alloc,
		chans:    make([]*channel.Channel, 0, len(chCfg)),
		notifier: watcher.NewNotifier(cfg.SignalBuffer),
		watchers: make(map[api.ChannelID]*watcher.Watcher),
	}
	for i, cc := range chCfg {
		c, err := channel.New(api.ChannelID(i), channel.Options{Readiness: cc.Readiness})
		if err != nil {
			return nil, multierr.Append(err, p.teardown())
		}
		p.chans = append(p.chans, c)
	}
	for i, cc := range chCfg {
		if cc.Watch == nil {
			continue
		}
		if _, err := p.RegisterWatcher(api.ChannelID(i), *cc.Watch); err != nil {
			return nil, multierr.Append(err, p.teardown())
		}
	}
	p.notifier.Start()
	return p, nil
}

func (p *Pool) channel(id api.ChannelID) (*channel.Channel, error) {
	if id < 0 || int(id) >= len(p.chans) {
		return nil, fmt.Errorf("%w: %s", api.ErrUnknownChannel, id)
	}
	return p.chans[id], nil
}

// NumChannels returns the fixed channel count.
func (p *Pool) NumChannels() int { return len(p.chans) }

// MaxMessageSize returns the largest size Alloc accepts.
func (p *Pool) MaxMessageSize() int { return p.alloc.MaxMessageSize() }

// Alloc returns a message of length size, or api.ErrTooLarge / api.ErrOutOfMemory.
func (p *Pool) Alloc(size int) (*pool.Message, error) { return p.alloc.Alloc(size) }

// Free returns m to its size class.
func (p *Pool) Free(m *pool.Message) error { return p.alloc.Free(m) }

// FreeSized is Free with the originally requested size as a class check.
func (p *Pool) FreeSized(m *pool.Message, size int) error { return p.alloc.FreeSized(m, size) }

// Post hands ownership of m to channel id.
func (p *Pool) Post(id api.ChannelID, m *pool.Message) error {
	c, err := p.channel(id)
	if err != nil {
		return err
	}
	return c.Post(m)
}

// Wait blocks until channel id yields a message or ctx is done.
func (p *Pool) Wait(ctx context.Context, id api.ChannelID) (*pool.Message, error) {
	c, err := p.channel(id)
	if err != nil {
		return nil, err
	}
	return c.Wait(ctx)
}

// TryWait pops from channel id without blocking.
func (p *Pool) TryWait(id api.ChannelID) (*pool.Message, error) {
	c, err := p.channel(id)
	if err != nil {
		return nil, err
	}
	return c.TryWait()
}

// ReadinessHandle returns the pollable readiness descriptor of channel id,
// or api.ErrUnavailable when the channel was built without one.
func (p *Pool) ReadinessHandle(id api.ChannelID) (api.Pollable, error) {
	c, err := p.channel(id)
	if err != nil {
		return nil, err
	}
	return c.ReadinessHandle()
}

// RegisterWatcher attaches a depth watcher to channel id. A channel carries
// at most one watcher; registering again replaces its policy.
func (p *Pool) RegisterWatcher(id api.ChannelID, policy watcher.Policy) (*watcher.Watcher, error) {
	c, err := p.channel(id)
	if err != nil {
		return nil, err
	}
	if p.closed.Load() {
		return nil, api.ErrPoolClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.watchers[id]; ok {
		if err := w.SetPolicy(policy); err != nil {
			return nil, err
		}
		return w, nil
	}
	w, err := watcher.New(id, policy, p.notifier)
	if err != nil {
		return nil, err
	}
	c.AddObserver(w)
	p.watchers[id] = w
	return w, nil
}

// Watcher returns the watcher of channel id, if any.
func (p *Pool) Watcher(id api.ChannelID) (*watcher.Watcher, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.watchers[id]
	return w, ok
}

// Subscribe delivers every watcher signal to h on the notifier goroutine.
func (p *Pool) Subscribe(h watcher.Handler) { p.notifier.Subscribe(h) }

// Unsubscribe stops delivery to h.
func (p *Pool) Unsubscribe(h watcher.Handler) { p.notifier.Unsubscribe(h) }

// Stats is a snapshot of the allocator and every channel.
type Stats struct {
	Pool           api.PoolStats
	Channels       []api.ChannelStats
	SignalsSent    int64
	SignalsDropped int64
}

// Stats returns a point-in-time snapshot. Values from different channels are
// not taken atomically with each other.
func (p *Pool) Stats() Stats {
	st := Stats{
		Pool:           p.alloc.Stats(),
		Channels:       make([]api.ChannelStats, len(p.chans)),
		SignalsSent:    p.notifier.Published(),
		SignalsDropped: p.notifier.Dropped(),
	}
	for i, c := range p.chans {
		st.Channels[i] = c.Stats()
	}
	return st
}

// Close tears the pool down: channels stop accepting posts and release their
// waiters with api.ErrPoolClosed, undelivered messages are freed, pending
// signals are flushed and the arena is released. Close fails with
// api.ErrInUse if callers still hold messages; the arena is kept in that case
// and a later Close, once they are freed, releases it.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return p.alloc.Close()
	}
	return p.teardown()
}

func (p *Pool) teardown() error {
	var errs error
	for _, c := range p.chans {
		errs = multierr.Append(errs, c.Close())
	}
	for _, c := range p.chans {
		for _, m := range c.Drain() {
			errs = multierr.Append(errs, p.alloc.Free(m))
		}
	}
	p.notifier.Stop()
	return multierr.Append(errs, p.alloc.Close())
}
