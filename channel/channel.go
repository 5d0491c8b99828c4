// File: channel/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-msgpool/api"
	"github.com/momentics/hioload-msgpool/pool"
)

// Op tells an Observer which operation changed the depth.
type Op int

const (
	OpPost Op = iota
	OpDequeue
)

// Observer is notified of every depth change. Observe runs inside the
// channel's critical section: it must not block and must not call back
// into the channel.
type Observer interface {
	Observe(op Op, depth int)
}

// Options configures a channel.
type Options struct {
	// Readiness enables the eventfd readiness counter.
	Readiness bool
}

// compactSlack is how many cancelled waiters may sit in the waiter queue
// beyond the number of live ones before it is rebuilt.
const compactSlack = 32

// waiter is a goroutine parked in Wait. ch is buffered so Post never blocks.
type waiter struct {
	ch        chan *pool.Message
	cancelled bool
}

// Channel is a mutex-protected FIFO of messages.
type Channel struct {
	id api.ChannelID

	mu        sync.Mutex
	items     *queue.Queue // *pool.Message, insertion order
	waiters   *queue.Queue // *waiter, oldest first; may hold cancelled entries
	parked    int          // live waiters
	ready     *readiness   // nil when disabled
	observers []Observer
	closed    bool

	posted      atomic.Int64
	delivered   atomic.Int64
	readyErrors atomic.Int64
}

// New creates a channel. With opts.Readiness it also creates the readiness
// counter and fails if the platform cannot provide one.
func New(id api.ChannelID, opts Options) (*Channel, error) {
	c := &Channel{
		id:      id,
		items:   queue.New(),
		waiters: queue.New(),
	}
	if opts.Readiness {
		r, err := newReadiness()
		if err != nil {
			return nil, fmt.Errorf("channel %s: readiness: %w", id, err)
		}
		c.ready = r
	}
	return c, nil
}

// ID returns the channel identifier.
func (c *Channel) ID() api.ChannelID { return c.id }

// AddObserver attaches o to depth changes.
func (c *Channel) AddObserver(o Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
}

// RemoveObserver detaches o.
func (c *Channel) RemoveObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.observers[:0]
	for _, ob := range c.observers {
		if ob != o {
			out = append(out, ob)
		}
	}
	c.observers = out
}

func (c *Channel) observe(op Op, depth int) {
	for _, o := range c.observers {
		o.Observe(op, depth)
	}
}

// Post appends m at the tail, or hands it to the oldest parked waiter.
// It never blocks; it fails only for a nil handle or a closed channel.
func (c *Channel) Post(m *pool.Message) error {
	if m == nil {
		return fmt.Errorf("%w: nil message", api.ErrInvalidHandle)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return api.ErrPoolClosed
	}
	c.posted.Add(1)

	for c.waiters.Length() > 0 {
		w := c.waiters.Remove().(*waiter)
		if w.cancelled {
			continue
		}
		// waiters only park on an empty queue, so handoff keeps FIFO order
		c.parked--
		w.ch <- m
		c.delivered.Add(1)
		c.observe(OpPost, 1)
		c.observe(OpDequeue, 0)
		return nil
	}

	c.items.Add(m)
	if c.ready != nil {
		if err := c.ready.inc(); err != nil {
			c.readyErrors.Add(1)
		}
	}
	c.observe(OpPost, c.items.Length())
	return nil
}

// pop removes the head. Caller holds mu and has checked the queue is non-empty.
func (c *Channel) pop() *pool.Message {
	m := c.items.Remove().(*pool.Message)
	if c.ready != nil {
		if err := c.ready.dec(); err != nil {
			c.readyErrors.Add(1)
		}
	}
	c.delivered.Add(1)
	c.observe(OpDequeue, c.items.Length())
	return m
}

// TryWait pops the head without blocking. It returns api.ErrEmpty when
// nothing is queued, including speculative calls after a readiness wakeup.
func (c *Channel) TryWait() (*pool.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items.Length() > 0 {
		return c.pop(), nil
	}
	if c.closed {
		return nil, api.ErrPoolClosed
	}
	return nil, api.ErrEmpty
}

// Wait blocks until a message is available or ctx is done. On cancellation
// the lock is released and no message is lost: a message handed over while
// the cancellation raced is returned instead of the context error.
func (c *Channel) Wait(ctx context.Context) (*pool.Message, error) {
	c.mu.Lock()
	if c.items.Length() > 0 {
		m := c.pop()
		c.mu.Unlock()
		return m, nil
	}
	if c.closed {
		c.mu.Unlock()
		return nil, api.ErrPoolClosed
	}
	w := &waiter{ch: make(chan *pool.Message, 1)}
	c.waiters.Add(w)
	c.parked++
	c.mu.Unlock()

	select {
	case m, ok := <-w.ch:
		if !ok {
			return nil, api.ErrPoolClosed
		}
		return m, nil
	case <-ctx.Done():
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case m, ok := <-w.ch:
		if !ok {
			return nil, api.ErrPoolClosed
		}
		return m, nil
	default:
	}
	w.cancelled = true
	c.parked--
	c.compactWaiters()
	return nil, ctx.Err()
}

// compactWaiters drops cancelled entries once they outnumber live waiters by
// more than compactSlack, keeping the queue length within 2*parked+compactSlack.
// Caller holds mu.
func (c *Channel) compactWaiters() {
	if c.waiters.Length()-c.parked <= c.parked+compactSlack {
		return
	}
	live := queue.New()
	for c.waiters.Length() > 0 {
		w := c.waiters.Remove().(*waiter)
		if !w.cancelled {
			live.Add(w)
		}
	}
	c.waiters = live
}

// ReadinessHandle exposes the eventfd for selector registration.
// The descriptor stays readable while messages are queued.
func (c *Channel) ReadinessHandle() (api.Pollable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready == nil {
		return nil, fmt.Errorf("%w: channel %s", api.ErrUnavailable, c.id)
	}
	return c.ready, nil
}

// Depth returns the number of queued messages.
func (c *Channel) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Length()
}

// Stats returns a point-in-time view of the channel.
func (c *Channel) Stats() api.ChannelStats {
	c.mu.Lock()
	st := api.ChannelStats{
		ID:        c.id,
		Depth:     c.items.Length(),
		Waiters:   c.parked,
		Readiness: c.ready != nil,
	}
	c.mu.Unlock()
	st.Posted = c.posted.Load()
	st.Delivered = c.delivered.Load()
	st.ReadinessErrors = c.readyErrors.Load()
	return st
}

// Close rejects further posts and releases parked waiters with
// api.ErrPoolClosed. Queued messages remain available to Wait, TryWait and Drain.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for c.waiters.Length() > 0 {
		w := c.waiters.Remove().(*waiter)
		if !w.cancelled {
			close(w.ch)
		}
	}
	c.parked = 0
	return nil
}

// Drain pops every queued message. The readiness descriptor is released
// once a closed channel is fully drained.
func (c *Channel) Drain() []*pool.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*pool.Message, 0, c.items.Length())
	for c.items.Length() > 0 {
		out = append(out, c.pop())
	}
	if c.closed && c.ready != nil {
		_ = c.ready.close()
		c.ready = nil
	}
	return out
}
