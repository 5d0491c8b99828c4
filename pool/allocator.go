// File: pool/allocator.go
// Package pool implements size-classed block allocation over a fixed arena.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-msgpool/api"
)

// DefaultBlocksPerClass sizes the arena when Config.Capacity is zero.
const DefaultBlocksPerClass = 1024

// Config describes the allocator geometry.
type Config struct {
	// MaxMessageSize is the largest size Alloc accepts.
	MaxMessageSize int
	// Capacity is the arena size in bytes, split evenly across size classes.
	// Zero means DefaultBlocksPerClass blocks in every class.
	Capacity int
	// MinClassSize is the smallest block size; zero means DefaultMinClassSize.
	MinClassSize int
}

// sizeClass: contiguous run of equally sized blocks and a stack of free indexes.
type sizeClass struct {
	size   int
	base   int // offset of block 0 in the arena
	blocks int
	free   []int32
}

// BlockAllocator carves messages out of one backing arena.
// All methods are safe for concurrent use.
type BlockAllocator struct {
	mu      sync.Mutex
	arena   *arena
	classes []sizeClass
	sizes   []int
	maxSize int
	closed  bool

	inUseBytes  int64 // guarded by mu
	inUseBlocks int64 // guarded by mu

	totalAlloc atomic.Int64
	totalFree  atomic.Int64
	failures   atomic.Int64
}

// NewBlockAllocator reserves the arena and builds the per-class free lists.
func NewBlockAllocator(cfg Config) (*BlockAllocator, error) {
	if cfg.MaxMessageSize <= 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "max message size must be positive").
			WithContext("max_message_size", cfg.MaxMessageSize)
	}
	if cfg.Capacity < 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "capacity must not be negative").
			WithContext("capacity", cfg.Capacity)
	}
	sizes := classSizes(cfg.MinClassSize, cfg.MaxMessageSize)
	capacity := cfg.Capacity
	if capacity == 0 {
		for _, s := range sizes {
			capacity += s * DefaultBlocksPerClass
		}
	}

	share := capacity / len(sizes)
	classes := make([]sizeClass, len(sizes))
	offset := 0
	for i, s := range sizes {
		n := share / s
		free := make([]int32, n)
		// pop from the tail hands out block 0 first
		for j := range free {
			free[j] = int32(n - 1 - j)
		}
		classes[i] = sizeClass{size: s, base: offset, blocks: n, free: free}
		offset += n * s
	}

	ar, err := newArena(capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve %d byte arena: %v", api.ErrResourceExhausted, capacity, err)
	}
	return &BlockAllocator{
		arena:   ar,
		classes: classes,
		sizes:   sizes,
		maxSize: cfg.MaxMessageSize,
	}, nil
}

// Alloc returns an uninitialized message of exactly size bytes.
func (a *BlockAllocator) Alloc(size int) (*Message, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size %d", api.ErrInvalidArgument, size)
	}
	if size > a.maxSize {
		a.failures.Add(1)
		return nil, fmt.Errorf("%w: %d > %d", api.ErrTooLarge, size, a.maxSize)
	}
	ci := classFor(a.sizes, size)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, api.ErrPoolClosed
	}
	c := &a.classes[ci]
	if len(c.free) == 0 {
		a.mu.Unlock()
		a.failures.Add(1)
		return nil, fmt.Errorf("%w: class %d exhausted", api.ErrOutOfMemory, c.size)
	}
	idx := c.free[len(c.free)-1]
	c.free = c.free[:len(c.free)-1]
	a.inUseBytes += int64(c.size)
	a.inUseBlocks++
	start := c.base + int(idx)*c.size
	data := a.arena.buf[start : start+size : start+c.size]
	a.mu.Unlock()

	a.totalAlloc.Add(1)
	return &Message{data: data, class: int32(ci), index: idx, owner: a}, nil
}

// Free returns the message block to its class free list. The handle is
// detached; freeing it again reports api.ErrInvalidHandle.
func (a *BlockAllocator) Free(m *Message) error {
	if m == nil {
		return fmt.Errorf("%w: nil message", api.ErrInvalidHandle)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if m.owner != a {
		return api.ErrInvalidHandle
	}
	c := &a.classes[m.class]
	c.free = append(c.free, m.index)
	a.inUseBytes -= int64(c.size)
	a.inUseBlocks--
	m.owner = nil
	m.data = nil
	a.totalFree.Add(1)
	return nil
}

// FreeSized frees m after checking that size maps to the class m was carved from.
func (a *BlockAllocator) FreeSized(m *Message, size int) error {
	if m == nil {
		return fmt.Errorf("%w: nil message", api.ErrInvalidHandle)
	}
	if ci := classFor(a.sizes, size); size < 0 || ci != int(m.class) {
		return fmt.Errorf("%w: size %d does not match block class", api.ErrInvalidArgument, size)
	}
	return a.Free(m)
}

// MaxMessageSize returns the configured maximum.
func (a *BlockAllocator) MaxMessageSize() int { return a.maxSize }

// Capacity returns the arena size in bytes.
func (a *BlockAllocator) Capacity() int { return len(a.arena.buf) }

// Stats returns an accounting snapshot.
func (a *BlockAllocator) Stats() api.PoolStats {
	a.mu.Lock()
	classes := make([]api.ClassStats, len(a.classes))
	for i := range a.classes {
		c := &a.classes[i]
		classes[i] = api.ClassStats{Size: c.size, Blocks: c.blocks, Free: len(c.free)}
	}
	st := api.PoolStats{
		Capacity:    int64(len(a.arena.buf)),
		InUseBytes:  a.inUseBytes,
		InUseBlocks: a.inUseBlocks,
		Classes:     classes,
	}
	a.mu.Unlock()
	st.TotalAlloc = a.totalAlloc.Load()
	st.TotalFree = a.totalFree.Load()
	st.Failures = a.failures.Load()
	return st
}

// Close releases the arena. It refuses while any block is still allocated.
func (a *BlockAllocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	if a.inUseBlocks > 0 {
		return fmt.Errorf("%w: %d live blocks", api.ErrInUse, a.inUseBlocks)
	}
	a.closed = true
	return a.arena.release()
}
