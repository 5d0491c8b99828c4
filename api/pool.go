// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Defines the allocator accounting contract shared by the block allocator and its observers.

package api

// PoolStats aggregates allocator accounting for observability.
type PoolStats struct {
	Capacity    int64 // backing bytes
	InUseBytes  int64 // bytes held by live blocks (class sizes)
	InUseBlocks int64
	TotalAlloc  int64
	TotalFree   int64
	Failures    int64 // TooLarge + OutOfMemory
	Classes     []ClassStats
}

// ClassStats describes one size class.
type ClassStats struct {
	Size   int
	Blocks int
	Free   int
}

// ChannelStats is a point-in-time view of one channel.
type ChannelStats struct {
	ID        ChannelID
	Depth     int
	Waiters   int
	Posted    int64
	Delivered int64
	Readiness bool

	// ReadinessErrors counts eventfd updates that failed; non-zero means the
	// readiness counter may no longer match Depth.
	ReadinessErrors int64
}
