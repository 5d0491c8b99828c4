// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface for readiness selectors used by single-threaded
// front ends to multiplex channel readiness handles with other descriptors.

package api

// FDEventType is a bit set of readiness conditions.
type FDEventType uint32

const (
	EventRead FDEventType = 1 << iota
	EventWrite
	EventError
)

// FDCallback is invoked on the polling goroutine for each ready descriptor.
type FDCallback func(fd uintptr, events FDEventType)

// Selector multiplexes readiness of arbitrary descriptors.
type Selector interface {
	// Register associates fd with the selector.
	Register(fd uintptr, events FDEventType, cb FDCallback) error

	// Unregister removes fd.
	Unregister(fd uintptr) error

	// Poll waits up to timeoutMs (negative blocks) and dispatches callbacks.
	Poll(timeoutMs int) (int, error)

	// Close releases the selector.
	Close() error
}
