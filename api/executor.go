// Package api
// Author: momentics
//
// Scaling contract for the worker authority reacting to watcher signals.

package api

// Scaler grows consumer capacity in response to depth signals.
type Scaler interface {
	// HandleSignal reacts to one watcher notification.
	HandleSignal(sig Signal)

	// NumWorkers returns current number of active workers.
	NumWorkers() int

	// Grow adds up to n workers, bounded by the configured cap. Returns the number added.
	Grow(n int) int
}
