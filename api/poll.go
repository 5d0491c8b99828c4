// Package api
// Author: momentics
//
// Readiness contract used to multiplex channels with other event sources.

package api

// Pollable is anything exposing an OS descriptor that becomes readable when data is ready.
type Pollable interface {
	// Fd returns the descriptor to register with a selector.
	Fd() uintptr
}
