// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral entry point for the readiness selector.

package reactor

import "github.com/momentics/hioload-msgpool/api"

// maxEvents bounds the events collected by one Poll call.
const maxEvents = 128

// New returns the selector for the current platform.
func New() (api.Selector, error) {
	return newSelector()
}
