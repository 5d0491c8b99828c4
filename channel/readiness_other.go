//go:build !linux
// +build !linux

// File: channel/readiness_other.go
// Author: momentics <momentics@gmail.com>
//
// Stub readiness for platforms without eventfd.

package channel

import "github.com/momentics/hioload-msgpool/api"

type readiness struct{}

func newReadiness() (*readiness, error) { return nil, api.ErrNotSupported }

func (r *readiness) Fd() uintptr  { return ^uintptr(0) }
func (r *readiness) inc() error   { return nil }
func (r *readiness) dec() error   { return nil }
func (r *readiness) close() error { return nil }
