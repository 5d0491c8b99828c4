//go:build linux
// +build linux

// File: channel/readiness_linux.go
// Author: momentics <momentics@gmail.com>
//
// eventfd(2) readiness counter in semaphore mode: every queued message adds
// one, every dequeue reads one back, so the descriptor is readable exactly
// while the channel is non-empty.

package channel

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

type readiness struct {
	fd int
}

func newReadiness() (*readiness, error) {
	fd, err := unix.Eventfd(0, unix.EFD_SEMAPHORE|unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &readiness{fd: fd}, nil
}

// Fd implements api.Pollable.
func (r *readiness) Fd() uintptr { return uintptr(r.fd) }

func (r *readiness) inc() error {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	if _, err := unix.Write(r.fd, b[:]); err != nil {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (r *readiness) dec() error {
	var b [8]byte
	if _, err := unix.Read(r.fd, b[:]); err != nil {
		return fmt.Errorf("eventfd read: %w", err)
	}
	return nil
}

func (r *readiness) close() error {
	return unix.Close(r.fd)
}
