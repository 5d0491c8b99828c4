//go:build linux
// +build linux

// File: pool/arena_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux arena backed by an anonymous private mapping, so the whole capacity is
// reserved up front and returned to the kernel on release.

package pool

import (
	"golang.org/x/sys/unix"
)

type arena struct {
	buf []byte
}

func newArena(size int) (*arena, error) {
	if size == 0 {
		return &arena{}, nil
	}
	buf, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	return &arena{buf: buf}, nil
}

func (a *arena) release() error {
	if a.buf == nil {
		return nil
	}
	err := unix.Munmap(a.buf)
	a.buf = nil
	return err
}
