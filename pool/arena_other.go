//go:build !linux
// +build !linux

// File: pool/arena_other.go
// Author: momentics <momentics@gmail.com>
//
// Heap-backed arena for platforms without the mmap path.

package pool

type arena struct {
	buf []byte
}

func newArena(size int) (*arena, error) {
	return &arena{buf: make([]byte, size)}, nil
}

func (a *arena) release() error {
	a.buf = nil
	return nil
}
