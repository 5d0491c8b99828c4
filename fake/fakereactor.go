// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package fake provides test doubles for api interfaces.
package fake

import (
	"fmt"
	"sync"

	"github.com/momentics/hioload-msgpool/api"
)

// Selector is an in-memory api.Selector. Fire delivers events by hand and
// FailRegisterAfter makes the n-th and later Register calls fail.
type Selector struct {
	mu        sync.Mutex
	callbacks map[uintptr]api.FDCallback
	pending   []uintptr
	failAfter int
	closed    bool
}

// NewSelector returns an empty selector.
func NewSelector() *Selector {
	return &Selector{callbacks: make(map[uintptr]api.FDCallback), failAfter: -1}
}

var _ api.Selector = (*Selector)(nil)

// FailRegisterAfter lets n registrations succeed and fails the rest.
func (s *Selector) FailRegisterAfter(n int) {
	s.mu.Lock()
	s.failAfter = n
	s.mu.Unlock()
}

func (s *Selector) Register(fd uintptr, _ api.FDEventType, cb api.FDCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter == 0 {
		return fmt.Errorf("fake: register fd %d refused", fd)
	}
	if _, ok := s.callbacks[fd]; ok {
		return fmt.Errorf("fake: fd %d already registered", fd)
	}
	if s.failAfter > 0 {
		s.failAfter--
	}
	s.callbacks[fd] = cb
	return nil
}

func (s *Selector) Unregister(fd uintptr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.callbacks[fd]; !ok {
		return fmt.Errorf("fake: fd %d not registered", fd)
	}
	delete(s.callbacks, fd)
	return nil
}

// Fire queues a read event for fd, delivered by the next Poll.
func (s *Selector) Fire(fd uintptr) {
	s.mu.Lock()
	s.pending = append(s.pending, fd)
	s.mu.Unlock()
}

// Poll runs the callbacks of fired descriptors; it never blocks.
func (s *Selector) Poll(int) (int, error) {
	s.mu.Lock()
	fired := s.pending
	s.pending = nil
	cbs := make([]api.FDCallback, 0, len(fired))
	fds := make([]uintptr, 0, len(fired))
	for _, fd := range fired {
		if cb, ok := s.callbacks[fd]; ok {
			cbs = append(cbs, cb)
			fds = append(fds, fd)
		}
	}
	s.mu.Unlock()
	for i, cb := range cbs {
		cb(fds[i], api.EventRead)
	}
	return len(cbs), nil
}

// Registered reports the registered descriptors.
func (s *Selector) Registered() []uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uintptr, 0, len(s.callbacks))
	for fd := range s.callbacks {
		out = append(out, fd)
	}
	return out
}

func (s *Selector) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
