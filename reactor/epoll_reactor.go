//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll implementation.

package reactor

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-msgpool/api"
)

// epollReactor implements api.Selector using level-triggered epoll.
type epollReactor struct {
	epfd      int
	callbacks sync.Map // map[uintptr]api.FDCallback

	closeOnce sync.Once
	closeErr  error
}

func newSelector() (api.Selector, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &epollReactor{epfd: epfd}, nil
}

// Register adds a file descriptor to the epoll watch list.
func (r *epollReactor) Register(fd uintptr, events api.FDEventType, cb api.FDCallback) error {
	if cb == nil {
		return fmt.Errorf("%w: nil callback", api.ErrInvalidArgument)
	}
	var ev unix.EpollEvent
	if events&api.EventRead != 0 {
		ev.Events |= unix.EPOLLIN
	}
	if events&api.EventWrite != 0 {
		ev.Events |= unix.EPOLLOUT
	}
	ev.Fd = int32(fd)

	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	// level-triggered: an event seen before the store is reported again
	r.callbacks.Store(fd, cb)
	return nil
}

// Unregister removes a file descriptor from the epoll watch list.
func (r *epollReactor) Unregister(fd uintptr) error {
	r.callbacks.Delete(fd)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Poll blocks up to timeoutMs for events and runs the callbacks of ready
// descriptors. timeoutMs < 0 means block infinitely. It returns the number of
// callbacks dispatched; an interrupted wait reports zero events.
func (r *epollReactor) Poll(timeoutMs int) (int, error) {
	var events [maxEvents]unix.EpollEvent
	if timeoutMs < 0 {
		timeoutMs = -1
	}

	n, err := unix.EpollWait(r.epfd, events[:], timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	dispatched := 0
	for i := 0; i < n; i++ {
		ev := events[i]
		fd := uintptr(ev.Fd)

		val, ok := r.callbacks.Load(fd)
		if !ok {
			// unregistered by an earlier callback in this batch
			continue
		}

		var eventType api.FDEventType
		if ev.Events&unix.EPOLLIN != 0 {
			eventType |= api.EventRead
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			eventType |= api.EventWrite
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			eventType |= api.EventError
		}

		cb := val.(api.FDCallback)
		func() {
			defer func() { _ = recover() }()
			cb(fd, eventType)
		}()
		dispatched++
	}
	return dispatched, nil
}

// Close releases the epoll file descriptor.
func (r *epollReactor) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = unix.Close(r.epfd)
	})
	return r.closeErr
}
