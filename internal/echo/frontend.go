//go:build linux
// +build linux

// File: internal/echo/frontend.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frontend is the single I/O goroutine of the echo demo. It multiplexes the
// input descriptor with channel readiness handles through one selector:
// input chunks become upstream requests, downstream replies are written out.
// Without workers it also serves the upstream channel inline.

package echo

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-msgpool/api"
	"github.com/momentics/hioload-msgpool/msgpool"
)

// pollIntervalMs bounds how long Run waits before rechecking ctx.
const pollIntervalMs = 50

// Frontend owns the selector registrations; it is not safe for concurrent use.
type Frontend struct {
	pool   *msgpool.Pool
	sel    api.Selector
	inFd   int
	out    io.Writer
	inline *Service // non-nil in single-goroutine mode
	log    *zap.Logger

	buf         []byte
	eof         bool
	inputClosed bool
	errs        []error
}

// FrontendConfig wires a Frontend.
type FrontendConfig struct {
	Pool     *msgpool.Pool
	Selector api.Selector
	// Input is read in chunks of the maximum payload size. It is switched to
	// non-blocking mode.
	Input  int
	Output io.Writer
	// Inline, when set, serves upstream requests on the front end goroutine;
	// the upstream channel must then have a readiness handle.
	Inline *Service
	Log    *zap.Logger
}

// NewFrontend registers the input descriptor and the readiness handles.
func NewFrontend(cfg FrontendConfig) (*Frontend, error) {
	chunk := MaxPayload(cfg.Pool.MaxMessageSize())
	if chunk == 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "echo: pool message size leaves no room for payload").
			WithContext("max_message_size", cfg.Pool.MaxMessageSize())
	}
	f := &Frontend{
		pool:   cfg.Pool,
		sel:    cfg.Selector,
		inFd:   cfg.Input,
		out:    cfg.Output,
		inline: cfg.Inline,
		log:    cfg.Log,
		// one extra byte stands for the terminator dropped from every chunk
		buf: make([]byte, chunk+1),
	}
	if f.log == nil {
		f.log = zap.NewNop()
	}
	if err := unix.SetNonblock(f.inFd, true); err != nil {
		return nil, fmt.Errorf("echo: input nonblock: %w", err)
	}

	down, err := f.pool.ReadinessHandle(api.Downstream)
	if err != nil {
		return nil, fmt.Errorf("echo: downstream: %w", err)
	}
	regs := []struct {
		fd uintptr
		cb api.FDCallback
	}{
		{uintptr(f.inFd), func(uintptr, api.FDEventType) { f.onInput() }},
		{down.Fd(), func(uintptr, api.FDEventType) { f.onDownstream() }},
	}
	if f.inline != nil {
		up, err := f.pool.ReadinessHandle(api.Upstream)
		if err != nil {
			return nil, fmt.Errorf("echo: inline mode needs upstream readiness: %w", err)
		}
		regs = append(regs, struct {
			fd uintptr
			cb api.FDCallback
		}{up.Fd(), func(uintptr, api.FDEventType) { f.onUpstream() }})
	}
	for i, r := range regs {
		if err := f.sel.Register(r.fd, api.EventRead, r.cb); err != nil {
			for _, done := range regs[:i] {
				_ = f.sel.Unregister(done.fd)
			}
			return nil, fmt.Errorf("echo: register fd %d: %w", r.fd, err)
		}
	}
	return f, nil
}

// Run dispatches events until ctx is done. Output write failures end Run.
func (f *Frontend) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		if _, err := f.sel.Poll(pollIntervalMs); err != nil {
			return err
		}
		if len(f.errs) > 0 {
			return multierr.Combine(f.errs...)
		}
	}
	return nil
}

// EOF reports whether the input reached end of file.
func (f *Frontend) EOF() bool { return f.eof }

func (f *Frontend) onInput() {
	for {
		n, err := unix.Read(f.inFd, f.buf)
		switch {
		case n > 0:
			f.send(f.buf[:n-1])
		case n == 0 && err == nil:
			f.log.Info("input EOF")
			f.eof = true
			f.dropInput()
			return
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			return
		default:
			f.log.Error("input read failed", zap.Error(err))
			f.errs = append(f.errs, err)
			f.dropInput()
			return
		}
	}
}

func (f *Frontend) dropInput() {
	f.inputClosed = true
	_ = f.sel.Unregister(uintptr(f.inFd))
}

func (f *Frontend) send(payload []byte) {
	m, err := Encode(f.pool, payload)
	if err != nil {
		f.log.Warn("request dropped", zap.ByteString("data", payload), zap.Error(err))
		return
	}
	f.log.Debug("send upstream", zap.ByteString("data", payload))
	if err := f.pool.Post(api.Upstream, m); err != nil {
		f.log.Warn("upstream post failed", zap.Error(err))
		_ = Release(f.pool, m)
	}
}

func (f *Frontend) onDownstream() {
	for {
		m, err := f.pool.TryWait(api.Downstream)
		if err != nil {
			return
		}
		payload, err := Decode(m)
		if err == nil {
			f.log.Debug("recv downstream", zap.ByteString("data", payload))
			if _, werr := fmt.Fprintf(f.out, "%s\n", payload); werr != nil {
				f.errs = append(f.errs, werr)
			}
		} else {
			f.log.Warn("bad downstream message", zap.Error(err))
		}
		_ = Release(f.pool, m)
	}
}

func (f *Frontend) onUpstream() {
	for {
		m, err := f.pool.TryWait(api.Upstream)
		if err != nil {
			return
		}
		if err := f.inline.Handle(m, 0); err != nil {
			f.log.Warn("request dropped", zap.Error(err))
		}
	}
}

// Close removes the selector registrations.
func (f *Frontend) Close() error {
	var errs []error
	if !f.inputClosed {
		errs = append(errs, f.sel.Unregister(uintptr(f.inFd)))
	}
	if h, err := f.pool.ReadinessHandle(api.Downstream); err == nil {
		errs = append(errs, f.sel.Unregister(h.Fd()))
	}
	if f.inline != nil {
		if h, err := f.pool.ReadinessHandle(api.Upstream); err == nil {
			errs = append(errs, f.sel.Unregister(h.Fd()))
		}
	}
	return multierr.Combine(errs...)
}
