// File: internal/concurrency/executor.go
// Package concurrency implements the worker scale authority.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scaler runs long-lived consumer loops on an ants goroutine pool bounded by
// Max. It starts Min workers and adds one on every ScaleUp signal until the
// bound is reached. Workers stop when the shared context is cancelled.

package concurrency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/momentics/hioload-msgpool/affinity"
	"github.com/momentics/hioload-msgpool/api"
)

// ErrScalerClosed is returned by Start after Shutdown.
var ErrScalerClosed = errors.New("scaler closed")

// WorkerFunc is one consumer loop. It must return once ctx is done.
type WorkerFunc func(ctx context.Context, id int)

// ScalerConfig bounds the worker count.
type ScalerConfig struct {
	Min         int
	Max         int
	CPUAffinity bool // pin each worker's OS thread to a CPU
}

// Option configures a Scaler.
type Option func(*Scaler)

// WithLogger sets the logger; the default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scaler) { s.log = l }
}

// WithWorkerHook is called with the new worker count after every change.
func WithWorkerHook(fn func(workers int)) Option {
	return func(s *Scaler) { s.hook = fn }
}

// Scaler implements api.Scaler.
type Scaler struct {
	cfg  ScalerConfig
	run  WorkerFunc
	log  *zap.Logger
	hook func(int)

	pool   *ants.Pool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex // serializes growth
	nextID int
	closed bool

	active atomic.Int32
}

var (
	_ api.Scaler           = (*Scaler)(nil)
	_ api.GracefulShutdown = (*Scaler)(nil)
)

// NewScaler validates cfg and reserves an ants pool of cfg.Max goroutines.
func NewScaler(cfg ScalerConfig, run WorkerFunc, opts ...Option) (*Scaler, error) {
	if cfg.Max <= 0 || cfg.Min < 0 || cfg.Min > cfg.Max {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "scaler: need 0 <= min <= max, max > 0").
			WithContext("min", cfg.Min).WithContext("max", cfg.Max)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: nil worker func", api.ErrInvalidArgument)
	}
	s := &Scaler{cfg: cfg, run: run, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	p, err := ants.NewPool(cfg.Max,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v interface{}) {
			s.log.Error("worker panic", zap.Any("panic", v))
		}))
	if err != nil {
		return nil, fmt.Errorf("scaler: %w", err)
	}
	s.pool = p
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Start launches the minimum number of workers.
func (s *Scaler) Start() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrScalerClosed
	}
	if added := s.Grow(s.cfg.Min); added < s.cfg.Min {
		return fmt.Errorf("scaler: started %d of %d workers", added, s.cfg.Min)
	}
	return nil
}

// HandleSignal implements api.Scaler.
func (s *Scaler) HandleSignal(sig api.Signal) {
	switch sig.Kind {
	case api.SignalScaleUp:
		if s.Grow(1) == 1 {
			s.log.Info("scaled up",
				zap.Stringer("channel", sig.Channel),
				zap.Int("depth", sig.Depth),
				zap.Int("workers", s.NumWorkers()))
		} else {
			s.log.Debug("scale up ignored, at max workers",
				zap.Stringer("channel", sig.Channel),
				zap.Int("depth", sig.Depth))
		}
	case api.SignalEmpty:
		s.log.Debug("channel drained",
			zap.Stringer("channel", sig.Channel),
			zap.Int("workers", s.NumWorkers()))
	}
}

// NumWorkers returns the number of running workers.
func (s *Scaler) NumWorkers() int { return int(s.active.Load()) }

// Max returns the worker cap.
func (s *Scaler) Max() int { return s.cfg.Max }

// Grow adds up to n workers without exceeding Max and returns how many were added.
func (s *Scaler) Grow(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for ; added < n && !s.closed; added++ {
		if int(s.active.Load()) >= s.cfg.Max {
			break
		}
		id := s.nextID
		s.wg.Add(1)
		s.active.Add(1)
		if err := s.pool.Submit(func() { s.worker(id) }); err != nil {
			s.active.Add(-1)
			s.wg.Done()
			s.log.Warn("worker submit failed", zap.Error(err))
			break
		}
		s.nextID++
	}
	if added > 0 && s.hook != nil {
		s.hook(s.NumWorkers())
	}
	return added
}

func (s *Scaler) worker(id int) {
	defer func() {
		s.active.Add(-1)
		if s.hook != nil {
			s.hook(s.NumWorkers())
		}
		s.wg.Done()
	}()
	if s.cfg.CPUAffinity {
		unlock, err := affinity.PinWorker(id)
		defer unlock()
		if err != nil {
			s.log.Warn("cpu pinning failed", zap.Int("worker", id), zap.Error(err))
		}
	}
	s.log.Debug("worker started", zap.Int("worker", id))
	s.run(s.ctx, id)
	s.log.Debug("worker stopped", zap.Int("worker", id))
}

// Shutdown cancels the workers' context and waits for them to return, or for
// ctx to expire. The ants pool is released in both cases.
func (s *Scaler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("scaler: %d workers still running: %w", s.NumWorkers(), ctx.Err())
	}
	s.pool.Release()
	return err
}
