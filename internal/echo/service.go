// File: internal/echo/service.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package echo

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-msgpool/api"
	"github.com/momentics/hioload-msgpool/msgpool"
	"github.com/momentics/hioload-msgpool/pool"
)

// Service turns upstream requests into uppercased downstream replies.
type Service struct {
	pool *msgpool.Pool
	log  *zap.Logger

	mu         sync.Mutex
	rnd        *rand.Rand
	serviceMax time.Duration
}

// NewService creates the worker step. serviceMax > 0 adds a random delay
// below it to every request, simulating work.
func NewService(p *msgpool.Pool, serviceMax time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		pool:       p,
		log:        log,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
		serviceMax: serviceMax,
	}
}

// SetServiceMax changes the simulated service time bound.
func (s *Service) SetServiceMax(d time.Duration) {
	s.mu.Lock()
	s.serviceMax = d
	s.mu.Unlock()
}

func (s *Service) delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serviceMax <= 0 {
		return 0
	}
	return time.Duration(s.rnd.Int63n(int64(s.serviceMax)))
}

// Handle consumes one upstream message. The input is always freed; on
// success the reply is owned by the downstream channel.
func (s *Service) Handle(in *pool.Message, worker int) error {
	payload, err := Decode(in)
	if err != nil {
		_ = Release(s.pool, in)
		return err
	}
	s.log.Debug("recv upstream", zap.Int("worker", worker), zap.ByteString("data", payload))

	out, err := Encode(s.pool, bytes.ToUpper(payload))
	if err != nil {
		_ = Release(s.pool, in)
		return err
	}
	if d := s.delay(); d > 0 {
		time.Sleep(d)
	}
	if err := Release(s.pool, in); err != nil {
		_ = Release(s.pool, out)
		return err
	}
	if err := s.pool.Post(api.Downstream, out); err != nil {
		_ = Release(s.pool, out)
		return err
	}
	return nil
}

// Run is a blocking worker loop over the upstream channel. It returns when
// ctx is done or the pool is closed.
func (s *Service) Run(ctx context.Context, id int) {
	for {
		m, err := s.pool.Wait(ctx, api.Upstream)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, api.ErrPoolClosed) {
				return
			}
			s.log.Warn("upstream wait failed", zap.Int("worker", id), zap.Error(err))
			continue
		}
		if err := s.Handle(m, id); err != nil {
			s.log.Warn("request dropped", zap.Int("worker", id), zap.Error(err))
		}
	}
}
