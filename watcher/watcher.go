// File: watcher/watcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Depth watcher: an adaptive high-water mark on one channel. Crossing the
// upper watermark emits ScaleUp and raises the mark by a fixed increment, so
// sustained growth produces a signal per step instead of one per post.
// Draining to the lower watermark emits Empty and restores the initial mark.

package watcher

import (
	"sync"

	"github.com/momentics/hioload-msgpool/api"
	"github.com/momentics/hioload-msgpool/channel"
)

// State of the watcher state machine.
type State int

const (
	Below State = iota
	Above
)

func (s State) String() string {
	if s == Above {
		return "above"
	}
	return "below"
}

// Policy holds the watermark configuration.
type Policy struct {
	Low       int // Empty fires when depth drops to Low
	High      int // initial upper watermark
	Increment int // added to the upper watermark after every ScaleUp
	Max       int // cap for the upper watermark; 0 = unbounded
}

// Validate checks the watermark ordering.
func (p Policy) Validate() error {
	switch {
	case p.Low < 0:
		return api.NewError(api.ErrCodeInvalidArgument, "watch: low watermark must not be negative").
			WithContext("low", p.Low)
	case p.High < p.Low:
		return api.NewError(api.ErrCodeInvalidArgument, "watch: high watermark below low watermark").
			WithContext("low", p.Low).WithContext("high", p.High)
	case p.Increment < 0:
		return api.NewError(api.ErrCodeInvalidArgument, "watch: increment must not be negative").
			WithContext("increment", p.Increment)
	case p.Max != 0 && p.Max < p.High:
		return api.NewError(api.ErrCodeInvalidArgument, "watch: max watermark below high watermark").
			WithContext("high", p.High).WithContext("max", p.Max)
	}
	return nil
}

// Sink receives emitted signals. It must not block.
type Sink interface {
	Publish(sig api.Signal) bool
}

// Watcher implements channel.Observer.
type Watcher struct {
	id   api.ChannelID
	sink Sink

	mu        sync.Mutex
	policy    Policy
	upper     int
	state     State
	saturated bool // fired at Max; quiet until the next reset

	scaleUps int64
	empties  int64
}

// New creates a watcher for channel id emitting into sink.
func New(id api.ChannelID, p Policy, sink Sink) (*Watcher, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Watcher{id: id, sink: sink, policy: p, upper: p.High}, nil
}

var _ channel.Observer = (*Watcher)(nil)

// Observe implements channel.Observer. It runs under the channel lock and
// only touches the watcher's own state and the non-blocking sink.
func (w *Watcher) Observe(op channel.Op, depth int) {
	w.mu.Lock()
	var sig api.Signal
	fire := false
	switch op {
	case channel.OpPost:
		if depth > w.upper && !w.saturated {
			w.state = Above
			w.scaleUps++
			sig, fire = api.Signal{Channel: w.id, Kind: api.SignalScaleUp, Depth: depth}, true
			next := w.upper + w.policy.Increment
			if w.policy.Max > 0 && next > w.policy.Max {
				next = w.policy.Max
			}
			if next <= w.upper {
				w.saturated = true
			}
			w.upper = next
		}
	case channel.OpDequeue:
		if depth <= w.policy.Low && w.state == Above {
			w.state = Below
			w.empties++
			w.upper = w.policy.High
			w.saturated = false
			sig, fire = api.Signal{Channel: w.id, Kind: api.SignalEmpty, Depth: depth}, true
		}
	}
	w.mu.Unlock()
	if fire && w.sink != nil {
		w.sink.Publish(sig)
	}
}

// SetPolicy replaces the watermarks. The upper watermark is reset to the new
// High when the watcher is Below, otherwise it keeps its raised value clamped
// to the new Max.
func (w *Watcher) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.policy = p
	if w.state == Below || w.upper < p.High {
		w.upper = p.High
	}
	if p.Max > 0 && w.upper > p.Max {
		w.upper = p.Max
	}
	w.saturated = false
	return nil
}

// Channel returns the watched channel id.
func (w *Watcher) Channel() api.ChannelID { return w.id }

// Policy returns the active policy.
func (w *Watcher) Policy() Policy {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.policy
}

// State returns the current state and upper watermark.
func (w *Watcher) State() (State, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, w.upper
}

// Counts returns how many ScaleUp and Empty signals were emitted.
func (w *Watcher) Counts() (scaleUps, empties int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scaleUps, w.empties
}
