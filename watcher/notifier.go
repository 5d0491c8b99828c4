// File: watcher/notifier.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Notifier delivers watcher signals to handlers on its own goroutine.
// Publish never blocks: when the inbox is full the signal is dropped and counted.
// Handlers are kept in a copy-on-write slice so registration does not stall delivery.

package watcher

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-msgpool/api"
)

// DefaultInboxSize is used when NewNotifier gets a non-positive size.
const DefaultInboxSize = 256

// Handler receives signals on the notifier goroutine.
type Handler interface {
	HandleSignal(sig api.Signal)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(sig api.Signal)

// HandleSignal calls f(sig).
func (f HandlerFunc) HandleSignal(sig api.Signal) { f(sig) }

// Notifier is a fire-and-forget signal dispatcher.
type Notifier struct {
	handlers   atomic.Value // []Handler
	handlersMu sync.Mutex   // serializes writers of handlers
	inbox      chan api.Signal
	quitCh     chan struct{}
	doneCh     chan struct{}
	running    atomic.Bool
	stopOnce   sync.Once

	published atomic.Int64
	dropped   atomic.Int64
}

// NewNotifier creates a notifier with the given inbox capacity.
func NewNotifier(inboxSize int) *Notifier {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	n := &Notifier{
		inbox:  make(chan api.Signal, inboxSize),
		quitCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	n.handlers.Store([]Handler{})
	return n
}

// Subscribe adds h to the delivery list.
func (n *Notifier) Subscribe(h Handler) {
	n.handlersMu.Lock()
	defer n.handlersMu.Unlock()
	old := n.handlers.Load().([]Handler)
	hs := make([]Handler, len(old)+1)
	copy(hs, old)
	hs[len(old)] = h
	n.handlers.Store(hs)
}

// Unsubscribe removes h, if present.
func (n *Notifier) Unsubscribe(h Handler) {
	n.handlersMu.Lock()
	defer n.handlersMu.Unlock()
	old := n.handlers.Load().([]Handler)
	hs := make([]Handler, 0, len(old))
	for _, x := range old {
		if x != h {
			hs = append(hs, x)
		}
	}
	n.handlers.Store(hs)
}

// Publish enqueues sig without blocking. Returns false if it was dropped.
func (n *Notifier) Publish(sig api.Signal) bool {
	select {
	case n.inbox <- sig:
		n.published.Add(1)
		return true
	default:
		n.dropped.Add(1)
		return false
	}
}

// Start runs the dispatch loop on a new goroutine.
func (n *Notifier) Start() {
	if n.running.CompareAndSwap(false, true) {
		go n.run()
	}
}

func (n *Notifier) run() {
	defer close(n.doneCh)
	for {
		select {
		case <-n.quitCh:
			// flush what was published before Stop
			for {
				select {
				case sig := <-n.inbox:
					n.dispatch(sig)
				default:
					return
				}
			}
		case sig := <-n.inbox:
			n.dispatch(sig)
		}
	}
}

func (n *Notifier) dispatch(sig api.Signal) {
	for _, h := range n.handlers.Load().([]Handler) {
		func() {
			// a faulty handler must not stop delivery to the others
			defer func() { _ = recover() }()
			h.HandleSignal(sig)
		}()
	}
}

// Stop ends the dispatch loop after flushing pending signals.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() { close(n.quitCh) })
	if n.running.Load() {
		<-n.doneCh
	}
}

// Published returns the number of accepted signals.
func (n *Notifier) Published() int64 { return n.published.Load() }

// Dropped returns the number of signals lost to a full inbox.
func (n *Notifier) Dropped() int64 { return n.dropped.Load() }
