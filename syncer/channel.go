package syncer

import (
	"errors"
	"log/slog"
	"sync"
)

var ErrChannelClosed = errors.New("channel closed")

// Channel carries signals between engine instances on the same device
type Channel interface {
	Post(s Signal) error
	Listen(fn func(Signal)) func()
	Close() error
}

// LocalHub connects the engine instances of one process. A signal posted on one
// endpoint is delivered to every other endpoint, never back to the sender.
type LocalHub struct {
	mu        sync.Mutex
	endpoints map[*Endpoint]struct{}
	last      *Signal
	logger    *slog.Logger
}

// NewLocalHub creates a hub with no endpoints
func NewLocalHub(logger *slog.Logger) *LocalHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalHub{endpoints: make(map[*Endpoint]struct{}), logger: logger}
}

// Last returns the most recent signal posted on the hub
func (h *LocalHub) Last() (Signal, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return Signal{}, false
	}
	return *h.last, true
}

// Join adds an endpoint to the hub
func (h *LocalHub) Join() *Endpoint {
	e := &Endpoint{
		hub:   h,
		queue: make(chan Signal, 64),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	h.endpoints[e] = struct{}{}
	h.mu.Unlock()

	go e.pump()
	return e
}

func (h *LocalHub) broadcast(from *Endpoint, s Signal) {
	h.mu.Lock()
	last := s
	h.last = &last
	targets := make([]*Endpoint, 0, len(h.endpoints))
	for e := range h.endpoints {
		if e != from {
			targets = append(targets, e)
		}
	}
	h.mu.Unlock()

	for _, e := range targets {
		e.enqueue(s)
	}
}

func (h *LocalHub) leave(e *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.endpoints, e)
}

// Endpoint is one engine instance's view of a LocalHub
type Endpoint struct {
	hub   *LocalHub
	queue chan Signal
	done  chan struct{}

	mu        sync.Mutex
	listeners []*func(Signal)
	closed    bool
}

// Post delivers s to the other endpoints of the hub
func (e *Endpoint) Post(s Signal) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	e.hub.broadcast(e, s)
	return nil
}

// Listen registers fn for signals from other endpoints and returns its unsubscribe func
func (e *Endpoint) Listen(fn func(Signal)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := &fn
	e.listeners = append(e.listeners, p)
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, l := range e.listeners {
			if l == p {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

// Close leaves the hub. Signals already queued are discarded.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.hub.leave(e)
	close(e.done)
	return nil
}

func (e *Endpoint) enqueue(s Signal) {
	select {
	case e.queue <- s:
	case <-e.done:
	default:
		// Dropped signals are recovered by the next poll.
		e.hub.logger.Warn("local signal dropped", slog.String("order_id", s.OrderID))
	}
}

func (e *Endpoint) pump() {
	for {
		select {
		case <-e.done:
			return
		case s := <-e.queue:
			e.deliver(s)
		}
	}
}

func (e *Endpoint) deliver(s Signal) {
	e.mu.Lock()
	listeners := make([]*func(Signal), len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.hub.logger.Error("signal listener panic recovered", slog.Any("panic", r))
				}
			}()
			(*l)(s)
		}()
	}
}
