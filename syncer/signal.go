// Package syncer keeps the local order collection in step with the order
// service: periodic reloads, targeted refetches on change signals and an
// optional push feed.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/marketplace-orders/negotiation"
)

// Signal announces that one order changed
type Signal struct {
	ID        string             `json:"id"`
	OrderID   string             `json:"orderId"`
	Action    negotiation.Action `json:"action"`
	Timestamp time.Time          `json:"timestamp"`
	Origin    string             `json:"origin,omitempty"`
}

// NewSignal creates a signal for orderID stamped with now
func NewSignal(orderID string, action negotiation.Action, origin string, now time.Time) Signal {
	return Signal{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Action:    action,
		Timestamp: now.UTC(),
		Origin:    origin,
	}
}

type (
	SignalHandler   func(ctx context.Context, s Signal)
	ChangedHandler  func(ctx context.Context)
	MergedHandler   func(ctx context.Context, o negotiation.Order)
	ReloadedHandler func(ctx context.Context, orders []negotiation.Order)
)

type subscription[H any] struct {
	id      int
	handler H
}

type topic[H any] struct {
	subs []subscription[H]
}

func (t *topic[H]) add(id int, h H) {
	t.subs = append(t.subs, subscription[H]{id: id, handler: h})
}

func (t *topic[H]) remove(id int) {
	for i, s := range t.subs {
		if s.id == id {
			t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
			return
		}
	}
}

func (t *topic[H]) handlers() []H {
	out := make([]H, len(t.subs))
	for i, s := range t.subs {
		out[i] = s.handler
	}
	return out
}

// Bus is the in-process event bus between the engine components. Handlers run
// synchronously in subscription order; a panicking handler is logged and skipped.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	signal   topic[SignalHandler]
	changed  topic[ChangedHandler]
	merged   topic[MergedHandler]
	reloaded topic[ReloadedHandler]
	logger   *slog.Logger
}

// NewBus creates an empty bus
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

func subscribe[H any](b *Bus, t *topic[H], h H) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	t.add(id, h)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			t.remove(id)
		})
	}
}

func snapshot[H any](b *Bus, t *topic[H]) []H {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return t.handlers()
}

// OnSignal registers h for targeted change signals
func (b *Bus) OnSignal(h SignalHandler) func() { return subscribe(b, &b.signal, h) }

// OnChanged registers h for "orders changed, reload everything" notifications
func (b *Bus) OnChanged(h ChangedHandler) func() { return subscribe(b, &b.changed, h) }

// OnMerged registers h for orders written by a targeted refetch
func (b *Bus) OnMerged(h MergedHandler) func() { return subscribe(b, &b.merged, h) }

// OnReloaded registers h for completed full reloads
func (b *Bus) OnReloaded(h ReloadedHandler) func() { return subscribe(b, &b.reloaded, h) }

func (b *Bus) PublishSignal(ctx context.Context, s Signal) {
	for _, h := range snapshot(b, &b.signal) {
		b.run("signal", func() { h(ctx, s) })
	}
}

func (b *Bus) PublishChanged(ctx context.Context) {
	for _, h := range snapshot(b, &b.changed) {
		b.run("changed", func() { h(ctx) })
	}
}

func (b *Bus) PublishMerged(ctx context.Context, o negotiation.Order) {
	for _, h := range snapshot(b, &b.merged) {
		b.run("merged", func() { h(ctx, o) })
	}
}

func (b *Bus) PublishReloaded(ctx context.Context, orders []negotiation.Order) {
	for _, h := range snapshot(b, &b.reloaded) {
		b.run("reloaded", func() { h(ctx, orders) })
	}
}

func (b *Bus) run(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus handler panic recovered", slog.String("event", event), slog.Any("panic", r))
		}
	}()
	fn()
}
