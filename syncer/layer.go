package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kendall-kelly/marketplace-orders/mapper"
	"github.com/kendall-kelly/marketplace-orders/negotiation"
	"github.com/kendall-kelly/marketplace-orders/optimistic"
	"github.com/kendall-kelly/marketplace-orders/transport"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultListTimeout  = 15 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// Config configures a Layer. Zero durations take the defaults above.
type Config struct {
	Scope        transport.Scope
	PollInterval time.Duration
	ListTimeout  time.Duration
	FetchTimeout time.Duration

	// Channel is the same-device signal channel; nil disables it
	Channel Channel
	// FeedURL enables the push feed when set
	FeedURL    string
	FeedHeader http.Header

	Origin string
	Clock  func() time.Time
	Logger *slog.Logger
}

// Layer reconciles the coordinator's collection with the order service
type Layer struct {
	api    transport.OrdersAPI
	coord  *optimistic.Coordinator
	viewer mapper.Viewer
	bus    *Bus
	cfg    Config
	feed   *FeedWorker
	logger *slog.Logger

	holdMu  sync.Mutex
	holding bool
	pending bool
}

// NewLayer creates a layer and registers it as the coordinator's signaler
func NewLayer(api transport.OrdersAPI, coord *optimistic.Coordinator, viewer mapper.Viewer, bus *Bus, cfg Config) *Layer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ListTimeout <= 0 {
		cfg.ListTimeout = DefaultListTimeout
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if bus == nil {
		bus = NewBus(cfg.Logger)
	}

	l := &Layer{
		api:    api,
		coord:  coord,
		viewer: viewer,
		bus:    bus,
		cfg:    cfg,
		logger: cfg.Logger,
	}
	if cfg.FeedURL != "" {
		l.feed = NewFeedWorker(cfg.FeedURL, cfg.FeedHeader, bus.PublishSignal, cfg.Logger)
	}

	bus.OnSignal(func(ctx context.Context, s Signal) {
		_ = l.Refetch(ctx, s.OrderID)
	})
	bus.OnChanged(func(ctx context.Context) {
		l.requestReload(ctx)
	})
	coord.SetSignaler(l)
	return l
}

// Bus returns the event bus the layer publishes on
func (l *Layer) Bus() *Bus {
	return l.bus
}

// Reload fetches the full order list and installs it. It is the user-initiated
// reload: failures are returned, and the last known list is kept.
func (l *Layer) Reload(ctx context.Context) ([]negotiation.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.ListTimeout)
	defer cancel()

	stamp := l.coord.Collection().BeginFetch()
	records, err := l.api.GetAll(ctx, l.cfg.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}

	orders := l.coord.ReconcileAll(mapper.MapAll(records, l.viewer), stamp)
	l.bus.PublishReloaded(ctx, orders)
	return orders, nil
}

func (l *Layer) silentReload(ctx context.Context) {
	if _, err := l.Reload(ctx); err != nil {
		l.logger.Warn("order reload failed, keeping last known orders", slog.Any("err", err))
	}
}

// Refetch fetches one order and merges it in place. Failures keep the held
// version; the error is logged and returned.
func (l *Layer) Refetch(ctx context.Context, orderID string) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.FetchTimeout)
	defer cancel()

	stamp := l.coord.Collection().BeginFetch()
	record, err := l.api.GetOrderByID(ctx, orderID)
	if err != nil {
		l.logger.Warn("order refetch failed", slog.String("order_id", orderID), slog.Any("err", err))
		return fmt.Errorf("failed to fetch order %s: %w", orderID, err)
	}

	o := mapper.Map(record, l.viewer)
	if o.ID == "" {
		return fmt.Errorf("order %s: response carried no id", orderID)
	}
	if l.coord.Reconcile(o, stamp) {
		if merged, ok := l.coord.Collection().Get(o.ID); ok {
			l.bus.PublishMerged(ctx, merged)
		}
	}
	return nil
}

// OrderMutated is called by the coordinator after the server accepted a change.
// It posts the targeted signal, then raises "orders changed" for a full reload.
func (l *Layer) OrderMutated(ctx context.Context, orderID string, action negotiation.Action) {
	s := NewSignal(orderID, action, l.cfg.Origin, l.cfg.Clock())
	if l.cfg.Channel != nil {
		if err := l.cfg.Channel.Post(s); err != nil && !errors.Is(err, ErrChannelClosed) {
			l.logger.Warn("failed to post order signal", slog.String("order_id", orderID), slog.Any("err", err))
		}
	}
	l.bus.PublishSignal(ctx, s)
	l.bus.PublishChanged(ctx)
}

// NotifyChanged is the external "order updated" subscription entry point: it
// triggers a full reload.
func (l *Layer) NotifyChanged(ctx context.Context) {
	l.bus.PublishChanged(ctx)
}

// HoldReloads defers change-triggered full reloads until ReleaseReloads
func (l *Layer) HoldReloads() {
	l.holdMu.Lock()
	defer l.holdMu.Unlock()
	l.holding = true
}

// ReleaseReloads ends a hold and runs one reload if any was requested meanwhile
func (l *Layer) ReleaseReloads(ctx context.Context) {
	l.holdMu.Lock()
	run := l.pending
	l.holding = false
	l.pending = false
	l.holdMu.Unlock()

	if run {
		l.silentReload(ctx)
	}
}

func (l *Layer) requestReload(ctx context.Context) {
	l.holdMu.Lock()
	if l.holding {
		l.pending = true
		l.holdMu.Unlock()
		return
	}
	l.holdMu.Unlock()
	l.silentReload(ctx)
}

// Run loads the list once, then polls, listens on the same-device channel and
// follows the push feed until ctx is cancelled.
func (l *Layer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if l.cfg.Channel != nil {
		unlisten := l.cfg.Channel.Listen(func(s Signal) {
			if s.Origin != "" && s.Origin == l.cfg.Origin {
				return
			}
			_ = l.Refetch(ctx, s.OrderID)
		})
		defer unlisten()
	}

	g.Go(func() error {
		l.poll(ctx)
		return nil
	})
	if l.feed != nil {
		g.Go(func() error {
			return l.feed.Run(ctx)
		})
	}
	return g.Wait()
}

func (l *Layer) poll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("order polling panic recovered", slog.Any("panic", r))
		}
	}()

	l.silentReload(ctx)

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("order polling stopped")
			return
		case <-ticker.C:
			l.silentReload(ctx)
		}
	}
}
