// Package session is the viewer-facing surface of the engine: the order lists,
// the open negotiation panel and the action handlers behind its controls.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/marketplace-orders/lastviewed"
	"github.com/kendall-kelly/marketplace-orders/mapper"
	"github.com/kendall-kelly/marketplace-orders/negotiation"
	"github.com/kendall-kelly/marketplace-orders/optimistic"
	"github.com/kendall-kelly/marketplace-orders/review"
	"github.com/kendall-kelly/marketplace-orders/syncer"
	"github.com/kendall-kelly/marketplace-orders/transport"
	"github.com/shopspring/decimal"
)

var (
	ErrNoOrderSelected = errors.New("no order is open")
	ErrNotAParty       = errors.New("viewer is not a party to this order")
)

// API is the transport collaborator a session needs
type API interface {
	transport.OrdersAPI
	transport.ReviewsAPI
}

// Options configures a Session
type Options struct {
	ViewerID string
	API      API
	// Markers defaults to an in-memory store
	Markers  lastviewed.Store
	Notifier optimistic.Notifier
	Sync     syncer.Config

	LedgerTTL time.Duration
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Session is one viewer's engine instance
type Session struct {
	viewerID string
	api      API
	markers  lastviewed.Store
	coll     *optimistic.Collection
	coord    *optimistic.Coordinator
	layer    *syncer.Layer
	handoff  *review.Handoff
	now      func() time.Time
	logger   *slog.Logger

	mu       sync.Mutex
	chatOpen bool
}

// New wires a session for opts.ViewerID
func New(opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Markers == nil {
		opts.Markers = lastviewed.NewMemoryStore()
	}
	if opts.LedgerTTL <= 0 {
		opts.LedgerTTL = 2 * syncer.DefaultPollInterval
	}
	if opts.Sync.Origin == "" {
		opts.Sync.Origin = uuid.NewString()
	}
	if opts.Sync.Clock == nil {
		opts.Sync.Clock = opts.Clock
	}
	if opts.Sync.Logger == nil {
		opts.Sync.Logger = opts.Logger
	}

	s := &Session{
		viewerID: opts.ViewerID,
		api:      opts.API,
		markers:  opts.Markers,
		coll:     optimistic.NewCollection(),
		now:      opts.Clock,
		logger:   opts.Logger.With(slog.String("viewer_id", opts.ViewerID)),
	}
	s.coord = optimistic.NewCoordinator(s.coll, optimistic.Options{
		Notifier:  opts.Notifier,
		Clock:     opts.Clock,
		Logger:    s.logger,
		LedgerTTL: opts.LedgerTTL,
	})
	viewer := mapper.Viewer{UserID: opts.ViewerID, Markers: opts.Markers}
	s.layer = syncer.NewLayer(opts.API, s.coord, viewer, nil, opts.Sync)
	s.handoff = review.NewHandoff(opts.API, s.layer.ReleaseReloads, s.logger)
	return s
}

// Bus exposes the engine events for observers such as a CLI or UI
func (s *Session) Bus() *syncer.Bus {
	return s.layer.Bus()
}

// Run keeps the session synchronized until ctx is cancelled
func (s *Session) Run(ctx context.Context) error {
	return s.layer.Run(ctx)
}

// Reload is the user-initiated full reload
func (s *Session) Reload(ctx context.Context) error {
	_, err := s.layer.Reload(ctx)
	return err
}

// NotifyOrdersChanged is the entry point for external "order updated" events
func (s *Session) NotifyOrdersChanged(ctx context.Context) {
	s.layer.NotifyChanged(ctx)
}

// Orders returns every held order
func (s *Session) Orders() []negotiation.Order {
	return s.coll.All()
}

// Active returns the non-terminal orders, plus the order whose review is open
func (s *Session) Active() []negotiation.Order {
	prompt, reviewing := s.handoff.Current()
	out := make([]negotiation.Order, 0)
	pinned := false
	for _, o := range s.coll.All() {
		isPinned := reviewing && o.ID == prompt.OrderID
		if isPinned {
			pinned = true
		}
		if !o.Status.IsTerminal() || isPinned {
			out = append(out, o)
		}
	}
	if reviewing && !pinned {
		out = append(out, prompt.Order)
	}
	return out
}

// Purchases returns the orders where the viewer is the buyer
func (s *Session) Purchases() []negotiation.Order {
	return s.byKind(negotiation.KindPurchase)
}

// Sales returns the orders where the viewer is the seller
func (s *Session) Sales() []negotiation.Order {
	return s.byKind(negotiation.KindSale)
}

func (s *Session) byKind(k negotiation.Kind) []negotiation.Order {
	var out []negotiation.Order
	for _, o := range s.coll.All() {
		if o.Type == k {
			out = append(out, o)
		}
	}
	return out
}

// UnreadCount is the number of orders with a counter-offer the viewer has not seen
func (s *Session) UnreadCount() int {
	n := 0
	for _, o := range s.coll.All() {
		if o.HasUnreadCounterOffer {
			n++
		}
	}
	return n
}

// SelectedOrder returns the order open in the negotiation panel
func (s *Session) SelectedOrder() (negotiation.Order, bool) {
	return s.coll.Selected()
}

func (s *Session) IsChatOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatOpen
}

// HandleOpenChat opens the negotiation panel on o and marks its counter-offer as seen
func (s *Session) HandleOpenChat(o negotiation.Order) error {
	if o.ID == "" {
		return ErrNoOrderSelected
	}
	s.coll.Select(o)

	seen := s.now().UTC()
	if held, ok := s.coll.Get(o.ID); ok && held.Counter.OfferedAt != nil && held.Counter.OfferedAt.After(seen) {
		seen = held.Counter.OfferedAt.UTC()
	}
	if err := s.markers.MarkViewed(o.ID, seen); err != nil {
		s.logger.Warn("failed to store last viewed marker", slog.String("order_id", o.ID), slog.Any("err", err))
	}
	s.coll.Annotate(o.ID, func(held *negotiation.Order) {
		held.HasUnreadCounterOffer = false
	})

	s.mu.Lock()
	s.chatOpen = true
	s.mu.Unlock()
	return nil
}

// HandleCloseChat closes the negotiation panel
func (s *Session) HandleCloseChat() {
	s.mu.Lock()
	s.chatOpen = false
	s.mu.Unlock()
	s.coll.ClearSelection()
}

// HandleAcceptOrder accepts the open order as its seller
func (s *Session) HandleAcceptOrder(ctx context.Context) (negotiation.Order, error) {
	return s.onSelected(ctx, negotiation.Accept())
}

// HandleCounterOffer proposes new terms on the open order. An omitted quantity
// means the current quantity is kept.
func (s *Session) HandleCounterOffer(ctx context.Context, price decimal.Decimal, message string, quantity decimal.NullDecimal) (negotiation.Order, error) {
	return s.onSelected(ctx, negotiation.Counter(price, quantity, message))
}

// HandleAcceptCounter accepts the pending counter-offer on the open order
func (s *Session) HandleAcceptCounter(ctx context.Context) (negotiation.Order, error) {
	return s.onSelected(ctx, negotiation.AcceptCounter())
}

// HandleRejectOrder declines the open order as its seller
func (s *Session) HandleRejectOrder(ctx context.Context) (negotiation.Order, error) {
	return s.onSelected(ctx, negotiation.Reject())
}

// HandleCancelOrder cancels orderID, or the open order when orderID is empty
func (s *Session) HandleCancelOrder(ctx context.Context, orderID, reason string) (negotiation.Order, error) {
	id, err := s.resolve(orderID)
	if err != nil {
		return negotiation.Order{}, err
	}
	return s.execute(ctx, id, negotiation.Cancel(reason))
}

// HandleCompleteOrder completes orderID, or the open order when orderID is empty.
// When the buyer completes, the review of the seller opens and the list reload
// waits until the review is dismissed.
func (s *Session) HandleCompleteOrder(ctx context.Context, orderID string) (negotiation.Order, error) {
	id, err := s.resolve(orderID)
	if err != nil {
		return negotiation.Order{}, err
	}
	o, _ := s.coll.Get(id)
	role, _ := o.RoleOf(s.viewerID)

	if role == negotiation.RoleBuyer {
		s.layer.HoldReloads()
	}
	after, err := s.execute(ctx, id, negotiation.Complete())
	if err != nil {
		if role == negotiation.RoleBuyer {
			s.layer.ReleaseReloads(ctx)
		}
		return after, err
	}

	if role == negotiation.RoleBuyer {
		if _, err := s.handoff.Open(after); err != nil {
			s.logger.Warn("could not open review", slog.String("order_id", id), slog.Any("err", err))
			s.layer.ReleaseReloads(ctx)
		}
	}
	return after, nil
}

// CurrentReview returns the open review prompt
func (s *Session) CurrentReview() (review.Prompt, bool) {
	return s.handoff.Current()
}

// SubmitReview sends the open review and runs the deferred reload
func (s *Session) SubmitReview(ctx context.Context, rating int, comment string) error {
	return s.handoff.Submit(ctx, rating, comment)
}

// SkipReview dismisses the open review and runs the deferred reload
func (s *Session) SkipReview(ctx context.Context) error {
	return s.handoff.Skip(ctx)
}

func (s *Session) resolve(orderID string) (string, error) {
	if orderID != "" {
		return orderID, nil
	}
	sel, ok := s.coll.Selected()
	if !ok {
		return "", ErrNoOrderSelected
	}
	return sel.ID, nil
}

func (s *Session) onSelected(ctx context.Context, t negotiation.Transition) (negotiation.Order, error) {
	id, err := s.resolve("")
	if err != nil {
		return negotiation.Order{}, err
	}
	return s.execute(ctx, id, t)
}

func (s *Session) execute(ctx context.Context, orderID string, t negotiation.Transition) (negotiation.Order, error) {
	o, ok := s.coll.Get(orderID)
	if !ok {
		return negotiation.Order{}, fmt.Errorf("%w: %s", optimistic.ErrOrderNotLoaded, orderID)
	}
	role, ok := o.RoleOf(s.viewerID)
	if !ok {
		return negotiation.Order{}, ErrNotAParty
	}
	return s.coord.Execute(ctx, orderID, role, t, s.remote)
}

func (s *Session) remote(ctx context.Context, action negotiation.Action, after negotiation.Order) error {
	patch, err := transport.PatchFor(action, after)
	if err != nil {
		return err
	}
	return s.api.UpdateOrder(ctx, after.ID, patch)
}
