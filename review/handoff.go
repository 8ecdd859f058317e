// Package review drives the review surface that opens after a buyer completes an order.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kendall-kelly/marketplace-orders/negotiation"
	"github.com/kendall-kelly/marketplace-orders/transport"
)

const (
	MinRating = 1
	MaxRating = 5
)

var (
	ErrNoPrompt      = errors.New("no review is open")
	ErrInvalidRating = fmt.Errorf("rating must be between %d and %d", MinRating, MaxRating)
	ErrNotCompleted  = errors.New("only completed orders can be reviewed")
	ErrNoSeller      = errors.New("order has no seller")
)

// Prompt is an open review of one seller for one completed order
type Prompt struct {
	OrderID    string
	SellerID   string
	SellerName string
	Order      negotiation.Order
	OpenedAt   time.Time
}

// Handoff holds at most one open Prompt. Dismissing it, by submit or skip, runs
// the onDismiss callback.
type Handoff struct {
	api       transport.ReviewsAPI
	onDismiss func(ctx context.Context)
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	current *Prompt
}

// NewHandoff creates a handoff that submits through api
func NewHandoff(api transport.ReviewsAPI, onDismiss func(ctx context.Context), logger *slog.Logger) *Handoff {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handoff{api: api, onDismiss: onDismiss, logger: logger, now: time.Now}
}

// Open starts a review of the seller of o
func (h *Handoff) Open(o negotiation.Order) (Prompt, error) {
	if o.Status != negotiation.StatusCompleted {
		return Prompt{}, ErrNotCompleted
	}
	if o.Seller.ID == "" {
		return Prompt{}, ErrNoSeller
	}

	p := Prompt{
		OrderID:    o.ID,
		SellerID:   o.Seller.ID,
		SellerName: o.Seller.Name,
		Order:      o,
		OpenedAt:   h.now(),
	}
	h.mu.Lock()
	h.current = &p
	h.mu.Unlock()
	return p, nil
}

// Current returns the open prompt
func (h *Handoff) Current() (Prompt, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return Prompt{}, false
	}
	return *h.current, true
}

// Submit sends the review and dismisses the prompt. A failed submission leaves
// the prompt open so it can be retried or skipped.
func (h *Handoff) Submit(ctx context.Context, rating int, comment string) error {
	p, ok := h.Current()
	if !ok {
		return ErrNoPrompt
	}
	if rating < MinRating || rating > MaxRating {
		return ErrInvalidRating
	}

	err := h.api.CreateReview(ctx, transport.Review{
		OrderID:  p.OrderID,
		SellerID: p.SellerID,
		Rating:   rating,
		Comment:  strings.TrimSpace(comment),
	})
	if err != nil {
		h.logger.Warn("review submission failed", slog.String("order_id", p.OrderID), slog.Any("err", err))
		return fmt.Errorf("failed to submit review: %w", err)
	}

	h.dismiss(ctx, p.OrderID)
	return nil
}

// Skip dismisses the prompt without a review
func (h *Handoff) Skip(ctx context.Context) error {
	p, ok := h.Current()
	if !ok {
		return ErrNoPrompt
	}
	h.dismiss(ctx, p.OrderID)
	return nil
}

func (h *Handoff) dismiss(ctx context.Context, orderID string) {
	h.mu.Lock()
	if h.current == nil || h.current.OrderID != orderID {
		h.mu.Unlock()
		return
	}
	h.current = nil
	h.mu.Unlock()

	if h.onDismiss != nil {
		h.onDismiss(ctx)
	}
}
