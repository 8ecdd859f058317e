// Package transport is the engine's view of the order service REST API.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/kendall-kelly/marketplace-orders/mapper"
	"github.com/kendall-kelly/marketplace-orders/negotiation"
	"github.com/shopspring/decimal"
)

// Scope selects which orders GetAll returns
type Scope string

const (
	ScopeBuyer  Scope = "buyer"
	ScopeSeller Scope = "seller"
	ScopeAll    Scope = "all"
)

// OrdersAPI is the order half of the transport collaborator
type OrdersAPI interface {
	GetAll(ctx context.Context, scope Scope) ([]mapper.Record, error)
	GetOrderByID(ctx context.Context, id string) (mapper.Record, error)
	UpdateOrder(ctx context.Context, id string, patch Patch) error
}

// ReviewsAPI is the review half of the transport collaborator
type ReviewsAPI interface {
	CreateReview(ctx context.Context, review Review) error
}

// Review is the body of a review submission
type Review struct {
	OrderID  string `json:"order_id"`
	SellerID string `json:"seller_id"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment,omitempty"`
}

// Patch is the body of PATCH /orders/:id. Exactly one of the shapes built by the
// constructors below is sent per call.
type Patch struct {
	Status             string           `json:"status,omitempty"`
	CancelledBy        string           `json:"cancelled_by,omitempty"`
	CancellationReason string           `json:"cancellation_reason,omitempty"`
	CounterPrice       *decimal.Decimal `json:"counter_price,omitempty"`
	CounterQuantity    *decimal.Decimal `json:"counter_quantity,omitempty"`
	CounterMessage     string           `json:"counter_message,omitempty"`
	AcceptCounter      bool             `json:"accept_counter,omitempty"`
}

// StatusPatch moves the order to status
func StatusPatch(status negotiation.Status) Patch {
	return Patch{Status: string(status)}
}

// CancelPatch cancels the order on behalf of by
func CancelPatch(by negotiation.Role, reason string) Patch {
	return Patch{
		Status:             string(negotiation.StatusCancelled),
		CancelledBy:        string(by),
		CancellationReason: reason,
	}
}

// CounterPatch submits a counter-offer
func CounterPatch(price decimal.Decimal, quantity decimal.NullDecimal, message string) Patch {
	p := Patch{CounterPrice: &price, CounterMessage: message}
	if quantity.Valid {
		q := quantity.Decimal
		p.CounterQuantity = &q
	}
	return p
}

// AcceptCounterPatch accepts the pending counter-offer
func AcceptCounterPatch() Patch {
	return Patch{AcceptCounter: true, Status: string(negotiation.StatusAccepted)}
}

// ErrUnsupportedAction is returned by PatchFor for actions the REST API does not expose
var ErrUnsupportedAction = errors.New("action has no patch representation")

// PatchFor builds the patch that asks the server to perform action, given the
// locally computed result of that action.
func PatchFor(action negotiation.Action, after negotiation.Order) (Patch, error) {
	switch action {
	case negotiation.ActionAccept:
		return StatusPatch(negotiation.StatusAccepted), nil
	case negotiation.ActionReject:
		return StatusPatch(negotiation.StatusRejected), nil
	case negotiation.ActionComplete:
		return StatusPatch(negotiation.StatusCompleted), nil
	case negotiation.ActionCancel:
		return CancelPatch(after.CancelledBy, after.CancellationReason), nil
	case negotiation.ActionCounter:
		return CounterPatch(after.Counter.PricePerUnit.Decimal, after.Counter.Quantity, after.Counter.Message), nil
	case negotiation.ActionAcceptCounter:
		return AcceptCounterPatch(), nil
	}
	return Patch{}, fmt.Errorf("%w: %s", ErrUnsupportedAction, action)
}
