package negotiation

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Action names a transition of the order state machine
type Action string

const (
	ActionAccept        Action = "accept"
	ActionCounter       Action = "counter"
	ActionAcceptCounter Action = "accept_counter"
	ActionReject        Action = "reject"
	ActionCancel        Action = "cancel"
	ActionComplete      Action = "complete"
	ActionArchive       Action = "archive"
)

// Transition is a pure state transition. Apply never modifies its input and
// never shares mutable state between the input and the result.
type Transition struct {
	Action Action
	apply  func(o Order, actor Role, now time.Time) (Order, error)
}

// Apply computes the order that results from actor performing the transition at now
func (t Transition) Apply(o Order, actor Role, now time.Time) (Order, error) {
	if t.apply == nil {
		return o, &TransitionError{Action: t.Action, Code: CodeNotAllowedInStatus, Status: o.Status, Message: "unknown transition"}
	}
	return t.apply(o, actor, now)
}

func stamp(now time.Time) *time.Time {
	t := now
	return &t
}

// Accept lets the seller accept an order that has not entered negotiation
func Accept() Transition {
	return Transition{Action: ActionAccept, apply: func(o Order, actor Role, now time.Time) (Order, error) {
		if actor != RoleSeller {
			return o, illegal(ErrWrongParty, ActionAccept, o.Status)
		}
		if o.Status != StatusNew && o.Status != StatusPending {
			return o, illegal(ErrNotAllowedInStatus, ActionAccept, o.Status)
		}
		o.Status = StatusAccepted
		o.AcceptedAt = stamp(now)
		o.UpdatedAt = stamp(now)
		return o, nil
	}}
}

// Counter proposes a new price per unit and, optionally, a new quantity.
// An omitted quantity keeps the order's current quantity.
func Counter(price decimal.Decimal, quantity decimal.NullDecimal, message string) Transition {
	return Transition{Action: ActionCounter, apply: func(o Order, actor Role, now time.Time) (Order, error) {
		if !actor.IsParty() {
			return o, illegal(ErrWrongParty, ActionCounter, o.Status)
		}
		switch o.Status {
		case StatusNew, StatusPending, StatusNegotiating:
		default:
			return o, illegal(ErrNotAllowedInStatus, ActionCounter, o.Status)
		}
		if o.Counter.OfferedBy == actor {
			return o, illegal(ErrOutOfTurn, ActionCounter, o.Status)
		}
		if !price.IsPositive() {
			return o, illegal(ErrInvalidPrice, ActionCounter, o.Status)
		}

		qty := quantity
		if !qty.Valid {
			qty = o.Quantity
		}
		if !qty.Valid || !qty.Decimal.IsPositive() {
			return o, illegal(ErrInvalidQuantity, ActionCounter, o.Status)
		}
		if o.AvailableQuantity.Valid && qty.Decimal.GreaterThan(o.AvailableQuantity.Decimal) {
			return o, illegal(ErrQuantityUnavailable, ActionCounter, o.Status)
		}

		if !o.OriginalQuantity.Valid {
			o.OriginalQuantity = o.Quantity
		}
		o.Counter = CounterOffer{
			PricePerUnit: decimal.NewNullDecimal(price),
			Quantity:     qty,
			TotalAmount:  decimal.NewNullDecimal(price.Mul(qty.Decimal)),
			Message:      strings.TrimSpace(message),
			OfferedAt:    stamp(now),
			OfferedBy:    actor,
		}
		o.BuyerAcceptedCounter = false
		o.HasUnreadCounterOffer = false
		o.Status = StatusNegotiating
		o.UpdatedAt = stamp(now)
		return o, nil
	}}
}

// AcceptCounter lets the party who did not make the pending counter-offer accept it
func AcceptCounter() Transition {
	return Transition{Action: ActionAcceptCounter, apply: func(o Order, actor Role, now time.Time) (Order, error) {
		if o.Status != StatusNegotiating {
			return o, illegal(ErrNotAllowedInStatus, ActionAcceptCounter, o.Status)
		}
		if o.Counter.IsEmpty() {
			return o, illegal(ErrNoCounterOffer, ActionAcceptCounter, o.Status)
		}
		if !actor.IsParty() || o.Counter.OfferedBy == actor {
			return o, illegal(ErrWrongParty, ActionAcceptCounter, o.Status)
		}

		o.PricePerUnit = o.Counter.PricePerUnit
		o.TotalAmount = o.Counter.TotalAmount
		if o.Counter.Quantity.Valid {
			o.Quantity = o.Counter.Quantity
		}
		o.BuyerAcceptedCounter = actor == RoleBuyer
		o.Status = StatusAccepted
		o.AcceptedAt = stamp(now)
		o.UpdatedAt = stamp(now)
		return o, nil
	}}
}

// Reject lets the seller decline an order that has not been accepted
func Reject() Transition {
	return Transition{Action: ActionReject, apply: func(o Order, actor Role, now time.Time) (Order, error) {
		if actor != RoleSeller {
			return o, illegal(ErrWrongParty, ActionReject, o.Status)
		}
		switch o.Status {
		case StatusNew, StatusPending, StatusNegotiating:
		default:
			return o, illegal(ErrNotAllowedInStatus, ActionReject, o.Status)
		}
		o.Status = StatusRejected
		o.UpdatedAt = stamp(now)
		return o, nil
	}}
}

// Cancel lets either party withdraw before the order is accepted
func Cancel(reason string) Transition {
	return Transition{Action: ActionCancel, apply: func(o Order, actor Role, now time.Time) (Order, error) {
		if !actor.IsParty() {
			return o, illegal(ErrWrongParty, ActionCancel, o.Status)
		}
		if o.Status == StatusAccepted || o.Status.IsTerminal() {
			return o, illegal(ErrNotAllowedInStatus, ActionCancel, o.Status)
		}
		o.Status = StatusCancelled
		o.CancelledBy = actor
		o.CancellationReason = strings.TrimSpace(reason)
		o.UpdatedAt = stamp(now)
		return o, nil
	}}
}

// Complete marks an accepted order as fulfilled
func Complete() Transition {
	return Transition{Action: ActionComplete, apply: func(o Order, actor Role, now time.Time) (Order, error) {
		if !actor.IsParty() {
			return o, illegal(ErrWrongParty, ActionComplete, o.Status)
		}
		if o.Status != StatusAccepted {
			return o, illegal(ErrNotAllowedInStatus, ActionComplete, o.Status)
		}
		o.Status = StatusCompleted
		o.CompletedDate = stamp(now)
		o.UpdatedAt = stamp(now)
		return o, nil
	}}
}

// Archive is the administrative override that retires a finished order
func Archive() Transition {
	return Transition{Action: ActionArchive, apply: func(o Order, actor Role, now time.Time) (Order, error) {
		if actor != RoleAdmin {
			return o, illegal(ErrWrongParty, ActionArchive, o.Status)
		}
		switch o.Status {
		case StatusCompleted, StatusCancelled, StatusRejected:
		default:
			return o, illegal(ErrNotAllowedInStatus, ActionArchive, o.Status)
		}
		o.Status = StatusArchived
		o.UpdatedAt = stamp(now)
		return o, nil
	}}
}
