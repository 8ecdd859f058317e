package negotiation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order
type Status string

const (
	StatusNew         Status = "new"
	StatusPending     Status = "pending"
	StatusNegotiating Status = "negotiating"
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
	StatusArchived    Status = "archived"
)

var statuses = []Status{
	StatusNew, StatusPending, StatusNegotiating, StatusAccepted,
	StatusRejected, StatusCancelled, StatusCompleted, StatusArchived,
}

// ParseStatus returns the Status named by s, or false if s is not a known status
func ParseStatus(s string) (Status, bool) {
	for _, st := range statuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsTerminal reports whether no buyer/seller transition can leave the status
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// Role is the side an actor plays on an order
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	// RoleAdmin only appears as the actor of administrative overrides.
	RoleAdmin Role = "admin"
)

// ParseRole returns the party Role named by s. Only buyer and seller are parties.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleBuyer, RoleSeller:
		return Role(s), true
	}
	return "", false
}

// IsParty reports whether r is one of the two negotiating sides
func (r Role) IsParty() bool {
	return r == RoleBuyer || r == RoleSeller
}

// Counterpart returns the opposite party, or "" for non-party roles
func (r Role) Counterpart() Role {
	switch r {
	case RoleBuyer:
		return RoleSeller
	case RoleSeller:
		return RoleBuyer
	}
	return ""
}

// Kind classifies an order relative to the viewer, used to split purchase and sale tabs
type Kind string

const (
	KindPurchase Kind = "purchase"
	KindSale     Kind = "sale"
)

// Party is the denormalized display snapshot of one side of an order
type Party struct {
	ID    string
	Name  string
	Phone string
	Email string
}

// CounterOffer is the single active counter-offer slot of an order.
// The slot is empty when OfferedBy is "".
type CounterOffer struct {
	PricePerUnit decimal.NullDecimal
	Quantity     decimal.NullDecimal
	TotalAmount  decimal.NullDecimal
	Message      string
	OfferedAt    *time.Time
	OfferedBy    Role
}

// IsEmpty reports whether no counter-offer has been made
func (c CounterOffer) IsEmpty() bool {
	return c.OfferedBy == ""
}

// Order is the canonical in-memory shape of a marketplace order.
// Nullable numbers use decimal.NullDecimal so that zero stays distinct from "not provided".
type Order struct {
	ID          string
	OrderNumber string

	Buyer  Party
	Seller Party

	Quantity          decimal.NullDecimal
	OriginalQuantity  decimal.NullDecimal
	AvailableQuantity decimal.NullDecimal
	Unit              string
	PricePerUnit      decimal.NullDecimal
	TotalAmount       decimal.NullDecimal

	Counter              CounterOffer
	BuyerAcceptedCounter bool

	Status             Status
	CancelledBy        Role
	CancellationReason string

	CreatedAt     *time.Time
	UpdatedAt     *time.Time
	AcceptedAt    *time.Time
	CompletedDate *time.Time

	IsRequest bool
	Type      Kind

	// HasUnreadCounterOffer is derived on every mapping and never persisted.
	HasUnreadCounterOffer bool
}

// RoleOf returns the role userID plays on the order
func (o Order) RoleOf(userID string) (Role, bool) {
	switch {
	case userID == "":
		return "", false
	case userID == o.Buyer.ID:
		return RoleBuyer, true
	case userID == o.Seller.ID:
		return RoleSeller, true
	}
	return "", false
}

// PartyID returns the user id behind role r
func (o Order) PartyID(r Role) string {
	switch r {
	case RoleBuyer:
		return o.Buyer.ID
	case RoleSeller:
		return o.Seller.ID
	}
	return ""
}

// CanCounter reports whether actor currently owns the counter-offer turn.
// Before any counter both parties may open; afterwards the turn alternates.
func (o Order) CanCounter(actor Role) bool {
	if !actor.IsParty() {
		return false
	}
	switch o.Status {
	case StatusNew, StatusPending, StatusNegotiating:
	default:
		return false
	}
	return o.Counter.OfferedBy != actor
}

// CanAcceptCounter reports whether actor may accept the pending counter-offer
func (o Order) CanAcceptCounter(actor Role) bool {
	return o.Status == StatusNegotiating &&
		!o.Counter.IsEmpty() &&
		actor.IsParty() &&
		o.Counter.OfferedBy != actor
}
