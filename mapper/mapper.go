// Package mapper turns raw order records from the transport into canonical
// negotiation.Order values. Field spelling differences stay inside this package.
package mapper

import (
	"time"

	"github.com/kendall-kelly/marketplace-orders/negotiation"
	"github.com/shopspring/decimal"
)

// Markers looks up the local last-viewed marker for an order
type Markers interface {
	LastViewed(orderID string) (time.Time, bool)
}

// Viewer is the party the records are being mapped for
type Viewer struct {
	UserID  string
	Markers Markers
}

// Map converts one raw record into a canonical Order. It never fails: unknown or
// malformed fields are left unset.
func Map(r Record, v Viewer) negotiation.Order {
	o := negotiation.Order{
		ID:          r.str("id", "id"),
		OrderNumber: r.str("orderNumber", "order_number"),
		Buyer: negotiation.Party{
			ID:    r.str("buyerId", "buyer_id"),
			Name:  r.str("buyerName", "buyer_name"),
			Phone: r.str("buyerPhone", "buyer_phone"),
			Email: r.str("buyerEmail", "buyer_email"),
		},
		Seller: negotiation.Party{
			ID:    r.str("sellerId", "seller_id"),
			Name:  r.str("sellerName", "seller_name"),
			Phone: r.str("sellerPhone", "seller_phone"),
			Email: r.str("sellerEmail", "seller_email"),
		},
		Quantity:          r.dec("quantity", "quantity"),
		OriginalQuantity:  r.dec("originalQuantity", "original_quantity"),
		AvailableQuantity: r.dec("availableQuantity", "available_quantity"),
		Unit:              r.str("unit", "unit"),
		PricePerUnit:      r.dec("pricePerUnit", "price_per_unit"),
		TotalAmount:       r.dec("totalAmount", "total_amount"),
		Counter: negotiation.CounterOffer{
			PricePerUnit: r.dec("counterPricePerUnit", "counter_price_per_unit"),
			Quantity:     r.dec("counterQuantity", "counter_quantity"),
			TotalAmount:  r.dec("counterTotalAmount", "counter_total_amount"),
			Message:      r.str("counterOfferMessage", "counter_offer_message"),
			OfferedAt:    r.time("counterOfferedAt", "counter_offered_at"),
		},
		BuyerAcceptedCounter: r.bool("buyerAcceptedCounter", "buyer_accepted_counter"),
		CancellationReason:   r.str("cancellationReason", "cancellation_reason"),
		CreatedAt:            r.time("createdAt", "created_at"),
		UpdatedAt:            r.time("updatedAt", "updated_at"),
		AcceptedAt:           r.time("acceptedAt", "accepted_at"),
		CompletedDate:        r.time("completedDate", "completed_date"),
		IsRequest:            r.bool("isRequest", "is_request"),
	}

	if role, ok := negotiation.ParseRole(r.str("counterOfferedBy", "counter_offered_by")); ok {
		o.Counter.OfferedBy = role
	}
	if role, ok := negotiation.ParseRole(r.str("cancelledBy", "cancelled_by")); ok {
		o.CancelledBy = role
	}
	if st, ok := negotiation.ParseStatus(r.str("status", "status")); ok {
		o.Status = st
	}

	o.Type = kindFor(o, v.UserID, r.str("type", "type"))

	var marker *time.Time
	if v.Markers != nil && o.ID != "" {
		if at, ok := v.Markers.LastViewed(o.ID); ok {
			marker = &at
		}
	}
	o.HasUnreadCounterOffer = UnreadCounterOffer(o, v.UserID, marker)
	return o
}

// MapAll maps every record, keeping only those that carry an id
func MapAll(records []Record, v Viewer) []negotiation.Order {
	out := make([]negotiation.Order, 0, len(records))
	for _, r := range records {
		o := Map(r, v)
		if o.ID == "" {
			continue
		}
		out = append(out, o)
	}
	return out
}

// UnreadCounterOffer reports whether the viewer has a counterpart counter-offer newer
// than their last-viewed marker. A nil marker means the order was never opened.
func UnreadCounterOffer(o negotiation.Order, viewerID string, marker *time.Time) bool {
	if o.Counter.OfferedAt == nil {
		return false
	}
	role, ok := o.RoleOf(viewerID)
	if !ok || o.Counter.OfferedBy != role.Counterpart() {
		return false
	}
	return marker == nil || o.Counter.OfferedAt.After(*marker)
}

func kindFor(o negotiation.Order, viewerID, raw string) negotiation.Kind {
	if role, ok := o.RoleOf(viewerID); ok {
		if role == negotiation.RoleBuyer {
			return negotiation.KindPurchase
		}
		return negotiation.KindSale
	}
	switch negotiation.Kind(raw) {
	case negotiation.KindPurchase, negotiation.KindSale:
		return negotiation.Kind(raw)
	}
	return ""
}

// ToRecord renders a canonical Order back into a camelCase Record.
// Map(ToRecord(o), v) == o for any o produced by Map with the same viewer.
func ToRecord(o negotiation.Order) Record {
	r := Record{
		"id":                   o.ID,
		"buyerId":              o.Buyer.ID,
		"sellerId":             o.Seller.ID,
		"status":               string(o.Status),
		"buyerAcceptedCounter": o.BuyerAcceptedCounter,
		"isRequest":            o.IsRequest,
	}
	putString(r, "orderNumber", o.OrderNumber)
	putString(r, "buyerName", o.Buyer.Name)
	putString(r, "buyerPhone", o.Buyer.Phone)
	putString(r, "buyerEmail", o.Buyer.Email)
	putString(r, "sellerName", o.Seller.Name)
	putString(r, "sellerPhone", o.Seller.Phone)
	putString(r, "sellerEmail", o.Seller.Email)
	putString(r, "unit", o.Unit)
	putString(r, "counterOfferMessage", o.Counter.Message)
	putString(r, "counterOfferedBy", string(o.Counter.OfferedBy))
	putString(r, "cancelledBy", string(o.CancelledBy))
	putString(r, "cancellationReason", o.CancellationReason)
	putString(r, "type", string(o.Type))

	putDecimal(r, "quantity", o.Quantity)
	putDecimal(r, "originalQuantity", o.OriginalQuantity)
	putDecimal(r, "availableQuantity", o.AvailableQuantity)
	putDecimal(r, "pricePerUnit", o.PricePerUnit)
	putDecimal(r, "totalAmount", o.TotalAmount)
	putDecimal(r, "counterPricePerUnit", o.Counter.PricePerUnit)
	putDecimal(r, "counterQuantity", o.Counter.Quantity)
	putDecimal(r, "counterTotalAmount", o.Counter.TotalAmount)

	putTime(r, "counterOfferedAt", o.Counter.OfferedAt)
	putTime(r, "createdAt", o.CreatedAt)
	putTime(r, "updatedAt", o.UpdatedAt)
	putTime(r, "acceptedAt", o.AcceptedAt)
	putTime(r, "completedDate", o.CompletedDate)
	return r
}

func putString(r Record, key, v string) {
	if v != "" {
		r[key] = v
	}
}

func putDecimal(r Record, key string, v decimal.NullDecimal) {
	if v.Valid {
		r[key] = v.Decimal.String()
	}
}

func putTime(r Record, key string, v *time.Time) {
	if v != nil {
		r[key] = v.UTC().Format(time.RFC3339Nano)
	}
}
