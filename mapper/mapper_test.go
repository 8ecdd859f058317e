package mapper

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kendall-kelly/marketplace-orders/negotiation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarkers map[string]time.Time

func (f fakeMarkers) LastViewed(orderID string) (time.Time, bool) {
	t, ok := f[orderID]
	return t, ok
}

func decodeRecord(t *testing.T, raw string) Record {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var r Record
	require.NoError(t, dec.Decode(&r))
	return r
}

const snakeRecord = `{
	"id": "01J0ORDER",
	"order_number": "ORD-1042",
	"buyer_id": 7,
	"buyer_name": "Dana Buyer",
	"seller_id": "9",
	"seller_email": "seller@example.com",
	"quantity": "10",
	"unit": "kg",
	"price_per_unit": 100,
	"total_amount": "1000.00",
	"counter_price_per_unit": "90",
	"counter_quantity": 8,
	"counter_total_amount": 720,
	"counter_offer_message": "last price",
	"counter_offered_at": "2026-03-14T10:00:00Z",
	"counter_offered_by": "seller",
	"buyer_accepted_counter": false,
	"status": "negotiating",
	"created_at": "2026-03-13 08:00:00",
	"updated_at": "not a date",
	"is_request": "true"
}`

func TestMapSnakeCaseRecord(t *testing.T) {
	o := Map(decodeRecord(t, snakeRecord), Viewer{UserID: "7"})

	assert.Equal(t, "01J0ORDER", o.ID)
	assert.Equal(t, "ORD-1042", o.OrderNumber)
	assert.Equal(t, "7", o.Buyer.ID, "numeric ids become strings")
	assert.Equal(t, "Dana Buyer", o.Buyer.Name)
	assert.Equal(t, "seller@example.com", o.Seller.Email)
	assert.Equal(t, negotiation.StatusNegotiating, o.Status)
	assert.Equal(t, negotiation.RoleSeller, o.Counter.OfferedBy)
	assert.Equal(t, "1000", o.TotalAmount.Decimal.String())
	assert.Equal(t, "720", o.Counter.TotalAmount.Decimal.String())
	assert.True(t, o.IsRequest)
	assert.Equal(t, negotiation.KindPurchase, o.Type)

	require.NotNil(t, o.CreatedAt)
	assert.Equal(t, time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC), *o.CreatedAt)
	assert.Nil(t, o.UpdatedAt, "unparseable dates map to nil")
	assert.Nil(t, o.AcceptedAt)

	assert.True(t, o.HasUnreadCounterOffer, "counterpart counter with no marker is unread")
}

func TestMapPrefersCamelCaseWithoutMerging(t *testing.T) {
	r := Record{
		"id":             "A",
		"pricePerUnit":   "12.5",
		"price_per_unit": "99",
		"buyer_id":       "1",
		"buyerId":        "2",
		"unit":           "box",
	}
	o := Map(r, Viewer{})

	assert.Equal(t, "12.5", o.PricePerUnit.Decimal.String())
	assert.Equal(t, "2", o.Buyer.ID)
}

func TestMapKeepsZeroDistinctFromMissing(t *testing.T) {
	o := Map(Record{"id": "A", "pricePerUnit": 0}, Viewer{})

	assert.True(t, o.PricePerUnit.Valid)
	assert.True(t, o.PricePerUnit.Decimal.IsZero())
	assert.False(t, o.TotalAmount.Valid)
	assert.False(t, o.Quantity.Valid)
	assert.Empty(t, o.Status)
	assert.Empty(t, o.Counter.OfferedBy)
}

func TestMapIsTotal(t *testing.T) {
	assert.NotPanics(t, func() {
		Map(nil, Viewer{})
		Map(Record{}, Viewer{})
		Map(Record{
			"id":               []any{1, 2},
			"quantity":         map[string]any{"x": 1},
			"createdAt":        true,
			"status":           42,
			"counterOfferedBy": "nobody",
			"pricePerUnit":     "abc",
		}, Viewer{UserID: "x"})
	})
}

func TestUnreadCounterOffer(t *testing.T) {
	offeredAt := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	o := negotiation.Order{
		ID:     "A",
		Buyer:  negotiation.Party{ID: "b"},
		Seller: negotiation.Party{ID: "s"},
		Counter: negotiation.CounterOffer{
			OfferedAt: &offeredAt,
			OfferedBy: negotiation.RoleSeller,
		},
	}

	before := offeredAt.Add(-time.Minute)
	after := offeredAt.Add(time.Minute)

	assert.True(t, UnreadCounterOffer(o, "b", nil))
	assert.True(t, UnreadCounterOffer(o, "b", &before))
	assert.False(t, UnreadCounterOffer(o, "b", &after))
	assert.False(t, UnreadCounterOffer(o, "s", nil), "own counter is never unread")
	assert.False(t, UnreadCounterOffer(o, "stranger", nil))

	o.Counter.OfferedAt = nil
	assert.False(t, UnreadCounterOffer(o, "b", nil))
}

func TestMapUsesMarkers(t *testing.T) {
	r := decodeRecord(t, snakeRecord)
	markers := fakeMarkers{"01J0ORDER": time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)}

	o := Map(r, Viewer{UserID: "7", Markers: markers})
	assert.False(t, o.HasUnreadCounterOffer)

	markers["01J0ORDER"] = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	o = Map(r, Viewer{UserID: "7", Markers: markers})
	assert.True(t, o.HasUnreadCounterOffer)
}

func TestMapIsIdempotentOnCanonicalOutput(t *testing.T) {
	viewers := []Viewer{
		{UserID: "7"},
		{UserID: "9", Markers: fakeMarkers{"01J0ORDER": time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}},
		{},
	}
	for _, v := range viewers {
		first := Map(decodeRecord(t, snakeRecord), v)
		second := Map(ToRecord(first), v)
		assert.Equal(t, first, second, "viewer %q", v.UserID)
	}
}

func TestMapAllSkipsRecordsWithoutID(t *testing.T) {
	orders := MapAll([]Record{{"id": "A"}, {"status": "new"}, {"id": 12}}, Viewer{})
	require.Len(t, orders, 2)
	assert.Equal(t, "A", orders[0].ID)
	assert.Equal(t, "12", orders[1].ID)
}

func TestMapTypeForNonParty(t *testing.T) {
	o := Map(Record{"id": "A", "buyer_id": "1", "seller_id": "2", "type": "sale"}, Viewer{UserID: "admin"})
	assert.Equal(t, negotiation.KindSale, o.Type)

	o = Map(Record{"id": "A", "buyer_id": "1", "seller_id": "2"}, Viewer{UserID: "2"})
	assert.Equal(t, negotiation.KindSale, o.Type)
}
