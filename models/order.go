package models

import (
	"time"

	"github.com/kendall-kelly/marketplace-orders/negotiation"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order is the authoritative record of a marketplace order and its negotiation
type Order struct {
	ID          string `gorm:"primaryKey;size:26" json:"id"` // ULID, assigned in BeforeCreate
	OrderNumber string `gorm:"uniqueIndex;not null" json:"order_number"`
	BuyerID     uint   `gorm:"not null;index" json:"buyer_id"`
	Buyer       User   `gorm:"foreignKey:BuyerID" json:"-"`
	SellerID    uint   `gorm:"not null;index" json:"seller_id"`
	Seller      User   `gorm:"foreignKey:SellerID" json:"-"`
	Description string `json:"description"`
	IsRequest   bool   `gorm:"not null;default:false" json:"is_request"`

	Unit              string              `json:"unit"`
	Quantity          decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"quantity"`
	OriginalQuantity  decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"original_quantity"`
	AvailableQuantity decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"available_quantity"`
	PricePerUnit      decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"price_per_unit"`
	TotalAmount       decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"total_amount"`

	// Counter-offer slot, overwritten by every counter
	CounterPricePerUnit  decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"counter_price_per_unit"`
	CounterQuantity      decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"counter_quantity"`
	CounterTotalAmount   decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"counter_total_amount"`
	CounterOfferMessage  string              `gorm:"type:text" json:"counter_offer_message"`
	CounterOfferedAt     *time.Time          `json:"counter_offered_at"`
	CounterOfferedBy     string              `json:"counter_offered_by"` // buyer, seller or empty
	BuyerAcceptedCounter bool                `gorm:"not null;default:false" json:"buyer_accepted_counter"`

	Status             string `gorm:"not null;default:'new';index" json:"status"` // new, pending, negotiating, accepted, rejected, cancelled, completed, archived
	CancelledBy        string `json:"cancelled_by"`
	CancellationReason string `gorm:"type:text" json:"cancellation_reason"`

	AcceptedAt    *time.Time     `json:"accepted_at"`
	CompletedDate *time.Time     `json:"completed_date"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// BeforeCreate assigns the ULID and the human-readable order number
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = ulid.Make().String()
	}
	if o.OrderNumber == "" {
		o.OrderNumber = "ORD-" + o.ID[len(o.ID)-8:]
	}
	if o.Status == "" {
		o.Status = string(negotiation.StatusNew)
	}
	return nil
}

// HasParty reports whether userID is the buyer or the seller
func (o Order) HasParty(userID uint) bool {
	return userID != 0 && (userID == o.BuyerID || userID == o.SellerID)
}

// RoleOf returns the negotiation role userID plays on the order
func (o Order) RoleOf(userID uint) (negotiation.Role, bool) {
	switch {
	case userID == 0:
		return "", false
	case userID == o.BuyerID:
		return negotiation.RoleBuyer, true
	case userID == o.SellerID:
		return negotiation.RoleSeller, true
	}
	return "", false
}

func party(u User, id uint) negotiation.Party {
	if u.ID == 0 {
		u.ID = id
	}
	return negotiation.Party{ID: u.PublicID(), Name: u.Name, Phone: u.Phone, Email: u.Email}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// ToNegotiation converts the record into the state machine's Order.
// Buyer and Seller should be preloaded for the party display fields.
func (o Order) ToNegotiation() negotiation.Order {
	status, _ := negotiation.ParseStatus(o.Status)
	offeredBy, _ := negotiation.ParseRole(o.CounterOfferedBy)
	cancelledBy, _ := negotiation.ParseRole(o.CancelledBy)

	return negotiation.Order{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		Buyer:             party(o.Buyer, o.BuyerID),
		Seller:            party(o.Seller, o.SellerID),
		Quantity:          decimal.NewNullDecimal(o.Quantity),
		OriginalQuantity:  o.OriginalQuantity,
		AvailableQuantity: o.AvailableQuantity,
		Unit:              o.Unit,
		PricePerUnit:      decimal.NewNullDecimal(o.PricePerUnit),
		TotalAmount:       decimal.NewNullDecimal(o.TotalAmount),
		Counter: negotiation.CounterOffer{
			PricePerUnit: o.CounterPricePerUnit,
			Quantity:     o.CounterQuantity,
			TotalAmount:  o.CounterTotalAmount,
			Message:      o.CounterOfferMessage,
			OfferedAt:    o.CounterOfferedAt,
			OfferedBy:    offeredBy,
		},
		BuyerAcceptedCounter: o.BuyerAcceptedCounter,
		Status:               status,
		CancelledBy:          cancelledBy,
		CancellationReason:   o.CancellationReason,
		CreatedAt:            timePtr(o.CreatedAt),
		UpdatedAt:            timePtr(o.UpdatedAt),
		AcceptedAt:           o.AcceptedAt,
		CompletedDate:        o.CompletedDate,
		IsRequest:            o.IsRequest,
	}
}

// ApplyNegotiation copies the state produced by a transition back onto the record
func (o *Order) ApplyNegotiation(n negotiation.Order) {
	if n.Quantity.Valid {
		o.Quantity = n.Quantity.Decimal
	}
	o.OriginalQuantity = n.OriginalQuantity
	if n.PricePerUnit.Valid {
		o.PricePerUnit = n.PricePerUnit.Decimal
	}
	if n.TotalAmount.Valid {
		o.TotalAmount = n.TotalAmount.Decimal
	}
	o.CounterPricePerUnit = n.Counter.PricePerUnit
	o.CounterQuantity = n.Counter.Quantity
	o.CounterTotalAmount = n.Counter.TotalAmount
	o.CounterOfferMessage = n.Counter.Message
	o.CounterOfferedAt = n.Counter.OfferedAt
	o.CounterOfferedBy = string(n.Counter.OfferedBy)
	o.BuyerAcceptedCounter = n.BuyerAcceptedCounter
	o.Status = string(n.Status)
	o.CancelledBy = string(n.CancelledBy)
	o.CancellationReason = n.CancellationReason
	o.AcceptedAt = n.AcceptedAt
	o.CompletedDate = n.CompletedDate
}

// OrderResponse is the JSON shape of an order as seen by one viewer
type OrderResponse struct {
	ID                   string              `json:"id"`
	OrderNumber          string              `json:"order_number"`
	BuyerID              string              `json:"buyer_id"`
	BuyerName            string              `json:"buyer_name,omitempty"`
	BuyerPhone           string              `json:"buyer_phone,omitempty"`
	BuyerEmail           string              `json:"buyer_email,omitempty"`
	SellerID             string              `json:"seller_id"`
	SellerName           string              `json:"seller_name,omitempty"`
	SellerPhone          string              `json:"seller_phone,omitempty"`
	SellerEmail          string              `json:"seller_email,omitempty"`
	Description          string              `json:"description,omitempty"`
	Unit                 string              `json:"unit,omitempty"`
	Quantity             decimal.Decimal     `json:"quantity"`
	OriginalQuantity     decimal.NullDecimal `json:"original_quantity"`
	AvailableQuantity    decimal.NullDecimal `json:"available_quantity"`
	PricePerUnit         decimal.Decimal     `json:"price_per_unit"`
	TotalAmount          decimal.Decimal     `json:"total_amount"`
	CounterPricePerUnit  decimal.NullDecimal `json:"counter_price_per_unit"`
	CounterQuantity      decimal.NullDecimal `json:"counter_quantity"`
	CounterTotalAmount   decimal.NullDecimal `json:"counter_total_amount"`
	CounterOfferMessage  string              `json:"counter_offer_message,omitempty"`
	CounterOfferedAt     *time.Time          `json:"counter_offered_at,omitempty"`
	CounterOfferedBy     string              `json:"counter_offered_by,omitempty"`
	BuyerAcceptedCounter bool                `json:"buyer_accepted_counter"`
	Status               string              `json:"status"`
	CancelledBy          string              `json:"cancelled_by,omitempty"`
	CancellationReason   string              `json:"cancellation_reason,omitempty"`
	IsRequest            bool                `json:"is_request"`
	Type                 string              `json:"type,omitempty"` // purchase or sale, relative to the viewer
	AcceptedAt           *time.Time          `json:"accepted_at,omitempty"`
	CompletedDate        *time.Time          `json:"completed_date,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// Response renders the order for viewerID. Buyer and Seller should be preloaded.
func (o Order) Response(viewerID uint) OrderResponse {
	buyer := party(o.Buyer, o.BuyerID)
	seller := party(o.Seller, o.SellerID)

	kind := ""
	switch viewerID {
	case o.BuyerID:
		kind = string(negotiation.KindPurchase)
	case o.SellerID:
		kind = string(negotiation.KindSale)
	}

	return OrderResponse{
		ID:                   o.ID,
		OrderNumber:          o.OrderNumber,
		BuyerID:              buyer.ID,
		BuyerName:            buyer.Name,
		BuyerPhone:           buyer.Phone,
		BuyerEmail:           buyer.Email,
		SellerID:             seller.ID,
		SellerName:           seller.Name,
		SellerPhone:          seller.Phone,
		SellerEmail:          seller.Email,
		Description:          o.Description,
		Unit:                 o.Unit,
		Quantity:             o.Quantity,
		OriginalQuantity:     o.OriginalQuantity,
		AvailableQuantity:    o.AvailableQuantity,
		PricePerUnit:         o.PricePerUnit,
		TotalAmount:          o.TotalAmount,
		CounterPricePerUnit:  o.CounterPricePerUnit,
		CounterQuantity:      o.CounterQuantity,
		CounterTotalAmount:   o.CounterTotalAmount,
		CounterOfferMessage:  o.CounterOfferMessage,
		CounterOfferedAt:     o.CounterOfferedAt,
		CounterOfferedBy:     o.CounterOfferedBy,
		BuyerAcceptedCounter: o.BuyerAcceptedCounter,
		Status:               o.Status,
		CancelledBy:          o.CancelledBy,
		CancellationReason:   o.CancellationReason,
		IsRequest:            o.IsRequest,
		Type:                 kind,
		AcceptedAt:           o.AcceptedAt,
		CompletedDate:        o.CompletedDate,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
	}
}
