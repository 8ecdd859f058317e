package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NegotiationEvent is one entry of an order's negotiation history. A row is
// appended for every transition the service applies.
type NegotiationEvent struct {
	ID           uint                `gorm:"primaryKey" json:"id"`
	OrderID      string              `gorm:"not null;index;size:26" json:"order_id"` // foreign key to orders table
	Order        Order               `gorm:"foreignKey:OrderID" json:"-"`
	ActorID      uint                `gorm:"not null;index" json:"actor_id"` // foreign key to users table
	Actor        User                `gorm:"foreignKey:ActorID" json:"-"`
	ActorRole    string              `gorm:"not null" json:"actor_role"`
	Action       string              `gorm:"not null" json:"action"`
	FromStatus   string              `gorm:"not null" json:"from_status"`
	ToStatus     string              `gorm:"not null" json:"to_status"`
	PricePerUnit decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"price_per_unit"`
	Quantity     decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"quantity"`
	Message      string              `gorm:"type:text" json:"message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

// TableName specifies the table name for the NegotiationEvent model
func (NegotiationEvent) TableName() string {
	return "negotiation_events"
}
