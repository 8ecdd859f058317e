package models

import (
	"time"

	"gorm.io/gorm"
)

// Review is a buyer's rating of the seller on a completed order
type Review struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	OrderID   string         `gorm:"uniqueIndex;not null;size:26" json:"order_id"` // one review per order
	BuyerID   uint           `gorm:"not null;index" json:"buyer_id"`
	SellerID  uint           `gorm:"not null;index" json:"seller_id"`
	Rating    int            `gorm:"not null;check:rating >= 1 AND rating <= 5" json:"rating"`
	Comment   string         `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Review model
func (Review) TableName() string {
	return "reviews"
}

// All returns every model for AutoMigrate
func All() []any {
	return []any{&User{}, &Order{}, &NegotiationEvent{}, &Review{}}
}
