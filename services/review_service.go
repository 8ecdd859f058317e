package services

import (
	"context"
	"errors"
	"strings"

	"github.com/kendall-kelly/marketplace-orders/models"
	"github.com/kendall-kelly/marketplace-orders/negotiation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateReviewInput is the body of POST /reviews
type CreateReviewInput struct {
	OrderID  string `json:"order_id" binding:"required"`
	SellerID string `json:"seller_id" binding:"required"`
	Rating   int    `json:"rating" binding:"required"`
	Comment  string `json:"comment"`
}

// ReviewService records buyers' reviews of sellers
type ReviewService struct {
	db *gorm.DB
}

// NewReviewService creates a review service
func NewReviewService(db *gorm.DB) *ReviewService {
	return &ReviewService{db: db}
}

// Create stores the buyer's review of a completed order. Each order takes one review.
func (s *ReviewService) Create(ctx context.Context, buyer models.User, in CreateReviewInput) (*models.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, invalid("rating must be between 1 and 5")
	}

	db := s.db.WithContext(ctx)
	var order models.Order
	if err := db.Preload("Seller").First(&order, "id = ?", in.OrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if role, ok := order.RoleOf(buyer.ID); !ok || role != negotiation.RoleBuyer {
		return nil, ErrForbidden
	}
	if order.Status != string(negotiation.StatusCompleted) {
		return nil, ErrOrderNotCompleted
	}
	if in.SellerID != order.Seller.PublicID() {
		return nil, invalid("seller_id does not match the order's seller")
	}

	var existing int64
	if err := db.Model(&models.Review{}).Where("order_id = ?", order.ID).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrReviewExists
	}

	review := models.Review{
		OrderID:  order.ID,
		BuyerID:  buyer.ID,
		SellerID: order.SellerID,
		Rating:   in.Rating,
		Comment:  strings.TrimSpace(in.Comment),
	}
	if err := db.Omit(clause.Associations).Create(&review).Error; err != nil {
		// Lost a race with a concurrent submission
		if IsUniqueViolation(err) {
			return nil, ErrReviewExists
		}
		return nil, err
	}
	return &review, nil
}

// IsUniqueViolation reports a duplicate key error. It works with PostgreSQL, MySQL and SQLite error texts
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
