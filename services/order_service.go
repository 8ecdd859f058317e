package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kendall-kelly/marketplace-orders/models"
	"github.com/kendall-kelly/marketplace-orders/negotiation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActionCreate is the feed action announcing a newly placed order
const ActionCreate negotiation.Action = "create"

// Order list scopes
const (
	ScopeBuyer  = "buyer"
	ScopeSeller = "seller"
	ScopeAll    = "all"
)

// FeedPublisher receives an event for every order change
type FeedPublisher interface {
	Publish(ev FeedEvent, recipients ...uint)
}

// CreateOrderInput describes an order placed by a buyer
type CreateOrderInput struct {
	SellerID          uint
	Description       string
	Unit              string
	Quantity          decimal.Decimal
	PricePerUnit      decimal.Decimal
	AvailableQuantity decimal.NullDecimal
	IsRequest         bool
}

// OrderPatch is the body of PATCH /orders/:id
type OrderPatch struct {
	Status             string           `json:"status"`
	CancelledBy        string           `json:"cancelled_by"`
	CancellationReason string           `json:"cancellation_reason"`
	CounterPrice       *decimal.Decimal `json:"counter_price"`
	CounterQuantity    *decimal.Decimal `json:"counter_quantity"`
	CounterMessage     string           `json:"counter_message"`
	AcceptCounter      bool             `json:"accept_counter"`
}

// Transition maps the patch onto a state machine transition for actor
func (p OrderPatch) Transition(actor negotiation.Role) (negotiation.Transition, error) {
	switch {
	case p.AcceptCounter:
		if p.Status != "" && p.Status != string(negotiation.StatusAccepted) {
			return negotiation.Transition{}, invalid("accept_counter can only be combined with status accepted")
		}
		return negotiation.AcceptCounter(), nil
	case p.CounterPrice != nil:
		if p.Status != "" {
			return negotiation.Transition{}, invalid("a counter-offer cannot change the status directly")
		}
		qty := decimal.NullDecimal{}
		if p.CounterQuantity != nil {
			qty = decimal.NewNullDecimal(*p.CounterQuantity)
		}
		return negotiation.Counter(*p.CounterPrice, qty, p.CounterMessage), nil
	}

	switch negotiation.Status(p.Status) {
	case negotiation.StatusAccepted:
		return negotiation.Accept(), nil
	case negotiation.StatusRejected:
		return negotiation.Reject(), nil
	case negotiation.StatusCompleted:
		return negotiation.Complete(), nil
	case negotiation.StatusCancelled:
		if p.CancelledBy != "" && p.CancelledBy != string(actor) {
			return negotiation.Transition{}, invalid("cancelled_by must be the caller's role on the order")
		}
		return negotiation.Cancel(p.CancellationReason), nil
	case "":
		return negotiation.Transition{}, invalid("patch must set status, counter_price or accept_counter")
	}
	return negotiation.Transition{}, invalid(fmt.Sprintf("status %q cannot be set through the API", p.Status))
}

// OrderService owns every write to orders and their negotiation history
type OrderService struct {
	db   *gorm.DB
	feed FeedPublisher
	Now  func() time.Time
}

// NewOrderService creates an order service. feed may be nil.
func NewOrderService(db *gorm.DB, feed FeedPublisher) *OrderService {
	return &OrderService{
		db:   db,
		feed: feed,
		Now:  func() time.Time { return time.Now().UTC() },
	}
}

func withParties(db *gorm.DB) *gorm.DB {
	return db.Preload("Buyer").Preload("Seller")
}

// Create places a new order from buyer to the seller named in in
func (s *OrderService) Create(ctx context.Context, buyer models.User, in CreateOrderInput) (*models.Order, error) {
	if buyer.Role == models.RoleAdmin {
		return nil, ErrForbidden
	}
	if in.SellerID == buyer.ID {
		return nil, invalid("buyer and seller must be different users")
	}
	if !in.Quantity.IsPositive() {
		return nil, invalid("quantity must be greater than zero")
	}
	if !in.PricePerUnit.IsPositive() {
		return nil, invalid("price_per_unit must be greater than zero")
	}
	if in.AvailableQuantity.Valid && in.Quantity.GreaterThan(in.AvailableQuantity.Decimal) {
		return nil, invalid("quantity exceeds available quantity")
	}

	db := s.db.WithContext(ctx)
	var seller models.User
	if err := db.Where("id = ? AND role = ?", in.SellerID, models.RoleSeller).First(&seller).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	order := models.Order{
		BuyerID:           buyer.ID,
		SellerID:          seller.ID,
		Description:       strings.TrimSpace(in.Description),
		Unit:              in.Unit,
		Quantity:          in.Quantity,
		PricePerUnit:      in.PricePerUnit,
		TotalAmount:       in.PricePerUnit.Mul(in.Quantity),
		AvailableQuantity: in.AvailableQuantity,
		IsRequest:         in.IsRequest,
		Status:            string(negotiation.StatusNew),
	}
	if err := db.Omit(clause.Associations).Create(&order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	order.Buyer = buyer
	order.Seller = seller

	s.publish(order, ActionCreate)
	return &order, nil
}

// ListOptions selects and pages the orders returned by List
type ListOptions struct {
	// Scope is buyer, seller or all. Empty means every order the user is a party to.
	Scope string
	// Page and Limit are ignored when Limit is 0
	Page  int
	Limit int
}

// List returns the orders visible to user and the total before paging
func (s *OrderService) List(ctx context.Context, user models.User, opts ListOptions) ([]models.Order, int64, error) {
	var filter func(*gorm.DB) *gorm.DB
	switch opts.Scope {
	case "":
		filter = func(db *gorm.DB) *gorm.DB { return db.Where("buyer_id = ? OR seller_id = ?", user.ID, user.ID) }
	case ScopeBuyer:
		filter = func(db *gorm.DB) *gorm.DB { return db.Where("buyer_id = ?", user.ID) }
	case ScopeSeller:
		filter = func(db *gorm.DB) *gorm.DB { return db.Where("seller_id = ?", user.ID) }
	case ScopeAll:
		if !user.IsAdmin() {
			return nil, 0, ErrForbidden
		}
		filter = func(db *gorm.DB) *gorm.DB { return db }
	default:
		return nil, 0, invalid(fmt.Sprintf("unknown scope %q", opts.Scope))
	}

	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.Order{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := withParties(db).Scopes(filter).Order("created_at DESC").Order("id DESC")
	if opts.Limit > 0 {
		page := max(opts.Page, 1)
		q = q.Offset((page - 1) * opts.Limit).Limit(opts.Limit)
	}

	var orders []models.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Get returns one order if user is a party to it or an admin
func (s *OrderService) Get(ctx context.Context, user models.User, id string) (*models.Order, error) {
	var order models.Order
	if err := withParties(s.db.WithContext(ctx)).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if !order.HasParty(user.ID) && !user.IsAdmin() {
		return nil, ErrOrderNotFound
	}
	return &order, nil
}

// History returns the negotiation events of an order, oldest first
func (s *OrderService) History(ctx context.Context, user models.User, id string) ([]models.NegotiationEvent, error) {
	if _, err := s.Get(ctx, user, id); err != nil {
		return nil, err
	}
	var events []models.NegotiationEvent
	err := s.db.WithContext(ctx).Where("order_id = ?", id).Order("id ASC").Find(&events).Error
	return events, err
}

// Apply performs the transition described by patch on behalf of user.
// The order row is locked for the read-check-write so concurrent counters on
// the same order are serialized; the later one is judged against the earlier
// one's result.
func (s *OrderService) Apply(ctx context.Context, user models.User, id string, patch OrderPatch) (*models.Order, error) {
	var action negotiation.Action
	order, err := s.transact(ctx, id, func(tx *gorm.DB, order *models.Order) (*models.NegotiationEvent, error) {
		role, ok := order.RoleOf(user.ID)
		if !ok {
			return nil, ErrForbidden
		}
		t, err := patch.Transition(role)
		if err != nil {
			return nil, err
		}
		action = t.Action
		return s.step(order, t, role, user.ID)
	})
	if err != nil {
		return nil, err
	}

	s.publish(*order, action)
	return order, nil
}

// Archive retires a terminal order and exports its snapshot to store when one
// is configured. It returns the snapshot key, or "" without a store.
func (s *OrderService) Archive(ctx context.Context, admin models.User, id string, store ArchiveStore) (*models.Order, string, error) {
	if !admin.IsAdmin() {
		return nil, "", ErrForbidden
	}

	var key string
	order, err := s.transact(ctx, id, func(tx *gorm.DB, order *models.Order) (*models.NegotiationEvent, error) {
		ev, err := s.step(order, negotiation.Archive(), negotiation.RoleAdmin, admin.ID)
		if err != nil || store == nil {
			return ev, err
		}

		var history []models.NegotiationEvent
		if err := tx.Where("order_id = ?", id).Order("id ASC").Find(&history).Error; err != nil {
			return nil, err
		}
		key, err = store.PutSnapshot(ctx, OrderSnapshot{
			Order:      order.Response(0),
			History:    append(history, *ev),
			ArchivedAt: s.Now(),
			ArchivedBy: admin.ID,
		})
		return ev, err
	})
	if err != nil {
		return nil, "", err
	}

	s.publish(*order, negotiation.ActionArchive)
	return order, key, nil
}

// transact locks the order row, lets fn mutate the order and saves the order
// together with the event fn returns
func (s *OrderService) transact(ctx context.Context, id string, fn func(tx *gorm.DB, order *models.Order) (*models.NegotiationEvent, error)) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}
		if err := tx.First(&order.Buyer, order.BuyerID).Error; err != nil {
			return err
		}
		if err := tx.First(&order.Seller, order.SellerID).Error; err != nil {
			return err
		}

		ev, err := fn(tx, &order)
		if err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(&order).Error; err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(ev).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *OrderService) step(order *models.Order, t negotiation.Transition, role negotiation.Role, actorID uint) (*models.NegotiationEvent, error) {
	before := order.ToNegotiation()
	after, err := t.Apply(before, role, s.Now())
	if err != nil {
		return nil, err
	}
	order.ApplyNegotiation(after)

	ev := &models.NegotiationEvent{
		OrderID:      order.ID,
		ActorID:      actorID,
		ActorRole:    string(role),
		Action:       string(t.Action),
		FromStatus:   string(before.Status),
		ToStatus:     string(after.Status),
		PricePerUnit: after.PricePerUnit,
		Quantity:     after.Quantity,
	}
	switch t.Action {
	case negotiation.ActionCounter:
		ev.PricePerUnit = after.Counter.PricePerUnit
		ev.Quantity = after.Counter.Quantity
		ev.Message = after.Counter.Message
	case negotiation.ActionCancel:
		ev.Message = after.CancellationReason
	}
	return ev, nil
}

func (s *OrderService) publish(order models.Order, action negotiation.Action) {
	log.Printf("Order %s: %s (status %s)", order.ID, action, order.Status)
	if s.feed == nil {
		return
	}
	s.feed.Publish(NewFeedEvent(order.ID, action, s.Now()), order.BuyerID, order.SellerID)
}
