package controllers

import (
	"net/http"

	"github.com/kendall-kelly/marketplace-orders/models"
)

// completedOrder runs an order through accept and buyer completion
func (s *OrderControllerSuite) completedOrder() string {
	id := s.createOrder()
	w, _ := s.patch(s.seller, id, map[string]any{"status": "accepted"})
	s.Require().Equal(http.StatusOK, w.Code)
	w, _ = s.patch(s.buyer, id, map[string]any{"status": "completed"})
	s.Require().Equal(http.StatusOK, w.Code)
	return id
}

func (s *OrderControllerSuite) review(user models.User, body map[string]any) (int, map[string]any) {
	w, resp := s.do(user, http.MethodPost, "/reviews", body)
	return w.Code, resp
}

func (s *OrderControllerSuite) TestCreateReview() {
	id := s.completedOrder()

	code, resp := s.review(s.buyer, map[string]any{
		"order_id":  id,
		"seller_id": s.seller.PublicID(),
		"rating":    5,
		"comment":   " great oil ",
	})
	s.Require().Equal(http.StatusCreated, code, resp)
	data := resp["data"].(map[string]any)
	s.Equal(id, data["order_id"])
	s.Equal(float64(5), data["rating"])
	s.Equal("great oil", data["comment"])
	s.Equal(float64(s.seller.ID), data["seller_id"])

	code, resp = s.review(s.buyer, map[string]any{
		"order_id":  id,
		"seller_id": s.seller.PublicID(),
		"rating":    1,
	})
	s.Equal(http.StatusConflict, code)
	s.Equal("REVIEW_EXISTS", errorCode(resp))
}

func (s *OrderControllerSuite) TestCreateReview_Rules() {
	completed := s.completedOrder()
	open := s.createOrder()

	tests := []struct {
		name   string
		user   models.User
		body   map[string]any
		status int
		code   string
	}{
		{"seller cannot review", s.seller, map[string]any{"order_id": completed, "seller_id": s.seller.PublicID(), "rating": 4}, http.StatusForbidden, "FORBIDDEN"},
		{"outsider cannot review", s.outside, map[string]any{"order_id": completed, "seller_id": s.seller.PublicID(), "rating": 4}, http.StatusForbidden, "FORBIDDEN"},
		{"order not completed", s.buyer, map[string]any{"order_id": open, "seller_id": s.seller.PublicID(), "rating": 4}, http.StatusConflict, "ORDER_NOT_COMPLETED"},
		{"wrong seller", s.buyer, map[string]any{"order_id": completed, "seller_id": s.outside.PublicID(), "rating": 4}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"rating too high", s.buyer, map[string]any{"order_id": completed, "seller_id": s.seller.PublicID(), "rating": 6}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing rating", s.buyer, map[string]any{"order_id": completed, "seller_id": s.seller.PublicID()}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown order", s.buyer, map[string]any{"order_id": "01HZZZZZZZZZZZZZZZZZZZZZZZ", "seller_id": s.seller.PublicID(), "rating": 4}, http.StatusNotFound, "ORDER_NOT_FOUND"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			code, resp := s.review(tt.user, tt.body)
			s.Equal(tt.status, code, resp)
			s.Equal(tt.code, errorCode(resp))
		})
	}
}
