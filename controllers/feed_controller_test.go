package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kendall-kelly/marketplace-orders/services"
	"github.com/kendall-kelly/marketplace-orders/syncer"
)

func (s *OrderControllerSuite) TestOrderFeed_Disabled() {
	router := setupTestRouter()
	router.GET("/orders/feed", mockAuthMiddleware(s.buyer.Auth0ID, s.buyer.Role, "mock-token"), OrderFeed)

	req := httptest.NewRequest(http.MethodGet, "/orders/feed", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	s.Equal(http.StatusServiceUnavailable, w.Code)
}

func (s *OrderControllerSuite) TestOrderFeed_DeliversPartyEvents() {
	hub := services.NewFeedHub(nil)
	services.SetFeedHub(hub)
	defer services.SetFeedHub(nil)

	router := setupTestRouter()
	router.GET("/orders/feed", mockAuthMiddleware(s.seller.Auth0ID, s.seller.Role, "mock-token"), OrderFeed)
	server := httptest.NewServer(router)
	defer server.Close()

	feedURL, err := syncer.FeedURL(server.URL)
	s.Require().NoError(err)
	s.True(strings.HasPrefix(feedURL, "ws://"))

	conn, _, err := websocket.DefaultDialer.Dial(feedURL, nil)
	s.Require().NoError(err)
	defer conn.Close()

	s.Require().Eventually(func() bool { return hub.Connections(s.seller.ID) == 1 }, time.Second, 10*time.Millisecond)

	id := s.createOrder()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var sig syncer.Signal
	s.Require().NoError(conn.ReadJSON(&sig))
	s.Equal(id, sig.OrderID)
	s.Equal("create", string(sig.Action))
	s.NotEmpty(sig.ID)
}
