package controllers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-orders/services"
)

// OrderFeed handles GET /api/v1/orders/feed - upgrades to a websocket that
// carries {orderId, action, timestamp} events for the caller's orders
func OrderFeed(c *gin.Context) {
	hub := services.GetFeedHub()
	if hub == nil {
		respondError(c, http.StatusServiceUnavailable, "FEED_DISABLED", "Order feed is not enabled")
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}

	if err := hub.Serve(c.Writer, c.Request, user.ID); err != nil {
		log.Printf("feed: connection for user %d closed: %v", user.ID, err)
	}
}
