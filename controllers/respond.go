package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-orders/config"
	"github.com/kendall-kelly/marketplace-orders/middleware"
	"github.com/kendall-kelly/marketplace-orders/models"
	"github.com/kendall-kelly/marketplace-orders/negotiation"
	"github.com/kendall-kelly/marketplace-orders/services"
)

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func respondValidation(c *gin.Context, details string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": "Invalid request data",
			"details": details,
		},
	})
}

// respondServiceError maps service and state machine errors onto the error envelope
func respondServiceError(c *gin.Context, err error) {
	var terr *negotiation.TransitionError
	var verr *services.ValidationError
	switch {
	case errors.As(err, &terr):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ILLEGAL_TRANSITION",
				"message": terr.Error(),
				"details": gin.H{"reason": terr.Code, "status": terr.Status},
			},
		})
	case errors.As(err, &verr):
		respondValidation(c, verr.Message)
	case errors.Is(err, services.ErrOrderNotFound):
		respondError(c, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
	case errors.Is(err, services.ErrUserNotFound):
		respondError(c, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, services.ErrForbidden):
		respondError(c, http.StatusForbidden, "FORBIDDEN", "You are not allowed to perform this action")
	case errors.Is(err, services.ErrReviewExists):
		respondError(c, http.StatusConflict, "REVIEW_EXISTS", "This order has already been reviewed")
	case errors.Is(err, services.ErrOrderNotCompleted):
		respondError(c, http.StatusConflict, "ORDER_NOT_COMPLETED", "Only completed orders can be reviewed")
	default:
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to process request")
	}
}

// currentUser loads the profile of the authenticated caller. On failure the
// error response has been written and ok is false.
func currentUser(c *gin.Context) (user models.User, ok bool) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return user, false
	}

	if err := config.GetDB().WithContext(c.Request.Context()).Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
		respondError(c, http.StatusNotFound, "USER_NOT_FOUND", "User profile not found. Please create a profile first.")
		return user, false
	}
	return user, true
}

func orderService() *services.OrderService {
	var feed services.FeedPublisher
	if hub := services.GetFeedHub(); hub != nil {
		feed = hub
	}
	return services.NewOrderService(config.GetDB(), feed)
}
