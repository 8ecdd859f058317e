package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-orders/config"
	"github.com/kendall-kelly/marketplace-orders/services"
)

// CreateReview handles POST /api/v1/reviews - the buyer rates the seller of a completed order
func CreateReview(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.CreateReviewInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err.Error())
		return
	}

	review, err := services.NewReviewService(config.GetDB()).Create(c.Request.Context(), user, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    review,
	})
}
