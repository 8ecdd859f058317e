package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-orders/models"
	"github.com/kendall-kelly/marketplace-orders/services"
	"github.com/shopspring/decimal"
)

// CreateOrderRequest represents the request body for creating an order
type CreateOrderRequest struct {
	SellerID          uint                `json:"seller_id" binding:"required"`
	Description       string              `json:"description"`
	Unit              string              `json:"unit"`
	Quantity          decimal.Decimal     `json:"quantity" binding:"required"`
	PricePerUnit      decimal.Decimal     `json:"price_per_unit" binding:"required"`
	AvailableQuantity decimal.NullDecimal `json:"available_quantity"`
	IsRequest         bool                `json:"is_request"`
}

func renderOrders(orders []models.Order, viewerID uint) []models.OrderResponse {
	out := make([]models.OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Response(viewerID))
	}
	return out
}

// CreateOrder handles POST /api/v1/orders - the caller places an order as buyer
func CreateOrder(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err.Error())
		return
	}

	order, err := orderService().Create(c.Request.Context(), user, services.CreateOrderInput{
		SellerID:          req.SellerID,
		Description:       req.Description,
		Unit:              req.Unit,
		Quantity:          req.Quantity,
		PricePerUnit:      req.PricePerUnit,
		AvailableQuantity: req.AvailableQuantity,
		IsRequest:         req.IsRequest,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    order.Response(user.ID),
	})
}

// ListOrders handles GET /api/v1/orders?scope=buyer|seller|all&page=&limit=
// Without limit every matching order is returned.
func ListOrders(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	opts := services.ListOptions{Scope: c.Query("scope")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			respondValidation(c, "limit must be between 1 and 100")
			return
		}
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			respondValidation(c, "page must be a positive integer")
			return
		}
		opts.Limit, opts.Page = limit, page
	}

	orders, total, err := orderService().List(c.Request.Context(), user, opts)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	resp := gin.H{
		"success": true,
		"data":    renderOrders(orders, user.ID),
	}
	if opts.Limit > 0 {
		resp["pagination"] = gin.H{
			"page":       opts.Page,
			"limit":      opts.Limit,
			"total":      total,
			"totalPages": (total + int64(opts.Limit) - 1) / int64(opts.Limit),
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GetOrder handles GET /api/v1/orders/:id
func GetOrder(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	order, err := orderService().Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order.Response(user.ID),
	})
}

// UpdateOrder handles PATCH /api/v1/orders/:id - applies one negotiation step.
// Illegal steps are answered with 409 ILLEGAL_TRANSITION.
func UpdateOrder(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var patch services.OrderPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondValidation(c, err.Error())
		return
	}

	order, err := orderService().Apply(c.Request.Context(), user, c.Param("id"), patch)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order.Response(user.ID),
	})
}

// GetNegotiation handles GET /api/v1/orders/:id/negotiation - the order's history
func GetNegotiation(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	events, err := orderService().History(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    events,
	})
}

// ArchiveOrder handles POST /api/v1/admin/orders/:id/archive (admins only)
func ArchiveOrder(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	order, key, err := orderService().Archive(c.Request.Context(), user, c.Param("id"), services.GetArchiveStore())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	data := gin.H{"order": order.Response(user.ID)}
	if key != "" {
		data["snapshot_key"] = key
		if url, err := services.GetArchiveStore().PresignURL(c.Request.Context(), key); err == nil {
			data["snapshot_url"] = url
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
