package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-orders/config"
	"github.com/kendall-kelly/marketplace-orders/middleware"
	"github.com/kendall-kelly/marketplace-orders/models"
	"github.com/kendall-kelly/marketplace-orders/services"
)

// UpdateUserRequest represents the request body for updating a user profile
type UpdateUserRequest struct {
	Name  string `json:"name" binding:"omitempty"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone" binding:"omitempty,max=32"`
}

// CreateUserRequest carries the marketplace role picked at sign-up.
// Admins are only ever made through the token's role claim.
type CreateUserRequest struct {
	Role string `json:"role" binding:"omitempty,oneof=buyer seller"`
}

// CreateUser handles POST /api/v1/users. Name, email and phone come from
// Auth0's /userinfo; the role comes from the token claim, else the body, else buyer.
func CreateUser(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user ID from token")
		return
	}
	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "MISSING_TOKEN", "Access token not found")
		return
	}

	userInfo, err := services.NewAuth0Service(config.GetConfig()).GetUserInfo(c.Request.Context(), accessToken)
	switch {
	case err != nil:
		respondError(c, http.StatusInternalServerError, "AUTH0_ERROR", "Failed to fetch user information from Auth0")
		return
	case userInfo.Email == "":
		respondError(c, http.StatusBadRequest, "MISSING_EMAIL", "Email not provided by Auth0")
		return
	case userInfo.Name == "":
		respondError(c, http.StatusBadRequest, "MISSING_NAME", "Name not provided by Auth0")
		return
	}

	var req CreateUserRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, err.Error())
			return
		}
	}

	role := models.RoleBuyer
	if req.Role != "" {
		role = req.Role
	}
	if claimRole := middleware.GetRole(c); models.ValidRole(claimRole) {
		role = claimRole
	}

	user := models.User{
		Auth0ID: auth0ID,
		Name:    userInfo.Name,
		Email:   userInfo.Email,
		Phone:   userInfo.PhoneNumber,
		Role:    role,
	}
	if err := config.GetDB().WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		if services.IsUniqueViolation(err) {
			respondError(c, http.StatusConflict, "USER_EXISTS", "A user with this Auth0 ID or email already exists")
			return
		}
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create user")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": user})
}

// GetMyProfile handles GET /api/v1/users/me
func GetMyProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
}

// UpdateMyProfile handles PUT /api/v1/users/me. Empty fields are left unchanged.
func UpdateMyProfile(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err.Error())
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}

	updates := make(map[string]any)
	for column, value := range map[string]string{"name": req.Name, "email": req.Email, "phone": req.Phone} {
		if value != "" {
			updates[column] = value
		}
	}
	if len(updates) > 0 {
		db := config.GetDB().WithContext(c.Request.Context())
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			if services.IsUniqueViolation(err) {
				respondError(c, http.StatusConflict, "EMAIL_EXISTS", "A user with this email already exists")
				return
			}
			respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update user profile")
			return
		}
		if err := db.First(&user, user.ID).Error; err != nil {
			respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to fetch updated profile")
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
}
