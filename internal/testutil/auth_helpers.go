package testutil

import (
	"strings"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-orders/middleware"
)

// MockValidatedClaims creates a mock ValidatedClaims for testing
func MockValidatedClaims(subject, role string, scopes []string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Subject: subject,
		},
		CustomClaims: &middleware.CustomClaims{
			Scope: strings.Join(scopes, " "),
			Role:  role,
		},
	}
}

// SetMockAuthContext populates c the same way EnsureValidToken does
func SetMockAuthContext(c *gin.Context, auth0ID, role, accessToken string, scopes ...string) {
	c.Set("user_id", auth0ID)
	c.Set("access_token", accessToken)
	c.Set("validated_claims", MockValidatedClaims(auth0ID, role, scopes))
}

// MockAuthMiddleware stands in for EnsureValidToken with a fixed identity
func MockAuthMiddleware(auth0ID, role, accessToken string, scopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		SetMockAuthContext(c, auth0ID, role, accessToken, scopes...)
		c.Next()
	}
}
