package testutil

import (
	"strings"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-support-api/middleware"
)

// MockValidatedClaims creates a mock ValidatedClaims for testing
func MockValidatedClaims(subject, issuer string, scopes []string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  issuer,
			Subject: subject,
		},
		CustomClaims: &middleware.CustomClaims{
			Scope: strings.Join(scopes, " "),
		},
	}
}

// SetMockAuthContext sets up a mock authenticated context for testing
func SetMockAuthContext(c *gin.Context, auth0ID string, issuer string, scopes []string) {
	c.Set("user_id", auth0ID)
	c.Set("validated_claims", MockValidatedClaims(auth0ID, issuer, scopes))
	c.Set("access_token", "test-token")
}

// MockAuth stands in for the JWT middleware: the X-Test-User header names
// the Auth0 subject. Requests without it are rejected like a missing token.
func MockAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		sub := c.GetHeader("X-Test-User")
		if sub == "" {
			c.AbortWithStatusJSON(401, gin.H{
				"success": false,
				"message": "Failed to validate JWT.",
				"error":   gin.H{"code": "INVALID_TOKEN", "message": "Failed to validate JWT."},
			})
			return
		}
		SetMockAuthContext(c, sub, "https://test.auth0.com/", []string{"read:returns", "write:returns"})
		c.Next()
	}
}
