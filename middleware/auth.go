package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-support-api/config"
)

const (
	ctxKeyUserID          = "user_id"
	ctxKeyValidatedClaims = "validated_claims"
	ctxKeyAccessToken     = "access_token"
)

// tokenExtractor reads the bearer header first and falls back to the
// "token" query parameter, which browsers need for websocket upgrades.
var tokenExtractor = jwtmiddleware.MultiTokenExtractor(
	jwtmiddleware.AuthHeaderTokenExtractor,
	jwtmiddleware.ParameterTokenExtractor("token"),
)

// CustomClaims contains custom data we want from the token.
type CustomClaims struct {
	Scope string `json:"scope"`
	Role  string `json:"https://storefront/role"`
}

// Validate does nothing for this example, but we need
// it to satisfy validator.CustomClaims interface.
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// HasScope checks whether our claims have a specific scope.
func (c CustomClaims) HasScope(expectedScope string) bool {
	for _, s := range strings.Fields(c.Scope) {
		if s == expectedScope {
			return true
		}
	}
	return false
}

// EnsureValidToken is a middleware that will check the validity of our JWT.
func EnsureValidToken(cfg *config.Config, logger *slog.Logger) gin.HandlerFunc {
	issuerURL, err := url.Parse("https://" + cfg.Auth0Domain + "/")
	if err != nil {
		logger.Error("failed to parse the issuer url", slog.Any("err", err))
		panic(err)
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	jwtValidator, err := validator.New(
		provider.KeyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{cfg.Auth0Audience},
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &CustomClaims{}
			},
		),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		logger.Error("failed to set up the jwt validator", slog.Any("err", err))
		panic(err)
	}

	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("jwt validation failed", slog.Any("err", err), slog.String("path", r.URL.Path))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		if _, writeErr := w.Write([]byte(`{"success":false,"message":"Failed to validate JWT.","error":{"code":"INVALID_TOKEN","message":"Failed to validate JWT."}}`)); writeErr != nil {
			logger.Error("failed to write error response", slog.Any("err", writeErr))
		}
	}

	middleware := jwtmiddleware.New(
		jwtValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
		jwtmiddleware.WithTokenExtractor(tokenExtractor),
	)

	return func(c *gin.Context) {
		passed := false
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			passed = true
			token := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)

			c.Set(ctxKeyUserID, token.RegisteredClaims.Subject)
			c.Set(ctxKeyValidatedClaims, token)
			if raw, err := tokenExtractor(r); err == nil {
				c.Set(ctxKeyAccessToken, raw)
			}
			c.Request = r

			c.Next()
		}

		middleware.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}
}

// GetUserID extracts the Auth0 subject from the Gin context
func GetUserID(c *gin.Context) (string, error) {
	userID, exists := c.Get(ctxKeyUserID)
	if !exists {
		return "", &AuthError{Code: "MISSING_USER_ID", Message: "User ID not found in context"}
	}

	userIDStr, ok := userID.(string)
	if !ok || userIDStr == "" {
		return "", &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not a string"}
	}

	return userIDStr, nil
}

// GetClaims extracts the validated JWT claims from the Gin context
func GetClaims(c *gin.Context) (*validator.ValidatedClaims, error) {
	claims, exists := c.Get(ctxKeyValidatedClaims)
	if !exists {
		return nil, &AuthError{Code: "MISSING_CLAIMS", Message: "Claims not found in context"}
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Claims are not in the expected format"}
	}

	return validatedClaims, nil
}

// GetAccessToken returns the raw bearer token the request was authenticated with
func GetAccessToken(c *gin.Context) (string, error) {
	token, exists := c.Get(ctxKeyAccessToken)
	if !exists {
		return "", &AuthError{Code: "MISSING_TOKEN", Message: "Access token not found in context"}
	}
	tokenStr, ok := token.(string)
	if !ok || tokenStr == "" {
		return "", &AuthError{Code: "INVALID_TOKEN", Message: "Access token is not a string"}
	}
	return tokenStr, nil
}

// ClaimedRole returns the role asserted by the token, if any
func ClaimedRole(c *gin.Context) string {
	claims, err := GetClaims(c)
	if err != nil {
		return ""
	}
	if custom, ok := claims.CustomClaims.(*CustomClaims); ok {
		return custom.Role
	}
	return ""
}

// RequireScope is a middleware that checks if the token has a specific scope
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := GetClaims(c)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "MISSING_CLAIMS", "Could not retrieve token claims")
			return
		}

		customClaims, ok := claims.CustomClaims.(*CustomClaims)
		if !ok || !customClaims.HasScope(scope) {
			abortJSON(c, http.StatusForbidden, "INSUFFICIENT_SCOPE", "Insufficient permissions to access this resource")
			return
		}

		c.Next()
	}
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}
