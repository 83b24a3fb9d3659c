package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-support-api/config"
	"github.com/kendall-kelly/storefront-support-api/middleware"
	"github.com/kendall-kelly/storefront-support-api/models"
	"github.com/kendall-kelly/storefront-support-api/services"
	"github.com/kendall-kelly/storefront-support-api/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupMockAuth0Server creates a mock HTTP server that simulates Auth0's /userinfo endpoint
func setupMockAuth0Server(userInfoMap map[string]*services.Auth0UserInfo) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/userinfo" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if len(authHeader) < 7 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		userInfo, exists := userInfoMap[authHeader[7:]]
		if !exists {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(userInfo)
	}))
}

// mockAuthMiddleware sets up the context exactly as EnsureValidToken does,
// including the role claim
func mockAuthMiddleware(auth0ID, role, accessToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", auth0ID)
		c.Set("access_token", accessToken)
		c.Set("validated_claims", &validator.ValidatedClaims{
			RegisteredClaims: validator.RegisteredClaims{Subject: auth0ID},
			CustomClaims:     &middleware.CustomClaims{Role: role},
		})
		c.Next()
	}
}

func TestCreateUser(t *testing.T) {
	tests := []struct {
		name           string
		auth0ID        string
		email          string
		userName       string
		role           string
		accessToken    string
		expectedStatus int
		expectedCode   string
		expectedRole   models.Role
	}{
		{
			name:           "Create customer user successfully",
			auth0ID:        "auth0|123456",
			email:          "john@example.com",
			userName:       "John Doe",
			role:           "customer",
			accessToken:    "token-123456",
			expectedStatus: http.StatusCreated,
			expectedRole:   models.RoleCustomer,
		},
		{
			name:           "Create admin user from role claim",
			auth0ID:        "auth0|admin789",
			email:          "support@example.com",
			userName:       "Support Desk",
			role:           "admin",
			accessToken:    "token-admin789",
			expectedStatus: http.StatusCreated,
			expectedRole:   models.RoleAdmin,
		},
		{
			name:           "Unknown role claim falls back to customer",
			auth0ID:        "auth0|weird",
			email:          "weird@example.com",
			userName:       "Weird Role",
			role:           "technician",
			accessToken:    "token-weird",
			expectedStatus: http.StatusCreated,
			expectedRole:   models.RoleCustomer,
		},
		{
			name:           "Fail with missing email",
			auth0ID:        "auth0|noemail",
			userName:       "No Email User",
			role:           "customer",
			accessToken:    "token-noemail",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "MISSING_EMAIL",
		},
		{
			name:           "Fail with missing name",
			auth0ID:        "auth0|noname",
			email:          "noname@example.com",
			role:           "customer",
			accessToken:    "token-noname",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "MISSING_NAME",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.NewTestDB(t)
			logger := testutil.DiscardLogger()

			mockServer := setupMockAuth0Server(map[string]*services.Auth0UserInfo{
				tt.accessToken: {Sub: tt.auth0ID, Email: tt.email, Name: tt.userName},
			})
			defer mockServer.Close()

			uc := NewUserController(db, services.NewAuth0Service(&config.Config{Auth0Domain: mockServer.URL}, logger), logger)
			router := gin.New()
			router.Use(middleware.ErrorHandler(logger))
			router.POST("/users", mockAuthMiddleware(tt.auth0ID, tt.role, tt.accessToken), uc.CreateUser)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/users", nil))

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, errorCode(t, w))
				return
			}

			var user models.User
			dataOf(t, w, &user)
			assert.Equal(t, tt.auth0ID, user.Auth0ID)
			assert.Equal(t, tt.email, user.Email)
			assert.Equal(t, tt.expectedRole, user.Role)
		})
	}
}

func TestCreateUserTwice(t *testing.T) {
	h := newAPIHarness(t, map[string]*services.Auth0UserInfo{
		"test-token": {Sub: "auth0|dup", Email: "dup@example.com", Name: "Dup"},
	})
	caller := &models.User{Auth0ID: "auth0|dup"}

	w := h.do(http.MethodPost, "/api/v1/users", caller, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(http.MethodPost, "/api/v1/users", caller, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "USER_EXISTS", errorCode(t, w))
}

func TestCreateUserAuth0Unavailable(t *testing.T) {
	h := newAPIHarness(t, nil)

	w := h.do(http.MethodPost, "/api/v1/users", &models.User{Auth0ID: "auth0|ghost"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "AUTH0_ERROR", errorCode(t, w))
}

func TestGetMyProfile(t *testing.T) {
	h := newAPIHarness(t, nil)
	user := testutil.CreateUser(t, h.db, "mira", models.RoleCustomer)

	w := h.do(http.MethodGet, "/api/v1/users/me", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.User
	dataOf(t, w, &got)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.Email, got.Email)

	w = h.do(http.MethodGet, "/api/v1/users/me", &models.User{Auth0ID: "auth0|nobody"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "USER_NOT_FOUND", errorCode(t, w))

	w = h.do(http.MethodGet, "/api/v1/users/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateMyProfile(t *testing.T) {
	h := newAPIHarness(t, nil)
	user := testutil.CreateUser(t, h.db, "mira", models.RoleCustomer)
	other := testutil.CreateUser(t, h.db, "nate", models.RoleCustomer)

	w := h.do(http.MethodPut, "/api/v1/users/me", user, map[string]string{"name": "Mira K"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got models.User
	dataOf(t, w, &got)
	assert.Equal(t, "Mira K", got.Name)
	assert.Equal(t, user.Email, got.Email)

	w = h.do(http.MethodPut, "/api/v1/users/me", user, map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))

	w = h.do(http.MethodPut, "/api/v1/users/me", user, map[string]string{"email": other.Email})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMAIL_EXISTS", errorCode(t, w))
}
