package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-support-api/apperr"
	"github.com/kendall-kelly/storefront-support-api/middleware"
	"github.com/kendall-kelly/storefront-support-api/models"
	"github.com/kendall-kelly/storefront-support-api/services"
	"github.com/kendall-kelly/storefront-support-api/utils"
	"gorm.io/gorm"
)

// UpdateUserRequest represents the request body for updating a user profile
type UpdateUserRequest struct {
	Name  string `json:"name" binding:"omitempty,max=120"`
	Email string `json:"email" binding:"omitempty,email"`
}

// UserController manages storefront profiles
type UserController struct {
	db       *gorm.DB
	profiles services.ProfileProvider
	logger   *slog.Logger
}

func NewUserController(db *gorm.DB, profiles services.ProfileProvider, logger *slog.Logger) *UserController {
	return &UserController{db: db, profiles: profiles, logger: logger}
}

// CreateUser handles POST /api/v1/users - creates the caller's profile from Auth0 userinfo.
// The role comes from the token's role claim and defaults to customer.
func (uc *UserController) CreateUser(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		middleware.Fail(c, apperr.UnauthorizedErr("UNAUTHORIZED", "Could not extract user ID from token"))
		return
	}

	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		middleware.Fail(c, apperr.UnauthorizedErr("MISSING_TOKEN", "Access token not found"))
		return
	}

	userInfo, err := uc.profiles.GetUserInfo(c.Request.Context(), accessToken)
	if err != nil {
		middleware.Fail(c, &apperr.AppError{
			Kind: apperr.Retryable, Code: "AUTH0_ERROR",
			PublicMsg: "Failed to fetch user information from Auth0", Err: err,
		})
		return
	}

	if userInfo.Email == "" {
		middleware.Fail(c, apperr.InvalidErr("MISSING_EMAIL", "Email not provided by Auth0", nil))
		return
	}
	if userInfo.Name == "" {
		middleware.Fail(c, apperr.InvalidErr("MISSING_NAME", "Name not provided by Auth0", nil))
		return
	}

	role := models.RoleCustomer
	if claimed := models.Role(middleware.ClaimedRole(c)); claimed.Valid() {
		role = claimed
	}

	user := models.User{
		Auth0ID: auth0ID,
		Name:    userInfo.Name,
		Email:   userInfo.Email,
		Role:    role,
	}
	if err := uc.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || utils.IsUniqueViolation(err) {
			middleware.Fail(c, apperr.ConflictErr("USER_EXISTS", "A user with this Auth0 ID or email already exists"))
			return
		}
		middleware.Fail(c, apperr.FromDB(err, nil))
		return
	}

	uc.logger.Info("user profile created", slog.Uint64("user_id", uint64(user.ID)), slog.String("role", string(user.Role)))
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    user,
	})
}

// GetMyProfile handles GET /api/v1/users/me - gets current user's profile
func (uc *UserController) GetMyProfile(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.Fail(c, apperr.UnauthorizedErr("UNAUTHORIZED", "Could not extract user information"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    user,
	})
}

// UpdateMyProfile handles PUT /api/v1/users/me - updates current user's profile
func (uc *UserController) UpdateMyProfile(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.Fail(c, apperr.UnauthorizedErr("UNAUTHORIZED", "Could not extract user information"))
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, utils.BindError(err))
		return
	}

	updates := make(map[string]interface{})
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Email != "" {
		updates["email"] = req.Email
	}

	if len(updates) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    user,
		})
		return
	}

	db := uc.db.WithContext(c.Request.Context())
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || utils.IsUniqueViolation(err) {
			middleware.Fail(c, apperr.ConflictErr("EMAIL_EXISTS", "A user with this email already exists"))
			return
		}
		middleware.Fail(c, apperr.FromDB(err, nil))
		return
	}

	var updated models.User
	if err := db.First(&updated, user.ID).Error; err != nil {
		middleware.Fail(c, apperr.FromDB(err, nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    updated,
	})
}
