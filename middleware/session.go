package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-support-api/apperr"
	"github.com/kendall-kelly/storefront-support-api/models"
	"gorm.io/gorm"
)

const ctxKeyCurrentUser = "current_user"

// LoadSession resolves the token subject to a stored profile. Handlers read
// the caller's id and role from that profile only.
func LoadSession(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth0ID, err := GetUserID(c)
		if err != nil {
			Fail(c, apperr.UnauthorizedErr("UNAUTHORIZED", "Could not extract user information"))
			return
		}

		var user models.User
		if err := db.WithContext(c.Request.Context()).Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
			Fail(c, apperr.FromDB(err, apperr.NotFoundErr("USER_NOT_FOUND", "User profile not found. Please create a profile first.")))
			return
		}
		if !user.Role.Valid() {
			Fail(c, apperr.ForbiddenErr("FORBIDDEN", "Account role is not permitted"))
			return
		}

		SetCurrentUser(c, &user)
		c.Next()
	}
}

// SetCurrentUser stores the session user (also used by tests)
func SetCurrentUser(c *gin.Context, u *models.User) {
	c.Set(ctxKeyCurrentUser, u)
}

// CurrentUser returns the profile loaded by LoadSession
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(ctxKeyCurrentUser)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok && u != nil
}

// RequireRole lets only sessions holding role through
func RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			Fail(c, apperr.UnauthorizedErr("UNAUTHORIZED", "Authentication required"))
			return
		}
		if u.Role != role {
			Fail(c, apperr.ForbiddenErr("FORBIDDEN", "You do not have permission to access this resource"))
			return
		}
		c.Next()
	}
}

// RequireAdmin is RequireRole(models.RoleAdmin)
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin)
}

// RequireCustomer is RequireRole(models.RoleCustomer)
func RequireCustomer() gin.HandlerFunc {
	return RequireRole(models.RoleCustomer)
}
