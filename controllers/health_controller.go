package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-support-api/apperr"
	"github.com/kendall-kelly/storefront-support-api/middleware"
	"github.com/kendall-kelly/storefront-support-api/realtime"
	"gorm.io/gorm"
)

// HealthController reports liveness and store connectivity
type HealthController struct {
	db  *gorm.DB
	hub *realtime.Hub
}

func NewHealthController(db *gorm.DB, hub *realtime.Hub) *HealthController {
	return &HealthController{db: db, hub: hub}
}

// HealthCheck handles GET /api/v1/health
func (hc *HealthController) HealthCheck(c *gin.Context) {
	body := gin.H{
		"success": true,
		"message": "Storefront Support API is running",
	}
	if hc.hub != nil {
		body["realtime"] = hc.hub.Stats()
	}
	c.JSON(http.StatusOK, body)
}

// DatabaseStatus handles GET /api/v1/database/status - checks connectivity and lists tables
func (hc *HealthController) DatabaseStatus(c *gin.Context) {
	sqlDB, err := hc.db.DB()
	if err != nil {
		middleware.Fail(c, &apperr.AppError{Kind: apperr.Internal, Code: "DATABASE_ERROR", PublicMsg: "Failed to get database instance", Err: err})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		middleware.Fail(c, &apperr.AppError{Kind: apperr.Retryable, Code: "DATABASE_CONNECTION_ERROR", PublicMsg: "Database connection failed", Err: err})
		return
	}

	tables, err := hc.db.WithContext(c.Request.Context()).Migrator().GetTables()
	if err != nil {
		middleware.Fail(c, &apperr.AppError{Kind: apperr.Internal, Code: "DATABASE_QUERY_ERROR", PublicMsg: "Failed to query tables", Err: err})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
