package controllers

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-support-api/middleware"
	"gorm.io/gorm"
)

// RouterDeps is everything the HTTP surface is built from. Auth is the token
// check placed in front of every authenticated route.
type RouterDeps struct {
	DB             *gorm.DB
	Logger         *slog.Logger
	Auth           gin.HandlerFunc
	AllowedOrigins []string
	// RequestTimeout bounds each request's storage work; zero disables it
	RequestTimeout time.Duration
	AdminScope     string

	Health    *HealthController
	Users     *UserController
	Returns   *ReturnController
	Chat      *ChatController
	Uploads   *UploadController
	WebSocket *WebSocketController
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// NewRouter wires the /api/v1 surface
func NewRouter(d RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Logger(d.Logger),
		middleware.ErrorHandler(d.Logger),
		middleware.Recovery(d.Logger),
		cors.New(corsConfig(d.AllowedOrigins)),
	)

	v1 := router.Group("/api/v1", middleware.Deadline(d.RequestTimeout))
	{
		v1.GET("/health", d.Health.HealthCheck)
		v1.GET("/database/status", d.Health.DatabaseStatus)

		// Creating a profile needs only a valid token
		v1.POST("/users", d.Auth, d.Users.CreateUser)

		authed := v1.Group("", d.Auth, middleware.LoadSession(d.DB))
		{
			authed.GET("/users/me", d.Users.GetMyProfile)
			authed.PUT("/users/me", d.Users.UpdateMyProfile)

			authed.GET("/ws", d.WebSocket.Connect)

			customer := authed.Group("", middleware.RequireCustomer())
			customer.POST("/return/images", d.Uploads.UploadReturnImage)
			customer.POST("/return/new", d.Returns.CreateReturn)
			customer.GET("/returns/me", d.Returns.ListMyReturns)
			customer.GET("/chat/conversation", d.Chat.GetConversation)
			customer.PUT("/chat/conversation/:id/reopen", d.Chat.Reopen)

			authed.GET("/return/:id", d.Returns.GetReturn)
			authed.POST("/chat/message", d.Chat.SendMessage)
			authed.PUT("/chat/conversation/:id/read", d.Chat.MarkRead)

			adminChain := []gin.HandlerFunc{middleware.RequireAdmin()}
			if d.AdminScope != "" {
				adminChain = append(adminChain, middleware.RequireScope(d.AdminScope))
			}
			admin := authed.Group("/admin", adminChain...)
			admin.GET("/returns", d.Returns.ListAllReturns)
			admin.PUT("/return/:id/approve", d.Returns.Approve)
			admin.PUT("/return/:id/reject", d.Returns.Reject)
			admin.PUT("/return/:id/pickup", d.Returns.SchedulePickup)
			admin.PUT("/return/:id/received", d.Returns.ConfirmReceived)
			admin.PUT("/return/:id/refund", d.Returns.ProcessRefund)
			admin.PUT("/return/:id/replacement", d.Returns.ProcessReplacement)
			admin.DELETE("/return/:id", d.Returns.DeleteReturn)
			admin.GET("/conversations", d.Chat.ListConversations)
			admin.GET("/conversation/:id/messages", d.Chat.GetMessages)
			admin.PUT("/conversation/:id/close", d.Chat.CloseConversation)
		}
	}

	return router
}
