package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kendall-kelly/storefront-support-api/realtime"
)

// WebSocketController upgrades authenticated requests into hub sessions
type WebSocketController struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketController accepts upgrades from allowedOrigins. An empty list
// or "*" allows any origin.
func NewWebSocketController(hub *realtime.Hub, allowedOrigins []string, logger *slog.Logger) *WebSocketController {
	return &WebSocketController{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// Connect handles GET /api/v1/ws. The session's identity is the profile
// loaded from the token; nothing a client sends later can change it.
func (wc *WebSocketController) Connect(c *gin.Context) {
	user, ok := sessionUser(c)
	if !ok {
		return
	}

	conn, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		wc.logger.Debug("websocket upgrade failed", slog.Any("err", err))
		return
	}

	session := realtime.NewSession(user, conn)
	wc.hub.Attach(session)
	wc.logger.Info("websocket connected",
		slog.String("session_id", session.ID), slog.Uint64("user_id", uint64(user.ID)), slog.String("role", string(user.Role)))

	go session.WritePump(wc.logger)
	go session.ReadPump(wc.hub)
}
