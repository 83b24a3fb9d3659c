package controllers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-support-api/middleware"
	"github.com/kendall-kelly/storefront-support-api/services"
	"github.com/kendall-kelly/storefront-support-api/utils"
)

// SendMessageRequest represents the request body for posting to a conversation
type SendMessageRequest struct {
	ConversationID uint   `json:"conversationId" binding:"required"`
	MessageText    string `json:"messageText"`
}

// ChatController serves the support chat REST endpoints. Real-time
// notification happens over the websocket once the client announces the
// stored message.
type ChatController struct {
	conversations *services.ConversationService
	logger        *slog.Logger
}

func NewChatController(conversations *services.ConversationService, logger *slog.Logger) *ChatController {
	return &ChatController{conversations: conversations, logger: logger}
}

// GetConversation handles GET /api/v1/chat/conversation?orderId=
func (cc *ChatController) GetConversation(c *gin.Context) {
	user, ok := sessionUser(c)
	if !ok {
		return
	}
	orderID, ok := optionalUintQuery(c, "orderId")
	if !ok {
		return
	}

	thread, err := cc.conversations.GetOrCreate(c.Request.Context(), user, orderID)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	respond(c, http.StatusOK, thread)
}

// SendMessage handles POST /api/v1/chat/message
func (cc *ChatController) SendMessage(c *gin.Context) {
	user, ok := sessionUser(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, utils.BindError(err))
		return
	}

	msg, err := cc.conversations.SendMessage(c.Request.Context(), user, req.ConversationID, req.MessageText)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	respond(c, http.StatusCreated, msg)
}

// MarkRead handles PUT /api/v1/chat/conversation/:id/read
func (cc *ChatController) MarkRead(c *gin.Context) {
	user, ok := sessionUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	n, err := cc.conversations.MarkRead(c.Request.Context(), user, id)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"conversationId": id, "markedRead": n})
}

// Reopen handles PUT /api/v1/chat/conversation/:id/reopen
func (cc *ChatController) Reopen(c *gin.Context) {
	user, ok := sessionUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	conv, err := cc.conversations.Reopen(c.Request.Context(), user, id)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	respond(c, http.StatusOK, conv)
}

// ListConversations handles GET /api/v1/admin/conversations?status=
func (cc *ChatController) ListConversations(c *gin.Context) {
	list, err := cc.conversations.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	respond(c, http.StatusOK, list)
}

// GetMessages handles GET /api/v1/admin/conversation/:id/messages
func (cc *ChatController) GetMessages(c *gin.Context) {
	user, ok := sessionUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	msgs, err := cc.conversations.Messages(c.Request.Context(), user, id)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	respond(c, http.StatusOK, msgs)
}

// CloseConversation handles PUT /api/v1/admin/conversation/:id/close
func (cc *ChatController) CloseConversation(c *gin.Context) {
	user, ok := sessionUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	conv, err := cc.conversations.Close(c.Request.Context(), user, id)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	respond(c, http.StatusOK, conv)
}
