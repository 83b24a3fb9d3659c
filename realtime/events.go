package realtime

import (
	"encoding/json"
	"time"

	"github.com/kendall-kelly/storefront-support-api/models"
)

// Client to server events
const (
	EventUserOnline        = "user_online"
	EventAdminOnline       = "admin_online"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventNewMessage        = "new_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventMessagesRead      = "messages_read"
)

// Server to client events
const (
	EventCustomerMessage    = "customer_message"
	EventAdminMessage       = "admin_message"
	EventMessageReceived    = "message_received"
	EventUserTyping         = "user_typing"
	EventMessagesMarkedRead = "messages_marked_read"
	EventError              = "error"
)

// Inbound is a frame received from a client
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound is a frame sent to a client
type Outbound struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// UserOnlineData may repeat the caller's id; anything else is refused
type UserOnlineData struct {
	UserID uint `json:"userId"`
}

// ConversationData names a conversation room
type ConversationData struct {
	ConversationID uint `json:"conversationId"`
}

// NewMessageData announces a message already stored through the REST API
type NewMessageData struct {
	ConversationID uint `json:"conversationId"`
	MessageID      uint `json:"messageId"`
}

// MessagePayload carries a stored message to its recipients
type MessagePayload struct {
	ConversationID uint            `json:"conversationId"`
	Message        *models.Message `json:"message"`
}

// TypingPayload tells the room who is typing
type TypingPayload struct {
	ConversationID uint        `json:"conversationId"`
	UserID         uint        `json:"userId"`
	Role           models.Role `json:"role"`
	IsTyping       bool        `json:"isTyping"`
}

// ReadPayload tells the room one side has caught up
type ReadPayload struct {
	ConversationID uint        `json:"conversationId"`
	ReaderRole     models.Role `json:"readerRole"`
}

// ErrorPayload explains a refused event to the sender only
type ErrorPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Delivery kinds carried on the bus
const (
	DeliveryMessage = "message"
	DeliveryTyping  = "typing"
	DeliveryRead    = "read"
)

// Delivery is one fan-out job. It carries everything needed to route it so
// any instance can deliver to its own sessions without another lookup.
type Delivery struct {
	Kind           string          `json:"kind"`
	ConversationID uint            `json:"conversationId"`
	CustomerID     uint            `json:"customerId,omitempty"`
	Message        *models.Message `json:"message,omitempty"`
	UserID         uint            `json:"userId,omitempty"`
	Role           models.Role     `json:"role,omitempty"`
	Typing         bool            `json:"typing,omitempty"`
	Origin         string          `json:"origin"`
}
