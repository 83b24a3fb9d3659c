package models

import "time"

// Conversation statuses
const (
	ConversationOpen   = "open"
	ConversationClosed = "closed"
)

// Conversation is a support thread between one customer and the staff.
// OrderID nil means a general support thread.
type Conversation struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CustomerID    uint      `gorm:"not null;index:idx_conversation_lookup" json:"customerId"`
	CustomerName  string    `gorm:"not null" json:"customerName"`  // denormalized at creation
	CustomerEmail string    `gorm:"not null" json:"customerEmail"` // denormalized at creation
	AdminID       *uint     `gorm:"index" json:"adminId"`          // set on first staff reply
	OrderID       *uint     `gorm:"index:idx_conversation_lookup" json:"orderId"`
	Status        string    `gorm:"not null;default:'open';index:idx_conversation_lookup" json:"status"`
	LastMessageAt time.Time `gorm:"not null;index" json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	// computed at read time
	UnreadCount int      `gorm:"-" json:"unreadCount"`
	LastMessage *Message `gorm:"-" json:"lastMessage,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message is an append-only chat line. IsRead is the only mutable field.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID uint      `gorm:"not null;index" json:"conversationId"`
	SenderID       uint      `gorm:"not null;index" json:"senderId"`
	SenderRole     Role      `gorm:"type:varchar(16);not null" json:"senderRole"`
	MessageText    string    `gorm:"type:text;not null" json:"messageText"`
	IsRead         bool      `gorm:"not null;default:false" json:"isRead"`
	CreatedAt      time.Time `gorm:"not null;index" json:"createdAt"`
}

// TableName specifies the table name for the Message model
func (Message) TableName() string {
	return "messages"
}
