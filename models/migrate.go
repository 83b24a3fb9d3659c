package models

import (
	"fmt"

	"gorm.io/gorm"
)

// All lists every table the service owns or reads
func All() []interface{} {
	return []interface{}{
		&User{},
		&Product{},
		&Order{},
		&OrderItem{},
		&ReturnRequest{},
		&Conversation{},
		&Message{},
	}
}

// openConversationIndex keeps one open thread per customer and order.
// A null order is folded to 0 so general threads are covered too.
const openConversationIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_conversation_open
ON conversations (customer_id, COALESCE(order_id, 0)) WHERE status = 'open'`

// Migrate creates or updates the schema. The statement above works on
// both postgres and sqlite.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec(openConversationIndex).Error; err != nil {
		return fmt.Errorf("create open conversation index: %w", err)
	}
	return nil
}
