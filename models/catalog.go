package models

import "time"

// Product is the catalog collaborator's record. Only Stock is touched by
// this service, and only through an atomic delta.
type Product struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Price     float64   `gorm:"not null" json:"price"`
	Stock     int       `gorm:"not null;default:0" json:"stock"`
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Product) TableName() string {
	return "products"
}

// Order statuses owned by the order collaborator
const (
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Order is the order collaborator's record: ownership, delivery status and
// delivery time are what return eligibility reads.
type Order struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	CustomerID  uint        `gorm:"not null;index" json:"customerId"`
	Status      string      `gorm:"not null;default:'processing'" json:"status"`
	DeliveredAt *time.Time  `json:"deliveredAt"`
	Items       []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem is one purchased line of an order
type OrderItem struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	OrderID   uint    `gorm:"not null;index" json:"orderId"`
	ProductID uint    `gorm:"not null;index" json:"productId"`
	Name      string  `gorm:"not null" json:"name"`
	Quantity  int     `gorm:"not null;check:quantity > 0" json:"quantity"`
	UnitPrice float64 `gorm:"not null" json:"unitPrice"`
	Image     string  `json:"image"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
