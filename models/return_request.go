package models

import (
	"time"

	"gorm.io/datatypes"
)

// ReturnStatus is a state of the return workflow
type ReturnStatus string

const (
	ReturnRequested       ReturnStatus = "REQUESTED"
	ReturnApproved        ReturnStatus = "APPROVED"
	ReturnRejected        ReturnStatus = "REJECTED"
	ReturnPickupScheduled ReturnStatus = "PICKUP_SCHEDULED"
	ReturnItemReceived    ReturnStatus = "ITEM_RECEIVED"
	ReturnRefunded        ReturnStatus = "REFUNDED"
	ReturnReplaced        ReturnStatus = "REPLACED"
)

var returnStatuses = []ReturnStatus{
	ReturnRequested, ReturnApproved, ReturnRejected, ReturnPickupScheduled,
	ReturnItemReceived, ReturnRefunded, ReturnReplaced,
}

// Valid reports whether s is a known status
func (s ReturnStatus) Valid() bool {
	for _, v := range returnStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can leave s
func (s ReturnStatus) Terminal() bool {
	return s == ReturnRejected || s == ReturnRefunded || s == ReturnReplaced
}

// ReturnType is what the customer wants back
type ReturnType string

const (
	ReturnTypeRefund      ReturnType = "Refund"
	ReturnTypeReplacement ReturnType = "Replacement"
)

func (t ReturnType) Valid() bool {
	return t == ReturnTypeRefund || t == ReturnTypeReplacement
}

// ReturnReason is the customer's stated reason
type ReturnReason string

const (
	ReasonDamaged        ReturnReason = "Damaged Product"
	ReasonWrongItem      ReturnReason = "Wrong Item Received"
	ReasonSizeFit        ReturnReason = "Size/Fit Issue"
	ReasonNotAsDescribed ReturnReason = "Not as Described"
	ReasonQuality        ReturnReason = "Quality Issue"
	ReasonOther          ReturnReason = "Other"
)

var returnReasons = []ReturnReason{
	ReasonDamaged, ReasonWrongItem, ReasonSizeFit, ReasonNotAsDescribed, ReasonQuality, ReasonOther,
}

func (r ReturnReason) Valid() bool {
	for _, v := range returnReasons {
		if r == v {
			return true
		}
	}
	return false
}

// RequiresEvidence reports whether a photo of the item must accompany the request
func (r ReturnReason) RequiresEvidence() bool {
	return r == ReasonDamaged || r == ReasonWrongItem
}

const (
	MaxReturnImages       = 5
	MaxReturnCommentChars = 500
)

// ReturnItem is the order line as it was when the return was requested
type ReturnItem struct {
	Name      string  `gorm:"not null" json:"name"`
	Quantity  int     `gorm:"not null" json:"quantity"`
	UnitPrice float64 `gorm:"not null" json:"unitPrice"`
	Image     string  `json:"image"`
}

// Total is unit price times quantity
func (i ReturnItem) Total() float64 {
	return i.UnitPrice * float64(i.Quantity)
}

// ReturnRequest is a merchandise return moving through the workflow.
// At most one non-rejected request may exist per order line.
type ReturnRequest struct {
	ID                uint                        `gorm:"primaryKey" json:"id"`
	OrderID           uint                        `gorm:"not null;uniqueIndex:idx_return_active_line,where:status <> 'REJECTED'" json:"orderId"`
	ProductID         uint                        `gorm:"not null;index;uniqueIndex:idx_return_active_line" json:"productId"`
	UserID            uint                        `gorm:"not null;index" json:"userId"`
	Item              ReturnItem                  `gorm:"embedded;embeddedPrefix:item_" json:"item"`
	ReturnType        ReturnType                  `gorm:"type:varchar(16);not null" json:"returnType"`
	Reason            ReturnReason                `gorm:"type:varchar(32);not null" json:"reason"`
	Comment           string                      `gorm:"type:text" json:"comment"`
	Images            datatypes.JSONSlice[string] `json:"images"`
	ImageURLs         []string                    `gorm:"-" json:"imageUrls,omitempty"` // computed, presigned
	Status            ReturnStatus                `gorm:"type:varchar(24);not null;index;default:'REQUESTED'" json:"status"`
	AdminComment      string                      `gorm:"type:text" json:"adminComment"`
	RefundAmount      *float64                    `json:"refundAmount"`
	ReturnWindow      int                         `gorm:"not null" json:"returnWindow"`
	RequestedAt       time.Time                   `gorm:"not null" json:"requestedAt"`
	ApprovedAt        *time.Time                  `json:"approvedAt"`
	RejectedAt        *time.Time                  `json:"rejectedAt"`
	PickupScheduledAt *time.Time                  `json:"pickupScheduledAt"`
	ItemReceivedAt    *time.Time                  `json:"itemReceivedAt"`
	RefundedAt        *time.Time                  `json:"refundedAt"`
	ReplacedAt        *time.Time                  `json:"replacedAt"`
	CreatedAt         time.Time                   `json:"createdAt"`
	UpdatedAt         time.Time                   `json:"updatedAt"`
}

func (ReturnRequest) TableName() string {
	return "return_requests"
}
