package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/kendall-kelly/storefront-support-api/apperr"
	"github.com/kendall-kelly/storefront-support-api/models"
)

// ReturnCommand is one staff action on a return. The set is closed: each
// command names the single status it may leave and the one it enters.
type ReturnCommand interface {
	Action() string
	From() models.ReturnStatus
	To() models.ReturnStatus
	Validate() error

	// changes checks the command against the current row and returns the
	// columns to write alongside the new status.
	changes(ret *models.ReturnRequest, now time.Time) (map[string]interface{}, error)
}

// Approve accepts a requested return
type Approve struct {
	AdminComment string
}

func (Approve) Action() string            { return "approve" }
func (Approve) From() models.ReturnStatus { return models.ReturnRequested }
func (Approve) To() models.ReturnStatus   { return models.ReturnApproved }
func (a Approve) Validate() error         { return validateComment(a.AdminComment) }
func (a Approve) changes(_ *models.ReturnRequest, now time.Time) (map[string]interface{}, error) {
	updates := map[string]interface{}{"approved_at": now}
	if c := strings.TrimSpace(a.AdminComment); c != "" {
		updates["admin_comment"] = c
	}
	return updates, nil
}

// Reject declines a requested return. The comment is shown to the customer.
type Reject struct {
	AdminComment string
}

func (Reject) Action() string            { return "reject" }
func (Reject) From() models.ReturnStatus { return models.ReturnRequested }
func (Reject) To() models.ReturnStatus   { return models.ReturnRejected }
func (r Reject) Validate() error {
	if strings.TrimSpace(r.AdminComment) == "" {
		return apperr.InvalidErr("ADMIN_COMMENT_REQUIRED", "A comment is required when rejecting a return",
			map[string]string{"adminComment": "This field is required"})
	}
	return validateComment(r.AdminComment)
}
func (r Reject) changes(_ *models.ReturnRequest, now time.Time) (map[string]interface{}, error) {
	return map[string]interface{}{
		"rejected_at":   now,
		"admin_comment": strings.TrimSpace(r.AdminComment),
	}, nil
}

// SchedulePickup books the courier. A nil date means now.
type SchedulePickup struct {
	PickupDate *time.Time
}

func (SchedulePickup) Action() string            { return "schedule_pickup" }
func (SchedulePickup) From() models.ReturnStatus { return models.ReturnApproved }
func (SchedulePickup) To() models.ReturnStatus   { return models.ReturnPickupScheduled }
func (p SchedulePickup) Validate() error {
	if p.PickupDate != nil && p.PickupDate.IsZero() {
		return apperr.InvalidErr("VALIDATION_ERROR", "Validation failed",
			map[string]string{"pickupDate": "Must be a valid date"})
	}
	return nil
}
func (p SchedulePickup) changes(_ *models.ReturnRequest, now time.Time) (map[string]interface{}, error) {
	at := now
	if p.PickupDate != nil {
		at = *p.PickupDate
	}
	return map[string]interface{}{"pickup_scheduled_at": at}, nil
}

// ConfirmReceived records the item arriving at the warehouse. The service
// restocks the product in the same transaction.
type ConfirmReceived struct{}

func (ConfirmReceived) Action() string            { return "confirm_received" }
func (ConfirmReceived) From() models.ReturnStatus { return models.ReturnPickupScheduled }
func (ConfirmReceived) To() models.ReturnStatus   { return models.ReturnItemReceived }
func (ConfirmReceived) Validate() error           { return nil }
func (ConfirmReceived) changes(_ *models.ReturnRequest, now time.Time) (map[string]interface{}, error) {
	return map[string]interface{}{"item_received_at": now}, nil
}

// ProcessRefund closes a refund return. A nil amount refunds the line total.
type ProcessRefund struct {
	RefundAmount *float64
}

func (ProcessRefund) Action() string            { return "process_refund" }
func (ProcessRefund) From() models.ReturnStatus { return models.ReturnItemReceived }
func (ProcessRefund) To() models.ReturnStatus   { return models.ReturnRefunded }
func (p ProcessRefund) Validate() error {
	if p.RefundAmount != nil && *p.RefundAmount < 0 {
		return apperr.InvalidErr("VALIDATION_ERROR", "Validation failed",
			map[string]string{"refundAmount": "Must be greater than or equal to 0"})
	}
	return nil
}
func (p ProcessRefund) changes(ret *models.ReturnRequest, now time.Time) (map[string]interface{}, error) {
	if ret.ReturnType != models.ReturnTypeRefund {
		return nil, wrongTypeErr(ret.ReturnType, "refund")
	}
	amount := ret.Item.Total()
	if p.RefundAmount != nil {
		amount = *p.RefundAmount
	}
	return map[string]interface{}{"refund_amount": amount, "refunded_at": now}, nil
}

// ProcessReplacement closes a replacement return
type ProcessReplacement struct{}

func (ProcessReplacement) Action() string            { return "process_replacement" }
func (ProcessReplacement) From() models.ReturnStatus { return models.ReturnItemReceived }
func (ProcessReplacement) To() models.ReturnStatus   { return models.ReturnReplaced }
func (ProcessReplacement) Validate() error           { return nil }
func (ProcessReplacement) changes(ret *models.ReturnRequest, now time.Time) (map[string]interface{}, error) {
	if ret.ReturnType != models.ReturnTypeReplacement {
		return nil, wrongTypeErr(ret.ReturnType, "replacement")
	}
	return map[string]interface{}{"replaced_at": now}, nil
}

func validateComment(c string) error {
	if len([]rune(c)) > models.MaxReturnCommentChars {
		return apperr.InvalidErr("VALIDATION_ERROR", "Validation failed",
			map[string]string{"adminComment": fmt.Sprintf("Must be at most %d characters", models.MaxReturnCommentChars)})
	}
	return nil
}

func wrongTypeErr(t models.ReturnType, action string) *apperr.AppError {
	e := apperr.ConflictErr("WRONG_RETURN_TYPE",
		fmt.Sprintf("Return type is %s; %s not applicable", t, action))
	e.Fields = map[string]string{"returnType": string(t)}
	return e
}

func statusConflict(cmd ReturnCommand, current models.ReturnStatus) *apperr.AppError {
	e := apperr.ConflictErr("INVALID_STATUS",
		fmt.Sprintf("Cannot %s a return in status %s; it must be %s",
			strings.ReplaceAll(cmd.Action(), "_", " "), current, cmd.From()))
	e.Fields = map[string]string{"status": string(current)}
	return e
}
