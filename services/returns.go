package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/kendall-kelly/storefront-support-api/apperr"
	"github.com/kendall-kelly/storefront-support-api/models"
	"github.com/kendall-kelly/storefront-support-api/utils"
	"gorm.io/gorm"
)

// CreateReturnInput is what a customer submits for one order line
type CreateReturnInput struct {
	OrderID    uint
	ProductID  uint
	ReturnType models.ReturnType
	Reason     models.ReturnReason
	Comment    string
	Images     []string
}

// ReturnService runs the return workflow: eligibility at creation, then
// admin-driven transitions guarded by a conditional status update.
type ReturnService struct {
	db           *gorm.DB
	orders       OrderLookup
	stock        StockRestorer
	replacements ReplacementIssuer
	images       ImageService
	logger       *slog.Logger
	windowDays   int
	now          func() time.Time
}

func NewReturnService(
	db *gorm.DB,
	orders OrderLookup,
	stock StockRestorer,
	replacements ReplacementIssuer,
	images ImageService,
	windowDays int,
	logger *slog.Logger,
) *ReturnService {
	return &ReturnService{
		db:           db,
		orders:       orders,
		stock:        stock,
		replacements: replacements,
		images:       images,
		logger:       logger,
		windowDays:   windowDays,
		now:          time.Now,
	}
}

// WithClock replaces the time source, for tests that pin the window edge
func (s *ReturnService) WithClock(now func() time.Time) *ReturnService {
	s.now = now
	return s
}

// WindowDays is the configured return window
func (s *ReturnService) WindowDays() int {
	return s.windowDays
}

func errReturnNotFound() *apperr.AppError {
	return apperr.NotFoundErr("RETURN_NOT_FOUND", "Return request not found")
}

func (s *ReturnService) validateInput(caller *models.User, in CreateReturnInput) error {
	fields := map[string]string{}
	if in.OrderID == 0 {
		fields["orderId"] = "This field is required"
	}
	if in.ProductID == 0 {
		fields["productId"] = "This field is required"
	}
	if !in.ReturnType.Valid() {
		fields["returnType"] = "Must be Refund or Replacement"
	}
	if !in.Reason.Valid() {
		fields["reason"] = "Must be a recognised return reason"
	}
	if len([]rune(in.Comment)) > models.MaxReturnCommentChars {
		fields["comment"] = fmt.Sprintf("Must be at most %d characters", models.MaxReturnCommentChars)
	}
	switch {
	case len(in.Images) > models.MaxReturnImages:
		fields["images"] = fmt.Sprintf("At most %d images are allowed", models.MaxReturnImages)
	case len(in.Images) == 0 && in.Reason.RequiresEvidence():
		fields["images"] = fmt.Sprintf("At least one photo is required for %q", in.Reason)
	default:
		for _, key := range in.Images {
			if strings.TrimSpace(key) == "" || (s.images != nil && !s.images.OwnedBy(key, caller.ID)) {
				fields["images"] = "Images must be uploaded through the return image endpoint"
				break
			}
		}
	}
	if len(fields) > 0 {
		return apperr.InvalidErr("VALIDATION_ERROR", "Validation failed", fields)
	}
	return nil
}

// DaysSinceDelivery is whole days elapsed, rounded down
func DaysSinceDelivery(deliveredAt, now time.Time) int {
	return int(math.Floor(now.Sub(deliveredAt).Hours() / 24))
}

// Create opens a return for one line of a delivered order owned by caller
func (s *ReturnService) Create(ctx context.Context, caller *models.User, in CreateReturnInput) (*models.ReturnRequest, error) {
	in.Comment = strings.TrimSpace(in.Comment)
	if err := s.validateInput(caller, in); err != nil {
		return nil, err
	}

	order, err := s.orders.FindOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != caller.ID {
		return nil, apperr.ForbiddenErr("NOT_ORDER_OWNER", "You can only return items from your own orders")
	}
	if order.Status != models.OrderStatusDelivered || order.DeliveredAt == nil {
		return nil, apperr.InvalidErr("ORDER_NOT_DELIVERED",
			fmt.Sprintf("Only delivered orders can be returned; this order is %s", order.Status), nil)
	}

	now := s.now()
	if days := DaysSinceDelivery(*order.DeliveredAt, now); days > s.windowDays {
		return nil, apperr.InvalidErr("RETURN_WINDOW_EXPIRED",
			fmt.Sprintf("Return window of %d days has expired", s.windowDays), nil)
	}

	var line *models.OrderItem
	for i := range order.Items {
		if order.Items[i].ProductID == in.ProductID {
			line = &order.Items[i]
			break
		}
	}
	if line == nil {
		return nil, apperr.NotFoundErr("ITEM_NOT_FOUND", "Item not found in this order")
	}

	ret := &models.ReturnRequest{
		OrderID:   order.ID,
		ProductID: in.ProductID,
		UserID:    caller.ID,
		Item: models.ReturnItem{
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Image:     line.Image,
		},
		ReturnType:   in.ReturnType,
		Reason:       in.Reason,
		Comment:      in.Comment,
		Images:       append([]string{}, in.Images...),
		Status:       models.ReturnRequested,
		ReturnWindow: s.windowDays,
		RequestedAt:  now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active models.ReturnRequest
		err := tx.Select("id", "status").
			Where("order_id = ? AND product_id = ? AND status <> ?", ret.OrderID, ret.ProductID, models.ReturnRejected).
			First(&active).Error
		if err == nil {
			return duplicateReturnErr(active.Status)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.FromDB(err, nil)
		}
		if err := tx.Create(ret).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) || utils.IsUniqueViolation(err) {
				return duplicateReturnErr("")
			}
			return apperr.FromDB(err, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("return requested",
		slog.Uint64("return_id", uint64(ret.ID)),
		slog.Uint64("order_id", uint64(ret.OrderID)),
		slog.Uint64("product_id", uint64(ret.ProductID)),
		slog.Uint64("user_id", uint64(caller.ID)),
		slog.String("type", string(ret.ReturnType)),
	)
	return ret, nil
}

func duplicateReturnErr(status models.ReturnStatus) *apperr.AppError {
	msg := "A return request for this item already exists"
	if status != "" {
		msg = fmt.Sprintf("A return request for this item already exists with status %s", status)
	}
	e := apperr.ConflictErr("DUPLICATE_RETURN", msg)
	if status != "" {
		e.Fields = map[string]string{"status": string(status)}
	}
	return e
}

// Apply runs one admin command. The status moves only if it still equals
// cmd.From() at write time; otherwise the caller gets a Conflict naming the
// status that won. Side effects run in the same transaction.
func (s *ReturnService) Apply(ctx context.Context, id uint, cmd ReturnCommand) (*models.ReturnRequest, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var ret models.ReturnRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ret, id).Error; err != nil {
			return apperr.FromDB(err, errReturnNotFound())
		}
		if ret.Status != cmd.From() {
			return statusConflict(cmd, ret.Status)
		}

		updates, err := cmd.changes(&ret, s.now())
		if err != nil {
			return err
		}
		updates["status"] = cmd.To()

		res := tx.Model(&models.ReturnRequest{}).
			Where("id = ? AND status = ?", id, cmd.From()).
			Updates(updates)
		if res.Error != nil {
			return apperr.FromDB(res.Error, nil)
		}
		if res.RowsAffected == 0 {
			var current models.ReturnRequest
			if err := tx.Select("status").First(&current, id).Error; err != nil {
				return apperr.FromDB(err, errReturnNotFound())
			}
			return statusConflict(cmd, current.Status)
		}

		switch cmd.(type) {
		case ConfirmReceived:
			if err := s.stock.Restock(ctx, tx, ret.ProductID, ret.Item.Quantity); err != nil {
				return err
			}
		case ProcessReplacement:
			if err := s.replacements.IssueReplacement(ctx, tx, &ret); err != nil {
				return err
			}
		}

		if err := tx.First(&ret, id).Error; err != nil {
			return apperr.FromDB(err, nil)
		}
		return nil
	})
	if err != nil {
		if apperr.Is(err, apperr.Conflict) {
			s.logger.Info("return transition refused",
				slog.Uint64("return_id", uint64(id)), slog.String("action", cmd.Action()), slog.Any("err", err))
		}
		return nil, apperr.FromDB(err, nil)
	}

	s.logger.Info("return transitioned",
		slog.Uint64("return_id", uint64(id)),
		slog.String("action", cmd.Action()),
		slog.String("from", string(cmd.From())),
		slog.String("to", string(cmd.To())),
	)
	return &ret, nil
}

// Delete hard-deletes a return and hands back the removed row so the
// caller can clean up its images.
func (s *ReturnService) Delete(ctx context.Context, id uint) (*models.ReturnRequest, error) {
	var ret models.ReturnRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&ret, id).Error; err != nil {
			return apperr.FromDB(err, errReturnNotFound())
		}
		res := tx.Delete(&models.ReturnRequest{}, id)
		if res.Error != nil {
			return apperr.FromDB(res.Error, nil)
		}
		if res.RowsAffected == 0 {
			return errReturnNotFound()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("return deleted", slog.Uint64("return_id", uint64(id)), slog.String("status", string(ret.Status)))
	return &ret, nil
}

// ListMine returns the caller's own requests, newest first
func (s *ReturnService) ListMine(ctx context.Context, caller *models.User) ([]models.ReturnRequest, error) {
	returns := []models.ReturnRequest{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", caller.ID).
		Order("requested_at DESC").Order("id DESC").
		Find(&returns).Error
	if err != nil {
		return nil, apperr.FromDB(err, nil)
	}
	return returns, nil
}

// ListAll returns every request, optionally narrowed to one status
func (s *ReturnService) ListAll(ctx context.Context, status models.ReturnStatus) ([]models.ReturnRequest, error) {
	q := s.db.WithContext(ctx).Order("requested_at DESC").Order("id DESC")
	if status != "" {
		if !status.Valid() {
			return nil, apperr.InvalidErr("INVALID_STATUS_FILTER", "Unknown return status",
				map[string]string{"status": string(status)})
		}
		q = q.Where("status = ?", status)
	}

	returns := []models.ReturnRequest{}
	if err := q.Find(&returns).Error; err != nil {
		return nil, apperr.FromDB(err, nil)
	}
	return returns, nil
}

// Get returns one request to an admin or its owner. Other customers get
// the same NotFound as for an id that does not exist.
func (s *ReturnService) Get(ctx context.Context, caller *models.User, id uint) (*models.ReturnRequest, error) {
	var ret models.ReturnRequest
	if err := s.db.WithContext(ctx).First(&ret, id).Error; err != nil {
		return nil, apperr.FromDB(err, errReturnNotFound())
	}
	if !caller.IsAdmin() && ret.UserID != caller.ID {
		return nil, errReturnNotFound()
	}
	return &ret, nil
}
