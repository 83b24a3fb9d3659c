package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kendall-kelly/storefront-support-api/apperr"
	"github.com/kendall-kelly/storefront-support-api/models"
	"github.com/kendall-kelly/storefront-support-api/utils"
	"gorm.io/gorm"
)

// MaxMessageChars caps a single chat line
const MaxMessageChars = 2000

// ConversationThread is a conversation with its full history
type ConversationThread struct {
	Conversation *models.Conversation `json:"conversation"`
	Messages     []models.Message     `json:"messages"`
	UnreadCount  int64                `json:"unreadCount"`
}

// ConversationService owns the support chat threads and their messages
type ConversationService struct {
	db     *gorm.DB
	orders OrderLookup
	logger *slog.Logger
	now    func() time.Time
}

func NewConversationService(db *gorm.DB, orders OrderLookup, logger *slog.Logger) *ConversationService {
	return &ConversationService{db: db, orders: orders, logger: logger, now: time.Now}
}

func errConversationNotFound() *apperr.AppError {
	return apperr.NotFoundErr("CONVERSATION_NOT_FOUND", "Conversation not found")
}

// CanAccess reports whether user may read or write in conv
func CanAccess(user *models.User, conv *models.Conversation) bool {
	return user.IsAdmin() || conv.CustomerID == user.ID
}

func openLookup(tx *gorm.DB, customerID uint, orderID *uint) *gorm.DB {
	q := tx.Where("customer_id = ? AND status = ?", customerID, models.ConversationOpen)
	if orderID == nil {
		return q.Where("order_id IS NULL")
	}
	return q.Where("order_id = ?", *orderID)
}

// GetOrCreate returns the caller's open thread for orderID (nil for general
// support), creating it if none is open.
func (s *ConversationService) GetOrCreate(ctx context.Context, caller *models.User, orderID *uint) (*ConversationThread, error) {
	if caller.IsAdmin() {
		return nil, apperr.ForbiddenErr("FORBIDDEN", "Only customers can open a support conversation")
	}
	if orderID != nil {
		order, err := s.orders.FindOrder(ctx, *orderID)
		if err != nil {
			return nil, err
		}
		if order.CustomerID != caller.ID {
			return nil, apperr.ForbiddenErr("NOT_ORDER_OWNER", "You can only discuss your own orders")
		}
	}

	var conv models.Conversation
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := openLookup(tx, caller.ID, orderID).First(&conv).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.FromDB(err, nil)
		}

		conv = models.Conversation{
			CustomerID:    caller.ID,
			CustomerName:  caller.Name,
			CustomerEmail: caller.Email,
			OrderID:       orderID,
			Status:        models.ConversationOpen,
			LastMessageAt: s.now(),
		}
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) && !utils.IsUniqueViolation(err) {
			return nil, apperr.FromDB(err, nil)
		}
		// another request opened the thread first
		if err := openLookup(s.db.WithContext(ctx), caller.ID, orderID).First(&conv).Error; err != nil {
			return nil, apperr.FromDB(err, errConversationNotFound())
		}
	}
	if created {
		s.logger.Info("conversation opened",
			slog.Uint64("conversation_id", uint64(conv.ID)), slog.Uint64("customer_id", uint64(caller.ID)))
	}

	messages, err := s.messages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	var unread int64
	for _, m := range messages {
		if m.SenderRole == models.RoleAdmin && !m.IsRead {
			unread++
		}
	}
	conv.UnreadCount = int(unread)
	return &ConversationThread{Conversation: &conv, Messages: messages, UnreadCount: unread}, nil
}

// Find loads a conversation by id
func (s *ConversationService) Find(ctx context.Context, id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, id).Error; err != nil {
		return nil, apperr.FromDB(err, errConversationNotFound())
	}
	return &conv, nil
}

func (s *ConversationService) findForCaller(ctx context.Context, caller *models.User, id uint) (*models.Conversation, error) {
	conv, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanAccess(caller, conv) {
		return nil, errConversationNotFound()
	}
	return conv, nil
}

// SendMessage appends a message. The sender role comes from the caller's
// profile. The first staff reply claims the conversation.
func (s *ConversationService) SendMessage(ctx context.Context, caller *models.User, conversationID uint, text string) (*models.Message, error) {
	conv, err := s.findForCaller(ctx, caller, conversationID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.InvalidErr("EMPTY_MESSAGE", "Message text cannot be empty",
			map[string]string{"messageText": "This field is required"})
	}
	if len([]rune(text)) > MaxMessageChars {
		return nil, apperr.InvalidErr("MESSAGE_TOO_LONG", "Message text is too long",
			map[string]string{"messageText": "Must be at most " + strconv.Itoa(MaxMessageChars) + " characters"})
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       caller.ID,
		SenderRole:     caller.Role,
		MessageText:    text,
		CreatedAt:      s.now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
			Update("last_message_at", msg.CreatedAt).Error; err != nil {
			return err
		}
		if caller.IsAdmin() {
			// only the first staff reply claims it
			return tx.Model(&models.Conversation{}).
				Where("id = ? AND admin_id IS NULL", conv.ID).
				Update("admin_id", caller.ID).Error
		}
		return nil
	})
	if err != nil {
		return nil, apperr.FromDB(err, nil)
	}

	s.logger.Debug("message sent",
		slog.Uint64("conversation_id", uint64(conv.ID)),
		slog.Uint64("message_id", uint64(msg.ID)),
		slog.String("sender_role", string(msg.SenderRole)),
	)
	return msg, nil
}

// List returns every conversation for the staff inbox, most recent first,
// each with its latest message and unread customer message count.
func (s *ConversationService) List(ctx context.Context, status string) ([]models.Conversation, error) {
	db := s.db.WithContext(ctx)

	q := db.Order("last_message_at DESC").Order("id DESC")
	if status != "" {
		if status != models.ConversationOpen && status != models.ConversationClosed {
			return nil, apperr.InvalidErr("INVALID_STATUS_FILTER", "Unknown conversation status",
				map[string]string{"status": status})
		}
		q = q.Where("status = ?", status)
	}

	convs := []models.Conversation{}
	if err := q.Find(&convs).Error; err != nil {
		return nil, apperr.FromDB(err, nil)
	}
	if len(convs) == 0 {
		return convs, nil
	}

	ids := make([]uint, len(convs))
	for i := range convs {
		ids[i] = convs[i].ID
	}

	type unreadRow struct {
		ConversationID uint
		Count          int
	}
	var unread []unreadRow
	err := db.Model(&models.Message{}).
		Select("conversation_id, COUNT(*) AS count").
		Where("conversation_id IN ? AND sender_role = ? AND is_read = ?", ids, models.RoleCustomer, false).
		Group("conversation_id").
		Scan(&unread).Error
	if err != nil {
		return nil, apperr.FromDB(err, nil)
	}

	var latest []models.Message
	err = db.Where("id IN (?)",
		db.Model(&models.Message{}).Select("MAX(id)").Where("conversation_id IN ?", ids).Group("conversation_id"),
	).Find(&latest).Error
	if err != nil {
		return nil, apperr.FromDB(err, nil)
	}

	counts := make(map[uint]int, len(unread))
	for _, u := range unread {
		counts[u.ConversationID] = u.Count
	}
	last := make(map[uint]*models.Message, len(latest))
	for i := range latest {
		last[latest[i].ConversationID] = &latest[i]
	}
	for i := range convs {
		convs[i].UnreadCount = counts[convs[i].ID]
		convs[i].LastMessage = last[convs[i].ID]
	}
	return convs, nil
}

// Messages returns a conversation's history in send order
func (s *ConversationService) Messages(ctx context.Context, caller *models.User, id uint) ([]models.Message, error) {
	if _, err := s.findForCaller(ctx, caller, id); err != nil {
		return nil, err
	}
	return s.messages(ctx, id)
}

func (s *ConversationService) messages(ctx context.Context, id uint) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", id).
		Order("created_at ASC").Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, apperr.FromDB(err, nil)
	}
	return messages, nil
}

// MarkRead flags the other party's unread messages as read and returns
// how many changed. The caller's own messages are never touched.
func (s *ConversationService) MarkRead(ctx context.Context, caller *models.User, id uint) (int64, error) {
	if _, err := s.findForCaller(ctx, caller, id); err != nil {
		return 0, err
	}

	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_role = ? AND is_read = ?", id, caller.Role.Opposite(), false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, apperr.FromDB(res.Error, nil)
	}
	return res.RowsAffected, nil
}

// Close marks a conversation closed. Closing a closed thread is a no-op.
func (s *ConversationService) Close(ctx context.Context, caller *models.User, id uint) (*models.Conversation, error) {
	if !caller.IsAdmin() {
		return nil, apperr.ForbiddenErr("FORBIDDEN", "Admin access required")
	}
	return s.setStatus(ctx, id, models.ConversationClosed)
}

// Reopen lets a customer resume a closed thread, unless another thread for
// the same order has been opened since.
func (s *ConversationService) Reopen(ctx context.Context, caller *models.User, id uint) (*models.Conversation, error) {
	conv, err := s.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.CustomerID != caller.ID {
		return nil, errConversationNotFound()
	}
	return s.setStatus(ctx, id, models.ConversationOpen)
}

func (s *ConversationService) setStatus(ctx context.Context, id uint, status string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&conv, id).Error; err != nil {
			return apperr.FromDB(err, errConversationNotFound())
		}
		if conv.Status == status {
			return nil
		}
		if status == models.ConversationOpen {
			var other models.Conversation
			err := openLookup(tx, conv.CustomerID, conv.OrderID).Where("id <> ?", conv.ID).First(&other).Error
			if err == nil {
				e := apperr.ConflictErr("DUPLICATE_CONVERSATION", "Another open conversation already exists for this order")
				e.Fields = map[string]string{"conversationId": strconv.FormatUint(uint64(other.ID), 10)}
				return e
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.FromDB(err, nil)
			}
		}
		if err := tx.Model(&models.Conversation{}).Where("id = ?", id).Update("status", status).Error; err != nil {
			return apperr.FromDB(err, nil)
		}
		conv.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("conversation status changed", slog.Uint64("conversation_id", uint64(id)), slog.String("status", status))
	return &conv, nil
}

// LoadForFanOut returns a stored message with its conversation. The
// real-time layer only relays what was already persisted.
func (s *ConversationService) LoadForFanOut(ctx context.Context, messageID uint) (*models.Message, *models.Conversation, error) {
	var msg models.Message
	if err := s.db.WithContext(ctx).First(&msg, messageID).Error; err != nil {
		return nil, nil, apperr.FromDB(err, apperr.NotFoundErr("MESSAGE_NOT_FOUND", "Message not found"))
	}
	conv, err := s.Find(ctx, msg.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	return &msg, conv, nil
}
