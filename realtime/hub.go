package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/kendall-kelly/storefront-support-api/models"
)

// MessageSource reads what the REST side already stored
type MessageSource interface {
	LoadForFanOut(ctx context.Context, messageID uint) (*models.Message, *models.Conversation, error)
	Find(ctx context.Context, id uint) (*models.Conversation, error)
}

// Hub tracks connected sessions: one per online user, the admin group, and
// a room per conversation. Routing decisions are made here; the Bus decides
// which process performs them.
type Hub struct {
	source MessageSource
	bus    Bus
	logger *slog.Logger

	mu       sync.RWMutex
	ctx      context.Context
	sessions map[*Session]struct{}
	users    map[uint]*Session
	admins   map[*Session]struct{}
	rooms    map[uint]map[*Session]struct{}
	joined   map[*Session]map[uint]struct{}
	closed   bool
}

func NewHub(source MessageSource, bus Bus, logger *slog.Logger) *Hub {
	return &Hub{
		source:   source,
		bus:      bus,
		logger:   logger,
		ctx:      context.Background(),
		sessions: make(map[*Session]struct{}),
		users:    make(map[uint]*Session),
		admins:   make(map[*Session]struct{}),
		rooms:    make(map[uint]map[*Session]struct{}),
		joined:   make(map[*Session]map[uint]struct{}),
	}
}

// Start subscribes the hub to its bus. ctx bounds every session's work.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()
	return h.bus.Subscribe(ctx, h.deliver)
}

// Context is the hub's lifetime, used for event handling
func (h *Hub) Context() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx
}

// Attach records a new session. It joins no registry until it says so.
// After Close the session is closed straight away.
func (h *Hub) Attach(s *Session) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.close()
		return
	}
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("session attached", slog.String("session_id", s.ID), slog.Uint64("user_id", uint64(s.UserID)))
}

// Detach drops the session from every registry and closes its queue
func (h *Hub) Detach(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	if h.users[s.UserID] == s {
		delete(h.users, s.UserID)
	}
	delete(h.admins, s)
	for convID := range h.joined[s] {
		h.leaveLocked(s, convID)
	}
	delete(h.joined, s)
	h.mu.Unlock()

	s.close()
	h.logger.Debug("session detached", slog.String("session_id", s.ID), slog.Uint64("user_id", uint64(s.UserID)))
}

// Close detaches every session. Closing a session's queue makes its write
// pump send a close frame and drop the connection, which ends its read pump.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.Detach(s)
	}
	if len(sessions) > 0 {
		h.logger.Info("realtime hub closed", slog.Int("sessions", len(sessions)))
	}
	return nil
}

func (h *Hub) leaveLocked(s *Session, convID uint) {
	if room, ok := h.rooms[convID]; ok {
		delete(room, s)
		if len(room) == 0 {
			delete(h.rooms, convID)
		}
	}
	if j, ok := h.joined[s]; ok {
		delete(j, convID)
	}
}

func (h *Hub) inRoom(s *Session, convID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[convID][s]
	return ok
}

func (h *Hub) refuse(s *Session, event, code, message string) {
	h.logger.Debug("realtime event refused",
		slog.String("session_id", s.ID), slog.String("event", event), slog.String("code", code))
	s.emit(EventError, ErrorPayload{Event: event, Code: code, Message: message})
}

func decode(in Inbound, v interface{}) bool {
	if len(in.Data) == 0 {
		return true
	}
	return json.Unmarshal(in.Data, v) == nil
}

// Handle applies one client event with the session's own identity
func (h *Hub) Handle(ctx context.Context, s *Session, in Inbound) {
	switch in.Type {
	case EventUserOnline:
		var data UserOnlineData
		if !decode(in, &data) {
			h.refuse(s, in.Type, "MALFORMED_FRAME", "Invalid payload")
			return
		}
		if data.UserID != 0 && data.UserID != s.UserID {
			h.refuse(s, in.Type, "FORBIDDEN", "Sessions can only announce their own user")
			return
		}
		h.mu.Lock()
		h.users[s.UserID] = s
		h.mu.Unlock()

	case EventAdminOnline:
		if !s.isAdmin() {
			h.refuse(s, in.Type, "FORBIDDEN", "Admin access required")
			return
		}
		h.mu.Lock()
		h.admins[s] = struct{}{}
		h.mu.Unlock()

	case EventJoinConversation:
		var data ConversationData
		if !decode(in, &data) || data.ConversationID == 0 {
			h.refuse(s, in.Type, "MALFORMED_FRAME", "conversationId is required")
			return
		}
		conv, err := h.source.Find(ctx, data.ConversationID)
		if err != nil || (!s.isAdmin() && conv.CustomerID != s.UserID) {
			h.refuse(s, in.Type, "CONVERSATION_NOT_FOUND", "Conversation not found")
			return
		}
		h.mu.Lock()
		if h.rooms[conv.ID] == nil {
			h.rooms[conv.ID] = make(map[*Session]struct{})
		}
		h.rooms[conv.ID][s] = struct{}{}
		if h.joined[s] == nil {
			h.joined[s] = make(map[uint]struct{})
		}
		h.joined[s][conv.ID] = struct{}{}
		h.mu.Unlock()

	case EventLeaveConversation:
		var data ConversationData
		if !decode(in, &data) {
			h.refuse(s, in.Type, "MALFORMED_FRAME", "Invalid payload")
			return
		}
		h.mu.Lock()
		h.leaveLocked(s, data.ConversationID)
		h.mu.Unlock()

	case EventNewMessage:
		var data NewMessageData
		if !decode(in, &data) || data.MessageID == 0 {
			h.refuse(s, in.Type, "MALFORMED_FRAME", "messageId is required")
			return
		}
		h.announce(ctx, s, data)

	case EventTypingStart, EventTypingStop:
		var data ConversationData
		if !decode(in, &data) || !h.inRoom(s, data.ConversationID) {
			return
		}
		h.publish(ctx, Delivery{
			Kind:           DeliveryTyping,
			ConversationID: data.ConversationID,
			UserID:         s.UserID,
			Role:           s.Role,
			Typing:         in.Type == EventTypingStart,
			Origin:         s.ID,
		})

	case EventMessagesRead:
		var data ConversationData
		if !decode(in, &data) || !h.inRoom(s, data.ConversationID) {
			return
		}
		h.publish(ctx, Delivery{
			Kind:           DeliveryRead,
			ConversationID: data.ConversationID,
			Role:           s.Role,
			Origin:         s.ID,
		})

	default:
		h.refuse(s, in.Type, "UNKNOWN_EVENT", "Unknown event type")
	}
}

// announce re-reads a stored message and routes it. Unknown ids are
// dropped: the stored state is authoritative and clients re-fetch it.
func (h *Hub) announce(ctx context.Context, s *Session, data NewMessageData) {
	msg, conv, err := h.source.LoadForFanOut(ctx, data.MessageID)
	if err != nil {
		h.logger.Debug("fan-out dropped",
			slog.Uint64("message_id", uint64(data.MessageID)), slog.Any("err", err))
		return
	}
	if msg.SenderID != s.UserID {
		h.logger.Warn("fan-out refused for message sent by another user",
			slog.String("session_id", s.ID), slog.Uint64("message_id", uint64(msg.ID)))
		return
	}

	h.publish(ctx, Delivery{
		Kind:           DeliveryMessage,
		ConversationID: conv.ID,
		CustomerID:     conv.CustomerID,
		Message:        msg,
		Origin:         s.ID,
	})
}

func (h *Hub) publish(ctx context.Context, d Delivery) {
	if err := h.bus.Publish(ctx, d); err != nil {
		h.logger.Warn("fan-out publish failed",
			slog.String("kind", d.Kind), slog.Uint64("conversation_id", uint64(d.ConversationID)), slog.Any("err", err))
	}
}

// deliver routes a delivery to the sessions connected to this process
func (h *Hub) deliver(d Delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	switch d.Kind {
	case DeliveryMessage:
		if d.Message == nil {
			return
		}
		payload := MessagePayload{ConversationID: d.ConversationID, Message: d.Message}
		reached := make(map[*Session]struct{})

		if d.Message.SenderRole == models.RoleCustomer {
			for s := range h.admins {
				if s.ID != d.Origin {
					s.emit(EventCustomerMessage, payload)
					reached[s] = struct{}{}
				}
			}
		} else if s, ok := h.users[d.CustomerID]; ok && s.ID != d.Origin {
			s.emit(EventAdminMessage, payload)
			reached[s] = struct{}{}
		}

		for s := range h.rooms[d.ConversationID] {
			if _, done := reached[s]; done || s.ID == d.Origin {
				continue
			}
			s.emit(EventMessageReceived, payload)
		}

	case DeliveryTyping:
		h.roomcast(d, EventUserTyping, TypingPayload{
			ConversationID: d.ConversationID,
			UserID:         d.UserID,
			Role:           d.Role,
			IsTyping:       d.Typing,
		})

	case DeliveryRead:
		h.roomcast(d, EventMessagesMarkedRead, ReadPayload{
			ConversationID: d.ConversationID,
			ReaderRole:     d.Role,
		})
	}
}

func (h *Hub) roomcast(d Delivery, event string, payload interface{}) {
	for s := range h.rooms[d.ConversationID] {
		if s.ID != d.Origin {
			s.emit(event, payload)
		}
	}
}

// Stats reports registry sizes for the health endpoint
type Stats struct {
	Sessions int `json:"sessions"`
	Users    int `json:"users"`
	Admins   int `json:"admins"`
	Rooms    int `json:"rooms"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Sessions: len(h.sessions), Users: len(h.users), Admins: len(h.admins), Rooms: len(h.rooms)}
}
