package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kendall-kelly/storefront-support-api/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Session is one authenticated websocket connection. Identity and role are
// fixed at upgrade time.
type Session struct {
	ID     string
	UserID uint
	Role   models.Role

	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewSession wraps an upgraded connection for user
func NewSession(user *models.User, conn *websocket.Conn) *Session {
	return &Session{
		ID:     uuid.NewString(),
		UserID: user.ID,
		Role:   user.Role,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
}

func (s *Session) isAdmin() bool {
	return s.Role == models.RoleAdmin
}

// enqueue queues a frame without blocking. A slow client loses frames
// rather than stalling fan-out for everyone else.
func (s *Session) enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) emit(event string, data interface{}) bool {
	frame, err := json.Marshal(Outbound{Type: event, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		return false
	}
	return s.enqueue(frame)
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// ReadPump decodes client frames and hands them to the hub until the
// connection fails, then detaches the session.
func (s *Session) ReadPump(h *Hub) {
	defer func() {
		h.Detach(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", slog.String("session_id", s.ID), slog.Any("err", err))
			}
			return
		}

		var in Inbound
		if err := json.Unmarshal(raw, &in); err != nil || in.Type == "" {
			s.emit(EventError, ErrorPayload{Code: "MALFORMED_FRAME", Message: "Frames must be JSON with a type"})
			continue
		}
		h.Handle(h.Context(), s, in)
	}
}

// WritePump drains the send queue to the socket and keeps it alive with pings
func (s *Session) WritePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug("websocket write failed", slog.String("session_id", s.ID), slog.Any("err", err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
