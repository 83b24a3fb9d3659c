package controllers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kendall-kelly/storefront-support-api/models"
	"github.com/kendall-kelly/storefront-support-api/realtime"
	"github.com/kendall-kelly/storefront-support-api/services"
	"github.com/kendall-kelly/storefront-support-api/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatScenario struct {
	*apiHarness
	customer *models.User
	other    *models.User
	admin    *models.User
	order    *models.Order
}

func newChatScenario(t *testing.T) *chatScenario {
	t.Helper()
	h := newAPIHarness(t, nil)
	s := &chatScenario{
		apiHarness: h,
		customer:   testutil.CreateUser(t, h.db, "lena", models.RoleCustomer),
		other:      testutil.CreateUser(t, h.db, "omar", models.RoleCustomer),
		admin:      testutil.CreateUser(t, h.db, "helpdesk", models.RoleAdmin),
	}
	product := testutil.CreateProduct(t, h.db, "Headphones", 80, 4)
	s.order = testutil.CreateDeliveredOrder(t, h.db, s.customer, time.Now(), 1, product)
	return s
}

func (s *chatScenario) thread(t *testing.T, user *models.User, query string) services.ConversationThread {
	t.Helper()
	w := s.do(http.MethodGet, "/api/v1/chat/conversation"+query, user, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var thread services.ConversationThread
	dataOf(t, w, &thread)
	return thread
}

func (s *chatScenario) send(t *testing.T, user *models.User, convID uint, text string) models.Message {
	t.Helper()
	w := s.do(http.MethodPost, "/api/v1/chat/message", user, map[string]interface{}{"conversationId": convID, "messageText": text})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var msg models.Message
	dataOf(t, w, &msg)
	return msg
}

func TestGetConversationReusesOpenThread(t *testing.T) {
	s := newChatScenario(t)

	first := s.thread(t, s.customer, "")
	second := s.thread(t, s.customer, "")
	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)
	assert.Empty(t, first.Messages)
	assert.Zero(t, first.UnreadCount)

	orderThread := s.thread(t, s.customer, fmt.Sprintf("?orderId=%d", s.order.ID))
	assert.NotEqual(t, first.Conversation.ID, orderThread.Conversation.ID)

	w := s.do(http.MethodGet, fmt.Sprintf("/api/v1/chat/conversation?orderId=%d", s.order.ID), s.other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/v1/chat/conversation?orderId=abc", s.customer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/chat/conversation", s.admin, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSendMessageOverHTTP(t *testing.T) {
	s := newChatScenario(t)
	conv := s.thread(t, s.customer, "").Conversation

	msg := s.send(t, s.customer, conv.ID, "  hi  ")
	assert.Equal(t, "hi", msg.MessageText)
	assert.Equal(t, models.RoleCustomer, msg.SenderRole)

	reply := s.send(t, s.admin, conv.ID, "Hello, how can I help?")
	assert.Equal(t, models.RoleAdmin, reply.SenderRole)

	w := s.do(http.MethodPost, "/api/v1/chat/message", s.customer, map[string]interface{}{"conversationId": conv.ID, "messageText": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMPTY_MESSAGE", errorCode(t, w))

	w = s.do(http.MethodPost, "/api/v1/chat/message", s.customer, map[string]interface{}{"conversationId": conv.ID, "messageText": strings.Repeat("x", services.MaxMessageChars+1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MESSAGE_TOO_LONG", errorCode(t, w))

	w = s.do(http.MethodPost, "/api/v1/chat/message", s.other, map[string]interface{}{"conversationId": conv.ID, "messageText": "hello?"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CONVERSATION_NOT_FOUND", errorCode(t, w))

	w = s.do(http.MethodPost, "/api/v1/chat/message", s.customer, map[string]interface{}{"conversationId": 9999, "messageText": "hello?"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/v1/chat/message", s.customer, map[string]interface{}{"messageText": "hello?"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
}

func TestMarkReadAndAdminInbox(t *testing.T) {
	s := newChatScenario(t)
	conv := s.thread(t, s.customer, "").Conversation
	s.send(t, s.customer, conv.ID, "first")
	s.send(t, s.customer, conv.ID, "second")
	s.send(t, s.admin, conv.ID, "reply")

	var inbox []models.Conversation
	w := s.do(http.MethodGet, "/api/v1/admin/conversations", s.admin, nil)
	dataOf(t, w, &inbox)
	require.Len(t, inbox, 1)
	assert.Equal(t, 2, inbox[0].UnreadCount)
	require.NotNil(t, inbox[0].LastMessage)
	assert.Equal(t, "reply", inbox[0].LastMessage.MessageText)

	w = s.do(http.MethodPut, fmt.Sprintf("/api/v1/chat/conversation/%d/read", conv.ID), s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result struct {
		MarkedRead int64 `json:"markedRead"`
	}
	dataOf(t, w, &result)
	assert.Equal(t, int64(2), result.MarkedRead)

	w = s.do(http.MethodGet, "/api/v1/admin/conversations", s.admin, nil)
	dataOf(t, w, &inbox)
	assert.Zero(t, inbox[0].UnreadCount)

	thread := s.thread(t, s.customer, "")
	assert.Equal(t, int64(1), thread.UnreadCount)
	assert.Len(t, thread.Messages, 3)

	w = s.do(http.MethodPut, "/api/v1/chat/conversation/9999/read", s.customer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(http.MethodPut, fmt.Sprintf("/api/v1/chat/conversation/%d/read", conv.ID), s.other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/v1/admin/conversations", s.customer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminMessagesCloseAndReopen(t *testing.T) {
	s := newChatScenario(t)
	conv := s.thread(t, s.customer, "").Conversation
	s.send(t, s.customer, conv.ID, "my order is late")

	var msgs []models.Message
	w := s.do(http.MethodGet, fmt.Sprintf("/api/v1/admin/conversation/%d/messages", conv.ID), s.admin, nil)
	dataOf(t, w, &msgs)
	require.Len(t, msgs, 1)

	w = s.do(http.MethodGet, "/api/v1/admin/conversation/9999/messages", s.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPut, fmt.Sprintf("/api/v1/admin/conversation/%d/close", conv.ID), s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var closed models.Conversation
	dataOf(t, w, &closed)
	assert.Equal(t, models.ConversationClosed, closed.Status)

	fresh := s.thread(t, s.customer, "").Conversation
	assert.NotEqual(t, conv.ID, fresh.ID, "closed threads are not reused")

	w = s.do(http.MethodPut, fmt.Sprintf("/api/v1/chat/conversation/%d/reopen", conv.ID), s.customer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "DUPLICATE_CONVERSATION", errorCode(t, w))

	w = s.do(http.MethodPut, fmt.Sprintf("/api/v1/admin/conversation/%d/close", fresh.ID), s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPut, fmt.Sprintf("/api/v1/chat/conversation/%d/reopen", conv.ID), s.other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPut, fmt.Sprintf("/api/v1/chat/conversation/%d/reopen", conv.ID), s.customer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reopened models.Conversation
	dataOf(t, w, &reopened)
	assert.Equal(t, models.ConversationOpen, reopened.Status)

	w = s.do(http.MethodPut, "/api/v1/admin/conversation/9999/close", s.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func dialWS(t *testing.T, server *httptest.Server, user *models.User) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"
	header := http.Header{}
	header.Set("X-Test-User", user.Auth0ID)
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wsFrame struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f wsFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebSocketDeliversCustomerMessageToAdmins(t *testing.T) {
	s := newChatScenario(t)
	server := httptest.NewServer(s.router)
	defer server.Close()

	adminConn := dialWS(t, server, s.admin)
	customerConn := dialWS(t, server, s.customer)

	require.NoError(t, adminConn.WriteJSON(realtime.Inbound{Type: realtime.EventAdminOnline}))
	require.NoError(t, customerConn.WriteJSON(realtime.Inbound{Type: realtime.EventUserOnline}))
	require.Eventually(t, func() bool {
		st := s.hub.Stats()
		return st.Admins == 1 && st.Users == 1
	}, 3*time.Second, 10*time.Millisecond)

	conv := s.thread(t, s.customer, "").Conversation
	msg := s.send(t, s.customer, conv.ID, "is anyone there?")

	require.NoError(t, customerConn.WriteJSON(map[string]interface{}{
		"type": realtime.EventNewMessage,
		"data": map[string]uint{"conversationId": conv.ID, "messageId": msg.ID},
	}))
	frame := readFrame(t, adminConn)
	assert.Equal(t, realtime.EventCustomerMessage, frame.Type)
	assert.Equal(t, float64(conv.ID), frame.Data["conversationId"])
	assert.Equal(t, "is anyone there?", frame.Data["message"].(map[string]interface{})["messageText"])

	reply := s.send(t, s.admin, conv.ID, "yes, hello")
	require.NoError(t, adminConn.WriteJSON(map[string]interface{}{
		"type": realtime.EventNewMessage,
		"data": map[string]uint{"conversationId": conv.ID, "messageId": reply.ID},
	}))
	frame = readFrame(t, customerConn)
	assert.Equal(t, realtime.EventAdminMessage, frame.Type)
	assert.Equal(t, "yes, hello", frame.Data["message"].(map[string]interface{})["messageText"])
}

func TestWebSocketRefusesForeignRoomAndNeedsAuth(t *testing.T) {
	s := newChatScenario(t)
	server := httptest.NewServer(s.router)
	defer server.Close()

	conv := s.thread(t, s.customer, "").Conversation
	intruder := dialWS(t, server, s.other)
	require.NoError(t, intruder.WriteJSON(map[string]interface{}{
		"type": realtime.EventJoinConversation,
		"data": map[string]uint{"conversationId": conv.ID},
	}))
	frame := readFrame(t, intruder)
	assert.Equal(t, realtime.EventError, frame.Type)
	assert.Equal(t, "CONVERSATION_NOT_FOUND", frame.Data["code"])

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://shop.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
	assert.True(t, check(req), "non-browser clients send no origin")

	req.Header.Set("Origin", "https://shop.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
	assert.True(t, originChecker(nil)(req))
}
