package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kendall-kelly/storefront-support-api/models"
	"github.com/kendall-kelly/storefront-support-api/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type returnScenario struct {
	*apiHarness
	customer *models.User
	other    *models.User
	admin    *models.User
	product  *models.Product
	order    *models.Order
}

func newReturnScenario(t *testing.T) *returnScenario {
	t.Helper()
	h := newAPIHarness(t, nil)
	s := &returnScenario{
		apiHarness: h,
		customer:   testutil.CreateUser(t, h.db, "rosa", models.RoleCustomer),
		other:      testutil.CreateUser(t, h.db, "tom", models.RoleCustomer),
		admin:      testutil.CreateUser(t, h.db, "ops", models.RoleAdmin),
		product:    testutil.CreateProduct(t, h.db, "Desk Lamp", 24.5, 10),
	}
	s.order = testutil.CreateDeliveredOrder(t, h.db, s.customer, time.Now().Add(-48*time.Hour), 2, s.product)
	return s
}

func (s *returnScenario) body(returnType models.ReturnType, reason models.ReturnReason, images ...string) map[string]interface{} {
	return map[string]interface{}{
		"orderId":    s.order.ID,
		"productId":  s.product.ID,
		"returnType": returnType,
		"reason":     reason,
		"comment":    "Stopped working",
		"images":     images,
	}
}

func (s *returnScenario) create(t *testing.T, returnType models.ReturnType) *models.ReturnRequest {
	t.Helper()
	w := s.do(http.MethodPost, "/api/v1/return/new", s.customer, s.body(returnType, models.ReasonQuality))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ret models.ReturnRequest
	dataOf(t, w, &ret)
	return &ret
}

func (s *returnScenario) act(t *testing.T, id uint, action string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(http.MethodPut, fmt.Sprintf("/api/v1/admin/return/%d/%s", id, action), s.admin, body)
}

func TestReturnRefundFlowOverHTTP(t *testing.T) {
	s := newReturnScenario(t)
	ret := s.create(t, models.ReturnTypeRefund)
	assert.Equal(t, models.ReturnRequested, ret.Status)
	assert.Equal(t, 2, ret.Item.Quantity)
	assert.Equal(t, 7, ret.ReturnWindow)

	w := s.act(t, ret.ID, "approve", map[string]string{"adminComment": "Approved, sorry about that"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	pickup := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	w = s.act(t, ret.ID, "pickup", map[string]interface{}{"pickupDate": pickup})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var scheduled models.ReturnRequest
	dataOf(t, w, &scheduled)
	require.NotNil(t, scheduled.PickupScheduledAt)
	assert.True(t, pickup.Equal(*scheduled.PickupScheduledAt))

	w = s.act(t, ret.ID, "received", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 12, testutil.ReloadProduct(t, s.db, s.product.ID).Stock)

	w = s.act(t, ret.ID, "refund", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var refunded models.ReturnRequest
	dataOf(t, w, &refunded)
	assert.Equal(t, models.ReturnRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundAmount)
	assert.Equal(t, 49.0, *refunded.RefundAmount)
	assert.NotNil(t, refunded.RefundedAt)
	assert.Equal(t, "Approved, sorry about that", refunded.AdminComment)
}

func TestProcessRefundWithExplicitAmount(t *testing.T) {
	s := newReturnScenario(t)
	ret := s.create(t, models.ReturnTypeRefund)
	for _, action := range []string{"approve", "pickup", "received"} {
		require.Equal(t, http.StatusOK, s.act(t, ret.ID, action, nil).Code)
	}

	w := s.act(t, ret.ID, "refund", map[string]float64{"refundAmount": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.act(t, ret.ID, "refund", map[string]float64{"refundAmount": 30})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var refunded models.ReturnRequest
	dataOf(t, w, &refunded)
	assert.Equal(t, 30.0, *refunded.RefundAmount)
}

func TestReplacementFlowOverHTTP(t *testing.T) {
	s := newReturnScenario(t)
	ret := s.create(t, models.ReturnTypeReplacement)
	for _, action := range []string{"approve", "pickup", "received"} {
		require.Equal(t, http.StatusOK, s.act(t, ret.ID, action, nil).Code)
	}

	w := s.act(t, ret.ID, "refund", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "WRONG_RETURN_TYPE", errorCode(t, w))

	w = s.act(t, ret.ID, "replacement", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var replaced models.ReturnRequest
	dataOf(t, w, &replaced)
	assert.Equal(t, models.ReturnReplaced, replaced.Status)
	assert.Nil(t, replaced.RefundAmount)
}

func TestTransitionConflictNamesCurrentStatus(t *testing.T) {
	s := newReturnScenario(t)
	ret := s.create(t, models.ReturnTypeRefund)
	require.Equal(t, http.StatusOK, s.act(t, ret.ID, "approve", nil).Code)

	w := s.act(t, ret.ID, "approve", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "INVALID_STATUS", errBody["code"])
	assert.Equal(t, string(models.ReturnApproved), errBody["details"].(map[string]interface{})["status"])

	w = s.act(t, ret.ID, "received", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_STATUS", errorCode(t, w))

	w = s.act(t, 9999, "approve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.act(t, 0, "approve", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", errorCode(t, w))
}

func TestRejectRequiresAdminComment(t *testing.T) {
	s := newReturnScenario(t)
	ret := s.create(t, models.ReturnTypeRefund)

	for _, body := range []interface{}{nil, map[string]string{"adminComment": ""}, map[string]string{"adminComment": "   "}} {
		w := s.act(t, ret.ID, "reject", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "ADMIN_COMMENT_REQUIRED", errorCode(t, w))
	}

	w := s.act(t, ret.ID, "reject", map[string]string{"adminComment": "Outside policy"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rejected models.ReturnRequest
	dataOf(t, w, &rejected)
	assert.Equal(t, models.ReturnRejected, rejected.Status)
	assert.NotNil(t, rejected.RejectedAt)
}

func TestCreateReturnValidation(t *testing.T) {
	s := newReturnScenario(t)

	w := s.do(http.MethodPost, "/api/v1/return/new", s.customer, s.body(models.ReturnTypeRefund, models.ReasonDamaged))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "VALIDATION_ERROR", errBody["code"])
	assert.Contains(t, errBody["details"], "images")

	bad := s.body(models.ReturnTypeRefund, models.ReasonOther)
	bad["returnType"] = "Exchange"
	w = s.do(http.MethodPost, "/api/v1/return/new", s.customer, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody(t, w)["error"].(map[string]interface{})["details"], "returnType")

	w = s.do(http.MethodPost, "/api/v1/return/new", s.other, s.body(models.ReturnTypeRefund, models.ReasonOther))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_ORDER_OWNER", errorCode(t, w))

	w = s.do(http.MethodPost, "/api/v1/return/new", s.admin, s.body(models.ReturnTypeRefund, models.ReasonOther))
	assert.Equal(t, http.StatusForbidden, w.Code)

	s.create(t, models.ReturnTypeRefund)
	w = s.do(http.MethodPost, "/api/v1/return/new", s.customer, s.body(models.ReturnTypeRefund, models.ReasonOther))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "DUPLICATE_RETURN", errorCode(t, w))
}

func TestCreateReturnCommentLengthCountsTrimmedText(t *testing.T) {
	s := newReturnScenario(t)

	tooLong := s.body(models.ReturnTypeRefund, models.ReasonOther)
	tooLong["comment"] = strings.Repeat("a", models.MaxReturnCommentChars+1)
	w := s.do(http.MethodPost, "/api/v1/return/new", s.customer, tooLong)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeBody(t, w)["error"].(map[string]interface{})["details"], "comment")

	padded := s.body(models.ReturnTypeRefund, models.ReasonOther)
	comment := strings.Repeat("a", models.MaxReturnCommentChars)
	padded["comment"] = "   " + comment + "\n"
	w = s.do(http.MethodPost, "/api/v1/return/new", s.customer, padded)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var ret models.ReturnRequest
	dataOf(t, w, &ret)
	assert.Equal(t, comment, ret.Comment)
}

func TestCreateReturnWindowExpired(t *testing.T) {
	s := newReturnScenario(t)
	late := testutil.CreateDeliveredOrder(t, s.db, s.customer, time.Now().AddDate(0, 0, -8), 1, s.product)

	body := s.body(models.ReturnTypeRefund, models.ReasonOther)
	body["orderId"] = late.ID
	w := s.do(http.MethodPost, "/api/v1/return/new", s.customer, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "RETURN_WINDOW_EXPIRED", errorCode(t, w))
}

func TestCreateReturnWithUploadedEvidence(t *testing.T) {
	s := newReturnScenario(t)

	form, contentType := testutil.MultipartBody(t, "image", "crack.jpg", []byte("jpeg bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/return/images", form)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Test-User", s.customer.Auth0ID)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var uploaded struct {
		Key string `json:"key"`
		URL string `json:"url"`
	}
	dataOf(t, w, &uploaded)
	assert.True(t, s.store.Exists(uploaded.Key))
	assert.Equal(t, "image/jpeg", s.store.ContentType(uploaded.Key))

	w = s.do(http.MethodPost, "/api/v1/return/new", s.customer, s.body(models.ReturnTypeRefund, models.ReasonDamaged, uploaded.Key))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ret models.ReturnRequest
	dataOf(t, w, &ret)
	assert.Equal(t, []string{uploaded.Key}, []string(ret.Images))
	require.Len(t, ret.ImageURLs, 1)
	assert.Contains(t, ret.ImageURLs[0], uploaded.Key)

	// another customer cannot reuse the key
	otherOrder := testutil.CreateDeliveredOrder(t, s.db, s.other, time.Now(), 1, s.product)
	body := s.body(models.ReturnTypeRefund, models.ReasonDamaged, uploaded.Key)
	body["orderId"] = otherOrder.ID
	w = s.do(http.MethodPost, "/api/v1/return/new", s.other, body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/admin/return/%d", ret.ID), s.admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, s.store.Exists(uploaded.Key))

	w = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/admin/return/%d", ret.ID), s.admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadReturnImageRejectsBadFiles(t *testing.T) {
	s := newReturnScenario(t)

	send := func(field, name string, content []byte) *httptest.ResponseRecorder {
		form, contentType := testutil.MultipartBody(t, field, name, content)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/return/images", form)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("X-Test-User", s.customer.Auth0ID)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		return w
	}

	w := send("image", "notes.txt", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_FILE_FORMAT", errorCode(t, w))

	w = send("file", "photo.png", []byte("png"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_FILE", errorCode(t, w))

	s.store.FailPut = errors.New("s3 unavailable")
	w = send("image", "photo.png", []byte("png"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "UPLOAD_FAILED", errorCode(t, w))
	assert.Empty(t, s.store.Keys())
}

func TestGetAndListReturns(t *testing.T) {
	s := newReturnScenario(t)
	ret := s.create(t, models.ReturnTypeRefund)

	w := s.do(http.MethodGet, fmt.Sprintf("/api/v1/return/%d", ret.ID), s.customer, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, fmt.Sprintf("/api/v1/return/%d", ret.ID), s.admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, fmt.Sprintf("/api/v1/return/%d", ret.ID), s.other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	foreign := decodeBody(t, w)
	w = s.do(http.MethodGet, "/api/v1/return/9999", s.other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, foreign, decodeBody(t, w), "a foreign return answers exactly like a missing one")

	var mine []models.ReturnRequest
	w = s.do(http.MethodGet, "/api/v1/returns/me", s.customer, nil)
	dataOf(t, w, &mine)
	assert.Len(t, mine, 1)

	w = s.do(http.MethodGet, "/api/v1/returns/me", s.other, nil)
	dataOf(t, w, &mine)
	assert.Empty(t, mine)

	var all []models.ReturnRequest
	w = s.do(http.MethodGet, "/api/v1/admin/returns?status=REQUESTED", s.admin, nil)
	dataOf(t, w, &all)
	assert.Len(t, all, 1)

	w = s.do(http.MethodGet, "/api/v1/admin/returns?status=APPROVED", s.admin, nil)
	dataOf(t, w, &all)
	assert.Empty(t, all)

	w = s.do(http.MethodGet, "/api/v1/admin/returns?status=LOST", s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_STATUS_FILTER", errorCode(t, w))
}

func TestAdminReturnRoutesRequireAdmin(t *testing.T) {
	s := newReturnScenario(t)
	ret := s.create(t, models.ReturnTypeRefund)

	w := s.do(http.MethodPut, fmt.Sprintf("/api/v1/admin/return/%d/approve", ret.ID), s.customer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodGet, "/api/v1/admin/returns", s.customer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/admin/return/%d", ret.ID), s.customer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodPut, fmt.Sprintf("/api/v1/admin/return/%d/approve", ret.ID), nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	stored, err := s.returns.Get(t.Context(), s.admin, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReturnRequested, stored.Status)
}
