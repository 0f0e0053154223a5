package booking

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pgstay/internal/config"
	"pgstay/internal/testutil"
)

func newRouter(svc *Service, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("role", "owner")
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(api, api.Group("/owner"))
	return r
}

func postJSON(t *testing.T, r http.Handler, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w, out
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func TestHandler_VerifyPayment(t *testing.T) {
	f := newFixture(t, 2, config.CapacityAssignLater)
	r := newRouter(f.svc, "user-1")

	w, body := postJSON(t, r, "/api/v1/payments/verify", signed("order_abc", "pay_xyz", details("R1")))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "pay_xyz", data["payment_id"])
	assert.Equal(t, "Property P1", data["property_name"])
	assert.Equal(t, "partial", data["payment_status"])
	assert.Equal(t, "confirmed", data["booking_status"])
	assert.Equal(t, true, data["room_assigned"])
	contact := data["owner_contact"].(map[string]interface{})
	assert.NotContains(t, contact["phone"], "98765")

	w2, body2 := postJSON(t, r, "/api/v1/payments/verify", signed("order_abc", "pay_xyz", details("R1")))
	require.Equal(t, http.StatusOK, w2.Code)
	data2 := body2["data"].(map[string]interface{})
	assert.Equal(t, data["booking_id"], data2["booking_id"])
	assert.Equal(t, true, data2["idempotent_replay"])
}

func TestHandler_VerifyPaymentErrors(t *testing.T) {
	f := newFixture(t, 2, config.CapacityAssignLater)
	r := newRouter(f.svc, "user-1")

	bad := signed("o", "p", details("R1"))
	bad.Signature = "00"
	w, body := postJSON(t, r, "/api/v1/payments/verify", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_SIGNATURE", errorCode(body))

	unknown := details("R1")
	unknown.PropertyID = "nope"
	w, body = postJSON(t, r, "/api/v1/payments/verify", signed("o", "p", unknown))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNKNOWN_PROPERTY", errorCode(body))

	amounts := details("R1")
	amounts.AmountDue = 0
	w, body = postJSON(t, r, "/api/v1/payments/verify", signed("o", "p", amounts))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_AMOUNTS", errorCode(body))

	w, body = postJSON(t, r, "/api/v1/payments/verify", map[string]string{"order_id": "o"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(body))

	anon := newRouter(f.svc, "")
	w, body = postJSON(t, anon, "/api/v1/payments/verify", signed("o", "p", details("R1")))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestHandler_StoreUnavailableHidesDetails(t *testing.T) {
	f := newFixture(t, 1, config.CapacityAssignLater)
	store := new(MockBookingStore)
	store.On("FindByPaymentID", mock.Anything, "pay_down").Return(nil, errors.New("pq: password authentication failed for user pgstay"))
	f.svc.bookings = store
	r := newRouter(f.svc, "user-1")

	w, body := postJSON(t, r, "/api/v1/payments/verify", signed("o", "pay_down", details("R1")))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "STORE_UNAVAILABLE", errorCode(body))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.NotContains(t, w.Body.String(), "password")
}

func TestHandler_RejectPolicyReturnsBookingID(t *testing.T) {
	f := newFixture(t, 0, config.CapacityReject)
	r := newRouter(f.svc, "user-1")

	w, body := postJSON(t, r, "/api/v1/payments/verify", signed("o", "pay_full", details("R1")))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NO_CAPACITY", errorCode(body))
	det := body["error"].(map[string]interface{})["details"].(map[string]interface{})
	assert.NotEmpty(t, det["booking_id"])
	assert.Equal(t, int64(1), countBookings(t, f.db))
}

func TestHandler_OwnerAssignment(t *testing.T) {
	f := newFixture(t, 0, config.CapacityAssignLater)
	testutil.SeedRoom(t, f.db, "R2", "P1", 1)

	guest := newRouter(f.svc, "user-1")
	_, body := postJSON(t, guest, "/api/v1/payments/verify", signed("o", "pay_1", details("R1")))
	bookingID := body["data"].(map[string]interface{})["booking_id"].(string)

	owner := newRouter(f.svc, "owner-1")
	w := httptest.NewRecorder()
	owner.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/owner/bookings/unassigned", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), bookingID)

	w, body = postJSON(t, owner, "/api/v1/owner/bookings/"+bookingID+"/assign-room", AssignRoomRequest{RoomID: "R2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "R2", body["data"].(map[string]interface{})["booking"].(map[string]interface{})["room_id"])

	stranger := newRouter(f.svc, "owner-2")
	w, body = postJSON(t, stranger, "/api/v1/owner/bookings/"+bookingID+"/assign-room", AssignRoomRequest{RoomID: "R2"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	w = httptest.NewRecorder()
	guest.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/bookings/me", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), bookingID)
}
