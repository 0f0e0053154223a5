package booking

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pgstay/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts guest routes on protected and owner routes on owner.
func (h *Handler) RegisterRoutes(protected, owner *gin.RouterGroup) {
	if protected != nil {
		protected.POST("/payments/verify", h.VerifyPayment)
		protected.GET("/bookings/me", h.ListMine)
	}
	if owner != nil {
		owner.GET("/bookings/unassigned", h.ListUnassigned)
		owner.POST("/bookings/:id/assign-room", h.AssignRoom)
	}
}

// VerifyPayment godoc
// @Summary      Verify payment and materialize booking
// @Description  Verifies the gateway signature for (order_id, payment_id) and returns the booking for that payment, creating it on first call. Safe to retry.
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body  VerifyPaymentRequest  true  "Payment proof and booking details"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "INVALID_SIGNATURE, UNKNOWN_PROPERTY, INVALID_AMOUNTS, VALIDATION_ERROR"
// @Failure      401  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}  "NO_CAPACITY (reject policy)"
// @Failure      503  {object}  map[string]interface{}  "STORE_UNAVAILABLE, retry"
// @Router       /payments/verify [post]
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	res, err := h.service.Materialize(c.Request.Context(), c.GetString("user_id"), req)
	if err != nil {
		var capErr *CapacityError
		if errors.As(err, &capErr) {
			response.ErrorWithDetails(c, http.StatusConflict, "NO_CAPACITY",
				"No bed is available in the selected room. Your payment is recorded and will be refunded.",
				gin.H{"booking_id": capErr.BookingID, "payment_id": req.PaymentID, "refund_required": true})
			return
		}
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, res.Response())
}

// ListMine godoc
// @Summary      List my bookings
// @Tags         bookings
// @Security     BearerAuth
// @Param        limit   query  int  false  "default 20, max 100"
// @Param        offset  query  int  false  "offset"
// @Success      200  {object}  map[string]interface{}
// @Router       /bookings/me [get]
func (h *Handler) ListMine(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	out, err := h.service.ListMine(c.Request.Context(), c.GetString("user_id"), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"bookings": toViews(out)})
}

// ListUnassigned godoc
// @Summary      Bookings awaiting room assignment
// @Description  Confirmed bookings on the caller's properties that hold no bed.
// @Tags         owner
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]interface{}
// @Router       /owner/bookings/unassigned [get]
func (h *Handler) ListUnassigned(c *gin.Context) {
	out, err := h.service.ListUnassigned(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"bookings": toViews(out)})
}

// AssignRoom godoc
// @Summary      Assign a room to an unassigned booking
// @Tags         owner
// @Security     BearerAuth
// @Param        id       path  string             true  "Booking ID"
// @Param        request  body  AssignRoomRequest  true  "Room"
// @Success      200  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Router       /owner/bookings/{id}/assign-room [post]
func (h *Handler) AssignRoom(c *gin.Context) {
	var req AssignRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "room_id is required")
		return
	}

	b, err := h.service.AssignRoom(c.Request.Context(), c.GetString("user_id"), c.Param("id"), req.RoomID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": toView(*b)})
}

// writeError maps service errors to the public taxonomy. Store details stay in the log.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	case errors.Is(err, ErrInvalidSignature):
		response.Error(c, http.StatusBadRequest, "INVALID_SIGNATURE", "Payment signature is invalid")
	case errors.Is(err, ErrUnknownProperty):
		response.Error(c, http.StatusBadRequest, "UNKNOWN_PROPERTY", "Property or room does not exist")
	case errors.Is(err, ErrInvalidAmounts):
		response.Error(c, http.StatusBadRequest, "INVALID_AMOUNTS", "amount_paid must be positive and amount_paid + amount_due must equal total_amount")
	case errors.Is(err, ErrValidation):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Access denied")
	case errors.Is(err, ErrBookingNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Booking not found")
	case errors.Is(err, ErrNotAssignable):
		response.Error(c, http.StatusConflict, "CONFLICT", "Booking is not awaiting room assignment")
	case errors.Is(err, ErrNoCapacity):
		response.Error(c, http.StatusConflict, "NO_CAPACITY", "No bed is available in the selected room")
	case errors.Is(err, ErrConfig):
		response.Error(c, http.StatusInternalServerError, "CONFIG_ERROR", "Payment verification is temporarily unavailable")
	case errors.Is(err, ErrStoreUnavailable):
		_ = c.Error(err)
		response.Unavailable(c, "Temporarily unavailable, please retry")
	default:
		_ = c.Error(err)
		log.Printf("level=error msg=booking_unexpected_error path=%s err=%v", c.FullPath(), err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error")
	}
}
