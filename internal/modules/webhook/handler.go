package webhook

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pgstay/internal/pkg/response"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"
	maxBodyBytes    = 1 << 20
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the gateway callback on public and the replay trigger on internal.
func (h *Handler) RegisterRoutes(public, internal *gin.RouterGroup) {
	if public != nil {
		public.POST("/webhooks/razorpay", h.Receive)
	}
	if internal != nil {
		internal.POST("/webhooks/replay", h.Replay)
	}
}

// Receive godoc
// @Summary      Payment gateway webhook
// @Description  Verifies X-Razorpay-Signature over the raw body and applies the event. Duplicate, deferred and ignored deliveries are acknowledged with 200.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        X-Razorpay-Signature  header  string  true   "hex HMAC-SHA256 of the body"
// @Param        X-Razorpay-Event-Id   header  string  false  "delivery id"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /webhooks/razorpay [post]
func (h *Handler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to read body")
		return
	}

	res, err := h.service.HandleDelivery(c.Request.Context(), body, c.GetHeader(signatureHeader), c.GetHeader(eventIDHeader))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSignature):
			response.Error(c, http.StatusBadRequest, "INVALID_SIGNATURE", "Webhook signature is invalid")
		case errors.Is(err, ErrMalformed):
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Malformed webhook payload")
		case errors.Is(err, ErrConfig):
			response.Error(c, http.StatusInternalServerError, "CONFIG_ERROR", "Webhook verification is not configured")
		case errors.Is(err, ErrStoreUnavailable):
			_ = c.Error(err)
			response.Unavailable(c, "Temporarily unavailable")
		default:
			_ = c.Error(err)
			log.Printf("level=error msg=webhook_unexpected_error err=%v", err)
			response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error")
		}
		return
	}

	response.Success(c, http.StatusOK, res)
}

// Replay godoc
// @Summary      Replay deferred webhook events
// @Tags         internal
// @Security     InternalToken
// @Param        limit  query  int  false  "max events, default 100"
// @Success      200  {object}  map[string]interface{}
// @Router       /internal/webhooks/replay [post]
func (h *Handler) Replay(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be between 1 and 1000")
		return
	}

	stats, err := h.service.ReplayDeferred(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		response.Unavailable(c, "Temporarily unavailable")
		return
	}
	response.Success(c, http.StatusOK, stats)
}
