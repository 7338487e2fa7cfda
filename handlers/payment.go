package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/faithboy007/world-conquest-veterinary-home/checkout"
	"github.com/faithboy007/world-conquest-veterinary-home/middleware"
	"github.com/faithboy007/world-conquest-veterinary-home/payment"
	"github.com/faithboy007/world-conquest-veterinary-home/paystack"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBodySize = int64(65536)

type WebhookProcessor interface {
	HandleWebhook(body []byte, signature string) (bool, error)
}

// PaymentHandler receives the widget's reports: the page's close callback and
// the provider's signed success webhook.
type PaymentHandler struct {
	registry *checkout.Registry
	pending  *payment.Pending
	webhook  WebhookProcessor
	logger   *zap.Logger
}

func NewPaymentHandler(registry *checkout.Registry, pending *payment.Pending, webhook WebhookProcessor, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{registry: registry, pending: pending, webhook: webhook, logger: logger}
}

// CancelPayment is the widget's close callback. Only the session that handed
// the payment off may cancel it.
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	s, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	reference := c.Param("reference")
	if !s.OwnsPayment(reference) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
		return
	}
	if err := h.pending.Cancel(reference); err != nil {
		if errors.Is(err, payment.ErrUnknownReference) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.logger.Info("Payment closed by buyer",
		zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
		zap.String("session_id", s.ID),
		zap.String("reference", reference),
	)
	c.JSON(http.StatusOK, gin.H{"status": "cancelled", "reference": reference})
}

func (h *PaymentHandler) PaystackWebhook(c *gin.Context) {
	traceID := middleware.GetTraceID(c.Request.Context())

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodySize)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Error("Failed to read webhook body", zap.String("trace_id", traceID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot read request body"})
		return
	}

	resolved, err := h.webhook.HandleWebhook(body, c.GetHeader(paystack.SignatureHeader))
	if errors.Is(err, paystack.ErrInvalidSignature) {
		h.logger.Warn("Webhook signature verification failed", zap.String("trace_id", traceID))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to process webhook", zap.String("trace_id", traceID), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook payload"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "resolved": resolved})
}
