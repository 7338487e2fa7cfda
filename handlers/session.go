package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/faithboy007/world-conquest-veterinary-home/catalog"
	"github.com/faithboy007/world-conquest-veterinary-home/checkout"
	"github.com/faithboy007/world-conquest-veterinary-home/middleware"
	"github.com/faithboy007/world-conquest-veterinary-home/models"
	"github.com/faithboy007/world-conquest-veterinary-home/notification"
	"github.com/faithboy007/world-conquest-veterinary-home/payment"
	"github.com/faithboy007/world-conquest-veterinary-home/paystack"
	"github.com/faithboy007/world-conquest-veterinary-home/validation"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Authorizer exposes the hosted checkout of an opened transaction, when the
// widget has one.
type Authorizer interface {
	Authorization(reference string) (paystack.Authorization, bool)
}

type SessionResponse struct {
	SessionID     string                      `json:"session_id"`
	Modal         *checkout.View              `json:"modal"`
	Notifications []notification.Notification `json:"notifications"`
}

type SubmitResponse struct {
	Payment       payment.Payload         `json:"payment"`
	Authorization *paystack.Authorization `json:"authorization,omitempty"`
}

// SessionHandler drives the checkout page: every endpoint stands in for a
// DOM event on one visitor's page.
type SessionHandler struct {
	registry   *checkout.Registry
	products   ProductLookup
	authorizer Authorizer
	logger     *zap.Logger
}

func NewSessionHandler(registry *checkout.Registry, products ProductLookup, authorizer Authorizer, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		registry:   registry,
		products:   products,
		authorizer: authorizer,
		logger:     logger,
	}
}

func (h *SessionHandler) session(c *gin.Context) (*checkout.Session, bool) {
	s, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) respond(c *gin.Context, status int, s *checkout.Session) {
	resp := SessionResponse{
		SessionID:     s.ID,
		Notifications: s.Notifications(),
	}
	if view, ok := s.View(); ok {
		resp.Modal = &view
	}
	c.JSON(status, resp)
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	s := h.registry.Create()
	h.respond(c, http.StatusCreated, s)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, s)
}

func (h *SessionHandler) EndSession(c *gin.Context) {
	if err := h.registry.End(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) GetNotifications(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Notifications())
}

// OpenCheckout is the catalog trigger. The product comes either from the
// catalog by SKU or straight from the request.
func (h *SessionHandler) OpenCheckout(c *gin.Context) {
	ctx, span := otel.Tracer("checkout-service").Start(c.Request.Context(), "OpenCheckoutHandler")
	defer span.End()

	s, ok := h.session(c)
	if !ok {
		return
	}

	var req models.OpenCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	purchase := checkout.PurchaseRequest{ProductName: req.ProductName, PriceMajor: req.Price}
	if sku := strings.TrimSpace(req.SKU); sku != "" {
		span.SetAttributes(attribute.String("product.sku", sku))
		product, err := h.products.Get(ctx, sku)
		if errors.Is(err, catalog.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		if err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to look up product",
				zap.String("trace_id", middleware.GetTraceID(ctx)),
				zap.String("sku", sku),
				zap.Error(err),
			)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
			return
		}
		purchase = checkout.PurchaseRequest{ProductName: product.Name, PriceMajor: product.Price}
	}

	_, err := s.OpenCheckout(ctx, purchase)
	switch {
	case errors.Is(err, checkout.ErrMissingProduct):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": checkout.MsgMissingProduct})
		return
	case errors.Is(err, checkout.ErrWidgetUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": checkout.MsgWidgetLoading})
		return
	case errors.Is(err, checkout.ErrSessionEnded):
		c.JSON(http.StatusGone, gin.H{"error": "Session has ended"})
		return
	case err != nil:
		span.RecordError(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.respond(c, http.StatusCreated, s)
}

func (h *SessionHandler) Submit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var form validation.CheckoutForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload, err := s.Submit(c.Request.Context(), c.Param("modal"), form)

	var fieldErrs validation.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Validation failed", "fields": fieldErrs})
		return
	case errors.Is(err, checkout.ErrModalClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "Checkout is no longer open"})
		return
	case errors.Is(err, checkout.ErrSubmitInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "Checkout is already being submitted"})
		return
	case err != nil && payload.Reference != "":
		c.JSON(http.StatusBadGateway, gin.H{"error": payment.MsgPaymentNotStarted, "reference": payload.Reference})
		return
	case err != nil:
		h.logger.Error("Failed to submit checkout",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	resp := SubmitResponse{Payment: payload}
	if h.authorizer != nil {
		if auth, ok := h.authorizer.Authorization(payload.Reference); ok {
			resp.Authorization = &auth
		}
	}
	c.JSON(http.StatusOK, resp)
}

// DispatchEvent delivers a close or overlay click raised on a modal.
func (h *SessionHandler) DispatchEvent(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req models.UIEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.Dispatch(c.Request.Context(), checkout.Event{
		Type:    checkout.EventType(req.Type),
		ModalID: c.Param("modal"),
	})
	if errors.Is(err, checkout.ErrModalClosed) {
		// Stale events are dropped, not failed.
		c.JSON(http.StatusAccepted, gin.H{"status": "ignored"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c, http.StatusOK, s)
}

func (h *SessionHandler) CloseCheckout(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.CloseCheckout(c.Request.Context())
	h.respond(c, http.StatusOK, s)
}

func (h *SessionHandler) SubmitContact(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var form validation.ContactForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.SubmitContact(c.Request.Context(), form)
	switch {
	case errors.Is(err, validation.ErrContactIncomplete), errors.Is(err, validation.ErrContactEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, checkout.ErrContactSending):
		c.JSON(http.StatusConflict, gin.H{"error": "Message is already being sent"})
		return
	case errors.Is(err, checkout.ErrSessionEnded):
		c.JSON(http.StatusGone, gin.H{"error": "Session has ended"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "sending"})
}

func (h *SessionHandler) Subscribe(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req models.NewsletterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.Subscribe(c.Request.Context(), req.Email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
		return
	}
	h.respond(c, http.StatusOK, s)
}
