package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/faithboy007/world-conquest-veterinary-home/middleware"
	"github.com/faithboy007/world-conquest-veterinary-home/models"
	"github.com/faithboy007/world-conquest-veterinary-home/notification"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	MsgPaymentCancelled  = "❌ Payment cancelled"
	MsgPaymentNotStarted = "Payment could not be started, please try again"
)

func SuccessMessage(reference string) string {
	return fmt.Sprintf("✅ Payment successful! Reference: %s. We'll contact you shortly for delivery.", reference)
}

type Notifier interface {
	Show(ctx context.Context, message string, kind notification.Kind) notification.Notification
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.CheckoutEvent) error
}

// Handoff delegates a validated purchase to the widget and turns the
// widget's single report into a notification.
type Handoff struct {
	widget Widget
	events EventPublisher
	logger *zap.Logger
}

func NewHandoff(widget Widget, events EventPublisher, logger *zap.Logger) *Handoff {
	return &Handoff{widget: widget, events: events, logger: logger}
}

func (h *Handoff) Available(ctx context.Context) bool {
	return h.widget.Available(ctx)
}

// Forgetter is implemented by widgets that keep per-reference state.
type Forgetter interface {
	Forget(reference string)
}

// Forget abandons an opened payment: its callbacks will never fire.
func (h *Handoff) Forget(reference string) {
	if f, ok := h.widget.(Forgetter); ok {
		f.Forget(reference)
	}
}

// Start opens the widget for payload. Failures to open are reported to the
// notifier and returned; nothing is retried.
func (h *Handoff) Start(ctx context.Context, sessionID string, payload Payload, notifier Notifier) error {
	ctx, span := otel.Tracer("checkout-service").Start(ctx, "PaymentHandoff")
	defer span.End()

	span.SetAttributes(
		attribute.String("payment.reference", payload.Reference),
		attribute.Int64("payment.amount", payload.AmountMinor),
		attribute.String("payment.currency", payload.Currency),
	)

	// Callbacks outlive the request that opened the widget.
	cbCtx := context.WithoutCancel(ctx)
	var once sync.Once

	onSuccess := func(conf Confirmation) {
		once.Do(func() {
			middleware.RecordPaymentOutcome("success")
			h.logger.Info("Payment successful",
				zap.String("session_id", sessionID),
				zap.String("reference", conf.Reference),
			)
			notifier.Show(cbCtx, SuccessMessage(conf.Reference), notification.KindSuccess)
			h.publish(cbCtx, models.EventPaymentSuccess, sessionID, payload, conf.Reference)
		})
	}
	onCancel := func() {
		once.Do(func() {
			middleware.RecordPaymentOutcome("cancelled")
			h.logger.Info("Payment cancelled",
				zap.String("session_id", sessionID),
				zap.String("reference", payload.Reference),
			)
			notifier.Show(cbCtx, MsgPaymentCancelled, notification.KindError)
			h.publish(cbCtx, models.EventPaymentCancelled, sessionID, payload, "")
		})
	}

	if err := h.widget.Open(ctx, payload, onSuccess, onCancel); err != nil {
		span.RecordError(err)
		middleware.RecordPaymentOutcome("not_started")
		h.logger.Error("Failed to open payment widget",
			zap.String("session_id", sessionID),
			zap.String("reference", payload.Reference),
			zap.Error(err),
		)
		notifier.Show(ctx, MsgPaymentNotStarted, notification.KindError)
		return fmt.Errorf("failed to open payment widget: %w", err)
	}

	middleware.RecordPaymentOutcome("handed_off")
	h.publish(ctx, models.EventPaymentHandoff, sessionID, payload, "")
	return nil
}

func (h *Handoff) publish(ctx context.Context, eventType, sessionID string, payload Payload, confirmation string) {
	if h.events == nil {
		return
	}
	event := models.CheckoutEvent{
		EventType:    eventType,
		SessionID:    sessionID,
		Reference:    payload.Reference,
		Confirmation: confirmation,
		AmountMinor:  payload.AmountMinor,
		Currency:     payload.Currency,
	}
	if err := h.events.Publish(ctx, event); err != nil {
		// Don't fail the flow, but log the error
		h.logger.Error("Failed to publish payment event", zap.String("event_type", eventType), zap.Error(err))
	}
}
