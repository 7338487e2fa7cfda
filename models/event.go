package models

import "time"

const (
	EventCheckoutOpened    = "checkout_opened"
	EventCheckoutClosed    = "checkout_closed"
	EventPaymentHandoff    = "payment_handoff"
	EventPaymentSuccess    = "payment_success"
	EventPaymentCancelled  = "payment_cancelled"
	EventNotificationShown = "notification_shown"
	EventContactSubmitted  = "contact_submitted"
	EventNewsletterSignup  = "newsletter_subscribed"
)

type CheckoutEvent struct {
	EventType    string    `json:"event_type"`
	SessionID    string    `json:"session_id"`
	ProductName  string    `json:"product_name,omitempty"`
	Reference    string    `json:"reference,omitempty"`
	Confirmation string    `json:"confirmation,omitempty"`
	AmountMinor  int64     `json:"amount,omitempty"`
	Currency     string    `json:"currency,omitempty"`
	Message      string    `json:"message,omitempty"`
	Kind         string    `json:"kind,omitempty"`
	Email        string    `json:"email,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// PaymentEvent is what an upstream payment backend publishes once the
// widget reports back.
type PaymentEvent struct {
	EventType string `json:"event_type"` // payment_success, payment_cancelled
	Reference string `json:"reference"`
	Status    string `json:"status,omitempty"`
}
