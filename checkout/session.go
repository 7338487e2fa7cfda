package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/faithboy007/world-conquest-veterinary-home/middleware"
	"github.com/faithboy007/world-conquest-veterinary-home/models"
	"github.com/faithboy007/world-conquest-veterinary-home/notification"
	"github.com/faithboy007/world-conquest-veterinary-home/payment"
	"github.com/faithboy007/world-conquest-veterinary-home/validation"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	ErrSessionEnded   = errors.New("session has ended")
	ErrContactSending = errors.New("contact message is already being sent")
)

const (
	MsgContactSent = "Thank you! Your message has been sent successfully. We will contact you soon!"
	MsgSubscribed  = "Thank you for subscribing to our newsletter!"
)

type EventPublisher interface {
	Publish(ctx context.Context, event models.CheckoutEvent) error
}

// Deps are shared by every session of a Registry.
type Deps struct {
	Validator  *validation.Validator
	Handoff    *payment.Handoff
	Events     EventPublisher
	NewSurface func() Surface
	Logger     *zap.Logger
	// References is shared by every session so references never repeat
	// within the process. NewRegistry fills it in when nil.
	References *payment.ReferenceGenerator

	PublicKey           string
	Currency            string
	ReferencePrefix     string
	NotificationDisplay time.Duration
	NotificationFade    time.Duration
	ContactSendDelay    time.Duration
	SessionIdleTTL      time.Duration
}

// Session is one visitor's page. It owns at most one checkout modal and the
// notification surface of that page.
type Session struct {
	ID string

	mu            sync.Mutex
	modal         *Modal
	surface       Surface
	notifications *notification.Center
	refs          *payment.ReferenceGenerator
	deps          Deps
	contactTimer  *time.Timer
	ended         bool
	payments      map[string]struct{}
	lastSeen      time.Time
}

func NewSession(deps Deps) *Session {
	id := uuid.NewString()

	var sinks []notification.Sink
	if deps.Events != nil {
		sinks = append(sinks, notification.EventSink(deps.Events, id))
	}
	surface := Surface(NewOverlay())
	if deps.NewSurface != nil {
		surface = deps.NewSurface()
	}
	refs := deps.References
	if refs == nil {
		refs = payment.NewReferenceGenerator(deps.ReferencePrefix)
	}

	return &Session{
		ID:            id,
		surface:       surface,
		notifications: notification.NewCenter(deps.NotificationDisplay, deps.NotificationFade, deps.Logger, sinks...),
		refs:          refs,
		deps:          deps,
		payments:      make(map[string]struct{}),
		lastSeen:      time.Now(),
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) isEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// OwnsPayment reports whether reference was handed off by this session.
func (s *Session) OwnsPayment(reference string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.payments[reference]
	return ok
}

func (s *Session) Surface() Surface {
	return s.surface
}

func (s *Session) Notifications() []notification.Notification {
	return s.notifications.Active()
}

func (s *Session) Notify(ctx context.Context, msg string, kind notification.Kind) notification.Notification {
	return s.notifications.Show(ctx, msg, kind)
}

// View returns the current modal view, if a modal is open.
func (s *Session) View() (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.modal == nil {
		return View{}, false
	}
	return s.modal.view(), true
}

// OpenCheckout mounts a checkout modal for req. Any modal already on the page
// is torn down before the new one is mounted.
func (s *Session) OpenCheckout(ctx context.Context, req PurchaseRequest) (View, error) {
	ctx, span := otel.Tracer("checkout-service").Start(ctx, "OpenCheckout")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("product.name", req.ProductName),
		attribute.Int64("product.price", req.PriceMajor),
	)

	if s.isEnded() {
		return View{}, ErrSessionEnded
	}

	req.ProductName = strings.TrimSpace(req.ProductName)
	if req.ProductName == "" || req.PriceMajor <= 0 {
		s.notifications.Show(ctx, MsgMissingProduct, notification.KindError)
		return View{}, ErrMissingProduct
	}
	if _, err := payment.ToMinorUnits(req.PriceMajor); err != nil {
		s.notifications.Show(ctx, MsgMissingProduct, notification.KindError)
		return View{}, fmt.Errorf("%w: %v", ErrMissingProduct, err)
	}
	if !s.deps.Handoff.Available(ctx) {
		s.notifications.Show(ctx, MsgWidgetLoading, notification.KindError)
		return View{}, ErrWidgetUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return View{}, ErrSessionEnded
	}
	if s.modal != nil {
		s.closeLocked(ctx, s.modal)
	}

	m := &Modal{
		id:       uuid.NewString(),
		req:      req,
		currency: s.deps.Currency,
		state:    StateOpen,
	}
	m.listeners = map[EventType]listener{
		EventClose:        s.closeListener(m),
		EventOverlayClick: s.closeListener(m),
		EventSubmit: func(ctx context.Context, ev Event) error {
			_, err := s.Submit(ctx, m.id, ev.Form)
			return err
		},
	}
	m.handle = s.surface.Mount(m.view())
	s.modal = m

	middleware.RecordCheckoutTransition(StateClosed.String(), StateOpen.String())
	s.deps.Logger.Info("Checkout opened",
		zap.String("session_id", s.ID),
		zap.String("modal_id", m.id),
		zap.String("product", req.ProductName),
		zap.Int64("price", req.PriceMajor),
	)
	s.publish(ctx, models.CheckoutEvent{
		EventType:   models.EventCheckoutOpened,
		SessionID:   s.ID,
		ProductName: req.ProductName,
	})

	return m.view(), nil
}

func (s *Session) closeListener(m *Modal) listener {
	return func(ctx context.Context, ev Event) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closeLocked(ctx, m)
		return nil
	}
}

// Submit validates form against the modal identified by modalID. A valid form
// closes the modal and hands the purchase to the payment widget; an invalid
// one leaves the modal open and returns validation.FieldErrors.
func (s *Session) Submit(ctx context.Context, modalID string, form validation.CheckoutForm) (payment.Payload, error) {
	ctx, span := otel.Tracer("checkout-service").Start(ctx, "SubmitCheckout")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", s.ID), attribute.String("modal.id", modalID))

	s.mu.Lock()
	m := s.modal
	if m == nil || m.id != modalID {
		s.mu.Unlock()
		return payment.Payload{}, ErrModalClosed
	}
	if m.state == StateSubmitting {
		s.mu.Unlock()
		return payment.Payload{}, ErrSubmitInProgress
	}

	form = form.Trimmed()
	if errs := s.deps.Validator.Checkout(form); errs != nil {
		m.errors = errs
		m.render()
		s.mu.Unlock()

		for _, field := range errs.Fields() {
			middleware.RecordFieldValidationFailure(field)
		}
		return payment.Payload{}, errs
	}

	m.errors = nil
	m.state = StateSubmitting
	m.render()
	middleware.RecordCheckoutTransition(StateOpen.String(), StateSubmitting.String())

	payload, err := payment.BuildPayload(
		s.deps.PublicKey,
		s.deps.Currency,
		m.req.ProductName,
		m.req.PriceMajor,
		payment.Buyer{Email: form.Email, Name: form.FullName, Phone: form.Phone, Address: form.Address},
		s.refs.Next(),
	)
	if err != nil {
		m.state = StateOpen
		m.render()
		s.mu.Unlock()
		middleware.RecordCheckoutTransition(StateSubmitting.String(), StateOpen.String())
		span.RecordError(err)
		return payment.Payload{}, err
	}

	s.payments[payload.Reference] = struct{}{}
	s.closeLocked(ctx, m)
	s.mu.Unlock()

	s.deps.Logger.Info("Checkout submitted",
		zap.String("session_id", s.ID),
		zap.String("reference", payload.Reference),
		zap.Int64("amount", payload.AmountMinor),
	)

	if err := s.deps.Handoff.Start(ctx, s.ID, payload, s.notifications); err != nil {
		span.RecordError(err)
		return payload, err
	}
	// The page may have gone away while the widget was opening.
	if s.isEnded() {
		s.deps.Handoff.Forget(payload.Reference)
	}
	return payload, nil
}

// CloseCheckout closes the current modal, if any. Calling it twice is a no-op.
func (s *Session) CloseCheckout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.modal != nil {
		s.closeLocked(ctx, s.modal)
	}
}

// Dispatch routes a UI event to the listeners of the modal it was raised on.
// Events aimed at a modal that is no longer mounted are dropped.
func (s *Session) Dispatch(ctx context.Context, ev Event) error {
	s.mu.Lock()
	m := s.modal
	if m == nil || m.id != ev.ModalID {
		s.mu.Unlock()
		return ErrModalClosed
	}
	l, ok := m.listeners[ev.Type]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	return l(ctx, ev)
}

func (s *Session) closeLocked(ctx context.Context, m *Modal) {
	prev, closed := m.close()
	if s.modal == m {
		s.modal = nil
	}
	if !closed {
		return
	}

	middleware.RecordCheckoutTransition(prev.String(), StateClosed.String())
	s.deps.Logger.Info("Checkout closed",
		zap.String("session_id", s.ID),
		zap.String("modal_id", m.id),
		zap.String("from", prev.String()),
	)
	s.publish(ctx, models.CheckoutEvent{
		EventType:   models.EventCheckoutClosed,
		SessionID:   s.ID,
		ProductName: m.req.ProductName,
	})
}

// SubmitContact validates the contact form and simulates sending it. The
// success banner appears after the configured send delay; only one message
// can be in flight per session.
func (s *Session) SubmitContact(ctx context.Context, form validation.ContactForm) error {
	if err := s.deps.Validator.Contact(form); err != nil {
		s.notifications.Show(ctx, err.Error(), notification.KindError)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionEnded
	}
	if s.contactTimer != nil {
		return ErrContactSending
	}

	s.publish(ctx, models.CheckoutEvent{
		EventType: models.EventContactSubmitted,
		SessionID: s.ID,
		Email:     form.Email,
	})

	sendCtx := context.WithoutCancel(ctx)
	s.contactTimer = time.AfterFunc(s.deps.ContactSendDelay, func() {
		s.mu.Lock()
		s.contactTimer = nil
		s.mu.Unlock()
		s.notifications.Show(sendCtx, MsgContactSent, notification.KindSuccess)
	})
	return nil
}

// ContactSending reports whether a contact message is waiting to be sent.
func (s *Session) ContactSending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contactTimer != nil
}

// Subscribe is the newsletter stub: a non-empty email gets a thank-you banner.
func (s *Session) Subscribe(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := s.deps.Validator.Newsletter(email); err != nil {
		return err
	}
	s.notifications.Show(ctx, MsgSubscribed, notification.KindSuccess)
	s.publish(ctx, models.CheckoutEvent{
		EventType: models.EventNewsletterSignup,
		SessionID: s.ID,
		Email:     email,
	})
	return nil
}

// End tears the page down: the modal is closed, every pending timer is
// stopped and payments still waiting on the widget are abandoned.
func (s *Session) End(ctx context.Context) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	if s.modal != nil {
		s.closeLocked(ctx, s.modal)
	}
	if s.contactTimer != nil {
		s.contactTimer.Stop()
		s.contactTimer = nil
	}
	payments := s.payments
	s.payments = make(map[string]struct{})
	s.mu.Unlock()

	for ref := range payments {
		s.deps.Handoff.Forget(ref)
	}
	s.notifications.Close()
}

func (s *Session) publish(ctx context.Context, event models.CheckoutEvent) {
	if s.deps.Events == nil {
		return
	}
	if err := s.deps.Events.Publish(ctx, event); err != nil {
		s.deps.Logger.Error("Failed to publish checkout event",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}
