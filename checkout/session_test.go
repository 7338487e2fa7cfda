package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/faithboy007/world-conquest-veterinary-home/models"
	"github.com/faithboy007/world-conquest-veterinary-home/notification"
	"github.com/faithboy007/world-conquest-veterinary-home/payment"
	"github.com/faithboy007/world-conquest-veterinary-home/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWidget struct {
	mu             sync.Mutex
	unavailable    bool
	availableCalls int
	openErr        error
	opened         []payment.Payload
	forgotten      []string
	onSuccess      func(payment.Confirmation)
	onCancel       func()
}

func (w *fakeWidget) Available(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.availableCalls++
	return !w.unavailable
}

func (w *fakeWidget) Forget(reference string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.forgotten = append(w.forgotten, reference)
}

func (w *fakeWidget) forgottenRefs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.forgotten...)
}

func (w *fakeWidget) Open(ctx context.Context, p payment.Payload, onSuccess func(payment.Confirmation), onCancel func()) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.openErr != nil {
		return w.openErr
	}
	w.opened = append(w.opened, p)
	w.onSuccess = onSuccess
	w.onCancel = onCancel
	return nil
}

func (w *fakeWidget) openCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.opened)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.CheckoutEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.CheckoutEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	session *Session
	overlay *Overlay
	widget  *fakeWidget
	events  *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	// Timers and sinks may log after the test returns, so zaptest is not used.
	logger := zap.NewNop()
	widget := &fakeWidget{}
	events := &recordingPublisher{}
	overlay := NewOverlay()

	s := NewSession(Deps{
		Validator:           validation.New(),
		Handoff:             payment.NewHandoff(widget, events, logger),
		Events:              events,
		NewSurface:          func() Surface { return overlay },
		Logger:              logger,
		PublicKey:           "pk_test_123",
		Currency:            "NGN",
		ReferencePrefix:     "WCV",
		NotificationDisplay: time.Hour,
		NotificationFade:    time.Hour,
		ContactSendDelay:    20 * time.Millisecond,
	})
	t.Cleanup(func() { s.End(context.Background()) })

	return &fixture{session: s, overlay: overlay, widget: widget, events: events}
}

func validForm() validation.CheckoutForm {
	return validation.CheckoutForm{
		Email:    "ada@example.com",
		FullName: "Ada Obi",
		Phone:    "08012345678",
	}
}

func messages(s *Session) []string {
	var out []string
	for _, n := range s.Notifications() {
		out = append(out, n.Message)
	}
	return out
}

func TestOpenCheckout_MountsSummary(t *testing.T) {
	f := newFixture(t)

	view, err := f.session.OpenCheckout(context.Background(), PurchaseRequest{ProductName: "Dog Food Premium", PriceMajor: 12500})
	require.NoError(t, err)

	assert.NotEmpty(t, view.ModalID)
	assert.Equal(t, "Dog Food Premium", view.ProductName)
	assert.Equal(t, "₦12,500", view.PriceDisplay)
	assert.Equal(t, "open", view.State)
	assert.Equal(t, 1, f.overlay.Attached())

	current, ok := f.overlay.Current()
	require.True(t, ok)
	assert.Equal(t, view.ModalID, current.ModalID)
	assert.Equal(t, 1, f.events.count(models.EventCheckoutOpened))
}

func TestOpenCheckout_ReopenKeepsSingleModal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Cat Litter", PriceMajor: 4000})
	require.NoError(t, err)
	second, err := f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Bird Seed", PriceMajor: 2500})
	require.NoError(t, err)

	assert.NotEqual(t, first.ModalID, second.ModalID)
	assert.Equal(t, 1, f.overlay.Attached())

	current, ok := f.session.View()
	require.True(t, ok)
	assert.Equal(t, "Bird Seed", current.ProductName)

	// Listeners of the replaced modal must not fire.
	err = f.session.Dispatch(ctx, Event{Type: EventClose, ModalID: first.ModalID})
	assert.ErrorIs(t, err, ErrModalClosed)
	_, ok = f.session.View()
	assert.True(t, ok)
}

func TestOpenCheckout_MissingProduct(t *testing.T) {
	tests := []struct {
		name string
		req  PurchaseRequest
	}{
		{"empty name", PurchaseRequest{ProductName: "", PriceMajor: 100}},
		{"blank name", PurchaseRequest{ProductName: "   ", PriceMajor: 100}},
		{"zero price", PurchaseRequest{ProductName: "Vaccine", PriceMajor: 0}},
		{"negative price", PurchaseRequest{ProductName: "Vaccine", PriceMajor: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.session.OpenCheckout(context.Background(), tt.req)

			assert.ErrorIs(t, err, ErrMissingProduct)
			assert.Equal(t, 0, f.overlay.Attached())
			assert.Equal(t, []string{MsgMissingProduct}, messages(f.session))
		})
	}
}

func TestOpenCheckout_WidgetUnavailable(t *testing.T) {
	f := newFixture(t)
	f.widget.unavailable = true

	_, err := f.session.OpenCheckout(context.Background(), PurchaseRequest{ProductName: "Vaccine", PriceMajor: 3000})

	assert.ErrorIs(t, err, ErrWidgetUnavailable)
	assert.Equal(t, 0, f.overlay.Attached())
	assert.Equal(t, []string{MsgWidgetLoading}, messages(f.session))
}

func TestCloseCheckout_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Vaccine", PriceMajor: 3000})
	require.NoError(t, err)

	require.NoError(t, f.session.Dispatch(ctx, Event{Type: EventOverlayClick, ModalID: view.ModalID}))
	f.session.CloseCheckout(ctx)
	f.session.CloseCheckout(ctx)

	assert.Equal(t, 0, f.overlay.Attached())
	assert.Equal(t, 1, f.events.count(models.EventCheckoutClosed))
	assert.ErrorIs(t, f.session.Dispatch(ctx, Event{Type: EventClose, ModalID: view.ModalID}), ErrModalClosed)
}

func TestSubmit_ValidFormHandsOff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Dog Food Premium", PriceMajor: 12500})
	require.NoError(t, err)

	form := validForm()
	form.Email = "  ada@example.com "
	payload, err := f.session.Submit(ctx, view.ModalID, form)
	require.NoError(t, err)

	assert.Equal(t, int64(1250000), payload.AmountMinor)
	assert.Equal(t, "ada@example.com", payload.Email)
	assert.Equal(t, "NGN", payload.Currency)
	assert.Equal(t, "pk_test_123", payload.PublicKey)
	assert.Regexp(t, `^WCV-1-\d{9}$`, payload.Reference)
	assert.Equal(t, payment.AddressPlaceholder, payload.Address)

	require.Equal(t, 1, f.widget.openCount())
	assert.Equal(t, payload, f.widget.opened[0])
	assert.Equal(t, 0, f.overlay.Attached())
	_, open := f.session.View()
	assert.False(t, open)
	assert.Equal(t, 1, f.events.count(models.EventPaymentHandoff))
}

func TestSubmit_InvalidFormReportsEveryField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Vaccine", PriceMajor: 3000})
	require.NoError(t, err)

	_, err = f.session.Submit(ctx, view.ModalID, validation.CheckoutForm{
		Email:    "not-an-email",
		FullName: "Jo",
		Phone:    "123",
	})

	var fieldErrs validation.FieldErrors
	require.True(t, errors.As(err, &fieldErrs))
	assert.Equal(t, []string{validation.FieldEmail, validation.FieldName, validation.FieldPhone}, fieldErrs.Fields())
	assert.Equal(t, 0, f.widget.openCount())

	current, ok := f.overlay.Current()
	require.True(t, ok)
	assert.Equal(t, "open", current.State)
	assert.Len(t, current.Errors, 3)

	// Fixing the form clears the errors and proceeds.
	_, err = f.session.Submit(ctx, view.ModalID, validForm())
	require.NoError(t, err)
	assert.Equal(t, 1, f.widget.openCount())
}

func TestSubmit_StaleModal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Vaccine", PriceMajor: 3000})
	require.NoError(t, err)
	f.session.CloseCheckout(ctx)

	_, err = f.session.Submit(ctx, view.ModalID, validForm())
	assert.ErrorIs(t, err, ErrModalClosed)
	assert.Equal(t, 0, f.widget.openCount())
}

func TestDispatch_SubmitEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Vaccine", PriceMajor: 3000})
	require.NoError(t, err)

	err = f.session.Dispatch(ctx, Event{Type: EventSubmit, ModalID: view.ModalID, Form: validForm()})
	require.NoError(t, err)
	assert.Equal(t, 1, f.widget.openCount())

	err = f.session.Dispatch(ctx, Event{Type: EventSubmit, ModalID: view.ModalID, Form: validForm()})
	assert.ErrorIs(t, err, ErrModalClosed)
	assert.Equal(t, 1, f.widget.openCount())
}

func TestDispatch_UnknownEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Vaccine", PriceMajor: 3000})
	require.NoError(t, err)

	err = f.session.Dispatch(ctx, Event{Type: "hover", ModalID: view.ModalID})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestPaymentSuccess_SingleNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Vaccine", PriceMajor: 3000})
	require.NoError(t, err)
	payload, err := f.session.Submit(ctx, view.ModalID, validForm())
	require.NoError(t, err)

	f.widget.onSuccess(payment.Confirmation{Reference: payload.Reference, Status: "success"})
	f.widget.onSuccess(payment.Confirmation{Reference: payload.Reference, Status: "success"})
	f.widget.onCancel()

	active := f.session.Notifications()
	require.Len(t, active, 1)
	assert.Equal(t, notification.KindSuccess, active[0].Kind)
	assert.Equal(t, payment.SuccessMessage(payload.Reference), active[0].Message)
	assert.Contains(t, active[0].Message, payload.Reference)
}

func TestPaymentCancel_SingleNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Vaccine", PriceMajor: 3000})
	require.NoError(t, err)
	_, err = f.session.Submit(ctx, view.ModalID, validForm())
	require.NoError(t, err)

	f.widget.onCancel()
	f.widget.onCancel()

	active := f.session.Notifications()
	require.Len(t, active, 1)
	assert.Equal(t, notification.KindError, active[0].Kind)
	assert.Equal(t, payment.MsgPaymentCancelled, active[0].Message)
}

func TestSubmit_WidgetOpenFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.widget.openErr = errors.New("popup blocked")

	view, err := f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Vaccine", PriceMajor: 3000})
	require.NoError(t, err)
	_, err = f.session.Submit(ctx, view.ModalID, validForm())

	assert.Error(t, err)
	assert.Equal(t, []string{payment.MsgPaymentNotStarted}, messages(f.session))
}

func TestSubmit_ReferencesAreUniquePerAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seen := make(map[string]bool)

	for i := 0; i < 5; i++ {
		view, err := f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Vaccine", PriceMajor: 3000})
		require.NoError(t, err)
		payload, err := f.session.Submit(ctx, view.ModalID, validForm())
		require.NoError(t, err)
		assert.False(t, seen[payload.Reference], "duplicate reference %s", payload.Reference)
		seen[payload.Reference] = true
	}
}

func TestSubmitContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	form := validation.ContactForm{
		Name:    "Ada Obi",
		Email:   "ada@example.com",
		Phone:   "08012345678",
		Service: "vaccination",
	}

	require.NoError(t, f.session.SubmitContact(ctx, form))
	assert.True(t, f.session.ContactSending())
	assert.ErrorIs(t, f.session.SubmitContact(ctx, form), ErrContactSending)
	assert.Empty(t, f.session.Notifications())

	assert.Eventually(t, func() bool {
		return len(messages(f.session)) == 1 && messages(f.session)[0] == MsgContactSent
	}, time.Second, 5*time.Millisecond)
	assert.False(t, f.session.ContactSending())
	assert.Equal(t, 1, f.events.count(models.EventContactSubmitted))
}

func TestSubmitContact_Invalid(t *testing.T) {
	f := newFixture(t)

	err := f.session.SubmitContact(context.Background(), validation.ContactForm{Name: "Ada"})

	assert.ErrorIs(t, err, validation.ErrContactIncomplete)
	assert.Equal(t, []string{validation.MsgRequired}, messages(f.session))
	assert.False(t, f.session.ContactSending())
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.session.Subscribe(ctx, "  "), validation.ErrNewsletterEmpty)
	assert.Empty(t, f.session.Notifications())

	require.NoError(t, f.session.Subscribe(ctx, "ada@example.com"))
	assert.Equal(t, []string{MsgSubscribed}, messages(f.session))
	assert.Equal(t, 1, f.events.count(models.EventNewsletterSignup))
}

func TestEnd_TearsDownPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Vaccine", PriceMajor: 3000})
	require.NoError(t, err)
	f.session.Notify(ctx, "hello", notification.KindSuccess)

	f.session.End(ctx)
	f.session.End(ctx)

	assert.Equal(t, 0, f.overlay.Attached())
	assert.Empty(t, f.session.Notifications())
	_, err = f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Vaccine", PriceMajor: 3000})
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestOpenCheckout_EndedSessionIsRejectedFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.session.End(ctx)

	_, err := f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "", PriceMajor: 0})
	assert.ErrorIs(t, err, ErrSessionEnded)
	_, err = f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Vaccine", PriceMajor: 3000})
	assert.ErrorIs(t, err, ErrSessionEnded)

	f.widget.mu.Lock()
	calls := f.widget.availableCalls
	f.widget.mu.Unlock()
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, f.overlay.Attached())
}

func TestEnd_ForgetsHandedOffPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.session.OpenCheckout(ctx, PurchaseRequest{ProductName: "Vaccine", PriceMajor: 3000})
	require.NoError(t, err)
	payload, err := f.session.Submit(ctx, view.ModalID, validForm())
	require.NoError(t, err)
	assert.True(t, f.session.OwnsPayment(payload.Reference))
	assert.False(t, f.session.OwnsPayment("WCV-9-000000000"))

	f.session.End(ctx)

	assert.Equal(t, []string{payload.Reference}, f.widget.forgottenRefs())
	assert.False(t, f.session.OwnsPayment(payload.Reference))
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "₦12,500", FormatPrice("NGN", 12500))
	assert.Equal(t, "₦500", FormatPrice("NGN", 500))
	assert.Equal(t, "₦1,250,000", FormatPrice("NGN", 1250000))
	assert.Equal(t, "KES 100", FormatPrice("KES", 100))
}
