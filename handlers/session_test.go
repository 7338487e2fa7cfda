package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/faithboy007/world-conquest-veterinary-home/catalog"
	"github.com/faithboy007/world-conquest-veterinary-home/checkout"
	"github.com/faithboy007/world-conquest-veterinary-home/circuitbreaker"
	"github.com/faithboy007/world-conquest-veterinary-home/config"
	"github.com/faithboy007/world-conquest-veterinary-home/models"
	"github.com/faithboy007/world-conquest-veterinary-home/payment"
	"github.com/faithboy007/world-conquest-veterinary-home/paystack"
	"github.com/faithboy007/world-conquest-veterinary-home/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const paystackSecret = "sk_test_handlers"

type staticProducts map[string]models.Product

func (p staticProducts) Get(ctx context.Context, sku string) (models.Product, error) {
	product, ok := p[sku]
	if !ok {
		return models.Product{}, catalog.ErrProductNotFound
	}
	return product, nil
}

type checkoutEnv struct {
	router   *gin.Engine
	registry *checkout.Registry
	pending  *payment.Pending
}

func setupCheckoutTest(t *testing.T) *checkoutEnv {
	t.Helper()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"access_code":"ac_123","authorization_url":"https://checkout.paystack.com/ac_123"}}`))
	}))
	t.Cleanup(provider.Close)

	// Notification timers outlive requests, so a no-op logger is used.
	logger := zap.NewNop()
	pending := payment.NewPending()
	client := paystack.NewClient(config.Paystack{
		BaseURL:   provider.URL,
		SecretKey: paystackSecret,
		Timeout:   time.Second,
	}, circuitbreaker.NewCircuitBreaker(3, time.Minute), pending, logger)

	registry := checkout.NewRegistry(checkout.Deps{
		Validator:           validation.New(),
		Handoff:             payment.NewHandoff(client, nil, logger),
		Logger:              logger,
		PublicKey:           "pk_test_handlers",
		Currency:            "NGN",
		ReferencePrefix:     "WCV",
		NotificationDisplay: time.Hour,
		NotificationFade:    time.Hour,
		ContactSendDelay:    10 * time.Millisecond,
	})
	t.Cleanup(func() { registry.Close(context.Background()) })

	products := staticProducts{
		"dog-food": {SKU: "dog-food", Name: "Dog Food Premium", Price: 12500},
	}
	sessions := NewSessionHandler(registry, products, client, logger)
	payments := NewPaymentHandler(registry, pending, client, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/sessions", sessions.CreateSession)
	router.GET("/sessions/:id", sessions.GetSession)
	router.DELETE("/sessions/:id", sessions.EndSession)
	router.GET("/sessions/:id/notifications", sessions.GetNotifications)
	router.POST("/sessions/:id/checkout", sessions.OpenCheckout)
	router.DELETE("/sessions/:id/checkout", sessions.CloseCheckout)
	router.POST("/sessions/:id/checkout/:modal/submit", sessions.Submit)
	router.POST("/sessions/:id/checkout/:modal/events", sessions.DispatchEvent)
	router.POST("/sessions/:id/contact", sessions.SubmitContact)
	router.POST("/sessions/:id/newsletter", sessions.Subscribe)
	router.POST("/sessions/:id/payments/:reference/cancel", payments.CancelPayment)
	router.POST("/webhooks/paystack", payments.PaystackWebhook)

	return &checkoutEnv{router: router, registry: registry, pending: pending}
}

func (e *checkoutEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to unmarshal response %s: %v", w.Body.String(), err)
	}
	return v
}

func (e *checkoutEnv) newSession(t *testing.T) string {
	t.Helper()
	w := e.do(t, "POST", "/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d", http.StatusCreated, w.Code)
	}
	return decode[SessionResponse](t, w).SessionID
}

func (e *checkoutEnv) open(t *testing.T, sessionID string, body models.OpenCheckoutRequest) SessionResponse {
	t.Helper()
	w := e.do(t, "POST", "/sessions/"+sessionID+"/checkout", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	return decode[SessionResponse](t, w)
}

var validCheckoutForm = validation.CheckoutForm{
	Email:    "ada@example.com",
	FullName: "Ada Obi",
	Phone:    "08012345678",
	Address:  "12 Marina Road, Lagos",
}

func TestSessionHandler_CheckoutAndWebhookSuccess(t *testing.T) {
	env := setupCheckoutTest(t)
	id := env.newSession(t)

	resp := env.open(t, id, models.OpenCheckoutRequest{SKU: "dog-food"})
	if resp.Modal == nil {
		t.Fatal("Expected an open modal")
	}
	if resp.Modal.PriceDisplay != "₦12,500" {
		t.Errorf("Expected price ₦12,500, got %s", resp.Modal.PriceDisplay)
	}

	w := env.do(t, "POST", "/sessions/"+id+"/checkout/"+resp.Modal.ModalID+"/submit", validCheckoutForm)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	submit := decode[SubmitResponse](t, w)
	if submit.Payment.AmountMinor != 1250000 {
		t.Errorf("Expected amount 1250000, got %d", submit.Payment.AmountMinor)
	}
	if submit.Authorization == nil || submit.Authorization.AccessCode != "ac_123" {
		t.Errorf("Expected access code ac_123, got %+v", submit.Authorization)
	}

	session := decode[SessionResponse](t, env.do(t, "GET", "/sessions/"+id, nil))
	if session.Modal != nil {
		t.Error("Expected modal to be closed after submit")
	}

	webhook := []byte(`{"event":"charge.success","data":{"reference":"` + submit.Payment.Reference + `","status":"success"}}`)
	req := httptest.NewRequest("POST", "/webhooks/paystack", bytes.NewReader(webhook))
	req.Header.Set(paystack.SignatureHeader, paystack.Sign(paystackSecret, webhook))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, rec.Code)
	}

	notes := decode[[]map[string]any](t, env.do(t, "GET", "/sessions/"+id+"/notifications", nil))
	if len(notes) != 1 {
		t.Fatalf("Expected 1 notification, got %d", len(notes))
	}
	if notes[0]["message"] != payment.SuccessMessage(submit.Payment.Reference) {
		t.Errorf("Unexpected notification %v", notes[0]["message"])
	}
}

func TestSessionHandler_CancelPayment(t *testing.T) {
	env := setupCheckoutTest(t)
	id := env.newSession(t)
	resp := env.open(t, id, models.OpenCheckoutRequest{ProductName: "Rabies Vaccine", Price: 3000})

	w := env.do(t, "POST", "/sessions/"+id+"/checkout/"+resp.Modal.ModalID+"/submit", validCheckoutForm)
	submit := decode[SubmitResponse](t, w)

	w = env.do(t, "POST", "/sessions/"+id+"/payments/"+submit.Payment.Reference+"/cancel", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	w = env.do(t, "POST", "/sessions/"+id+"/payments/"+submit.Payment.Reference+"/cancel", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	session := decode[SessionResponse](t, env.do(t, "GET", "/sessions/"+id, nil))
	if len(session.Notifications) != 1 || session.Notifications[0].Message != payment.MsgPaymentCancelled {
		t.Errorf("Expected a single cancellation notification, got %+v", session.Notifications)
	}
}

func TestSessionHandler_WebhookBadSignature(t *testing.T) {
	env := setupCheckoutTest(t)

	req := httptest.NewRequest("POST", "/webhooks/paystack", bytes.NewBufferString(`{"event":"charge.success"}`))
	req.Header.Set(paystack.SignatureHeader, "00")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestSessionHandler_SubmitInvalidForm(t *testing.T) {
	env := setupCheckoutTest(t)
	id := env.newSession(t)
	resp := env.open(t, id, models.OpenCheckoutRequest{ProductName: "Rabies Vaccine", Price: 3000})

	w := env.do(t, "POST", "/sessions/"+id+"/checkout/"+resp.Modal.ModalID+"/submit", validation.CheckoutForm{
		Email:    "not-an-email",
		FullName: "Jo",
		Phone:    "123",
	})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status %d, got %d", http.StatusUnprocessableEntity, w.Code)
	}

	body := decode[struct {
		Fields map[string]string `json:"fields"`
	}](t, w)
	if len(body.Fields) != 3 {
		t.Errorf("Expected 3 field errors, got %v", body.Fields)
	}
	if env.pending.Len() != 0 {
		t.Errorf("Expected no pending payment, got %d", env.pending.Len())
	}

	session := decode[SessionResponse](t, env.do(t, "GET", "/sessions/"+id, nil))
	if session.Modal == nil || session.Modal.State != "open" {
		t.Errorf("Expected modal to stay open, got %+v", session.Modal)
	}
}

func TestSessionHandler_OpenCheckoutErrors(t *testing.T) {
	env := setupCheckoutTest(t)
	id := env.newSession(t)

	w := env.do(t, "POST", "/sessions/"+id+"/checkout", models.OpenCheckoutRequest{ProductName: "Rabies Vaccine"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected status %d, got %d", http.StatusUnprocessableEntity, w.Code)
	}

	w = env.do(t, "POST", "/sessions/"+id+"/checkout", models.OpenCheckoutRequest{SKU: "unknown"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	w = env.do(t, "POST", "/sessions/missing/checkout", models.OpenCheckoutRequest{SKU: "dog-food"})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestSessionHandler_StaleEventsAreIgnored(t *testing.T) {
	env := setupCheckoutTest(t)
	id := env.newSession(t)

	first := env.open(t, id, models.OpenCheckoutRequest{ProductName: "Cat Litter", Price: 4000})
	second := env.open(t, id, models.OpenCheckoutRequest{ProductName: "Bird Seed", Price: 2500})

	w := env.do(t, "POST", "/sessions/"+id+"/checkout/"+first.Modal.ModalID+"/events", models.UIEventRequest{Type: "close"})
	if w.Code != http.StatusAccepted {
		t.Errorf("Expected status %d, got %d", http.StatusAccepted, w.Code)
	}

	session := decode[SessionResponse](t, env.do(t, "GET", "/sessions/"+id, nil))
	if session.Modal == nil || session.Modal.ModalID != second.Modal.ModalID {
		t.Fatalf("Expected second modal to stay open, got %+v", session.Modal)
	}

	w = env.do(t, "POST", "/sessions/"+id+"/checkout/"+second.Modal.ModalID+"/events", models.UIEventRequest{Type: "overlay_click"})
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if decode[SessionResponse](t, w).Modal != nil {
		t.Error("Expected modal to be closed")
	}

	w = env.do(t, "DELETE", "/sessions/"+id+"/checkout", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestSessionHandler_ContactAndNewsletter(t *testing.T) {
	env := setupCheckoutTest(t)
	id := env.newSession(t)

	w := env.do(t, "POST", "/sessions/"+id+"/contact", validation.ContactForm{Name: "Ada", Email: "bad", Phone: "0801", Service: "grooming"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	w = env.do(t, "POST", "/sessions/"+id+"/contact", validation.ContactForm{Name: "Ada", Email: "ada@example.com", Phone: "0801", Service: "grooming"})
	if w.Code != http.StatusAccepted {
		t.Errorf("Expected status %d, got %d", http.StatusAccepted, w.Code)
	}

	w = env.do(t, "POST", "/sessions/"+id+"/newsletter", models.NewsletterRequest{Email: ""})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	w = env.do(t, "POST", "/sessions/"+id+"/newsletter", models.NewsletterRequest{Email: "ada@example.com"})
	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	deadline := time.Now().Add(time.Second)
	for {
		notes := decode[[]map[string]any](t, env.do(t, "GET", "/sessions/"+id+"/notifications", nil))
		// invalid email, newsletter thanks and the delayed contact thanks
		if len(notes) == 3 {
			if notes[0]["message"] != validation.MsgInvalidEmail {
				t.Errorf("Unexpected first notification %v", notes[0]["message"])
			}
			found := false
			for _, n := range notes {
				if n["message"] == checkout.MsgContactSent {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected contact confirmation among %v", notes)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected 3 notifications, got %d", len(notes))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionHandler_EndSession(t *testing.T) {
	env := setupCheckoutTest(t)
	id := env.newSession(t)

	if w := env.do(t, "DELETE", "/sessions/"+id, nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, w.Code)
	}
	if w := env.do(t, "GET", "/sessions/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestSessionHandler_CancelPaymentOfAnotherSession(t *testing.T) {
	env := setupCheckoutTest(t)
	owner := env.newSession(t)
	other := env.newSession(t)
	resp := env.open(t, owner, models.OpenCheckoutRequest{ProductName: "Rabies Vaccine", Price: 3000})
	submit := decode[SubmitResponse](t, env.do(t, "POST", "/sessions/"+owner+"/checkout/"+resp.Modal.ModalID+"/submit", validCheckoutForm))

	w := env.do(t, "POST", "/sessions/"+other+"/payments/"+submit.Payment.Reference+"/cancel", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	w = env.do(t, "POST", "/sessions/missing/payments/"+submit.Payment.Reference+"/cancel", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	if env.pending.Len() != 1 {
		t.Errorf("Expected payment to stay pending, got %d", env.pending.Len())
	}
	session := decode[SessionResponse](t, env.do(t, "GET", "/sessions/"+owner, nil))
	if len(session.Notifications) != 0 {
		t.Errorf("Expected no notification on the owner's page, got %+v", session.Notifications)
	}
}

func TestSessionHandler_EndedSessionsReleasePendingPayments(t *testing.T) {
	env := setupCheckoutTest(t)

	ids := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		id := env.newSession(t)
		resp := env.open(t, id, models.OpenCheckoutRequest{SKU: "dog-food"})
		w := env.do(t, "POST", "/sessions/"+id+"/checkout/"+resp.Modal.ModalID+"/submit", validCheckoutForm)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}
		ids = append(ids, id)
	}
	if env.pending.Len() != 20 {
		t.Fatalf("Expected 20 pending payments, got %d", env.pending.Len())
	}

	if w := env.do(t, "DELETE", "/sessions/"+ids[0], nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected status %d, got %d", http.StatusNoContent, w.Code)
	}
	if env.pending.Len() != 19 {
		t.Errorf("Expected 19 pending payments, got %d", env.pending.Len())
	}

	env.registry.Close(context.Background())
	if env.pending.Len() != 0 {
		t.Errorf("Expected no pending payments after close, got %d", env.pending.Len())
	}
}
