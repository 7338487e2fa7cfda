package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/faithboy007/world-conquest-veterinary-home/circuitbreaker"
	"github.com/faithboy007/world-conquest-veterinary-home/config"
	"github.com/faithboy007/world-conquest-veterinary-home/payment"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("paystack secret key is not configured")

// Authorization is what the page needs to resume the hosted checkout for an
// initialized transaction.
type Authorization struct {
	Reference        string `json:"reference"`
	AccessCode       string `json:"access_code"`
	AuthorizationURL string `json:"authorization_url"`
}

type initializeRequest struct {
	Email       string           `json:"email"`
	Amount      string           `json:"amount"`
	Currency    string           `json:"currency"`
	Reference   string           `json:"reference"`
	Metadata    payment.Metadata `json:"metadata"`
	CallbackURL string           `json:"callback_url,omitempty"`
}

type initializeResponse struct {
	Status  bool          `json:"status"`
	Message string        `json:"message"`
	Data    Authorization `json:"data"`
}

// Client opens Paystack hosted checkouts. Each opened transaction waits in the
// pending registry until the webhook, the page's cancel call, or a payment
// event resolves it.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	pending    *payment.Pending
	logger     *zap.Logger

	mu             sync.Mutex
	authorizations map[string]Authorization
}

func NewClient(cfg config.Paystack, breaker *circuitbreaker.CircuitBreaker, pending *payment.Pending, logger *zap.Logger) *Client {
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:      cfg.SecretKey,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		breaker:        breaker,
		pending:        pending,
		logger:         logger,
		authorizations: make(map[string]Authorization),
	}
}

// Available reports whether a checkout can be opened right now.
func (c *Client) Available(ctx context.Context) bool {
	return c.secretKey != "" && c.breaker.Allow()
}

func (c *Client) Open(ctx context.Context, p payment.Payload, onSuccess func(payment.Confirmation), onCancel func()) error {
	if c.secretKey == "" {
		return ErrNotConfigured
	}

	ctx, span := otel.Tracer("checkout-service").Start(ctx, "Paystack.InitializeTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("payment.reference", p.Reference))

	// Register first so a webhook racing the initialize response still
	// finds its callbacks.
	err := c.pending.Register(p.Reference,
		func(conf payment.Confirmation) {
			c.forgetAuthorization(conf.Reference)
			onSuccess(conf)
		},
		func() {
			c.forgetAuthorization(p.Reference)
			onCancel()
		},
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to register transaction %s: %w", p.Reference, err)
	}

	var auth Authorization
	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		auth, err = c.initialize(ctx, p)
		return err
	})
	if err != nil {
		c.pending.Forget(p.Reference)
		span.RecordError(err)
		return fmt.Errorf("failed to initialize transaction %s: %w", p.Reference, err)
	}

	// A webhook may already have resolved the reference.
	c.mu.Lock()
	if c.pending.Has(p.Reference) {
		c.authorizations[p.Reference] = auth
	}
	c.mu.Unlock()

	c.logger.Info("Paystack transaction initialized",
		zap.String("reference", p.Reference),
		zap.String("access_code", auth.AccessCode),
	)
	return nil
}

// Authorization returns the hosted checkout of a transaction that has not
// resolved yet.
func (c *Client) Authorization(reference string) (Authorization, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	auth, ok := c.authorizations[reference]
	return auth, ok
}

func (c *Client) forgetAuthorization(reference string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.authorizations, reference)
}

// Forget abandons an opened transaction. Its callbacks never fire.
func (c *Client) Forget(reference string) {
	c.pending.Forget(reference)
	c.forgetAuthorization(reference)
}

// Expire drops transactions that waited longer than the pending TTL and
// returns how many were dropped.
func (c *Client) Expire() int {
	expired := c.pending.Expire()
	if len(expired) == 0 {
		return 0
	}

	c.mu.Lock()
	for _, ref := range expired {
		delete(c.authorizations, ref)
	}
	c.mu.Unlock()

	c.logger.Info("Expired abandoned paystack transactions", zap.Int("count", len(expired)))
	return len(expired)
}

func (c *Client) initialize(ctx context.Context, p payment.Payload) (Authorization, error) {
	body, err := json.Marshal(initializeRequest{
		Email:     p.Email,
		Amount:    strconv.FormatInt(p.AmountMinor, 10),
		Currency:  p.Currency,
		Reference: p.Reference,
		Metadata:  p.Metadata,
	})
	if err != nil {
		return Authorization{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return Authorization{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Authorization{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Authorization{}, fmt.Errorf("failed to read response: %w", err)
	}

	var out initializeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Authorization{}, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !out.Status {
		return Authorization{}, fmt.Errorf("paystack rejected transaction (status %d): %s", resp.StatusCode, out.Message)
	}

	c.logger.Debug("Paystack initialize completed",
		zap.String("reference", p.Reference),
		zap.Duration("duration", time.Since(start)),
	)

	if out.Data.Reference == "" {
		out.Data.Reference = p.Reference
	}
	return out.Data, nil
}
