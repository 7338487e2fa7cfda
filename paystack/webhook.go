package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/faithboy007/world-conquest-veterinary-home/payment"

	"go.uber.org/zap"
)

const SignatureHeader = "x-paystack-signature"

var ErrInvalidSignature = errors.New("invalid paystack signature")

type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference       string `json:"reference"`
		Status          string `json:"status"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

// Sign returns the hex HMAC-SHA512 of body under the secret key, the way
// Paystack signs webhook deliveries.
func Sign(secretKey string, body []byte) string {
	return hex.EncodeToString(mac(secretKey, body))
}

func mac(secretKey string, body []byte) []byte {
	h := hmac.New(sha512.New, []byte(secretKey))
	h.Write(body)
	return h.Sum(nil)
}

func (c *Client) VerifySignature(body []byte, signature string) bool {
	if c.secretKey == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	return hmac.Equal(mac(c.secretKey, body), got)
}

// HandleWebhook verifies and applies a webhook delivery. Only charge.success
// resolves a pending checkout; every other event is acknowledged and ignored.
// It reports whether a pending checkout was resolved.
func (c *Client) HandleWebhook(body []byte, signature string) (bool, error) {
	if !c.VerifySignature(body, signature) {
		return false, ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return false, fmt.Errorf("failed to decode webhook: %w", err)
	}

	if event.Event != "charge.success" {
		c.logger.Debug("Ignoring paystack event", zap.String("event", event.Event))
		return false, nil
	}

	err := c.pending.Succeed(payment.Confirmation{
		Reference: event.Data.Reference,
		Status:    event.Data.Status,
		Message:   event.Data.GatewayResponse,
	})
	if errors.Is(err, payment.ErrUnknownReference) {
		c.logger.Info("Webhook for unknown reference", zap.String("reference", event.Data.Reference))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
