package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Webhook event types understood by the checkout flow.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

var (
	// ErrInvalidSignature is returned when a webhook payload fails verification.
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	// ErrInvalidAmount is returned for non-positive intent amounts.
	ErrInvalidAmount = errors.New("payment: amount must be positive")
	// ErrUnknownIntent is returned by transitions when no checkout owns the intent.
	ErrUnknownIntent = errors.New("payment: unknown intent")
	// ErrAmountMismatch is returned when a settled amount differs from the checkout total.
	ErrAmountMismatch = errors.New("payment: amount mismatch")
	// ErrAlreadySettled is returned when a failure arrives for a checkout that is already paid.
	ErrAlreadySettled = errors.New("payment: checkout already settled")
)

// IntentRequest captures the information required to open a payment intent with a provider.
type IntentRequest struct {
	Amount         int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the provider-side handle the client confirms against.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Status       string `json:"status"`
}

// WebhookEvent is a verified, provider-neutral webhook notification.
type WebhookEvent struct {
	ID       string
	Type     string
	IntentID string
	Amount   int64
	Reason   string
}

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	Name() string
	SignatureHeader() string
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	VerifyWebhook(payload []byte, signature string) (WebhookEvent, error)
}

// MockProvider issues local intents and verifies webhooks signed with a shared secret.
type MockProvider struct {
	Secret string
}

// Name implements Provider.
func (MockProvider) Name() string { return "mock" }

// SignatureHeader implements Provider.
func (MockProvider) SignatureHeader() string { return "X-Mock-Signature" }

// CreateIntent implements Provider.
func (m MockProvider) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	if req.Amount <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	id := "pi_mock_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return Intent{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method"}, nil
}

// VerifyWebhook implements Provider. The payload is {"id","type","intentId","amount","reason"}.
func (m MockProvider) VerifyWebhook(payload []byte, signature string) (WebhookEvent, error) {
	if m.Secret == "" || !hmac.Equal([]byte(m.Sign(payload)), []byte(strings.TrimSpace(signature))) {
		return WebhookEvent{}, ErrInvalidSignature
	}
	var body struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		IntentID string `json:"intentId"`
		Amount   int64  `json:"amount"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return WebhookEvent{}, fmt.Errorf("payment: decode mock webhook: %w", err)
	}
	return WebhookEvent{ID: body.ID, Type: body.Type, IntentID: body.IntentID, Amount: body.Amount, Reason: body.Reason}, nil
}

// Sign returns the hex HMAC-SHA256 of payload under the mock secret.
func (m MockProvider) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(m.Secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
