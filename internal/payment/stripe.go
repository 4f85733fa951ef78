package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeConfig configures the Stripe provider.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Backends      *stripe.Backends
}

// StripeProvider creates PaymentIntents and verifies Stripe webhook signatures.
type StripeProvider struct {
	intents       stripePaymentIntentAPI
	webhookSecret string
}

// NewStripeProvider builds a provider backed by the Stripe API.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		return nil, errors.New("payment: stripe secret key is required")
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errors.New("payment: stripe webhook secret is required")
	}
	sc := client.New(key, cfg.Backends)
	return &StripeProvider{intents: sc.PaymentIntents, webhookSecret: secret}, nil
}

func newStripeProviderWithAPI(intents stripePaymentIntentAPI, webhookSecret string) *StripeProvider {
	return &StripeProvider{intents: intents, webhookSecret: webhookSecret}
}

// Name implements Provider.
func (p *StripeProvider) Name() string { return "stripe" }

// SignatureHeader implements Provider.
func (p *StripeProvider) SignatureHeader() string { return "Stripe-Signature" }

// CreateIntent implements Provider.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil || p.intents == nil {
		return Intent{}, errors.New("payment: stripe provider not configured")
	}
	if req.Amount <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	pi, err := p.intents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("payment: stripe create intent: %w", err)
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

// VerifyWebhook implements Provider. Events other than payment intent outcomes are returned with an empty IntentID.
func (p *StripeProvider) VerifyWebhook(payload []byte, signature string) (WebhookEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := WebhookEvent{ID: ev.ID, Type: string(ev.Type)}
	switch ev.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
	default:
		return out, nil
	}
	if ev.Data == nil {
		return WebhookEvent{}, errors.New("payment: stripe event without data")
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return WebhookEvent{}, fmt.Errorf("payment: decode payment intent: %w", err)
	}
	out.IntentID = pi.ID
	out.Amount = pi.Amount
	if pi.LastPaymentError != nil {
		out.Reason = pi.LastPaymentError.Msg
	}
	return out, nil
}
