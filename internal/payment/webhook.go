package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/jersey-studio/internal/common"
	"github.com/noah-isme/jersey-studio/internal/events"
	"github.com/noah-isme/jersey-studio/internal/obs"
)

// Transitioner moves the checkout that owns an intent into its terminal state.
type Transitioner interface {
	MarkPaid(ctx context.Context, intentID string, amount int64) (string, error)
	MarkFailed(ctx context.Context, intentID, reason string) (string, error)
}

// Webhook handles payment provider callbacks, including signature verification and replay protection.
type Webhook struct {
	Providers map[string]Provider
	Checkouts Transitioner
	Replay    *redis.Client
	ReplayTTL time.Duration
	Events    events.Emitter
	Logger    zerolog.Logger
}

// Handle processes POST /api/v1/payments/webhook/{provider}.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Providers == nil || h.Checkouts == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	provider, ok := h.Providers[providerKey]
	if !ok {
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_SUPPORTED", "unknown provider", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	ev, err := provider.VerifyWebhook(body, r.Header.Get(provider.SignatureHeader()))
	if err != nil {
		obs.IncCounter(obs.PaymentWebhookTotal, providerKey, "invalid")
		if errors.Is(err, ErrInvalidSignature) {
			common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	if ev.IntentID == "" || (ev.Type != EventIntentSucceeded && ev.Type != EventIntentFailed) {
		obs.IncCounter(obs.PaymentWebhookTotal, providerKey, "ignored")
		common.Data(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	ctx := r.Context()
	replayKey := h.replayKey(providerKey, ev, body)
	if h.Replay != nil && h.ReplayTTL > 0 {
		fresh, err := h.Replay.SetNX(ctx, replayKey, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "replay store unavailable", nil)
			return
		}
		if !fresh {
			obs.IncCounter(obs.PaymentWebhookTotal, providerKey, "duplicate")
			common.Data(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	log := h.Logger.With().Str("provider", providerKey).Str("event_id", ev.ID).Str("intent_id", ev.IntentID).Logger()
	var checkoutID, topic string
	switch ev.Type {
	case EventIntentSucceeded:
		checkoutID, err = h.Checkouts.MarkPaid(ctx, ev.IntentID, ev.Amount)
		topic = events.TopicPaymentSucceeded
	default:
		checkoutID, err = h.Checkouts.MarkFailed(ctx, ev.IntentID, ev.Reason)
		topic = events.TopicPaymentFailed
	}
	switch {
	case errors.Is(err, ErrUnknownIntent):
		obs.IncCounter(obs.PaymentWebhookTotal, providerKey, "unknown_intent")
		log.Warn().Msg("webhook for unknown intent")
		common.Data(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	case errors.Is(err, ErrAlreadySettled):
		obs.IncCounter(obs.PaymentWebhookTotal, providerKey, "already_settled")
		log.Warn().Msg("failure reported for a paid checkout")
		common.Data(w, http.StatusOK, map[string]string{"status": "already_settled", "checkoutId": checkoutID})
		return
	case errors.Is(err, ErrAmountMismatch):
		obs.IncCounter(obs.PaymentWebhookTotal, providerKey, "amount_mismatch")
		log.Error().Int64("amount", ev.Amount).Msg("settled amount does not match checkout total")
		common.JSONError(w, http.StatusUnprocessableEntity, "AMOUNT_MISMATCH", "settled amount does not match checkout", nil)
		return
	case err != nil:
		h.release(replayKey)
		obs.IncCounter(obs.PaymentWebhookTotal, providerKey, "error")
		log.Error().Err(err).Msg("apply payment webhook")
		common.JSONError(w, http.StatusInternalServerError, "WEBHOOK_FAILED", "unable to apply webhook", nil)
		return
	}

	if h.Events != nil {
		payload := map[string]any{"checkoutId": checkoutID, "intentId": ev.IntentID, "provider": providerKey, "amount": ev.Amount}
		if ev.Reason != "" {
			payload["reason"] = ev.Reason
		}
		if _, emitErr := h.Events.Emit(ctx, topic, checkoutID, payload); emitErr != nil {
			log.Error().Err(emitErr).Str("topic", topic).Msg("emit payment event")
		}
	}
	obs.IncCounter(obs.PaymentWebhookTotal, providerKey, "processed")
	common.Data(w, http.StatusOK, map[string]string{"status": "processed", "checkoutId": checkoutID})
}

func (h Webhook) replayKey(provider string, ev WebhookEvent, body []byte) string {
	if ev.ID != "" {
		return fmt.Sprintf("wh:%s:%s", provider, ev.ID)
	}
	return fmt.Sprintf("wh:%s:%s", provider, common.Sha256Hex(string(body)))
}

// release forgets a replay marker so the provider's retry is processed.
func (h Webhook) release(key string) {
	if h.Replay == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = h.Replay.Del(ctx, key).Err()
}
