package shipping

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/jersey-studio/internal/cart"
	"github.com/noah-isme/jersey-studio/internal/common"
	"github.com/noah-isme/jersey-studio/internal/pricing"
)

// CartPricer loads and prices carts.
type CartPricer interface {
	Get(ctx context.Context, id, userID string) (cart.Cart, error)
	Price(c cart.Cart, isSubscriber bool) (pricing.Breakdown, error)
}

// Handler serves shipping quotes for a cart.
type Handler struct {
	Quoter        Quoter
	Carts         CartPricer
	Subscriptions cart.SubscriberChecker
	Logger        zerolog.Logger
}

type quoteResponse struct {
	Quote
	ChargedShippingMinor pricing.Money `json:"chargedShippingMinor"`
	FreeShippingApplied  bool          `json:"freeShippingApplied"`
}

// Quotes handles POST /api/v1/carts/{id}/shipping-quotes. Options are informational; the charged
// shipping always comes from the cart's price breakdown.
func (h *Handler) Quotes(w http.ResponseWriter, r *http.Request) {
	if h.Quoter == nil || h.Carts == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "shipping not configured", nil)
		return
	}
	var payload struct {
		Address Address `json:"address"`
	}
	if !common.DecodeJSON(w, r, &payload) {
		return
	}
	if err := pricing.Validator().Struct(payload.Address); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid address", pricing.FieldErrors(err))
		return
	}
	ctx := r.Context()
	userID, _ := common.UserID(ctx)
	c, err := h.Carts.Get(ctx, chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if c.IsEmpty() {
		common.JSONError(w, http.StatusBadRequest, "EMPTY_CART", "cart has no items", nil)
		return
	}
	subscribed := false
	if h.Subscriptions != nil && userID != "" {
		if ok, err := h.Subscriptions.IsSubscriber(ctx, userID); err == nil {
			subscribed = ok
		} else {
			h.Logger.Warn().Err(err).Msg("subscription lookup failed; quoting without discount")
		}
	}
	b, err := h.Carts.Price(c, subscribed)
	if err != nil {
		h.writeError(w, err)
		return
	}

	req := QuoteRequest{Address: payload.Address, SubtotalMinor: b.SubtotalAfterDiscounts}
	for _, line := range b.Lines {
		req.Items = append(req.Items, QuoteItem{SKU: line.SKU, Quantity: line.Quantity})
	}
	quote, err := h.Quoter.Quote(ctx, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, quoteResponse{
		Quote:                quote,
		ChargedShippingMinor: b.ShippingCost,
		FreeShippingApplied:  b.ShippingFreeThresholdApplied,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
	case errors.Is(err, pricing.ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
	case errors.Is(err, ErrUnavailable):
		h.Logger.Warn().Err(err).Msg("shipping quote failed")
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "shipping quotes unavailable", map[string]any{"retryable": true})
	default:
		h.Logger.Error().Err(err).Msg("shipping quote request failed")
		common.WriteError(w, err)
	}
}
