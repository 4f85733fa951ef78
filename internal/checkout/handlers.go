package checkout

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/jersey-studio/internal/cart"
	"github.com/noah-isme/jersey-studio/internal/common"
	"github.com/noah-isme/jersey-studio/internal/pricing"
)

// Handler wires checkout services to HTTP.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

type beginRequest struct {
	CartID             string `json:"cartId" validate:"required"`
	ExpectedGrandTotal *int64 `json:"expectedGrandTotal" validate:"omitempty,gte=0"`
}

// Begin handles POST /api/v1/checkout.
func (h *Handler) Begin(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var payload beginRequest
	if !common.DecodeJSON(w, r, &payload) {
		return
	}
	if err := pricing.Validator().Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid payload", pricing.FieldErrors(err))
		return
	}
	co, err := h.Svc.Begin(r.Context(), payload.CartID, userID, payload.ExpectedGrandTotal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, co)
}

// Get handles GET /api/v1/checkout/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	co, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	co.ClientSecret = ""
	common.Data(w, http.StatusOK, co)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var changed *PriceChangedError
	var verr *pricing.ValidationError
	switch {
	case errors.As(err, &changed):
		common.JSONError(w, http.StatusConflict, "PRICE_CHANGED", "cart total changed, review the new breakdown", changed.Breakdown)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "checkout not found", nil)
	case errors.Is(err, cart.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", "cart has no items", nil)
	case errors.As(err, &verr):
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "cart cannot be priced", verr.Details())
	case errors.Is(err, ErrSubscriptionUnavailable):
		h.Logger.Warn().Err(err).Msg("checkout blocked on subscription lookup")
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "subscription status unavailable, retry shortly", nil)
	case errors.Is(err, ErrPaymentProvider):
		common.JSONError(w, http.StatusBadGateway, "PAYMENT_PROVIDER_ERROR", "unable to start payment", nil)
	default:
		h.Logger.Error().Err(err).Msg("checkout request failed")
		common.WriteError(w, err)
	}
}
