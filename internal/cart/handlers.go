package cart

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/jersey-studio/internal/catalog"
	"github.com/noah-isme/jersey-studio/internal/common"
	"github.com/noah-isme/jersey-studio/internal/lock"
	"github.com/noah-isme/jersey-studio/internal/pricing"
)

// SubscriberChecker reports whether a user currently gets the subscriber discount.
type SubscriberChecker interface {
	IsSubscriber(ctx context.Context, userID string) (bool, error)
}

// Handler wires cart services to HTTP.
type Handler struct {
	Svc           *Service
	Subscriptions SubscriberChecker
	Logger        zerolog.Logger
}

type cartResponse struct {
	Cart      Cart               `json:"cart"`
	Breakdown *pricing.Breakdown `json:"breakdown"`
}

// Create handles POST /api/v1/carts.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload struct {
		DesignID string `json:"designId"`
	}
	if r.ContentLength != 0 && !common.DecodeJSON(w, r, &payload) {
		return
	}
	userID, _ := common.UserID(r.Context())
	c, err := h.Svc.Create(r.Context(), userID, payload.DesignID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, http.StatusCreated, c)
}

// Get handles GET /api/v1/carts/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	c, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

// Pricing handles GET /api/v1/carts/{id}/pricing.
func (h *Handler) Pricing(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	c, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	b, err := h.Svc.Price(c, h.isSubscriber(r.Context(), userID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, b)
}

// SetDesign handles PUT /api/v1/carts/{id}/design.
func (h *Handler) SetDesign(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		DesignID string `json:"designId" validate:"required"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, id, userID string) (Cart, error) {
		return h.Svc.SetDesign(ctx, id, userID, payload.DesignID)
	})
}

// AddItem handles POST /api/v1/carts/{id}/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var payload ItemInput
	if !h.decode(w, r, &payload) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, id, userID string) (Cart, error) {
		return h.Svc.AddItem(ctx, id, userID, payload)
	})
}

// UpdateItem handles PATCH /api/v1/carts/{id}/items/{itemId}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var payload ItemUpdate
	if !h.decode(w, r, &payload) {
		return
	}
	itemID := chi.URLParam(r, "itemId")
	h.mutate(w, r, func(ctx context.Context, id, userID string) (Cart, error) {
		return h.Svc.UpdateItem(ctx, id, userID, itemID, payload)
	})
}

// RemoveItem handles DELETE /api/v1/carts/{id}/items/{itemId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemId")
	h.mutate(w, r, func(ctx context.Context, id, userID string) (Cart, error) {
		return h.Svc.RemoveItem(ctx, id, userID, itemID)
	})
}

// AddAddOn handles POST /api/v1/carts/{id}/add-ons.
func (h *Handler) AddAddOn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Kind     string `json:"kind" validate:"required"`
		Quantity int64  `json:"quantity" validate:"gte=1,lte=10000"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, id, userID string) (Cart, error) {
		return h.Svc.AddAddOn(ctx, id, userID, payload.Kind, payload.Quantity)
	})
}

// RemoveAddOn handles DELETE /api/v1/carts/{id}/add-ons/{addOnId}.
func (h *Handler) RemoveAddOn(w http.ResponseWriter, r *http.Request) {
	addOnID := chi.URLParam(r, "addOnId")
	h.mutate(w, r, func(ctx context.Context, id, userID string) (Cart, error) {
		return h.Svc.RemoveAddOn(ctx, id, userID, addOnID)
	})
}

// SetRoster handles PUT /api/v1/carts/{id}/roster.
func (h *Handler) SetRoster(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		IsTeamOrder bool                   `json:"isTeamOrder"`
		Members     []pricing.RosterMember `json:"members" validate:"dive"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	h.mutate(w, r, func(ctx context.Context, id, userID string) (Cart, error) {
		return h.Svc.SetRoster(ctx, id, userID, payload.Members, payload.IsTeamOrder)
	})
}

// ClearRoster handles DELETE /api/v1/carts/{id}/roster.
func (h *Handler) ClearRoster(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ctx context.Context, id, userID string) (Cart, error) {
		return h.Svc.ClearRoster(ctx, id, userID)
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !common.DecodeJSON(w, r, dst) {
		return false
	}
	if err := pricing.Validator().Struct(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid payload", pricing.FieldErrors(err))
		return false
	}
	return true
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id, userID string) (Cart, error)) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	c, err := op(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, http.StatusOK, c)
}

// respond renders the cart together with its current breakdown.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, c Cart) {
	userID, _ := common.UserID(r.Context())
	b, err := h.Svc.Price(c, h.isSubscriber(r.Context(), userID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, status, cartResponse{Cart: c, Breakdown: &b})
}

// isSubscriber degrades to no discount when the subscription service is unavailable; checkout re-checks strictly.
func (h *Handler) isSubscriber(ctx context.Context, userID string) bool {
	if h.Subscriptions == nil || userID == "" {
		return false
	}
	ok, err := h.Subscriptions.IsSubscriber(ctx, userID)
	if err != nil {
		h.Logger.Warn().Err(err).Str("user_id", userID).Msg("subscription lookup failed; pricing without discount")
		return false
	}
	return ok
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *pricing.ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
	case errors.Is(err, catalog.ErrUnknownSKU):
		common.JSONError(w, http.StatusBadRequest, "UNKNOWN_SKU", err.Error(), nil)
	case errors.As(err, &verr):
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "cart cannot be priced", verr.Details())
	case errors.Is(err, pricing.ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
	case errors.Is(err, lock.ErrBusy):
		common.JSONError(w, http.StatusConflict, "CART_BUSY", "cart is being updated, retry shortly", nil)
	default:
		h.Logger.Error().Err(err).Msg("cart request failed")
		common.WriteError(w, err)
	}
}
