package subscription

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/jersey-studio/internal/common"
)

// Handler exposes the caller's subscription status.
type Handler struct {
	Resolver Resolver
	Logger   zerolog.Logger
}

type statusResponse struct {
	Status
	DiscountEligible bool `json:"discountEligible"`
}

// Me handles GET /api/v1/me/subscription.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	if h.Resolver.Client == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "subscription client not configured", nil)
		return
	}
	st, err := h.Resolver.Client.Status(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			h.Logger.Warn().Err(err).Msg("subscription lookup failed")
			common.JSONError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "subscription service unavailable", map[string]any{"retryable": true})
			return
		}
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, statusResponse{Status: st, DiscountEligible: st.Active(h.Resolver.now())})
}
