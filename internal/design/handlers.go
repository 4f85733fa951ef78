package design

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/jersey-studio/internal/common"
)

// Handler exposes design endpoints.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

// Create handles POST /api/v1/designs. Queued designs answer 202, inline ones 201.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "design service not configured", nil)
		return
	}
	var params Params
	if !common.DecodeJSON(w, r, &params) {
		return
	}
	userID, _ := common.UserID(r.Context())
	d, err := h.Svc.Request(r.Context(), userID, params)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if d.Status == StatusPending {
		status = http.StatusAccepted
	}
	common.Data(w, status, d)
}

// Get handles GET /api/v1/designs/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "design service not configured", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	d, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, d)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var perr *ParamsError
	switch {
	case errors.As(err, &perr):
		common.JSONError(w, http.StatusBadRequest, "INVALID_INPUT", "invalid design parameters", perr.Fields)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "design not found", nil)
	case errors.Is(err, ErrGenerationFailed):
		common.JSONError(w, http.StatusBadGateway, "DESIGN_GENERATION_FAILED", "design generation failed, please try again", map[string]any{"retryable": true})
	default:
		h.Logger.Error().Err(err).Msg("design request failed")
		common.WriteError(w, err)
	}
}
