package catalog

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/jersey-studio/internal/common"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	catalog  *Catalog
	currency string
	maxAge   time.Duration
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Catalog  *Catalog
	Currency string
	MaxAge   time.Duration
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &Handler{catalog: cfg.Catalog, currency: cfg.Currency, maxAge: maxAge}
}

type listResponse struct {
	Currency string        `json:"currency"`
	Products []Product     `json:"products"`
	AddOns   []AddOnOption `json:"addOns"`
}

// List handles GET /api/v1/catalog.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	h.setCacheHeaders(w)
	common.Data(w, http.StatusOK, listResponse{
		Currency: h.currency,
		Products: h.catalog.Products(),
		AddOns:   h.catalog.AddOns(),
	})
}

// ProductDetail handles GET /api/v1/catalog/products/{sku}.
func (h *Handler) ProductDetail(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	product, err := h.catalog.Product(chi.URLParam(r, "sku"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.setCacheHeaders(w)
	common.Data(w, http.StatusOK, product)
}

func (h *Handler) setCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.maxAge.Seconds())))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUnknownSKU) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	common.WriteError(w, err)
}
