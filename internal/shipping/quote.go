package shipping

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/noah-isme/jersey-studio/internal/pricing"
	"github.com/noah-isme/jersey-studio/internal/resilience"
)

// ErrUnavailable wraps failures reaching the quote service.
var ErrUnavailable = errors.New("shipping: quote service unavailable")

// Address is a delivery destination.
type Address struct {
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City       string `json:"city" validate:"required,max=100"`
	Region     string `json:"region,omitempty" validate:"omitempty,max=100"`
	PostalCode string `json:"postalCode" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,iso3166_1_alpha2"`
}

// QuoteItem is one parcel line sent to the carrier.
type QuoteItem struct {
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
}

// QuoteRequest asks for delivery options.
type QuoteRequest struct {
	Address       Address       `json:"address"`
	Items         []QuoteItem   `json:"items"`
	SubtotalMinor pricing.Money `json:"subtotalMinor"`
}

// Option is one carrier service. PriceMinor is the carrier's estimate, not the charged amount.
type Option struct {
	ID         string        `json:"id"`
	Carrier    string        `json:"carrier"`
	Service    string        `json:"service"`
	PriceMinor pricing.Money `json:"priceMinor"`
	ETADays    int           `json:"etaDays"`
	Estimate   bool          `json:"estimate"`
}

// Quote lists the available options.
type Quote struct {
	Options       []Option `json:"options"`
	RecommendedID string   `json:"recommendedId,omitempty"`
}

// Quoter fetches delivery options.
type Quoter interface {
	Quote(ctx context.Context, req QuoteRequest) (Quote, error)
}

// HTTPQuoter calls the shipping quote service.
type HTTPQuoter struct {
	HTTP   resilience.HTTPClient
	URL    string
	APIKey string
}

// Quote implements Quoter.
func (q HTTPQuoter) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if strings.TrimSpace(q.URL) == "" {
		return Quote{}, fmt.Errorf("%w: quote url not configured", ErrUnavailable)
	}
	header := http.Header{}
	if q.APIKey != "" {
		header.Set("Authorization", "Bearer "+q.APIKey)
	}
	var out Quote
	if err := q.HTTP.DoJSON(ctx, http.MethodPost, q.URL, header, req, &out); err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return normalize(out), nil
}

// MockQuoter returns canned carrier options, for development and tests.
type MockQuoter struct{}

// Quote implements Quoter.
func (MockQuoter) Quote(_ context.Context, req QuoteRequest) (Quote, error) {
	var units int64
	for _, it := range req.Items {
		units += it.Quantity
	}
	// heavier parcels cost more per extra ten garments
	surcharge := pricing.Money(units/10) * 250
	return normalize(Quote{Options: []Option{
		{ID: "ground", Carrier: "ParcelCo", Service: "Ground", PriceMinor: 2800 + surcharge, ETADays: 6},
		{ID: "express", Carrier: "ParcelCo", Service: "Express", PriceMinor: 4900 + surcharge, ETADays: 2},
		{ID: "overnight", Carrier: "SwiftShip", Service: "Overnight", PriceMinor: 8900 + surcharge, ETADays: 1},
	}}), nil
}

// normalize marks every option as an estimate, orders them by price then speed and fills in a recommendation.
func normalize(q Quote) Quote {
	opts := make([]Option, 0, len(q.Options))
	for _, o := range q.Options {
		o.Estimate = true
		opts = append(opts, o)
	}
	sort.SliceStable(opts, func(i, j int) bool {
		if opts[i].PriceMinor != opts[j].PriceMinor {
			return opts[i].PriceMinor < opts[j].PriceMinor
		}
		return opts[i].ETADays < opts[j].ETADays
	})
	q.Options = opts
	if q.RecommendedID == "" && len(opts) > 0 {
		q.RecommendedID = opts[0].ID
	}
	return q
}
