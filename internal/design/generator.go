package design

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/jersey-studio/internal/resilience"
)

// ErrGenerationFailed is returned when the image generator could not produce a design.
var ErrGenerationFailed = errors.New("design: generation failed")

// Generator renders a design from its parameters.
type Generator interface {
	Generate(ctx context.Context, p Params) (Images, error)
}

// HTTPGenerator calls the image generation service. Retries and backoff come from the wrapped client.
type HTTPGenerator struct {
	HTTP   resilience.HTTPClient
	URL    string
	APIKey string
}

type generateRequest struct {
	Params
}

type generateResponse struct {
	FrontImageURL string `json:"frontImageUrl"`
	BackImageURL  string `json:"backImageUrl"`
}

// Generate implements Generator.
func (g HTTPGenerator) Generate(ctx context.Context, p Params) (Images, error) {
	if strings.TrimSpace(g.URL) == "" {
		return Images{}, fmt.Errorf("%w: generator url not configured", ErrGenerationFailed)
	}
	header := http.Header{}
	if g.APIKey != "" {
		header.Set("Authorization", "Bearer "+g.APIKey)
	}
	var out generateResponse
	if err := g.HTTP.DoJSON(ctx, http.MethodPost, g.URL, header, generateRequest{Params: p}, &out); err != nil {
		return Images{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if out.FrontImageURL == "" || out.BackImageURL == "" {
		return Images{}, fmt.Errorf("%w: response missing image urls", ErrGenerationFailed)
	}
	return Images{FrontURL: out.FrontImageURL, BackURL: out.BackImageURL}, nil
}

// MockGenerator returns deterministic placeholder image URLs, for development.
type MockGenerator struct {
	BaseURL string
}

// Generate implements Generator.
func (g MockGenerator) Generate(_ context.Context, p Params) (Images, error) {
	base := strings.TrimRight(g.BaseURL, "/")
	if base == "" {
		base = "https://placehold.co/600x800"
	}
	q := url.Values{}
	q.Set("sport", p.Sport)
	q.Set("primary", strings.TrimPrefix(p.PrimaryColor, "#"))
	if p.SecondaryColor != "" {
		q.Set("secondary", strings.TrimPrefix(p.SecondaryColor, "#"))
	}
	if p.Pattern != "" {
		q.Set("pattern", p.Pattern)
	}
	return Images{
		FrontURL: base + "/front?" + q.Encode(),
		BackURL:  base + "/back?" + q.Encode(),
	}, nil
}
