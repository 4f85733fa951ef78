package subscription

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/jersey-studio/internal/resilience"
)

// HTTPClient queries the upstream subscription API.
type HTTPClient struct {
	HTTP    resilience.HTTPClient
	BaseURL string
	APIKey  string
}

// Status implements Client. A 404 from upstream means the user never subscribed.
func (c HTTPClient) Status(ctx context.Context, userID string) (Status, error) {
	if strings.TrimSpace(c.BaseURL) == "" {
		return Status{}, fmt.Errorf("%w: base url not configured", ErrUnavailable)
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/users/" + url.PathEscape(userID) + "/subscription"
	header := http.Header{}
	if c.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.APIKey)
	}
	var st Status
	err := c.HTTP.DoJSON(ctx, http.MethodGet, endpoint, header, nil, &st)
	if err != nil {
		var respErr *resilience.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return Status{}, nil
		}
		return Status{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return st, nil
}
