package subscription_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/jersey-studio/internal/common"
	"github.com/noah-isme/jersey-studio/internal/resilience"
	"github.com/noah-isme/jersey-studio/internal/subscription"
)

var now = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func TestStatusActive(t *testing.T) {
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	cases := []struct {
		name string
		st   subscription.Status
		want bool
	}{
		{"active without expiry", subscription.Status{IsSubscribed: true, Status: "active"}, true},
		{"trialing", subscription.Status{IsSubscribed: true, Status: "Trialing", Expiry: &future}, true},
		{"expired", subscription.Status{IsSubscribed: true, Status: "active", Expiry: &past}, false},
		{"canceled", subscription.Status{IsSubscribed: true, Status: "canceled"}, false},
		{"flag off", subscription.Status{IsSubscribed: false, Status: "active"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.st.Active(now))
		})
	}
}

func TestResolverAnonymousIsNotSubscriber(t *testing.T) {
	r := subscription.Resolver{Client: subscription.StaticClient{Statuses: map[string]subscription.Status{
		"u1": {IsSubscribed: true, Status: "active"},
	}}, Now: func() time.Time { return now }}

	ok, err := r.IsSubscriber(context.Background(), "")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.IsSubscriber(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.IsSubscriber(context.Background(), "u2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHTTPClientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/users/u1/subscription":
			_ = json.NewEncoder(w).Encode(subscription.Status{IsSubscribed: true, Tier: "club", Status: "active"})
		case "/users/down/subscription":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := subscription.HTTPClient{
		HTTP:    resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 2, BaseBackoff: time.Millisecond},
		BaseURL: srv.URL,
		APIKey:  "key",
	}
	st, err := c.Status(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "club", st.Tier)

	st, err = c.Status(context.Background(), "nobody")
	require.NoError(t, err)
	require.False(t, st.IsSubscribed)

	_, err = c.Status(context.Background(), "down")
	require.True(t, errors.Is(err, subscription.ErrUnavailable))
}

type countingClient struct {
	calls int32
	st    subscription.Status
	err   error
}

func (c *countingClient) Status(context.Context, string) (subscription.Status, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.st, c.err
}

func TestCachedClient(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	next := &countingClient{st: subscription.Status{IsSubscribed: true, Status: "active"}}
	c := subscription.CachedClient{Next: next, R: rdb, TTL: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		st, err := c.Status(ctx, "u1")
		require.NoError(t, err)
		require.True(t, st.IsSubscribed)
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&next.calls))

	mr.FastForward(2 * time.Minute)
	_, err := c.Status(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&next.calls))

	require.NoError(t, c.Invalidate(ctx, "u1"))
	require.False(t, mr.Exists("sub:u1"))

	failing := subscription.CachedClient{Next: &countingClient{err: subscription.ErrUnavailable}, R: rdb, TTL: time.Minute}
	_, err = failing.Status(ctx, "u2")
	require.Error(t, err)
	require.False(t, mr.Exists("sub:u2"), "errors are not cached")
}

func TestMeHandler(t *testing.T) {
	h := &subscription.Handler{Resolver: subscription.Resolver{
		Client: subscription.StaticClient{Statuses: map[string]subscription.Status{"u1": {IsSubscribed: true, Status: "active"}}},
		Now:    func() time.Time { return now },
	}}

	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me/subscription", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/subscription", nil)
	req = req.WithContext(common.WithUserID(req.Context(), "u1"))
	rec = httptest.NewRecorder()
	h.Me(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data struct {
			IsSubscribed     bool `json:"isSubscribed"`
			DiscountEligible bool `json:"discountEligible"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Data.IsSubscribed)
	require.True(t, body.Data.DiscountEligible)

	down := &subscription.Handler{Resolver: subscription.Resolver{Client: &countingClient{err: subscription.ErrUnavailable}}}
	rec = httptest.NewRecorder()
	down.Me(rec, req)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}
