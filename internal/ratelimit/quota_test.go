package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/jersey-studio/internal/common"
)

func serveQuota(t *testing.T, mw func(http.Handler) http.Handler, user string) *httptest.ResponseRecorder {
	t.Helper()
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/designs", nil)
	if user != "" {
		req = req.WithContext(common.WithUserID(req.Context(), user))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestQuotaMemoryStorePerUser(t *testing.T) {
	store, err := NewQuotaStore(nil, "designs")
	require.NoError(t, err)
	mw, err := Quota{Rate: "2-H"}.Middleware(store)
	require.NoError(t, err)

	require.Equal(t, http.StatusAccepted, serveQuota(t, mw, "u1").Code)
	require.Equal(t, http.StatusAccepted, serveQuota(t, mw, "u1").Code)
	rr := serveQuota(t, mw, "u1")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), "QUOTA_EXCEEDED"))
	require.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	require.Equal(t, http.StatusAccepted, serveQuota(t, mw, "u2").Code, "other users keep their own quota")
}

func TestQuotaRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewQuotaStore(client, "designs")
	require.NoError(t, err)
	mw, err := Quota{Rate: "1-M"}.Middleware(store)
	require.NoError(t, err)

	require.Equal(t, http.StatusAccepted, serveQuota(t, mw, "u1").Code)
	require.Equal(t, http.StatusTooManyRequests, serveQuota(t, mw, "u1").Code)
}

func TestQuotaRejectsMalformedRate(t *testing.T) {
	store, err := NewQuotaStore(nil, "designs")
	require.NoError(t, err)
	_, err = Quota{Rate: "lots"}.Middleware(store)
	require.Error(t, err)
}
