package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (Limiter, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	return Limiter{Client: client, Prefix: "test:", Now: func() time.Time { return now }}, mr, &now
}

func TestLimiterAllowSlidingWindow(t *testing.T) {
	limiter, mr, _ := newTestLimiter(t)
	ctx := context.Background()
	window := 2 * time.Second
	max := 2

	for i := 0; i < max; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "key", window, max)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if remaining != max-(i+1) {
			t.Fatalf("unexpected remaining: %d", remaining)
		}
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "key", window, max)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Fatal("expected third request to be rejected")
	}
	if remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", remaining)
	}

	mr.FastForward(window)

	allowed, _, _, err = limiter.Allow(ctx, "key", window, max)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !allowed {
		t.Fatal("expected request after window to be allowed")
	}
}

func TestLimiterRejectedHitsDoNotExtendWindow(t *testing.T) {
	limiter, _, now := newTestLimiter(t)
	ctx := context.Background()
	window := 10 * time.Second
	start := *now

	allowed, _, reset, err := limiter.Allow(ctx, "user:1", window, 1)
	require.NoError(t, err)
	require.True(t, allowed)
	require.WithinDuration(t, start.Add(window), reset, 0)
	require.Equal(t, time.UTC, reset.Location())

	*now = start.Add(6 * time.Second)
	allowed, _, reset, err = limiter.Allow(ctx, "user:1", window, 1)
	require.NoError(t, err)
	require.False(t, allowed)
	require.WithinDuration(t, start.Add(window), reset, 0, "reset follows the oldest counted hit")

	*now = start.Add(window + time.Millisecond)
	allowed, remaining, _, err := limiter.Allow(ctx, "user:1", window, 1)
	require.NoError(t, err)
	require.True(t, allowed, "the refused hit at +6s must not count")
	require.Zero(t, remaining)
}

func TestLimiterWithoutClientAllows(t *testing.T) {
	allowed, remaining, _, err := Limiter{}.Allow(context.Background(), "k", time.Second, 5)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 5, remaining)
}
