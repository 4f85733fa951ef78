package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims entries older than the window and records the new hit
// only when the caller is still under the limit, so refused requests do not
// extend a client's lockout. Scores are unix milliseconds.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < max then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)
local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, max - count, reset}
`)

// Limiter is a sliding-window limiter over Redis sorted sets.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

// Allow records a hit for key and reports whether it fits within max hits per
// window, how many remain, and when the oldest counted hit leaves the window.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now().Add(window), nil
	}
	windowMs := window.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}
	nowMs := now().UnixMilli()

	res, err := slidingWindow.Run(ctx, l.Client, []string{l.Prefix + key}, nowMs, windowMs, max, uuid.NewString()).Int64Slice()
	if err != nil {
		return false, 0, now().Add(window), err
	}
	if len(res) != 3 {
		return false, 0, now().Add(window), fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	return res[0] == 1, int(max64(res[1], 0)), time.UnixMilli(res[2]).UTC(), nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
