package ratelimit

import (
	"fmt"
	"net/http"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/jersey-studio/internal/common"
)

// Quota is a fixed-window allowance for an expensive endpoint, e.g. "20-H" for twenty calls per hour.
type Quota struct {
	Rate    string
	Key     func(*http.Request) string
	OnError func(error)
}

// NewQuotaStore returns a Redis-backed limiter store, or an in-memory one when rdb is nil.
func NewQuotaStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	if rdb == nil {
		return memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: prefix, CleanUpInterval: limiter.DefaultCleanUpInterval}), nil
	}
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

// Middleware builds the quota middleware over the given store.
func (q Quota) Middleware(store limiter.Store) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(q.Rate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse quota %q: %w", q.Rate, err)
	}
	key := q.Key
	if key == nil {
		key = ByUserOrIP
	}
	mw := stdlib.NewMiddleware(limiter.New(store, rate),
		stdlib.WithKeyGetter(key),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			common.JSONError(w, http.StatusTooManyRequests, "QUOTA_EXCEEDED", "quota exceeded, try again later", nil)
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			if q.OnError != nil {
				q.OnError(err)
			}
			common.JSONError(w, http.StatusServiceUnavailable, "QUOTA_UNAVAILABLE", "quota check failed", nil)
		}),
	)
	return mw.Handler, nil
}
