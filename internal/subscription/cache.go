package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedClient keeps recent statuses in Redis so pricing does not hit the upstream on every cart change.
type CachedClient struct {
	Next   Client
	R      *redis.Client
	TTL    time.Duration
	Prefix string
	Logger zerolog.Logger
}

func (c CachedClient) key(userID string) string {
	prefix := c.Prefix
	if prefix == "" {
		prefix = "sub:"
	}
	return prefix + userID
}

// Status implements Client. Cache failures fall through to the upstream.
func (c CachedClient) Status(ctx context.Context, userID string) (Status, error) {
	if c.R != nil {
		data, err := c.R.Get(ctx, c.key(userID)).Bytes()
		switch {
		case err == nil:
			var st Status
			if jsonErr := json.Unmarshal(data, &st); jsonErr == nil {
				return st, nil
			}
		case !errors.Is(err, redis.Nil):
			c.Logger.Warn().Err(err).Msg("subscription cache read failed")
		}
	}
	st, err := c.Next.Status(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	if c.R != nil && c.TTL > 0 {
		if data, err := json.Marshal(st); err == nil {
			if err := c.R.Set(ctx, c.key(userID), data, c.TTL).Err(); err != nil {
				c.Logger.Warn().Err(err).Msg("subscription cache write failed")
			}
		}
	}
	return st, nil
}

// Invalidate drops the cached status for a user.
func (c CachedClient) Invalidate(ctx context.Context, userID string) error {
	if c.R == nil {
		return nil
	}
	return c.R.Del(ctx, c.key(userID)).Err()
}
