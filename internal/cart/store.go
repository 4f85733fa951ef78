package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists carts.
type Store interface {
	Get(ctx context.Context, id string) (Cart, error)
	Save(ctx context.Context, c Cart) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps each cart as a JSON document that expires with the cart.
type RedisStore struct {
	R      *redis.Client
	Prefix string
	Now    func() time.Time
}

func (s RedisStore) key(id string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "cart:"
	}
	return prefix + id
}

func (s RedisStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Get loads a cart. Missing or expired carts return ErrNotFound.
func (s RedisStore) Get(ctx context.Context, id string) (Cart, error) {
	if s.R == nil {
		return Cart{}, errors.New("cart: redis client not configured")
	}
	data, err := s.R.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, err
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}, fmt.Errorf("cart: decode %s: %w", id, err)
	}
	if !c.ExpiresAt.IsZero() && !c.ExpiresAt.After(s.now()) {
		return Cart{}, ErrNotFound
	}
	return c, nil
}

// Save writes the cart with a TTL matching its expiry.
func (s RedisStore) Save(ctx context.Context, c Cart) error {
	if s.R == nil {
		return errors.New("cart: redis client not configured")
	}
	ttl := c.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrNotFound
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.R.Set(ctx, s.key(c.ID), data, ttl).Err()
}

// Delete removes a cart.
func (s RedisStore) Delete(ctx context.Context, id string) error {
	if s.R == nil {
		return errors.New("cart: redis client not configured")
	}
	return s.R.Del(ctx, s.key(id)).Err()
}
