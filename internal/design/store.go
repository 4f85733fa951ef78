package design

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound indicates the design does not exist or has expired.
var ErrNotFound = errors.New("design not found")

// Store persists designs.
type Store interface {
	Get(ctx context.Context, id string) (Design, error)
	Save(ctx context.Context, d Design) error
}

// RedisStore keeps designs as JSON documents for TTL.
type RedisStore struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
}

func (s RedisStore) key(id string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "design:"
	}
	return prefix + id
}

// Get implements Store.
func (s RedisStore) Get(ctx context.Context, id string) (Design, error) {
	if s.R == nil {
		return Design{}, errors.New("design: redis client not configured")
	}
	data, err := s.R.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Design{}, ErrNotFound
		}
		return Design{}, err
	}
	var d Design
	if err := json.Unmarshal(data, &d); err != nil {
		return Design{}, fmt.Errorf("design: decode %s: %w", id, err)
	}
	return d, nil
}

// Save implements Store.
func (s RedisStore) Save(ctx context.Context, d Design) error {
	if s.R == nil {
		return errors.New("design: redis client not configured")
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.R.Set(ctx, s.key(d.ID), data, ttl).Err()
}
