package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/jersey-studio/internal/pricing"
)

// Status values of a checkout.
const (
	StatusPending = "pending"
	StatusPaid    = "paid"
	StatusFailed  = "failed"
)

// Checkout is a priced snapshot of a cart handed to the payment provider.
type Checkout struct {
	ID            string            `json:"id"`
	CartID        string            `json:"cartId"`
	CartRevision  int64             `json:"cartRevision"`
	UserID        string            `json:"userId"`
	Breakdown     pricing.Breakdown `json:"breakdown"`
	Currency      string            `json:"currency"`
	Provider      string            `json:"provider,omitempty"`
	IntentID      string            `json:"intentId,omitempty"`
	ClientSecret  string            `json:"clientSecret,omitempty"`
	Status        string            `json:"status"`
	FailureReason string            `json:"failureReason,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Store persists checkouts and resolves them by payment intent.
type Store interface {
	Get(ctx context.Context, id string) (Checkout, error)
	FindByIntent(ctx context.Context, intentID string) (Checkout, error)
	// LatestForCart returns the most recently saved checkout of a cart.
	LatestForCart(ctx context.Context, cartID string) (Checkout, error)
	Save(ctx context.Context, c Checkout) error
}

// RedisStore keeps checkouts as JSON documents plus an intent index, both expiring after TTL.
type RedisStore struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
}

func (s RedisStore) prefix() string {
	if s.Prefix == "" {
		return "checkout:"
	}
	return s.Prefix
}

func (s RedisStore) key(id string) string { return s.prefix() + id }

func (s RedisStore) intentKey(intentID string) string { return s.prefix() + "intent:" + intentID }

func (s RedisStore) cartKey(cartID string) string { return s.prefix() + "cart:" + cartID }

// Get implements Store.
func (s RedisStore) Get(ctx context.Context, id string) (Checkout, error) {
	if s.R == nil {
		return Checkout{}, errors.New("checkout: redis client not configured")
	}
	data, err := s.R.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Checkout{}, ErrNotFound
		}
		return Checkout{}, err
	}
	var c Checkout
	if err := json.Unmarshal(data, &c); err != nil {
		return Checkout{}, fmt.Errorf("checkout: decode %s: %w", id, err)
	}
	return c, nil
}

// FindByIntent implements Store.
func (s RedisStore) FindByIntent(ctx context.Context, intentID string) (Checkout, error) {
	if s.R == nil {
		return Checkout{}, errors.New("checkout: redis client not configured")
	}
	return s.follow(ctx, s.intentKey(intentID))
}

// LatestForCart implements Store.
func (s RedisStore) LatestForCart(ctx context.Context, cartID string) (Checkout, error) {
	if s.R == nil {
		return Checkout{}, errors.New("checkout: redis client not configured")
	}
	return s.follow(ctx, s.cartKey(cartID))
}

func (s RedisStore) follow(ctx context.Context, indexKey string) (Checkout, error) {
	id, err := s.R.Get(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Checkout{}, ErrNotFound
		}
		return Checkout{}, err
	}
	return s.Get(ctx, id)
}

// Save implements Store.
func (s RedisStore) Save(ctx context.Context, c Checkout) error {
	if s.R == nil {
		return errors.New("checkout: redis client not configured")
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	pipe := s.R.TxPipeline()
	pipe.Set(ctx, s.key(c.ID), data, ttl)
	if c.IntentID != "" {
		pipe.Set(ctx, s.intentKey(c.IntentID), c.ID, ttl)
	}
	if c.CartID != "" {
		pipe.Set(ctx, s.cartKey(c.CartID), c.ID, ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}
