package subscription

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrUnavailable wraps failures reaching the subscription service.
var ErrUnavailable = errors.New("subscription: service unavailable")

// Status is the subscription record reported for a user.
type Status struct {
	IsSubscribed bool       `json:"isSubscribed"`
	Tier         string     `json:"tier,omitempty"`
	Expiry       *time.Time `json:"expiry,omitempty"`
	Status       string     `json:"status,omitempty"`
}

// Active reports whether the status grants the subscriber discount at now.
func (s Status) Active(now time.Time) bool {
	if !s.IsSubscribed {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(s.Status)) {
	case "active", "trialing":
	default:
		return false
	}
	return s.Expiry == nil || s.Expiry.After(now)
}

// Client fetches a user's subscription status.
type Client interface {
	Status(ctx context.Context, userID string) (Status, error)
}

// Resolver answers the subscriber question used by pricing.
type Resolver struct {
	Client Client
	Now    func() time.Time
}

func (r Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// IsSubscriber is false for anonymous callers and for statuses that are not active.
func (r Resolver) IsSubscriber(ctx context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" || r.Client == nil {
		return false, nil
	}
	st, err := r.Client.Status(ctx, userID)
	if err != nil {
		return false, err
	}
	return st.Active(r.now()), nil
}

// StaticClient serves fixed statuses, for development and tests. Unknown users are not subscribed.
type StaticClient struct {
	Statuses map[string]Status
}

// Status implements Client.
func (c StaticClient) Status(_ context.Context, userID string) (Status, error) {
	if st, ok := c.Statuses[userID]; ok {
		return st, nil
	}
	return Status{}, nil
}
