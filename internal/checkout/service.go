package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/jersey-studio/internal/cart"
	"github.com/noah-isme/jersey-studio/internal/events"
	"github.com/noah-isme/jersey-studio/internal/lock"
	"github.com/noah-isme/jersey-studio/internal/obs"
	"github.com/noah-isme/jersey-studio/internal/payment"
	"github.com/noah-isme/jersey-studio/internal/pricing"
)

var (
	// ErrNotFound indicates the checkout does not exist, has expired, or belongs to someone else.
	ErrNotFound = errors.New("checkout not found")
	// ErrEmptyCart is returned when checking out a cart without items.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrPriceChanged is returned when the client-presented total no longer matches the server's.
	ErrPriceChanged = errors.New("checkout: price changed")
	// ErrSubscriptionUnavailable is returned when the discount eligibility cannot be confirmed.
	ErrSubscriptionUnavailable = errors.New("checkout: subscription status unavailable")
	// ErrPaymentProvider wraps failures creating the payment intent.
	ErrPaymentProvider = errors.New("checkout: payment provider error")
)

// PriceChangedError carries the fresh breakdown the client should present instead.
type PriceChangedError struct {
	Expected  pricing.Money
	Breakdown pricing.Breakdown
}

func (e *PriceChangedError) Error() string {
	return fmt.Sprintf("checkout: expected total %d, current total %d", e.Expected, e.Breakdown.GrandTotal)
}

func (e *PriceChangedError) Unwrap() error { return ErrPriceChanged }

// CartReader loads and prices carts.
type CartReader interface {
	Get(ctx context.Context, id, userID string) (cart.Cart, error)
	Price(c cart.Cart, isSubscriber bool) (pricing.Breakdown, error)
}

// Service turns carts into payable checkouts and tracks their payment outcome.
type Service struct {
	Carts         CartReader
	Subscriptions cart.SubscriberChecker
	Provider      payment.Provider
	Store         Store
	Locker        cart.Locker
	Events        events.Emitter
	Currency      string
	Now           func() time.Time
	Logger        zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) currency() string {
	if c := strings.TrimSpace(s.Currency); c != "" {
		return strings.ToLower(c)
	}
	return "usd"
}

// Begin prices the cart server-side and opens a payment intent for exactly the grand total.
// When expectedGrandTotal is set and differs, nothing is charged and a PriceChangedError is returned.
func (s *Service) Begin(ctx context.Context, cartID, userID string, expectedGrandTotal *int64) (Checkout, error) {
	if s == nil || s.Carts == nil || s.Store == nil || s.Provider == nil {
		return Checkout{}, errors.New("checkout service not configured")
	}
	c, err := s.Carts.Get(ctx, cartID, userID)
	if err != nil {
		obs.IncCounter(obs.CheckoutTotal, "cart_error")
		return Checkout{}, err
	}
	if c.IsEmpty() {
		obs.IncCounter(obs.CheckoutTotal, "empty")
		return Checkout{}, ErrEmptyCart
	}
	subscriber := false
	if s.Subscriptions != nil {
		subscriber, err = s.Subscriptions.IsSubscriber(ctx, userID)
		if err != nil {
			obs.IncCounter(obs.CheckoutTotal, "subscription_unavailable")
			return Checkout{}, fmt.Errorf("%w: %v", ErrSubscriptionUnavailable, err)
		}
	}
	b, err := s.Carts.Price(c, subscriber)
	if err != nil {
		obs.IncCounter(obs.CheckoutTotal, "invalid")
		return Checkout{}, err
	}
	if expectedGrandTotal != nil && *expectedGrandTotal != b.GrandTotal {
		obs.IncCounter(obs.CheckoutTotal, "price_changed")
		return Checkout{}, &PriceChangedError{Expected: *expectedGrandTotal, Breakdown: b}
	}

	var co Checkout
	open := func(ctx context.Context) error {
		var err error
		co, err = s.open(ctx, c, userID, b, subscriber)
		return err
	}
	if s.Locker == nil {
		err = open(ctx)
	} else {
		err = s.Locker.WithLock(ctx, lock.Key("checkout-cart", c.ID), 10*time.Second, open)
	}
	if err != nil {
		return Checkout{}, err
	}
	return co, nil
}

// open reuses the pending checkout of the same cart revision and total, or
// creates a new one with its own payment intent. Every new checkout gets a
// fresh provider idempotency key, so a retry after a failed payment never
// replays an earlier request with different parameters.
func (s *Service) open(ctx context.Context, c cart.Cart, userID string, b pricing.Breakdown, subscriber bool) (Checkout, error) {
	revision := c.UpdatedAt.UnixNano()
	prev, err := s.Store.LatestForCart(ctx, c.ID)
	switch {
	case err == nil:
		if prev.Status == StatusPending && prev.UserID == userID && prev.CartRevision == revision &&
			prev.Breakdown.GrandTotal == b.GrandTotal && prev.IntentID != "" {
			obs.IncCounter(obs.CheckoutTotal, "reused")
			return prev, nil
		}
	case !errors.Is(err, ErrNotFound):
		obs.IncCounter(obs.CheckoutTotal, "error")
		return Checkout{}, err
	}

	now := s.now()
	co := Checkout{
		ID:           uuid.NewString(),
		CartID:       c.ID,
		CartRevision: revision,
		UserID:       userID,
		Breakdown:    b,
		Currency:     s.currency(),
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	log := s.Logger.With().Str("checkout_id", co.ID).Str("cart_id", c.ID).Logger()
	if b.GrandTotal == 0 {
		co.Status = StatusPaid
	} else {
		intent, err := s.Provider.CreateIntent(ctx, payment.IntentRequest{
			Amount:         b.GrandTotal,
			Currency:       co.Currency,
			Metadata:       map[string]string{"checkout_id": co.ID, "cart_id": c.ID, "user_id": userID},
			IdempotencyKey: "checkout:" + co.ID,
		})
		if err != nil {
			obs.IncCounter(obs.PaymentIntentTotal, s.Provider.Name(), "error")
			obs.IncCounter(obs.CheckoutTotal, "provider_error")
			log.Error().Err(err).Msg("create payment intent")
			return Checkout{}, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
		}
		obs.IncCounter(obs.PaymentIntentTotal, s.Provider.Name(), "ok")
		co.Provider = s.Provider.Name()
		co.IntentID = intent.ID
		co.ClientSecret = intent.ClientSecret
	}
	if err := s.Store.Save(ctx, co); err != nil {
		obs.IncCounter(obs.CheckoutTotal, "error")
		return Checkout{}, err
	}
	obs.IncCounter(obs.CheckoutTotal, "started")
	log.Info().Int64("grand_total", b.GrandTotal).Bool("subscriber", subscriber).Msg("checkout started")
	s.emit(ctx, events.TopicCheckoutStarted, co)
	return co, nil
}

// Get returns a checkout visible to userID.
func (s *Service) Get(ctx context.Context, id, userID string) (Checkout, error) {
	if s == nil || s.Store == nil {
		return Checkout{}, errors.New("checkout service not configured")
	}
	co, err := s.Store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return Checkout{}, err
	}
	if co.UserID != "" && co.UserID != userID {
		return Checkout{}, ErrNotFound
	}
	return co, nil
}

// MarkPaid settles the checkout owning intentID. A non-zero amount must equal the grand total.
func (s *Service) MarkPaid(ctx context.Context, intentID string, amount int64) (string, error) {
	return s.transition(ctx, intentID, func(co *Checkout) error {
		if amount > 0 && amount != co.Breakdown.GrandTotal {
			return payment.ErrAmountMismatch
		}
		co.Status = StatusPaid
		co.FailureReason = ""
		return nil
	})
}

// MarkFailed records a failed payment attempt. Paid checkouts are never downgraded.
func (s *Service) MarkFailed(ctx context.Context, intentID, reason string) (string, error) {
	return s.transition(ctx, intentID, func(co *Checkout) error {
		if co.Status == StatusPaid {
			return payment.ErrAlreadySettled
		}
		co.Status = StatusFailed
		co.FailureReason = reason
		return nil
	})
}

func (s *Service) transition(ctx context.Context, intentID string, fn func(*Checkout) error) (string, error) {
	if s == nil || s.Store == nil {
		return "", errors.New("checkout service not configured")
	}
	var id string
	run := func(ctx context.Context) error {
		co, err := s.Store.FindByIntent(ctx, intentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return payment.ErrUnknownIntent
			}
			return err
		}
		id = co.ID
		if err := fn(&co); err != nil {
			return err
		}
		co.UpdatedAt = s.now()
		return s.Store.Save(ctx, co)
	}
	var err error
	if s.Locker == nil {
		err = run(ctx)
	} else {
		err = s.Locker.WithLock(ctx, lock.Key("checkout-intent", intentID), 5*time.Second, run)
	}
	return id, err
}

func (s *Service) emit(ctx context.Context, topic string, co Checkout) {
	if s.Events == nil {
		return
	}
	payload := map[string]any{
		"checkoutId": co.ID,
		"cartId":     co.CartID,
		"grandTotal": co.Breakdown.GrandTotal,
		"currency":   co.Currency,
		"provider":   co.Provider,
	}
	if _, err := s.Events.Emit(ctx, topic, co.ID, payload); err != nil {
		s.Logger.Error().Err(err).Str("topic", topic).Str("checkout_id", co.ID).Msg("emit checkout event")
	}
}
