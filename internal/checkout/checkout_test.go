package checkout_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/jersey-studio/internal/cart"
	"github.com/noah-isme/jersey-studio/internal/catalog"
	"github.com/noah-isme/jersey-studio/internal/checkout"
	"github.com/noah-isme/jersey-studio/internal/common"
	"github.com/noah-isme/jersey-studio/internal/events"
	"github.com/noah-isme/jersey-studio/internal/lock"
	"github.com/noah-isme/jersey-studio/internal/payment"
)

type fakeSubscriptions struct {
	subscribed bool
	err        error
}

func (f fakeSubscriptions) IsSubscriber(context.Context, string) (bool, error) {
	return f.subscribed, f.err
}

type countingProvider struct {
	payment.MockProvider
	calls []payment.IntentRequest
	err   error
}

func (p *countingProvider) CreateIntent(ctx context.Context, req payment.IntentRequest) (payment.Intent, error) {
	p.calls = append(p.calls, req)
	if p.err != nil {
		return payment.Intent{}, p.err
	}
	return p.MockProvider.CreateIntent(ctx, req)
}

type recordingEmitter struct{ topics []string }

func (e *recordingEmitter) Emit(_ context.Context, topic, _ string, _ any) (events.Event, error) {
	e.topics = append(e.topics, topic)
	return events.Event{Topic: topic}, nil
}

type fixture struct {
	carts    *cart.Service
	svc      *checkout.Service
	provider *countingProvider
	events   *recordingEmitter
}

func newFixture(t *testing.T, subs fakeSubscriptions) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	carts := &cart.Service{
		Store:   cart.RedisStore{R: client},
		Catalog: catalog.DefaultCatalog(),
		Locker:  lock.Locker{R: client, RetryBackoff: time.Millisecond},
		TTL:     time.Hour,
	}
	provider := &countingProvider{MockProvider: payment.MockProvider{Secret: "shh"}}
	em := &recordingEmitter{}
	svc := &checkout.Service{
		Carts:         carts,
		Subscriptions: subs,
		Provider:      provider,
		Store:         checkout.RedisStore{R: client, TTL: time.Hour},
		Locker:        lock.Locker{R: client, RetryBackoff: time.Millisecond},
		Events:        em,
	}
	return fixture{carts: carts, svc: svc, provider: provider, events: em}
}

func (f fixture) cartWithJerseys(t *testing.T, userID string, qty int64) string {
	t.Helper()
	ctx := context.Background()
	c, err := f.carts.Create(ctx, userID, "")
	require.NoError(t, err)
	if qty > 0 {
		_, err = f.carts.AddItem(ctx, c.ID, userID, cart.ItemInput{SKU: "jersey", Quantity: qty, Size: "M", Gender: "men"})
		require.NoError(t, err)
	}
	return c.ID
}

func TestBeginChargesServerTotal(t *testing.T) {
	f := newFixture(t, fakeSubscriptions{subscribed: true})
	cartID := f.cartWithJerseys(t, "user-1", 2)

	expected := int64(11877)
	co, err := f.svc.Begin(context.Background(), cartID, "user-1", &expected)
	require.NoError(t, err)
	require.Equal(t, checkout.StatusPending, co.Status)
	require.EqualValues(t, 11877, co.Breakdown.GrandTotal)
	require.NotEmpty(t, co.IntentID)
	require.Equal(t, "mock", co.Provider)
	require.Len(t, f.provider.calls, 1)
	require.EqualValues(t, 11877, f.provider.calls[0].Amount)
	require.Equal(t, co.ID, f.provider.calls[0].Metadata["checkout_id"])
	require.Equal(t, []string{events.TopicCheckoutStarted}, f.events.topics)

	got, err := f.svc.Get(context.Background(), co.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, co.IntentID, got.IntentID)

	_, err = f.svc.Get(context.Background(), co.ID, "user-2")
	require.ErrorIs(t, err, checkout.ErrNotFound)
}

func TestBeginReusesPendingCheckoutAndRetriesWithFreshKey(t *testing.T) {
	f := newFixture(t, fakeSubscriptions{})
	ctx := context.Background()
	cartID := f.cartWithJerseys(t, "user-1", 2)

	first, err := f.svc.Begin(ctx, cartID, "user-1", nil)
	require.NoError(t, err)
	again, err := f.svc.Begin(ctx, cartID, "user-1", nil)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, first.IntentID, again.IntentID)
	require.Len(t, f.provider.calls, 1)
	require.Equal(t, "checkout:"+first.ID, f.provider.calls[0].IdempotencyKey)
	require.Equal(t, []string{events.TopicCheckoutStarted}, f.events.topics)

	_, err = f.svc.MarkFailed(ctx, first.IntentID, "declined")
	require.NoError(t, err)
	retry, err := f.svc.Begin(ctx, cartID, "user-1", nil)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, retry.ID)
	require.Len(t, f.provider.calls, 2)
	require.NotEqual(t, f.provider.calls[0].IdempotencyKey, f.provider.calls[1].IdempotencyKey)
	require.Equal(t, "checkout:"+retry.ID, f.provider.calls[1].IdempotencyKey)

	_, err = f.carts.AddItem(ctx, cartID, "user-1", cart.ItemInput{SKU: "jersey", Quantity: 1, Size: "L", Gender: "men"})
	require.NoError(t, err)
	changed, err := f.svc.Begin(ctx, cartID, "user-1", nil)
	require.NoError(t, err)
	require.NotEqual(t, retry.ID, changed.ID)
	require.Greater(t, changed.Breakdown.GrandTotal, retry.Breakdown.GrandTotal)
	require.Len(t, f.provider.calls, 3)
	require.Equal(t, "checkout:"+changed.ID, f.provider.calls[2].IdempotencyKey)

	// The intent index follows the newest checkout.
	id, err := f.svc.MarkPaid(ctx, changed.IntentID, 0)
	require.NoError(t, err)
	require.Equal(t, changed.ID, id)
}

func TestBeginRejectsStaleTotal(t *testing.T) {
	f := newFixture(t, fakeSubscriptions{subscribed: false})
	cartID := f.cartWithJerseys(t, "user-1", 2)

	stale := int64(11877)
	_, err := f.svc.Begin(context.Background(), cartID, "user-1", &stale)
	var changed *checkout.PriceChangedError
	require.ErrorAs(t, err, &changed)
	require.ErrorIs(t, err, checkout.ErrPriceChanged)
	require.EqualValues(t, 12840, changed.Breakdown.GrandTotal)
	require.Empty(t, f.provider.calls)
}

func TestBeginEmptyCartAndStrictSubscription(t *testing.T) {
	f := newFixture(t, fakeSubscriptions{})
	emptyID := f.cartWithJerseys(t, "user-1", 0)
	_, err := f.svc.Begin(context.Background(), emptyID, "user-1", nil)
	require.ErrorIs(t, err, checkout.ErrEmptyCart)

	f = newFixture(t, fakeSubscriptions{err: errors.New("timeout")})
	cartID := f.cartWithJerseys(t, "user-1", 2)
	_, err = f.svc.Begin(context.Background(), cartID, "user-1", nil)
	require.ErrorIs(t, err, checkout.ErrSubscriptionUnavailable)
	require.Empty(t, f.provider.calls)
}

func TestBeginProviderFailure(t *testing.T) {
	f := newFixture(t, fakeSubscriptions{})
	f.provider.err = errors.New("stripe down")
	cartID := f.cartWithJerseys(t, "user-1", 2)
	_, err := f.svc.Begin(context.Background(), cartID, "user-1", nil)
	require.ErrorIs(t, err, checkout.ErrPaymentProvider)
	require.Empty(t, f.events.topics)
}

func TestPaymentTransitions(t *testing.T) {
	f := newFixture(t, fakeSubscriptions{})
	cartID := f.cartWithJerseys(t, "user-1", 2)
	co, err := f.svc.Begin(context.Background(), cartID, "user-1", nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = f.svc.MarkPaid(ctx, co.IntentID, 999)
	require.ErrorIs(t, err, payment.ErrAmountMismatch)

	id, err := f.svc.MarkFailed(ctx, co.IntentID, "declined")
	require.NoError(t, err)
	require.Equal(t, co.ID, id)
	got, _ := f.svc.Get(ctx, co.ID, "user-1")
	require.Equal(t, checkout.StatusFailed, got.Status)
	require.Equal(t, "declined", got.FailureReason)

	_, err = f.svc.MarkPaid(ctx, co.IntentID, 12840)
	require.NoError(t, err)
	id, err = f.svc.MarkFailed(ctx, co.IntentID, "late failure")
	require.ErrorIs(t, err, payment.ErrAlreadySettled)
	require.Equal(t, co.ID, id)
	got, _ = f.svc.Get(ctx, co.ID, "user-1")
	require.Equal(t, checkout.StatusPaid, got.Status, "paid checkouts are never downgraded")

	_, err = f.svc.MarkPaid(ctx, "pi_unknown", 0)
	require.ErrorIs(t, err, payment.ErrUnknownIntent)
}

func newRouter(f fixture, userID string) http.Handler {
	h := &checkout.Handler{Svc: f.svc}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if userID != "" {
				req = req.WithContext(common.WithUserID(req.Context(), userID))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/api/v1/checkout", h.Begin)
	r.Get("/api/v1/checkout/{id}", h.Get)
	return r
}

func post(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(raw)))
	return rec
}

func TestHandlers(t *testing.T) {
	f := newFixture(t, fakeSubscriptions{})
	cartID := f.cartWithJerseys(t, "user-1", 2)

	rec := post(t, newRouter(f, ""), map[string]any{"cartId": cartID})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	r := newRouter(f, "user-1")
	rec = post(t, r, map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, r, map[string]any{"cartId": cartID, "expectedGrandTotal": 1})
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	require.Equal(t, "PRICE_CHANGED", conflict.Error.Code)
	require.EqualValues(t, 12840, conflict.Error.Details["grandTotal"])

	rec = post(t, r, map[string]any{"cartId": cartID, "expectedGrandTotal": 12840})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data checkout.Checkout `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ClientSecret)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/"+created.Data.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "clientSecret")

	rec = post(t, r, map[string]any{"cartId": "missing"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}
