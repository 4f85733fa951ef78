package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/jersey-studio/internal/events"
)

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func newStore(t *testing.T) events.RedisStreamStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return events.RedisStreamStore{R: client, Stream: "events:test", MaxLen: 100}
}

func TestEmitAppendsToStream(t *testing.T) {
	store := newStore(t)
	notifier := &captureNotifier{}
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}, Now: func() time.Time { return fixed }}

	ctx := context.Background()
	event, err := bus.Emit(ctx, events.TopicCheckoutStarted, "chk-1", map[string]any{"grandTotal": 11877})
	require.NoError(t, err)
	require.NotEmpty(t, event.ID)
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, events.TopicCheckoutStarted, recent[0].Topic)
	require.Equal(t, "chk-1", recent[0].AggregateID)
	require.True(t, recent[0].OccurredAt.Equal(fixed))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(recent[0].Payload, &decoded))
	require.EqualValues(t, 11877, decoded["grandTotal"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: newStore(t)}
	ctx := context.Background()

	_, err := bus.Emit(ctx, " ", "agg", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, "order.created", "agg", nil)
	require.ErrorContains(t, err, "unknown topic")
	_, err = bus.Emit(ctx, events.TopicDesignFailed, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicDesignFailed, "d1", "{not json")
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(ctx, events.TopicDesignFailed, "d1", nil)
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	store := newStore(t)
	failing := &captureNotifier{err: errors.New("sink down")}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{failing}}

	ev, err := bus.Emit(context.Background(), events.TopicPaymentFailed, "pi_1", json.RawMessage(`{"reason":"card_declined"}`))
	require.Error(t, err)
	require.NotEmpty(t, ev.ID, "event is recorded even when a notifier fails")
}

func TestLogNotifierWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	n := events.LogNotifier{Logger: zerolog.New(&buf)}
	require.NoError(t, n.Notify(context.Background(), events.Event{ID: "1-0", Topic: events.TopicDesignGenerated, AggregateID: "d1", Payload: json.RawMessage(`{"frontUrl":"x"}`)}))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "design.generated", line["topic"])
	require.Equal(t, "domain_event", line["message"])
}
