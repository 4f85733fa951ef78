package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream domain events are appended to.
const DefaultStream = "events:domain"

// RedisStreamStore appends events to a capped Redis stream.
type RedisStreamStore struct {
	R      *redis.Client
	Stream string
	MaxLen int64
}

func (s RedisStreamStore) stream() string {
	if s.Stream == "" {
		return DefaultStream
	}
	return s.Stream
}

// Append writes the event with XADD and returns it with the stream entry ID.
func (s RedisStreamStore) Append(ctx context.Context, ev Event) (Event, error) {
	if s.R == nil {
		return Event{}, fmt.Errorf("redis client not configured")
	}
	args := &redis.XAddArgs{
		Stream: s.stream(),
		Values: map[string]any{
			"topic":        ev.Topic,
			"aggregate_id": ev.AggregateID,
			"payload":      string(ev.Payload),
			"occurred_at":  ev.OccurredAt.Format(time.RFC3339Nano),
		},
	}
	if s.MaxLen > 0 {
		args.MaxLen = s.MaxLen
		args.Approx = true
	}
	id, err := s.R.XAdd(ctx, args).Result()
	if err != nil {
		return Event{}, err
	}
	ev.ID = id
	return ev, nil
}

// Recent returns up to count events, newest first.
func (s RedisStreamStore) Recent(ctx context.Context, count int64) ([]Event, error) {
	msgs, err := s.R.XRevRangeN(ctx, s.stream(), "+", "-", count).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		ev := Event{ID: msg.ID}
		ev.Topic, _ = msg.Values["topic"].(string)
		ev.AggregateID, _ = msg.Values["aggregate_id"].(string)
		if raw, ok := msg.Values["payload"].(string); ok {
			ev.Payload = json.RawMessage(raw)
		}
		if ts, ok := msg.Values["occurred_at"].(string); ok {
			ev.OccurredAt, _ = time.Parse(time.RFC3339Nano, ts)
		}
		out = append(out, ev)
	}
	return out, nil
}
