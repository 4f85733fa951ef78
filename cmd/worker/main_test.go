package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/jersey-studio/internal/config"
	"github.com/noah-isme/jersey-studio/internal/design"
	"github.com/noah-isme/jersey-studio/internal/resilience"
)

func TestMuxRunsDesignGeneration(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := design.RedisStore{R: rdb, TTL: time.Hour}
	svc := &design.Service{Store: store, Generator: design.MockGenerator{}}
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, design.Design{
		ID:     "d-1",
		Params: design.Params{Sport: "hockey", PrimaryColor: "#000000"},
		Status: design.StatusPending,
	}))

	task, err := design.NewGenerateTask("d-1")
	require.NoError(t, err)
	require.NoError(t, newMux(svc).ProcessTask(ctx, task))

	got, err := store.Get(ctx, "d-1")
	require.NoError(t, err)
	require.Equal(t, design.StatusReady, got.Status)
	require.NotNil(t, got.Images)
}

func TestServerConfig(t *testing.T) {
	cfg := &config.Config{WorkerConcurrency: 0, RetryBase: 100 * time.Millisecond, ShutdownGracePeriod: 5 * time.Second}
	sc := serverConfig(cfg, zerolog.Nop())
	require.Equal(t, 10, sc.Concurrency)
	require.Equal(t, map[string]int{design.DefaultQueue: 1}, sc.Queues)
	require.Equal(t, 500*time.Millisecond, sc.RetryDelayFunc(0, nil, nil))
	require.False(t, sc.IsFailure(resilience.ErrOpenCircuit))
	require.True(t, sc.IsFailure(errors.New("boom")))
}

func TestAsynqLoggerWritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	l := asynqLogger{logger: zerolog.New(&buf)}
	l.Warn("queue ", "designs", " paused")
	require.True(t, strings.Contains(buf.String(), `"message":"queue designs paused"`), buf.String())
	require.Contains(t, buf.String(), `"level":"warn"`)
}
