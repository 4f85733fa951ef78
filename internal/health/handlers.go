package health

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/jersey-studio/internal/common"
)

var draining atomic.Bool

// SetReady flips the readiness flag. cmd/api clears it when shutdown begins so load balancers drain traffic.
func SetReady(v bool) { draining.Store(!v) }

// Probe checks one dependency. It must honour ctx cancellation.
type Probe func(ctx context.Context) error

// RedisProbe pings the shared Redis client.
func RedisProbe(rdb redis.UniversalClient) Probe {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}

// Handler serves liveness and readiness. Every probe runs concurrently under
// one shared timeout; any failure marks the instance not ready.
type Handler struct {
	Probes  map[string]Probe
	Timeout time.Duration
}

// Live reports that the process is serving.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness with one entry per probe.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if len(h.Probes) == 0 {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no_probes"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	names := make([]string, 0, len(h.Probes))
	for name := range h.Probes {
		names = append(names, name)
	}
	sort.Strings(names)
	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, probe Probe) {
			defer wg.Done()
			results[i] = "ok"
			if err := probe(ctx); err != nil {
				results[i] = err.Error()
			}
		}(i, h.Probes[name])
	}
	wg.Wait()

	body := map[string]string{"status": "ok"}
	code := http.StatusOK
	for i, name := range names {
		body[name] = results[i]
		if results[i] != "ok" {
			body["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	common.JSON(w, code, body)
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.Timeout
}
