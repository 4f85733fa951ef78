package design_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/jersey-studio/internal/common"
	"github.com/noah-isme/jersey-studio/internal/design"
	"github.com/noah-isme/jersey-studio/internal/events"
	"github.com/noah-isme/jersey-studio/internal/resilience"
)

var validParams = design.Params{Sport: "soccer", PrimaryColor: "#0044ff", SecondaryColor: "#fff", Pattern: "stripes", TeamName: "Harbor FC"}

type recordingEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (e *recordingEmitter) Emit(_ context.Context, topic, aggregateID string, _ any) (events.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.topics = append(e.topics, topic)
	return events.Event{Topic: topic, AggregateID: aggregateID}, nil
}

type fakeQueue struct{ ids []string }

func (q *fakeQueue) EnqueueGenerate(_ context.Context, id string) error {
	q.ids = append(q.ids, id)
	return nil
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, design.Params) (design.Images, error) {
	return design.Images{}, errors.New("gpu on fire")
}

func newStore(t *testing.T) design.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return design.RedisStore{R: rdb, TTL: time.Hour}
}

func TestValidateParams(t *testing.T) {
	require.NoError(t, design.ValidateParams(validParams))

	cases := map[string]design.Params{
		"missing sport":   {PrimaryColor: "#000000"},
		"unknown sport":   {Sport: "chess", PrimaryColor: "#000000"},
		"bad color":       {Sport: "soccer", PrimaryColor: "blue"},
		"unknown pattern": {Sport: "soccer", PrimaryColor: "#000", Pattern: "plaid"},
		"long prompt":     {Sport: "soccer", PrimaryColor: "#000", Prompt: strings.Repeat("x", 501)},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			err := design.ValidateParams(p)
			require.True(t, errors.Is(err, design.ErrInvalidParams))
			var perr *design.ParamsError
			require.ErrorAs(t, err, &perr)
			require.NotEmpty(t, perr.Fields)
		})
	}
}

func TestHTTPGeneratorRetriesThreeTimes(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body design.Params
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Sport != "soccer" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"frontImageUrl":"https://img.test/f.png","backImageUrl":"https://img.test/b.png"}`))
	}))
	defer srv.Close()

	gen := design.HTTPGenerator{
		HTTP: resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 3, BaseBackoff: time.Millisecond, Target: "design-generator"},
		URL:  srv.URL,
	}
	images, err := gen.Generate(context.Background(), validParams)
	require.NoError(t, err)
	require.Equal(t, "https://img.test/f.png", images.FrontURL)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestHTTPGeneratorGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	gen := design.HTTPGenerator{
		HTTP: resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 3, BaseBackoff: time.Millisecond},
		URL:  srv.URL,
	}
	_, err := gen.Generate(context.Background(), validParams)
	require.True(t, errors.Is(err, design.ErrGenerationFailed))
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestRequestGeneratesInline(t *testing.T) {
	emitter := &recordingEmitter{}
	svc := &design.Service{Store: newStore(t), Generator: design.MockGenerator{}, Events: emitter}

	d, err := svc.Request(context.Background(), "user-1", validParams)
	require.NoError(t, err)
	require.Equal(t, design.StatusReady, d.Status)
	require.NotNil(t, d.Images)
	require.Contains(t, d.Images.FrontURL, "primary=0044ff")
	require.Equal(t, []string{events.TopicDesignGenerated}, emitter.topics)

	got, err := svc.Get(context.Background(), d.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, design.StatusReady, got.Status)

	_, err = svc.Get(context.Background(), d.ID, "user-2")
	require.True(t, errors.Is(err, design.ErrNotFound))
}

func TestRequestRecordsFailure(t *testing.T) {
	emitter := &recordingEmitter{}
	store := newStore(t)
	svc := &design.Service{Store: store, Generator: failingGenerator{}, Events: emitter}

	d, err := svc.Request(context.Background(), "", validParams)
	require.True(t, errors.Is(err, design.ErrGenerationFailed))
	require.Equal(t, design.StatusFailed, d.Status)
	require.NotEmpty(t, d.Error)
	require.Equal(t, []string{events.TopicDesignFailed}, emitter.topics)

	stored, err := store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, design.StatusFailed, stored.Status)
}

func TestAsyncRequestAndTaskHandler(t *testing.T) {
	queue := &fakeQueue{}
	svc := &design.Service{Store: newStore(t), Generator: design.MockGenerator{}, Queue: queue, Async: true}
	ctx := context.Background()

	d, err := svc.Request(ctx, "", validParams)
	require.NoError(t, err)
	require.Equal(t, design.StatusPending, d.Status)
	require.Equal(t, []string{d.ID}, queue.ids)

	task, err := design.NewGenerateTask(d.ID)
	require.NoError(t, err)
	require.Equal(t, design.TypeGenerate, task.Type())
	require.NoError(t, design.TaskHandler(svc)(ctx, task))

	done, err := svc.Get(ctx, d.ID, "")
	require.NoError(t, err)
	require.Equal(t, design.StatusReady, done.Status)

	// a second delivery is a no-op
	require.NoError(t, design.TaskHandler(svc)(ctx, task))
}

func TestTaskHandlerSkipsRetryOnGenerationFailure(t *testing.T) {
	store := newStore(t)
	svc := &design.Service{Store: store, Generator: failingGenerator{}, Queue: &fakeQueue{}, Async: true}
	ctx := context.Background()
	d, err := svc.Request(ctx, "", validParams)
	require.NoError(t, err)

	task, err := design.NewGenerateTask(d.ID)
	require.NoError(t, err)
	err = design.TaskHandler(svc)(ctx, task)
	require.True(t, errors.Is(err, asynq.SkipRetry))

	bad := asynq.NewTask(design.TypeGenerate, []byte("not json"))
	require.True(t, errors.Is(design.TaskHandler(svc)(ctx, bad), asynq.SkipRetry))
}

func TestHandlers(t *testing.T) {
	store := newStore(t)
	h := &design.Handler{Svc: &design.Service{Store: store, Generator: design.MockGenerator{}}}
	r := chi.NewRouter()
	r.Post("/api/v1/designs", h.Create)
	r.Get("/api/v1/designs/{id}", h.Get)

	body, _ := json.Marshal(validParams)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/designs", strings.NewReader(string(body))))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data design.Design `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/designs/"+created.Data.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/designs/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/designs", strings.NewReader(`{"sport":"chess"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var errBody struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	require.Equal(t, "INVALID_INPUT", errBody.Error.Code)

	failing := &design.Handler{Svc: &design.Service{Store: store, Generator: failingGenerator{}}}
	rec = httptest.NewRecorder()
	failing.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/designs", strings.NewReader(string(body))))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}
