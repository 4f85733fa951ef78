package design

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeGenerate is the asynq task type processed by the worker.
const TypeGenerate = "design:generate"

// DefaultQueue is the asynq queue design tasks are routed to.
const DefaultQueue = "designs"

type generatePayload struct {
	DesignID string `json:"designId"`
}

// NewGenerateTask builds the background task for a design.
func NewGenerateTask(designID string) (*asynq.Task, error) {
	if designID == "" {
		return nil, errors.New("design: task requires a design id")
	}
	payload, err := json.Marshal(generatePayload{DesignID: designID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeGenerate, payload), nil
}

// AsynqEnqueuer schedules generation tasks through asynq.
type AsynqEnqueuer struct {
	Client   *asynq.Client
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

// EnqueueGenerate implements Enqueuer. The design ID doubles as the task ID so a design is queued at most once.
func (e AsynqEnqueuer) EnqueueGenerate(ctx context.Context, designID string) error {
	if e.Client == nil {
		return errors.New("design: asynq client not configured")
	}
	task, err := NewGenerateTask(designID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(designID), asynq.MaxRetry(e.MaxRetry)}
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if e.Timeout > 0 {
		opts = append(opts, asynq.Timeout(e.Timeout))
	}
	if _, err := e.Client.EnqueueContext(ctx, task, opts...); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return err
	}
	return nil
}

// TaskHandler processes TypeGenerate tasks. Generator failures are already retried by the HTTP client,
// so they are recorded on the design and not retried by the queue.
func TaskHandler(svc *Service) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload generatePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("design: decode task payload: %v: %w", err, asynq.SkipRetry)
		}
		_, err := svc.Generate(ctx, payload.DesignID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrGenerationFailed), errors.Is(err, ErrNotFound):
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		default:
			return err
		}
	}
}
