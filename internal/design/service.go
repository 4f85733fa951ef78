package design

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/jersey-studio/internal/events"
	"github.com/noah-isme/jersey-studio/internal/obs"
	"github.com/noah-isme/jersey-studio/internal/pricing"
)

// ErrInvalidParams wraps validation failures of design parameters.
var ErrInvalidParams = errors.New("design: invalid params")

// Enqueuer schedules background generation of a design.
type Enqueuer interface {
	EnqueueGenerate(ctx context.Context, designID string) error
}

// Service coordinates design requests, generation and persistence.
type Service struct {
	Store     Store
	Generator Generator
	Queue     Enqueuer
	Async     bool
	Events    events.Emitter
	Now       func() time.Time
	Logger    zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// ValidateParams checks params with the shared validator. The error unwraps to ErrInvalidParams.
func ValidateParams(p Params) error {
	if err := pricing.Validator().Struct(p); err != nil {
		return &ParamsError{Fields: pricing.FieldErrors(err)}
	}
	return nil
}

// ParamsError lists rejected design parameters.
type ParamsError struct {
	Fields []pricing.FieldError
}

func (e *ParamsError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Rule)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidParams.Error(), strings.Join(parts, ", "))
}

func (e *ParamsError) Unwrap() error { return ErrInvalidParams }

// Request stores a pending design and either queues or runs its generation.
func (s *Service) Request(ctx context.Context, userID string, p Params) (Design, error) {
	if s == nil || s.Store == nil {
		return Design{}, errors.New("design service not configured")
	}
	if err := ValidateParams(p); err != nil {
		return Design{}, err
	}
	now := s.now()
	d := Design{
		ID:        uuid.NewString(),
		UserID:    strings.TrimSpace(userID),
		Params:    p,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.Save(ctx, d); err != nil {
		return Design{}, err
	}
	if s.Async && s.Queue != nil {
		if err := s.Queue.EnqueueGenerate(ctx, d.ID); err != nil {
			return Design{}, fmt.Errorf("design: enqueue generation: %w", err)
		}
		return d, nil
	}
	return s.Generate(ctx, d.ID)
}

// Get loads a design visible to userID. Designs owned by another user are reported as not found.
func (s *Service) Get(ctx context.Context, id, userID string) (Design, error) {
	d, err := s.Store.Get(ctx, id)
	if err != nil {
		return Design{}, err
	}
	if d.UserID != "" && d.UserID != strings.TrimSpace(userID) {
		return Design{}, ErrNotFound
	}
	return d, nil
}

// Generate renders a pending design and records the outcome. Designs that already finished are returned unchanged.
// A generator failure is recorded on the design and also returned.
func (s *Service) Generate(ctx context.Context, designID string) (Design, error) {
	if s.Generator == nil {
		return Design{}, errors.New("design: generator not configured")
	}
	d, err := s.Store.Get(ctx, designID)
	if err != nil {
		return Design{}, err
	}
	if d.Status != StatusPending {
		return d, nil
	}

	start := time.Now()
	images, genErr := s.Generator.Generate(ctx, d.Params)
	elapsed := obs.DurationMillis(time.Since(start))
	d.UpdatedAt = s.now()

	if genErr != nil {
		d.Status = StatusFailed
		d.Error = "design generation failed, please try again"
		obs.IncCounter(obs.DesignGenerationTotal, "failed")
		obs.ObserveHistogram(obs.DesignGenerationLatency, elapsed, "failed")
		s.Logger.Warn().Err(genErr).Str("design_id", d.ID).Msg("design generation failed")
		if err := s.Store.Save(ctx, d); err != nil {
			return Design{}, errors.Join(genErr, err)
		}
		s.emit(ctx, events.TopicDesignFailed, d)
		if !errors.Is(genErr, ErrGenerationFailed) {
			genErr = fmt.Errorf("%w: %v", ErrGenerationFailed, genErr)
		}
		return d, genErr
	}

	d.Status = StatusReady
	d.Images = &images
	d.Error = ""
	obs.IncCounter(obs.DesignGenerationTotal, "ready")
	obs.ObserveHistogram(obs.DesignGenerationLatency, elapsed, "ready")
	if err := s.Store.Save(ctx, d); err != nil {
		return Design{}, err
	}
	s.emit(ctx, events.TopicDesignGenerated, d)
	return d, nil
}

func (s *Service) emit(ctx context.Context, topic string, d Design) {
	if s.Events == nil {
		return
	}
	payload := map[string]any{"designId": d.ID, "status": d.Status}
	if d.Images != nil {
		payload["images"] = d.Images
	}
	if _, err := s.Events.Emit(ctx, topic, d.ID, payload); err != nil {
		s.Logger.Error().Err(err).Str("topic", topic).Str("design_id", d.ID).Msg("emit design event")
	}
}
