package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/jersey-studio/internal/app"
	"github.com/noah-isme/jersey-studio/internal/config"
	"github.com/noah-isme/jersey-studio/internal/design"
	"github.com/noah-isme/jersey-studio/internal/obs"
	"github.com/noah-isme/jersey-studio/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics("jersey", nil)
	tracing, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName:   "jersey-studio-worker",
		Endpoint:      cfg.TracingEndpoint,
		Exporter:      cfg.TracingExporter,
		SamplingRatio: cfg.TracingSampleRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	redisClient, err := app.NewRedis(ctx, cfg, logger, false)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	deps, err := app.Build(cfg, logger, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("wire dependencies")
	}

	srv := asynq.NewServerFromRedisClient(redisClient, serverConfig(cfg, logger))
	if err := srv.Start(newMux(deps.Designs)); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Str("queue", design.DefaultQueue).Msg("worker started")

	<-ctx.Done()
	logger.Info().Msg("worker shutting down")
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func newMux(designs *design.Service) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(design.TypeGenerate, design.TaskHandler(designs))
	return mux
}

func serverConfig(cfg *config.Config, logger zerolog.Logger) asynq.Config {
	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{design.DefaultQueue: 1},
		Logger:          asynqLogger{logger: logger.With().Str("subsystem", "asynq").Logger()},
		LogLevel:        asynq.InfoLevel,
		ShutdownTimeout: cfg.ShutdownGracePeriod,
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return resilience.Backoff(cfg.RetryBase*5, n+1, cfg.RetryJitter)
		},
		// An open breaker is an upstream outage, not a task defect.
		IsFailure: func(err error) bool {
			return !errors.Is(err, resilience.ErrOpenCircuit)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error().Err(err).Str("task_type", task.Type()).Int("retry", retried).Int("max_retry", maxRetry).Msg("task failed")
		}),
	}
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
