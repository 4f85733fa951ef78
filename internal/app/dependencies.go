package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/jersey-studio/internal/cart"
	"github.com/noah-isme/jersey-studio/internal/catalog"
	"github.com/noah-isme/jersey-studio/internal/checkout"
	"github.com/noah-isme/jersey-studio/internal/config"
	"github.com/noah-isme/jersey-studio/internal/design"
	"github.com/noah-isme/jersey-studio/internal/events"
	"github.com/noah-isme/jersey-studio/internal/lock"
	"github.com/noah-isme/jersey-studio/internal/payment"
	"github.com/noah-isme/jersey-studio/internal/pricing"
	"github.com/noah-isme/jersey-studio/internal/resilience"
	"github.com/noah-isme/jersey-studio/internal/shipping"
	"github.com/noah-isme/jersey-studio/internal/subscription"
)

// Dependencies holds the services shared by the API and the worker.
type Dependencies struct {
	Config        *config.Config
	Logger        zerolog.Logger
	Redis         *redis.Client
	Engine        *pricing.Engine
	Catalog       *catalog.Catalog
	Events        *events.Bus
	Carts         *cart.Service
	Subscriptions subscription.Resolver
	Designs       *design.Service
	Quoter        shipping.Quoter
	Payments      payment.Provider
	Checkout      *checkout.Service
	// TaskClient shares the Redis connection; closing Redis releases it.
	TaskClient    *asynq.Client
}

// NewRedis connects to REDIS_URL with tracing (and optionally metrics) instrumentation.
func NewRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, withMetrics bool) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if withMetrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Build wires the domain services over an established Redis connection.
func Build(cfg *config.Config, logger zerolog.Logger, rdb *redis.Client) (*Dependencies, error) {
	if cfg == nil || rdb == nil {
		return nil, errors.New("app: config and redis are required")
	}
	rules, err := cfg.PricingRules()
	if err != nil {
		return nil, err
	}
	d := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Redis:   rdb,
		Engine:  pricing.NewEngine(rules),
		Catalog: catalog.DefaultCatalog(),
	}

	d.Events = &events.Bus{
		Store:     events.RedisStreamStore{R: rdb, MaxLen: cfg.EventStreamMaxLen},
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger.With().Str("component", "events").Logger()}},
	}

	locker := lock.Locker{R: rdb, RetryBackoff: 25 * time.Millisecond, MaxWait: 2 * time.Second}
	d.Carts = &cart.Service{
		Store:   cart.RedisStore{R: rdb},
		Catalog: d.Catalog,
		Locker:  locker,
		Engine:  d.Engine,
		TTL:     cfg.CartTTL,
		Logger:  logger.With().Str("component", "cart").Logger(),
	}

	var subs subscription.Client = subscription.StaticClient{}
	if cfg.SubscriptionAPIURL != "" {
		subs = subscription.HTTPClient{
			HTTP:    outbound(cfg, "subscription", logger),
			BaseURL: cfg.SubscriptionAPIURL,
			APIKey:  cfg.SubscriptionAPIKey,
		}
	} else {
		logger.Warn().Msg("SUBSCRIPTION_API_URL not set; nobody is treated as a subscriber")
	}
	d.Subscriptions = subscription.Resolver{Client: subscription.CachedClient{
		Next:   subs,
		R:      rdb,
		TTL:    cfg.SubscriptionCacheTTL,
		Logger: logger,
	}}

	var generator design.Generator = design.MockGenerator{}
	if cfg.DesignGeneratorURL != "" {
		generator = design.HTTPGenerator{
			HTTP:   outbound(cfg, "design-generator", logger),
			URL:    cfg.DesignGeneratorURL,
			APIKey: cfg.DesignGeneratorKey,
		}
	}
	d.Designs = &design.Service{
		Store:     design.RedisStore{R: rdb, TTL: cfg.DesignTTL},
		Generator: generator,
		Async:     cfg.DesignAsync,
		Events:    d.Events,
		Logger:    logger.With().Str("component", "design").Logger(),
	}
	if cfg.DesignAsync {
		d.TaskClient = asynq.NewClientFromRedisClient(rdb)
		d.Designs.Queue = design.AsynqEnqueuer{
			Client:   d.TaskClient,
			Queue:    design.DefaultQueue,
			MaxRetry: 3,
			Timeout:  2 * time.Minute,
		}
	}

	d.Quoter = shipping.MockQuoter{}
	if cfg.ShippingQuoteURL != "" {
		d.Quoter = shipping.HTTPQuoter{
			HTTP:   outbound(cfg, "shipping-quote", logger),
			URL:    cfg.ShippingQuoteURL,
			APIKey: cfg.ShippingQuoteKey,
		}
	}

	switch cfg.PaymentProvider {
	case config.PaymentProviderStripe:
		provider, err := payment.NewStripeProvider(payment.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
		})
		if err != nil {
			return nil, err
		}
		d.Payments = provider
	default:
		d.Payments = payment.MockProvider{Secret: cfg.MockPaymentSecret}
	}

	d.Checkout = &checkout.Service{
		Carts:         d.Carts,
		Subscriptions: d.Subscriptions,
		Provider:      d.Payments,
		Store:         checkout.RedisStore{R: rdb, TTL: cfg.CheckoutTTL},
		Locker:        locker,
		Events:        d.Events,
		Currency:      cfg.CurrencyCode,
		Logger:        logger.With().Str("component", "checkout").Logger(),
	}
	return d, nil
}

func outbound(cfg *config.Config, target string, logger zerolog.Logger) resilience.HTTPClient {
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		MinRequests:  cfg.BreakerFailures,
		FailureRatio: cfg.BreakerFailureRatio,
		OpenFor:      cfg.BreakerOpenFor,
		Target:       target,
		Logger:       logger,
	})
	return resilience.HTTPClient{
		Client:      resilience.NewInstrumentedClient(cfg.OutboundTimeout),
		Breaker:     breaker,
		BaseBackoff: cfg.RetryBase,
		MaxAttempts: cfg.RetryMaxAttempts,
		Jitter:      cfg.RetryJitter,
		Timeout:     cfg.OutboundTimeout,
		Target:      target,
		Logger:      logger.With().Str("target", target).Logger(),
	}
}
