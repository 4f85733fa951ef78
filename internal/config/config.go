package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/jersey-studio/internal/pricing"
)

// Payment providers understood by PAYMENT_PROVIDER.
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderMock   = "mock"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string
	CurrencyCode       string
	LogFormat          string
	LogLevel           string

	CartTTL              time.Duration
	DesignTTL            time.Duration
	CheckoutTTL          time.Duration
	IdempotencyTTL       time.Duration
	SubscriptionCacheTTL time.Duration

	TaxRateBps             int64
	ShippingFreeThreshold  int64
	ShippingMidThreshold   int64
	ShippingBaseRate       int64
	ShippingMidRate        int64
	SubscriptionDiscountBp int64

	DesignGeneratorURL  string
	DesignGeneratorKey  string
	SubscriptionAPIURL  string
	SubscriptionAPIKey  string
	ShippingQuoteURL    string
	ShippingQuoteKey    string
	OutboundTimeout     time.Duration
	RetryBase           time.Duration
	RetryMaxAttempts    int
	RetryJitter         float64
	BreakerFailures     int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
	PaymentProvider     string
	StripeSecretKey     string
	StripeWebhookSecret string
	MockPaymentSecret   string
	WebhookReplayTTL    time.Duration
	AuthJWTSecret       string
	AuthIssuer          string
	AuthAudience        string
	AccessCookie        string
	RateLimitWindow     time.Duration
	RateLimitMax        int
	DesignRateLimit     string
	WorkerConcurrency   int
	DesignAsync         bool
	SecurityHeaders     bool
	HTTPBodyLimitBytes  int64
	HTTPMetricsBuckets  string
	EventStreamMaxLen   int64
	TracingExporter     string
	TracingEndpoint     string
	TracingSampleRatio  float64
	PprofEnabled        bool
	PprofUser           string
	PprofPass           string
	ShutdownGracePeriod time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CurrencyCode:       strings.ToLower(valueOrDefault(k.String("CURRENCY_CODE"), "usd")),
		LogFormat:          valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:           valueOrDefault(k.String("LOG_LEVEL"), "info"),

		CartTTL:              parseDuration(k.String("CART_TTL"), "72h"),
		DesignTTL:            parseDuration(k.String("DESIGN_TTL"), "168h"),
		CheckoutTTL:          parseDuration(k.String("CHECKOUT_TTL"), "24h"),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		SubscriptionCacheTTL: parseDuration(k.String("SUBSCRIPTION_CACHE_TTL"), "5m"),

		TaxRateBps:             parseInt64(k.String("PRICING_TAX_RATE_BPS"), pricing.TaxRateBps),
		ShippingFreeThreshold:  parseInt64(k.String("PRICING_SHIPPING_FREE_THRESHOLD"), pricing.ShippingFreeThresholdMinor),
		ShippingMidThreshold:   parseInt64(k.String("PRICING_SHIPPING_MID_THRESHOLD"), pricing.ShippingMidThresholdMinor),
		ShippingBaseRate:       parseInt64(k.String("PRICING_SHIPPING_BASE_RATE"), pricing.ShippingBaseRateMinor),
		ShippingMidRate:        parseInt64(k.String("PRICING_SHIPPING_MID_RATE"), pricing.ShippingMidRateMinor),
		SubscriptionDiscountBp: parseInt64(k.String("PRICING_SUBSCRIPTION_DISCOUNT_BPS"), pricing.SubscriptionDiscountBps),

		DesignGeneratorURL:  strings.TrimSpace(k.String("DESIGN_GENERATOR_URL")),
		DesignGeneratorKey:  k.String("DESIGN_GENERATOR_API_KEY"),
		SubscriptionAPIURL:  strings.TrimSpace(k.String("SUBSCRIPTION_API_URL")),
		SubscriptionAPIKey:  k.String("SUBSCRIPTION_API_KEY"),
		ShippingQuoteURL:    strings.TrimSpace(k.String("SHIPPING_QUOTE_URL")),
		ShippingQuoteKey:    k.String("SHIPPING_QUOTE_API_KEY"),
		OutboundTimeout:     parseDuration(k.String("OUTBOUND_TIMEOUT"), "10s"),
		RetryBase:           parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryMaxAttempts:    parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitter:         parseFloat(k.String("RETRY_JITTER"), 0.2),
		BreakerFailures:     parseInt(k.String("BREAKER_MIN_FAILURES"), 5),
		BreakerFailureRatio: parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),
		PaymentProvider:     strings.ToLower(valueOrDefault(k.String("PAYMENT_PROVIDER"), PaymentProviderMock)),
		StripeSecretKey:     k.String("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: k.String("STRIPE_WEBHOOK_SECRET"),
		MockPaymentSecret:   valueOrDefault(k.String("PAYMENT_MOCK_SECRET"), "dev-mock-secret"),
		WebhookReplayTTL:    parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "72h"),
		AuthJWTSecret:       k.String("AUTH_JWT_SECRET"),
		AuthIssuer:          strings.TrimSpace(k.String("AUTH_ISSUER")),
		AuthAudience:        strings.TrimSpace(k.String("AUTH_AUDIENCE")),
		AccessCookie:        strings.TrimSpace(k.String("AUTH_ACCESS_COOKIE")),
		RateLimitWindow:     parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:        parseInt(k.String("RATE_LIMIT_MAX"), 120),
		DesignRateLimit:     valueOrDefault(k.String("DESIGN_RATE_LIMIT"), "20-H"),
		WorkerConcurrency:   parseInt(k.String("WORKER_CONCURRENCY"), 10),
		DesignAsync:         parseBool(k.String("DESIGN_ASYNC")),
		SecurityHeaders:     parseBoolDefault(k.String("SECURITY_HEADERS"), true),
		HTTPBodyLimitBytes:  parseInt64(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20),
		HTTPMetricsBuckets:  k.String("HTTP_METRICS_BUCKETS_MS"),
		EventStreamMaxLen:   parseInt64(k.String("EVENT_STREAM_MAXLEN"), 10000),
		TracingExporter:     valueOrDefault(k.String("OTEL_EXPORTER"), "none"),
		TracingEndpoint:     k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TracingSampleRatio:  parseFloat(k.String("OTEL_SAMPLE_RATIO"), 1),
		PprofEnabled:        parseBool(k.String("PPROF_ENABLED")),
		PprofUser:           strings.TrimSpace(k.String("PPROF_BASIC_AUTH_USER")),
		PprofPass:           k.String("PPROF_BASIC_AUTH_PASS"),
		ShutdownGracePeriod: parseDuration(k.String("SHUTDOWN_GRACE_PERIOD"), "15s"),
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.AuthJWTSecret == "" {
		return nil, errors.New("AUTH_JWT_SECRET is required")
	}
	switch cfg.PaymentProvider {
	case PaymentProviderStripe:
		if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
			return nil, errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required when PAYMENT_PROVIDER=stripe")
		}
	case PaymentProviderMock:
		if cfg.IsProduction() {
			return nil, errors.New("PAYMENT_PROVIDER=mock is not allowed in production")
		}
	default:
		return nil, fmt.Errorf("PAYMENT_PROVIDER must be stripe or mock, got %q", cfg.PaymentProvider)
	}
	if cfg.RetryMaxAttempts < 1 {
		return nil, errors.New("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if _, err := cfg.PricingRules(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// PricingRules applies the pricing overrides to the default rules and validates the result.
func (c *Config) PricingRules() (pricing.Rules, error) {
	rules := pricing.DefaultRules()
	rules.TaxRate = pricing.RateFromBps(c.TaxRateBps)
	rules.SubscriptionRate = pricing.RateFromBps(c.SubscriptionDiscountBp)
	rules.ShippingFreeThresholdMinor = c.ShippingFreeThreshold
	rules.ShippingMidThresholdMinor = c.ShippingMidThreshold
	rules.ShippingBaseRateMinor = c.ShippingBaseRate
	rules.ShippingMidRateMinor = c.ShippingMidRate
	if err := rules.Validate(); err != nil {
		return pricing.Rules{}, fmt.Errorf("pricing config: %w", err)
	}
	return rules, nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseInt64(value string, fallback int64) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
