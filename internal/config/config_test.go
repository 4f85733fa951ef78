package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/jersey-studio/internal/pricing"
)

func baseEnv() map[string]string {
	return map[string]string{
		"REDIS_URL":        "redis://localhost:6379/0",
		"AUTH_JWT_SECRET":  "secret",
		"PAYMENT_PROVIDER": "",
		"APP_ENV":          "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "usd", cfg.CurrencyCode)
	require.Equal(t, 72*time.Hour, cfg.CartTTL)
	require.Equal(t, 168*time.Hour, cfg.DesignTTL)
	require.Equal(t, 5*time.Minute, cfg.SubscriptionCacheTTL)
	require.Equal(t, 3, cfg.RetryMaxAttempts)
	require.Equal(t, "20-H", cfg.DesignRateLimit)
	require.Equal(t, PaymentProviderMock, cfg.PaymentProvider)
	require.True(t, cfg.SecurityHeaders)

	rules, err := cfg.PricingRules()
	require.NoError(t, err)
	require.Equal(t, pricing.DefaultRules().TaxRate.String(), rules.TaxRate.String())
	require.EqualValues(t, 20000, rules.ShippingFreeThresholdMinor)
}

func TestLoadRequiresRedisAndSecret(t *testing.T) {
	env := baseEnv()
	env["REDIS_URL"] = ""
	_, err := LoadForTests(env)
	require.ErrorContains(t, err, "REDIS_URL")

	env = baseEnv()
	env["AUTH_JWT_SECRET"] = ""
	_, err = LoadForTests(env)
	require.ErrorContains(t, err, "AUTH_JWT_SECRET")
}

func TestLoadStripeNeedsKeys(t *testing.T) {
	env := baseEnv()
	env["PAYMENT_PROVIDER"] = "stripe"
	env["STRIPE_SECRET_KEY"] = ""
	env["STRIPE_WEBHOOK_SECRET"] = ""
	_, err := LoadForTests(env)
	require.ErrorContains(t, err, "STRIPE_SECRET_KEY")

	env["STRIPE_SECRET_KEY"] = "sk_test_123"
	env["STRIPE_WEBHOOK_SECRET"] = "whsec_123"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, PaymentProviderStripe, cfg.PaymentProvider)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	env := baseEnv()
	env["PAYMENT_PROVIDER"] = "paypal"
	_, err := LoadForTests(env)
	require.Error(t, err)
}

func TestLoadRejectsMockPaymentsInProduction(t *testing.T) {
	env := baseEnv()
	env["APP_ENV"] = "production"
	_, err := LoadForTests(env)
	require.ErrorContains(t, err, "not allowed in production")
}

func TestPricingOverrides(t *testing.T) {
	env := baseEnv()
	env["PRICING_TAX_RATE_BPS"] = "825"
	env["PRICING_SHIPPING_BASE_RATE"] = "2500"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)

	rules, err := cfg.PricingRules()
	require.NoError(t, err)
	require.Equal(t, "0.0825", rules.TaxRate.String())
	require.EqualValues(t, 2500, rules.ShippingBaseRateMinor)
}

func TestPricingOverridesValidated(t *testing.T) {
	env := baseEnv()
	env["PRICING_SHIPPING_MID_THRESHOLD"] = "50000"
	_, err := LoadForTests(env)
	require.ErrorContains(t, err, "pricing config")
}

func TestParseHelpers(t *testing.T) {
	require.Equal(t, []string{"https://a.test", "https://b.test"}, splitAndTrim(" https://a.test , ,https://b.test"))
	require.Equal(t, 2*time.Second, parseDuration("bogus", "2s"))
	require.True(t, parseBoolDefault("", true))
	require.False(t, parseBoolDefault("off", true))
	require.Equal(t, 7, parseInt("x", 7))
}
