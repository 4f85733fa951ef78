package obs_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/noah-isme/jersey-studio/internal/obs"
)

func TestDomainMetricsRegisterOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("jersey", registry)
	obs.MustRegisterDomainMetrics("jersey", registry)

	obs.IncCounter(obs.PriceComputationsTotal, "ok")
	obs.IncCounter(obs.PriceComputationsTotal, "ok")
	obs.IncCounter(obs.CheckoutTotal, "price_changed")

	if got := testutil.ToFloat64(obs.PriceComputationsTotal.WithLabelValues("ok")); got != 2 {
		t.Fatalf("expected 2 price computations, got %v", got)
	}
	if got := testutil.ToFloat64(obs.CheckoutTotal.WithLabelValues("price_changed")); got != 1 {
		t.Fatalf("expected 1 checkout, got %v", got)
	}
}

func TestIncCounterToleratesNil(t *testing.T) {
	obs.IncCounter(nil, "ok")
	obs.ObserveHistogram(nil, 1, "ok")
}
