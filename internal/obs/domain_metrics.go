package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PriceComputationsTotal counts price engine runs by result (ok, invalid).
	PriceComputationsTotal *prometheus.CounterVec
	// CheckoutTotal counts checkout attempts by result.
	CheckoutTotal *prometheus.CounterVec
	// PaymentIntentTotal counts payment intent creation attempts.
	PaymentIntentTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// DesignGenerationTotal counts design generation outcomes.
	DesignGenerationTotal *prometheus.CounterVec
	// DesignGenerationLatency records generation latency in milliseconds.
	DesignGenerationLatency *prometheus.HistogramVec
	// OutboundAttemptsTotal counts calls to outbound collaborators per attempt.
	OutboundAttemptsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		counter := func(name, help string, labels ...string) *prometheus.CounterVec {
			return registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      name,
				Help:      help,
			}, labels))
		}
		PriceComputationsTotal = counter("price_computations_total", "Count of price breakdown computations by result.", "result")
		CheckoutTotal = counter("checkout_total", "Count of checkout attempts by result.", "result")
		PaymentIntentTotal = counter("payment_intent_total", "Count of payment intent processing outcomes.", "provider", "result")
		PaymentWebhookTotal = counter("payment_webhook_total", "Count of processed payment webhooks by outcome.", "provider", "result")
		DesignGenerationTotal = counter("design_generation_total", "Count of design generation outcomes.", "result")
		OutboundAttemptsTotal = counter("outbound_attempts_total", "Count of outbound HTTP attempts by target and result.", "target", "result")
		DesignGenerationLatency = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "design_generation_duration_ms",
			Help:      "Latency for design generation in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"result"}))
	})
}

// IncCounter increments a domain counter when metrics are registered. Callers stay safe in tests that skip registration.
func IncCounter(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

// ObserveHistogram records a value on a domain histogram when it is registered.
func ObserveHistogram(vec *prometheus.HistogramVec, value float64, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Observe(value)
}
