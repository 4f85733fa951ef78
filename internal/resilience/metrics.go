package resilience

import "github.com/prometheus/client_golang/prometheus"

const metricsSubsystem = "outbound"

var (
	BreakerStateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "jersey",
		Subsystem: metricsSubsystem,
		Name:      "breaker_state",
		Help:      "Breaker position per collaborator (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})
	BreakerTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jersey",
		Subsystem: metricsSubsystem,
		Name:      "breaker_transitions_total",
		Help:      "Breaker state changes per collaborator.",
	}, []string{"target", "from", "to"})
	BreakerOpensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jersey",
		Subsystem: metricsSubsystem,
		Name:      "breaker_opens_total",
		Help:      "Times a collaborator's breaker opened.",
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(BreakerStateGauge, BreakerTransitionsTotal, BreakerOpensTotal)
}

func setBreakerState(target string, s State) {
	BreakerStateGauge.WithLabelValues(target).Set(s.gauge())
}

func recordBreakerTransition(target string, from, to State) {
	BreakerTransitionsTotal.WithLabelValues(target, from.String(), to.String()).Inc()
	if to == Open {
		BreakerOpensTotal.WithLabelValues(target).Inc()
	}
}
