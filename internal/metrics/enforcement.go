package metrics

import "github.com/prometheus/client_golang/prometheus"

// Enforcement Prometheus metrics.
var (
	EnforceDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendgate",
			Name:      "enforce_decisions_total",
			Help:      "Enforcement decisions by outcome code",
		},
		[]string{"org", "code"}, // code "ALLOW" or the deny code
	)

	BudgetSpendEUR = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "spendgate",
			Name:      "budget_spend_eur",
			Help:      "Committed budget spend in EUR per period",
		},
		[]string{"org", "period"}, // "daily" / "monthly"
	)

	KillSwitchActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendgate",
			Name:      "killswitch_activations_total",
			Help:      "Kill-switch activations (one per transition, not per check)",
		},
		[]string{"scope"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "spendgate",
			Name:      "circuit_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"target"},
	)

	CircuitTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendgate",
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"target", "to"},
	)

	RateLimitDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendgate",
			Name:      "ratelimit_denied_total",
			Help:      "Requests denied by the rate limiter",
		},
		[]string{"tier"},
	)

	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spendgate",
			Name:      "provider_requests_total",
			Help:      "Downstream provider requests",
		},
		[]string{"provider", "status"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "spendgate",
			Name:      "provider_request_duration_seconds",
			Help:      "Downstream provider request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)
)

var enforcementRegistered bool

// RegisterEnforcementMetrics registers enforcement metrics. Must be called once from main.
func RegisterEnforcementMetrics() {
	if enforcementRegistered {
		return
	}
	prometheus.MustRegister(EnforceDecisionsTotal)
	prometheus.MustRegister(BudgetSpendEUR)
	prometheus.MustRegister(KillSwitchActivationsTotal)
	prometheus.MustRegister(CircuitState)
	prometheus.MustRegister(CircuitTransitionsTotal)
	prometheus.MustRegister(RateLimitDeniedTotal)
	prometheus.MustRegister(ProviderRequestsTotal)
	prometheus.MustRegister(ProviderRequestDuration)
	enforcementRegistered = true
}
