package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels insights that completed end to end.
	OutcomeSuccess = "success"
	// OutcomeError labels requests that failed in the pipeline or a dependency.
	OutcomeError = "error"
	// OutcomeDenied labels requests rejected by the rate limiter.
	OutcomeDenied = "denied"
)

var (
	insightsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pythia_insights",
			Name:      "insights_total",
			Help:      "Total number of insight requests handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	insightDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pythia_insights",
			Name:      "insight_seconds",
			Help:      "Insight pipeline latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 30},
		},
	)

	generationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pythia_insights",
			Name:      "generation_attempts_total",
			Help:      "Generation backend attempts, partitioned by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	rateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pythia_insights",
			Name:      "rate_limit_denied_total",
			Help:      "Requests rejected by per-tenant rate limiting.",
		},
	)

	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pythia_insights",
			Name:      "tasks_total",
			Help:      "Async task transitions, partitioned by status.",
		},
		[]string{"status"},
	)
)

// Register attaches insight-engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		insightsTotal,
		insightDurationSeconds,
		generationAttemptsTotal,
		rateLimitDeniedTotal,
		tasksTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveInsight records one pipeline run's duration and outcome label.
func ObserveInsight(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeDenied:
	default:
		outcome = OutcomeSuccess
	}
	insightsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeDenied {
		rateLimitDeniedTotal.Inc()
	}
	if duration < 0 {
		duration = 0
	}
	insightDurationSeconds.Observe(duration.Seconds())
}

// ObserveGeneration records one backend attempt per provider and outcome.
func ObserveGeneration(provider, outcome string) {
	generationAttemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveTask records one async task status transition.
func ObserveTask(status string) {
	tasksTotal.WithLabelValues(status).Inc()
}
