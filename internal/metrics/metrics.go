package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	RunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "survey_runs_started_total",
			Help: "Total number of interaction runs started",
		},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_runs_completed_total",
			Help: "Total number of interaction runs completed",
		},
		[]string{"action", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "survey_run_duration_seconds",
			Help:    "Interaction run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	ValidityResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_validity_results_total",
			Help: "Validity classifications by result and source",
		},
		[]string{"result", "source"},
	)

	// Backend metrics
	BackendCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survey_backend_calls_total",
			Help: "Generation backend calls by operation and status",
		},
		[]string{"operation", "status"},
	)

	BackendCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "survey_backend_call_duration_seconds",
			Help:    "Generation backend call duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	TokensStreamed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "survey_tokens_streamed_total",
			Help: "Total token events forwarded to callers",
		},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "survey_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Observer metrics
	ObserverSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "survey_observer_subscribers",
			Help: "Currently connected stream observers",
		},
	)
)
