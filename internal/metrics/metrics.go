package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	PipelineTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_pipeline_transitions_total",
			Help: "Total number of submission pipeline state transitions",
		},
		[]string{"operation", "state"},
	)

	CoSignDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_cosign_duration_seconds",
			Help:    "Co-signer round trip duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "outcome"},
	)

	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_submissions_total",
			Help: "Total number of transaction submissions by outcome",
		},
		[]string{"outcome"},
	)

	ConfirmationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orchestrator_confirmation_duration_seconds",
		Help:    "Time from broadcast to confirmation in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 90},
	})

	// Simulation metrics
	SimulationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_simulation_requests_total",
			Help: "Total number of transaction simulations",
		},
		[]string{"status"},
	)

	ComputeUnits = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orchestrator_compute_units",
		Help:    "Compute units consumed by simulated transactions",
		Buckets: []float64{1000, 5000, 10000, 50000, 100000, 200000, 400000},
	})

	// Lookup table metrics
	LookupTableEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_lookup_table_events_total",
			Help: "Lookup table creations, extensions and invalidations",
		},
		[]string{"event"},
	)

	// Ledger metrics
	RouteResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_route_resolutions_total",
			Help: "Pool route resolutions by source",
		},
		[]string{"source"},
	)

	ExistenceChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_existence_checks_total",
			Help: "Account existence checks by outcome",
		},
		[]string{"outcome"},
	)

	BlockhashAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orchestrator_blockhash_age_seconds",
		Help: "Age of the cached blockhash when it was last served",
	})

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_http_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func RecordTransition(operation, state string) {
	PipelineTransitions.WithLabelValues(operation, state).Inc()
}

func ObserveCoSign(route, outcome string, d time.Duration) {
	CoSignDuration.WithLabelValues(route, outcome).Observe(d.Seconds())
}

func RecordSubmission(outcome string) {
	Submissions.WithLabelValues(outcome).Inc()
}

func RecordLookupTable(event string) {
	LookupTableEvents.WithLabelValues(event).Inc()
}

func RecordRouteResolution(source string) {
	RouteResolutions.WithLabelValues(source).Inc()
}

func RecordExistenceCheck(outcome string) {
	ExistenceChecks.WithLabelValues(outcome).Inc()
}
