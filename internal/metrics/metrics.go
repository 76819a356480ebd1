// Package metrics provides Prometheus instrumentation for RiskDesk.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskdesk",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status code.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskdesk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ScoringCallsTotal counts calls to the scoring service by endpoint and result.
	ScoringCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskdesk",
			Subsystem: "scoring",
			Name:      "calls_total",
			Help:      "Calls to the scoring service by endpoint and result.",
		},
		[]string{"endpoint", "result"},
	)

	// ScoringCallDuration observes scoring service latency.
	ScoringCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskdesk",
			Subsystem: "scoring",
			Name:      "call_duration_seconds",
			Help:      "Scoring service call duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"endpoint"},
	)

	// SimulationsTotal counts finished simulations by final state and failed phase.
	SimulationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskdesk",
			Subsystem: "simulation",
			Name:      "runs_total",
			Help:      "Finished simulations by state and failed phase.",
		},
		[]string{"state", "phase"},
	)

	// SimulationsSuperseded counts runs discarded because a newer run started.
	SimulationsSuperseded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "riskdesk",
		Subsystem: "simulation",
		Name:      "superseded_total",
		Help:      "Simulations discarded because a newer run replaced them.",
	})

	// SimulationsInFlight tracks running simulations.
	SimulationsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskdesk",
		Subsystem: "simulation",
		Name:      "in_flight",
		Help:      "Number of simulations currently running.",
	})

	// FeedFallbacksTotal counts feed loads served from the previous snapshot.
	FeedFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskdesk",
			Subsystem: "feed",
			Name:      "fallbacks_total",
			Help:      "Feed loads that fell back after a fetch failure, by source.",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ScoringCallsTotal,
		ScoringCallDuration,
		SimulationsTotal,
		SimulationsSuperseded,
		SimulationsInFlight,
		FeedFallbacksTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScoringCall records one scoring service call.
func ObserveScoringCall(endpoint string, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ScoringCallsTotal.WithLabelValues(endpoint, result).Inc()
	ScoringCallDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordSimulation records a finished simulation.
func RecordSimulation(state, failedPhase string) {
	SimulationsTotal.WithLabelValues(state, failedPhase).Inc()
}
