// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itinerary_pipeline_runs_total",
			Help: "Itinerary document pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "itinerary_pipeline_duration_seconds",
			Help:    "Wall time of a full itinerary document pipeline run",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 90, 120},
		},
	)

	RemoteCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_service_calls_total",
			Help: "Calls to third-party services by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "remote_service_breaker_state",
			Help: "Circuit breaker state per remote service",
		},
		[]string{"service"},
	)

	JobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "document_jobs_queued",
			Help: "Document jobs waiting for a worker",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Requests rejected by the per-IP limiter",
		},
		[]string{"path"},
	)
)
