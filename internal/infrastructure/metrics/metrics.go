package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Derivative request metrics
var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcoder_requests_total",
			Help: "Derivative requests by kind and outcome",
		},
		[]string{"kind", "result"}, // result: done, pending, not_found, error
	)

	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcoder_cache_hits_total",
			Help: "Requests answered by an existing fresh derivative",
		},
		[]string{"kind"},
	)
)

// Encoder job metrics
var (
	JobsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcoder_jobs_started_total",
			Help: "Encoder processes spawned",
		},
		[]string{"kind"},
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcoder_jobs_finished_total",
			Help: "Encoder jobs that reached a terminal status",
		},
		[]string{"kind", "status"},
	)

	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transcoder_jobs_running",
			Help: "Encoder processes currently supervised by this instance",
		},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transcoder_job_duration_seconds",
			Help:    "Wall time of encoder jobs",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"kind"},
	)
)

// Lock metrics
var (
	LocksReclaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transcoder_locks_reclaimed_total",
			Help: "Stale job locks removed by the reaper",
		},
	)

	JobsInterruptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transcoder_jobs_interrupted_total",
			Help: "Jobs found orphaned at startup and marked failed",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcoder_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transcoder_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
