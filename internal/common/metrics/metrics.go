// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Route labels for CourierSearches.
const (
	RoutePrimary        = "primary"
	RouteSecondary      = "secondary"
	RouteMerged         = "merged"
	RouteShortCircuited = "short_circuited"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	CourierSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_searches_total",
			Help: "Search invocations by route and outcome",
		},
		[]string{"route", "status"},
	)

	CourierSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_search_duration_seconds",
			Help:    "Wall time from dispatch to settled result",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	CourierFetchParamFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courier_fetch_param_failures_total",
			Help: "Requests whose fetch params could not be resolved",
		},
	)

	CourierSecondaryFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_secondary_fallbacks_total",
			Help: "Searches that fell back to primary-only results",
		},
		[]string{"reason"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
