// Package metrics exposes Prometheus instrumentation for ingestion, the live
// session tracker, background jobs and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event kinds used as label values
const (
	KindPageView = "page_view"
	KindClick    = "click"
)

var (
	// Queue Metrics
	EventsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitepulse_events_queued_total",
			Help: "Total number of events appended to the in-memory queue",
		},
		[]string{"kind"},
	)

	EventsFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitepulse_events_flushed_total",
			Help: "Total number of events written to the store by a flush",
		},
		[]string{"kind"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitepulse_events_dropped_total",
			Help: "Total number of events discarded because their flush failed",
		},
		[]string{"kind"},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sitepulse_queue_depth",
			Help: "Number of events waiting for the next flush",
		},
		[]string{"kind"},
	)

	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sitepulse_flush_duration_seconds",
			Help:    "Duration of batch flushes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FlushErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sitepulse_flush_errors_total",
			Help: "Total number of failed batch flushes",
		},
	)

	// Referrer blocking
	BlockedReferrers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sitepulse_blocked_referrers_total",
			Help: "Total number of page view referrers dropped by the block list",
		},
	)

	BlocklistFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitepulse_blocklist_fetches_total",
			Help: "Total number of block list loads from the store",
		},
		[]string{"result"}, // "ok", "error"
	)

	// Live sessions
	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitepulse_live_sessions",
			Help: "Number of sessions currently tracked as live",
		},
	)

	StaleSessionsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sitepulse_stale_sessions_removed_total",
			Help: "Total number of live sessions expired by the sweeper",
		},
	)

	// Jobs
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitepulse_job_runs_total",
			Help: "Total number of background job executions",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitepulse_job_duration_seconds",
			Help:    "Duration of background job executions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitepulse_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitepulse_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordFlush records the outcome of one batch flush.
func RecordFlush(pageViews, clicks int, duration time.Duration, err error) {
	FlushDuration.Observe(duration.Seconds())
	if err != nil {
		FlushErrors.Inc()
		EventsDropped.WithLabelValues(KindPageView).Add(float64(pageViews))
		EventsDropped.WithLabelValues(KindClick).Add(float64(clicks))
		return
	}
	EventsFlushed.WithLabelValues(KindPageView).Add(float64(pageViews))
	EventsFlushed.WithLabelValues(KindClick).Add(float64(clicks))
}

// RecordJob records one background job execution.
func RecordJob(job string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	JobRuns.WithLabelValues(job, status).Inc()
	JobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
