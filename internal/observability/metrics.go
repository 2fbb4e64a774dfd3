// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Materializer metrics
	MaterializerRuns        *prometheus.CounterVec
	MaterializerDuration    prometheus.Histogram
	SnapshotsUpserted       prometheus.Counter
	InstrumentsProcessed    prometheus.Counter
	LastSuccessfulRun       prometheus.Gauge
	LastRunRowsAffected     prometheus.Gauge
	SchedulerSkippedOverlap prometheus.Counter

	// Query metrics
	CandidatesRanked prometheus.Gauge
	CacheRequests    *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "accumulation_lab"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Materializer metrics
		MaterializerRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "materializer",
			Name:      "runs_total",
			Help:      "Total number of materializer runs by status",
		}, []string{"status"}),
		MaterializerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "materializer",
			Name:      "duration_seconds",
			Help:      "Materializer run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		SnapshotsUpserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "materializer",
			Name:      "snapshots_upserted_total",
			Help:      "Total number of indicator snapshots written",
		}),
		InstrumentsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "materializer",
			Name:      "instruments_processed_total",
			Help:      "Total number of instruments scored",
		}),
		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "materializer",
			Name:      "last_success_timestamp",
			Help:      "Unix timestamp of the last successful run",
		}),
		LastRunRowsAffected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "materializer",
			Name:      "last_run_rows",
			Help:      "Rows written by the last successful run",
		}),
		SchedulerSkippedOverlap: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "skipped_overlap_total",
			Help:      "Scheduled runs skipped because a run was in progress",
		}),

		// Query metrics
		CandidatesRanked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ranker",
			Name:      "candidates",
			Help:      "Number of breakout candidates in the last ranking",
		}),
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Candidate cache lookups by result",
		}, []string{"result"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordMaterializerRun records one materializer run.
func RecordMaterializerRun(status string, rows, instruments int, duration time.Duration) {
	m := DefaultMetrics
	m.MaterializerRuns.WithLabelValues(status).Inc()
	m.MaterializerDuration.Observe(duration.Seconds())
	if status != "success" {
		return
	}
	m.SnapshotsUpserted.Add(float64(rows))
	m.InstrumentsProcessed.Add(float64(instruments))
	m.LastSuccessfulRun.SetToCurrentTime()
	m.LastRunRowsAffected.Set(float64(rows))
}

// RecordSkippedRun records a scheduled run skipped due to overlap.
func RecordSkippedRun() {
	DefaultMetrics.SchedulerSkippedOverlap.Inc()
}

// RecordCandidates records the size of the latest candidate list.
func RecordCandidates(n int) {
	DefaultMetrics.CandidatesRanked.Set(float64(n))
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheRequests.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(route string, code int, duration time.Duration) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	DefaultMetrics.HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
