// Package metrics provides Prometheus instrumentation for the FRADECT engine.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fradect",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fradect",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DecisionsTotal counts risk decisions by event kind and action.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fradect",
			Name:      "decisions_total",
			Help:      "Total risk decisions by event kind and action.",
		},
		[]string{"kind", "action"},
	)

	// DegradedDecisionsTotal counts decisions made without a full set of sources.
	DegradedDecisionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fradect",
		Name:      "degraded_decisions_total",
		Help:      "Total decisions computed with one or more scoring sources missing.",
	})

	// AdapterResultsTotal counts source adapter outcomes by source and status.
	AdapterResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fradect",
			Name:      "adapter_results_total",
			Help:      "Source adapter results by source_id and terminal status.",
		},
		[]string{"source", "status"},
	)

	// AdapterDuration observes per-adapter scoring latency.
	AdapterDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fradect",
			Name:      "adapter_duration_seconds",
			Help:      "Time each source adapter spent producing a sub-score.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .15, .2, .3, .5, 1},
		},
		[]string{"source"},
	)

	// ScoringDuration observes end-to-end pipeline latency.
	ScoringDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fradect",
		Name:      "scoring_duration_seconds",
		Help:      "End-to-end decision pipeline duration in seconds.",
		Buckets:   []float64{.01, .025, .05, .1, .15, .2, .25, .3, .5, 1},
	})

	// ScoringFailuresTotal counts requests that produced no decision at all.
	ScoringFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fradect",
			Name:      "scoring_failures_total",
			Help:      "Requests that failed without a decision, by error class.",
		},
		[]string{"reason"},
	)

	// OutcomesTotal counts ground-truth outcome labels recorded via feedback.
	OutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fradect",
			Name:      "outcomes_total",
			Help:      "Ground-truth outcomes recorded on decision records.",
		},
		[]string{"outcome"},
	)

	// BatchJobsTotal counts batch jobs by terminal status.
	BatchJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fradect",
			Name:      "batch_jobs_total",
			Help:      "Batch scoring jobs by terminal status.",
		},
		[]string{"status"},
	)

	// ActiveWebSocketClients tracks connected decision-stream clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fradect",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected decision-stream clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fradect", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fradect", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fradect", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fradect", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DecisionsTotal,
		DegradedDecisionsTotal,
		AdapterResultsTotal,
		AdapterDuration,
		ScoringDuration,
		ScoringFailuresTotal,
		OutcomesTotal,
		BatchJobsTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
