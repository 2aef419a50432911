package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_config_http_requests_total",
			Help: "HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_config_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// EntityWrites counts pipeline outcomes: success, validation, reference, conflict, not_found, server.
	EntityWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_config_entity_writes_total",
			Help: "Config entity mutations by kind, action and outcome.",
		},
		[]string{"kind", "action", "outcome"},
	)

	BulkRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_config_bulk_rows_total",
			Help: "Bulk CSV rows processed by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	BulkRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_config_bulk_runs_total",
			Help: "Bulk CSV runs by kind and final status.",
		},
		[]string{"kind", "status"},
	)

	BulkRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_config_bulk_run_duration_seconds",
			Help:    "Wall time of bulk CSV runs.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"kind"},
	)

	BulkInFlightRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_config_bulk_inflight_rows",
			Help: "Bulk rows currently being processed.",
		},
	)
)

// Middleware records request count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
