package prometheus

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// HTTP request counter by endpoint and status
	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizledger_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Authentication and authorization error counter
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizledger_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"type"}, // "missing_token", "invalid_token", "business_mismatch", etc.
	)

	// Websocket connection counter by channel flavor
	WSConnectionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizledger_ws_connections_total",
			Help: "Total number of accepted websocket connections",
		},
		[]string{"channel"}, // "notifications", "chat", "activity"
	)

	// Broadcast counter by event kind
	BroadcastCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizledger_broadcasts_total",
			Help: "Total number of events published to broadcast groups",
		},
		[]string{"kind"}, // "notification", "activity", "chat", "invalidate"
	)

	// Dashboard cache operation counter
	CacheOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizledger_cache_operations_total",
			Help: "Total number of dashboard cache operations by result",
		},
		[]string{"operation", "result"}, // operation: "get", "set", "invalidate"
	)
)

// Histogram metrics
var (
	// Request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bizledger_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bizledger_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // operation can be "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	// Currently open websocket connections
	ActiveWSConnectionsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bizledger_ws_active_connections",
			Help: "Number of currently open websocket connections",
		},
		[]string{"channel"},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bizledger_info",
			Help: "Information about the bizledger service",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(WSConnectionCounter)
	prometheus.MustRegister(BroadcastCounter)
	prometheus.MustRegister(CacheOperationCounter)

	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	prometheus.MustRegister(ActiveWSConnectionsGauge)
	prometheus.MustRegister(InfoGauge)

	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// RecordAuthError increments the auth error counter for the given type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordBroadcast increments the broadcast counter for the given event kind
func RecordBroadcast(kind string) {
	BroadcastCounter.With(prometheus.Labels{"kind": kind}).Inc()
}

// RecordCacheOperation increments the cache operation counter
func RecordCacheOperation(operation, result string) {
	CacheOperationCounter.With(prometheus.Labels{"operation": operation, "result": result}).Inc()
}

// WSConnected marks a websocket connection as opened on the given channel
func WSConnected(channel string) {
	WSConnectionCounter.With(prometheus.Labels{"channel": channel}).Inc()
	ActiveWSConnectionsGauge.With(prometheus.Labels{"channel": channel}).Inc()
}

// WSDisconnected marks a websocket connection as closed on the given channel
func WSDisconnected(channel string) {
	ActiveWSConnectionsGauge.With(prometheus.Labels{"channel": channel}).Dec()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

// MetricsMiddleware creates a middleware function that captures metrics for each request
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Execute the request handler
			err := next(c)

			// Record request duration and count
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(c.Response().Status)
			endpoint := c.Path()
			method := c.Request().Method

			RequestDuration.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Observe(duration)

			HTTPRequestCounter.With(prometheus.Labels{
				"endpoint": endpoint,
				"method":   method,
				"status":   status,
			}).Inc()

			return err
		}
	}
}
