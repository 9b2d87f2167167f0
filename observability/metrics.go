package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Gateway metrics
	GatewayRequestsTotal    *prometheus.CounterVec
	GatewayResolutionsTotal *prometheus.CounterVec

	// Upstream metrics
	UpstreamRequestsTotal *prometheus.CounterVec
	UpstreamErrorsTotal   *prometheus.CounterVec
	UpstreamDuration      *prometheus.HistogramVec

	// Cache metrics
	CacheLookupsTotal    *prometheus.CounterVec
	CacheTierErrorsTotal *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryTotal    *prometheus.CounterVec
	DBErrorsTotal   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec
}

// defaultBuckets are the default histogram buckets for duration metrics (in seconds)
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// globalMetrics is the global metrics instance
var globalMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	m := &Metrics{
		// Gateway metrics
		GatewayRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modelrules",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total number of proxy requests by outcome",
			},
			[]string{"outcome"},
		),
		GatewayResolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modelrules",
				Subsystem: "gateway",
				Name:      "resolutions_total",
				Help:      "Total number of model string resolutions by kind",
			},
			[]string{"kind"},
		),

		// Upstream metrics
		UpstreamRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modelrules",
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Total number of proxied upstream requests",
			},
			[]string{"status"},
		),
		UpstreamErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modelrules",
				Subsystem: "upstream",
				Name:      "errors_total",
				Help:      "Total number of upstream transport failures",
			},
			[]string{"error_type"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "modelrules",
				Subsystem: "upstream",
				Name:      "duration_seconds",
				Help:      "Duration of upstream requests in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"status"},
		),

		// Cache metrics
		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modelrules",
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Total number of cache lookups by namespace and result",
			},
			[]string{"namespace", "result"},
		),
		CacheTierErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modelrules",
				Subsystem: "cache",
				Name:      "tier_errors_total",
				Help:      "Total number of cache tier failures",
			},
			[]string{"tier", "operation"},
		),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "modelrules",
				Subsystem: "database",
				Name:      "query_duration_seconds",
				Help:      "Duration of database queries in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"operation", "table"},
		),
		DBQueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modelrules",
				Subsystem: "database",
				Name:      "queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table"},
		),
		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modelrules",
				Subsystem: "database",
				Name:      "errors_total",
				Help:      "Total number of database errors",
			},
			[]string{"operation", "table"},
		),

		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modelrules",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "modelrules",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "modelrules",
				Subsystem: "http",
				Name:      "response_size_bytes",
				Help:      "Size of HTTP responses in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),
	}

	return m
}

// InitMetrics initializes the global metrics instance
func InitMetrics() *Metrics {
	globalMetrics = NewMetrics(nil)
	return globalMetrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		return InitMetrics()
	}
	return globalMetrics
}

// RecordGatewayRequest records a proxy request outcome
func (m *Metrics) RecordGatewayRequest(outcome string) {
	m.GatewayRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordResolution records a model string resolution
func (m *Metrics) RecordResolution(kind string) {
	m.GatewayResolutionsTotal.WithLabelValues(kind).Inc()
}

// RecordUpstreamRequest records a completed upstream request
func (m *Metrics) RecordUpstreamRequest(status string, duration time.Duration) {
	m.UpstreamRequestsTotal.WithLabelValues(status).Inc()
	m.UpstreamDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordUpstreamError records an upstream transport failure
func (m *Metrics) RecordUpstreamError(errorType string) {
	m.UpstreamErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordCacheLookup records a cache lookup result
func (m *Metrics) RecordCacheLookup(namespace, result string) {
	m.CacheLookupsTotal.WithLabelValues(namespace, result).Inc()
}

// RecordCacheTierError records a cache tier failure
func (m *Metrics) RecordCacheTierError(tier, operation string) {
	m.CacheTierErrorsTotal.WithLabelValues(tier, operation).Inc()
}

// RecordDBQuery records a database query
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.DBQueryTotal.WithLabelValues(operation, table).Inc()
	m.DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDBError records a database error
func (m *Metrics) RecordDBError(operation, table string) {
	m.DBErrorsTotal.WithLabelValues(operation, table).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration, responseSize int) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// Timer is a helper for timing operations
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer creates a new timer
func (m *Metrics) NewTimer() *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: m,
	}
}

// ObserveUpstream records the upstream request duration
func (t *Timer) ObserveUpstream(status string) {
	t.metrics.RecordUpstreamRequest(status, time.Since(t.start))
}

// ObserveDB records the database query duration
func (t *Timer) ObserveDB(operation, table string) {
	t.metrics.RecordDBQuery(operation, table, time.Since(t.start))
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
