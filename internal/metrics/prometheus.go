package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "govledger"

// PrometheusMetrics contains all Prometheus metrics for the ledger
type PrometheusMetrics struct {
	// Ledger operation metrics
	LedgerOperationsTotal   *prometheus.CounterVec
	LedgerOperationDuration *prometheus.HistogramVec
	EventsAppendedTotal     *prometheus.CounterVec
	LatestEventSequence     prometheus.Gauge

	// Economic state
	BurnRate         prometheus.Gauge
	TotalStaked      prometheus.Gauge
	TotalBurned      prometheus.Gauge
	TemplatesTotal   prometheus.Gauge
	GovernanceChange *prometheus.CounterVec

	// Export cache
	HashCacheLookups *prometheus.CounterVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec
	NotificationDuration      *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates all metrics and registers them with reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		LedgerOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_operations_total",
				Help:      "Total number of ledger operations by outcome",
			},
			[]string{"operation", "status"},
		),

		LedgerOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_operation_duration_seconds",
				Help:      "Time spent executing ledger operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		EventsAppendedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_appended_total",
				Help:      "Total number of events appended to the ledger log",
			},
			[]string{"type"},
		),

		LatestEventSequence: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "latest_event_sequence",
				Help:      "Sequence number of the newest ledger event",
			},
		),

		BurnRate: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "burn_rate",
				Help:      "Current effective burn rate",
			},
		),

		TotalStaked: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "total_staked",
				Help:      "Sum of all open stake positions",
			},
		),

		TotalBurned: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "total_burned",
				Help:      "Cumulative amount burned from withdrawal fees",
			},
		),

		TemplatesTotal: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "templates_total",
				Help:      "Number of governance templates",
			},
		),

		GovernanceChange: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parameter_changes_total",
				Help:      "Governance and template changes by severity",
			},
			[]string{"kind", "severity"},
		),

		HashCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hash_cache_lookups_total",
				Help:      "Export data hash cache lookups",
			},
			[]string{"result"},
		),

		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "database_operations_total",
				Help:      "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "database_operation_duration_seconds",
				Help:      "Duration of database operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		NotificationsSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_sent_total",
				Help:      "Total number of notifications sent",
			},
			[]string{"channel", "severity"},
		),

		NotificationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_failures_total",
				Help:      "Total number of failed notifications",
			},
			[]string{"channel", "severity"},
		),

		NotificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "notification_duration_seconds",
				Help:      "Duration of notification delivery",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"channel"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "application_uptime_seconds",
				Help:      "Application uptime in seconds",
			},
		),

		ComponentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "component_health",
				Help:      "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage in bytes",
			},
		),

		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutines",
				Help:      "Number of running goroutines",
			},
		),
	}
}

// RecordLedgerOperation records the outcome and latency of an operation
func (m *PrometheusMetrics) RecordLedgerOperation(operation, status string, duration time.Duration) {
	m.LedgerOperationsTotal.WithLabelValues(operation, status).Inc()
	m.LedgerOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEventAppended records an appended ledger event
func (m *PrometheusMetrics) RecordEventAppended(eventType string, sequence uint64) {
	m.EventsAppendedTotal.WithLabelValues(eventType).Inc()
	m.LatestEventSequence.Set(float64(sequence))
}

// UpdateBurnRate updates the effective burn rate gauge
func (m *PrometheusMetrics) UpdateBurnRate(rate uint64) {
	m.BurnRate.Set(float64(rate))
}

// UpdateStakingTotals updates the staked and burned gauges
func (m *PrometheusMetrics) UpdateStakingTotals(staked, burned uint64) {
	m.TotalStaked.Set(float64(staked))
	m.TotalBurned.Set(float64(burned))
}

// UpdateTemplateCount updates the template gauge
func (m *PrometheusMetrics) UpdateTemplateCount(count int) {
	m.TemplatesTotal.Set(float64(count))
}

// RecordParameterChange records a governance or template change
func (m *PrometheusMetrics) RecordParameterChange(kind, severity string) {
	m.GovernanceChange.WithLabelValues(kind, severity).Inc()
}

// RecordHashCacheLookup records a hit or miss of the export hash cache
func (m *PrometheusMetrics) RecordHashCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.HashCacheLookups.WithLabelValues(result).Inc()
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordNotificationSent records a sent notification
func (m *PrometheusMetrics) RecordNotificationSent(channel, severity string, duration time.Duration) {
	m.NotificationsSentTotal.WithLabelValues(channel, severity).Inc()
	m.NotificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordNotificationFailure records a failed notification
func (m *PrometheusMetrics) RecordNotificationFailure(channel, severity string) {
	m.NotificationFailuresTotal.WithLabelValues(channel, severity).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
