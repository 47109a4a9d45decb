// Package observability provides Prometheus metrics for the application.
//
// A nil *Metrics is valid; every Record/Set method is then a no-op.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tubedl"

// Metrics holds all application metrics.
type Metrics struct {
	// Session metrics
	SessionsStarted    prometheus.Counter
	SessionsCompleted  prometheus.Counter
	SessionsFailed     *prometheus.CounterVec
	SessionsInProgress prometheus.Gauge
	SessionBytes       prometheus.Counter
	SessionDuration    prometheus.Histogram

	// Progress metrics
	RecordsCurrent   prometheus.Gauge
	RecordsSwept     prometheus.Counter
	PublishersActive *prometheus.GaugeVec
	EventsPublished  *prometheus.CounterVec

	// Storage metrics
	FilesWritten      prometheus.Counter
	CleanupFilesTotal prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Proxy metrics
	ProxyRequestsTotal *prometheus.CounterVec
	ProxyFailures      *prometheus.CounterVec
	ProxiesAvailable   prometheus.Gauge

	// Provider metrics
	ProviderRequestsTotal *prometheus.CounterVec
	ProviderErrors        *prometheus.CounterVec
}

// New creates all application metrics and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all application metrics and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	metrics := &Metrics{
		// Session metrics
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "started_total",
			Help:      "Total number of download sessions started",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "completed_total",
			Help:      "Total number of download sessions completed successfully",
		}),
		SessionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "failed_total",
			Help:      "Total number of download sessions that failed",
		}, []string{"kind"}),
		SessionsInProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "in_progress",
			Help:      "Number of download sessions currently in progress",
		}),
		SessionBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "download_bytes_total",
			Help:      "Total bytes downloaded across all sessions",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "duration_seconds",
			Help:      "Histogram of download session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		// Progress metrics
		RecordsCurrent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "records_current",
			Help:      "Current number of progress records",
		}),
		RecordsSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "records_swept_total",
			Help:      "Total number of expired progress records removed",
		}),
		PublishersActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "publishers_active",
			Help:      "Number of connected progress observers",
		}, []string{"transport"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progress",
			Name:      "events_total",
			Help:      "Total number of progress events emitted",
		}, []string{"transport", "status"}),

		// Storage metrics
		FilesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "files_written_total",
			Help:      "Total number of files written",
		}),
		CleanupFilesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "cleanup_files_total",
			Help:      "Total number of expired files cleaned up",
		}),

		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPResponseSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Histogram of HTTP response sizes in bytes",
			Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		}, []string{"method", "path"}),

		// Proxy metrics
		ProxyRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Total number of requests made through proxies",
		}, []string{"proxy"}),
		ProxyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "failures_total",
			Help:      "Total number of proxy failures",
		}, []string{"proxy"}),
		ProxiesAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "available",
			Help:      "Number of currently available proxies",
		}),

		// Provider metrics
		ProviderRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total number of provider lookups",
		}, []string{"provider", "status"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Total number of provider errors",
		}, []string{"provider", "kind"}),
	}

	return metrics
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SessionTimer returns a function to record session duration.
func (m *Metrics) SessionTimer() func() {
	start := time.Now()

	return func() {
		if m == nil {
			return
		}

		m.SessionDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration, size int) {
	if m == nil {
		return
	}

	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(size))
}

// RecordSessionStarted increments the sessions started counter.
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}

	m.SessionsStarted.Inc()
	m.SessionsInProgress.Inc()
}

// RecordSessionCompleted records a completed session.
func (m *Metrics) RecordSessionCompleted() {
	if m == nil {
		return
	}

	m.SessionsCompleted.Inc()
	m.SessionsInProgress.Dec()
}

// RecordSessionFailed records a failed session.
func (m *Metrics) RecordSessionFailed(kind string) {
	if m == nil {
		return
	}

	m.SessionsFailed.WithLabelValues(kind).Inc()
	m.SessionsInProgress.Dec()
}

// RecordSessionBytes adds n downloaded bytes.
func (m *Metrics) RecordSessionBytes(n int) {
	if m == nil || n <= 0 {
		return
	}

	m.SessionBytes.Add(float64(n))
}

// SetRecords sets the number of progress records.
func (m *Metrics) SetRecords(count int) {
	if m == nil {
		return
	}

	m.RecordsCurrent.Set(float64(count))
}

// RecordSwept records removed progress records.
func (m *Metrics) RecordSwept(count int) {
	if m == nil {
		return
	}

	m.RecordsSwept.Add(float64(count))
}

// PublisherStarted increments the active observers gauge and returns its decrement.
func (m *Metrics) PublisherStarted(transport string) func() {
	if m == nil {
		return func() {}
	}

	m.PublishersActive.WithLabelValues(transport).Inc()

	return func() { m.PublishersActive.WithLabelValues(transport).Dec() }
}

// RecordEvent records one emitted progress event.
func (m *Metrics) RecordEvent(transport, status string) {
	if m == nil {
		return
	}

	m.EventsPublished.WithLabelValues(transport, status).Inc()
}

// RecordFileWritten records a finished file write.
func (m *Metrics) RecordFileWritten() {
	if m == nil {
		return
	}

	m.FilesWritten.Inc()
}

// RecordCleanup records cleanup metrics.
func (m *Metrics) RecordCleanup(files int) {
	if m == nil {
		return
	}

	m.CleanupFilesTotal.Add(float64(files))
}

// RecordProviderRequest records a provider lookup.
func (m *Metrics) RecordProviderRequest(provider, status string) {
	if m == nil {
		return
	}

	m.ProviderRequestsTotal.WithLabelValues(provider, status).Inc()
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(provider, kind string) {
	if m == nil {
		return
	}

	m.ProviderErrors.WithLabelValues(provider, kind).Inc()
}

// RecordProxyRequest records a proxy request.
func (m *Metrics) RecordProxyRequest(proxy string) {
	if m == nil {
		return
	}

	m.ProxyRequestsTotal.WithLabelValues(proxy).Inc()
}

// RecordProxyFailure records a proxy failure.
func (m *Metrics) RecordProxyFailure(proxy string) {
	if m == nil {
		return
	}

	m.ProxyFailures.WithLabelValues(proxy).Inc()
}

// SetProxiesAvailable sets the number of available proxies.
func (m *Metrics) SetProxiesAvailable(count int) {
	if m == nil {
		return
	}

	m.ProxiesAvailable.Set(float64(count))
}
