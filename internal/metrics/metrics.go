package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics represents the collection of scanner Prometheus metrics. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Standard metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Scan metrics
	ScansTotal     *prometheus.CounterVec
	ScanDuration   prometheus.Histogram
	FilesScanned   prometheus.Counter
	FilesSkipped   *prometheus.CounterVec
	Findings       *prometheus.CounterVec
	EngineFailures *prometheus.CounterVec
	ScansInFlight  prometheus.Gauge
}

// NewMetrics creates the collectors on a fresh registry. Each call yields
// an independent set, so tests and multiple servers never collide.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codebot_scans_total",
			Help: "Total number of scan calls by outcome",
		},
		[]string{"status"},
	)

	m.ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codebot_scan_duration_seconds",
			Help:    "Duration of scan calls in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	m.FilesScanned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codebot_files_scanned_total",
			Help: "Total number of files fetched and scanned",
		},
	)

	m.FilesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codebot_files_skipped_total",
			Help: "Total number of listed files that were not scanned",
		},
		[]string{"reason"},
	)

	m.Findings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codebot_findings_total",
			Help: "Total number of reported findings",
		},
		[]string{"severity", "scanner"},
	)

	m.EngineFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codebot_engine_failures_total",
			Help: "Total number of engine errors and panics",
		},
		[]string{"engine", "kind"},
	)

	m.ScansInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "codebot_scans_in_flight",
			Help: "Number of scans currently running",
		},
	)

	// Register all metrics
	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ScansTotal,
		m.ScanDuration,
		m.FilesScanned,
		m.FilesSkipped,
		m.Findings,
		m.EngineFailures,
		m.ScansInFlight,
	)

	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ScanStarted marks a scan as running.
func (m *Metrics) ScanStarted() {
	if m == nil {
		return
	}
	m.ScansInFlight.Inc()
}

// ScanFinished records the outcome of one scan call.
func (m *Metrics) ScanFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScansInFlight.Dec()
	m.ScansTotal.WithLabelValues(status).Inc()
	m.ScanDuration.Observe(d.Seconds())
}

// FileScanned counts one fetched and scanned file.
func (m *Metrics) FileScanned() {
	if m == nil {
		return
	}
	m.FilesScanned.Inc()
}

// FileSkipped counts a listed file that was not scanned.
func (m *Metrics) FileSkipped(reason string) {
	if m == nil {
		return
	}
	m.FilesSkipped.WithLabelValues(reason).Inc()
}

// FindingReported counts one reported finding.
func (m *Metrics) FindingReported(severity, scanner string) {
	if m == nil {
		return
	}
	m.Findings.WithLabelValues(severity, scanner).Inc()
}

// EngineFailed counts a soft engine error or a recovered panic.
func (m *Metrics) EngineFailed(engine, kind string) {
	if m == nil {
		return
	}
	m.EngineFailures.WithLabelValues(engine, kind).Inc()
}

// Middleware for tracking HTTP requests
func (m *Metrics) RequestTrackingMiddleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter is a wrapper to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
