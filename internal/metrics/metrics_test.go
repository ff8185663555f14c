package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	// Verify all metrics are initialized
	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.HTTPRequestDuration)
	assert.NotNil(t, m.ScansTotal)
	assert.NotNil(t, m.ScanDuration)
	assert.NotNil(t, m.FilesScanned)
	assert.NotNil(t, m.FilesSkipped)
	assert.NotNil(t, m.Findings)
	assert.NotNil(t, m.EngineFailures)
	assert.NotNil(t, m.ScansInFlight)
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.FileScanned()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.FilesScanned))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FilesScanned))
}

func TestRequestTrackingMiddleware(t *testing.T) {
	m := NewMetrics()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	ts := httptest.NewServer(m.RequestTrackingMiddleware(handler))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/scan")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/scan", "202")))
}

func TestScanLifecycle(t *testing.T) {
	m := NewMetrics()

	m.ScanStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansInFlight))

	m.FileScanned()
	m.FileScanned()
	m.FileSkipped("too_large")
	m.FindingReported("critical", "secret")
	m.EngineFailed("dependency", "parse_error")
	m.ScanFinished("success", 250*time.Millisecond)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ScansInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FilesScanned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FilesSkipped.WithLabelValues("too_large")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Findings.WithLabelValues("critical", "secret")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineFailures.WithLabelValues("dependency", "parse_error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ScanDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ScanStarted()
		m.FileScanned()
		m.FileSkipped("too_large")
		m.FindingReported("high", "config")
		m.EngineFailed("cicd", "engine_panic")
		m.ScanFinished("failed", time.Second)
	})

	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	assert.NotNil(t, m.RequestTrackingMiddleware(next))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.ScanStarted()
	m.FindingReported("high", "code_pattern")
	m.ScanFinished("success", time.Second)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "codebot_scans_total")
	assert.Contains(t, body, "codebot_findings_total")
	assert.Contains(t, body, "codebot_scan_duration_seconds")
	assert.Contains(t, body, "codebot_scans_in_flight")
}
