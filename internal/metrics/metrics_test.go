package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weekend-code-project/weekendstack/internal/tunnel"
)

func TestMetricsCounters(t *testing.T) {
	m := New()

	m.ObserveRedirect("lab")
	m.ObserveRedirect("lab")
	m.ObserveRedirect("external")
	m.ObserveRejection(http.StatusBadRequest)
	m.SetRegistrySize(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.redirectsTotal.WithLabelValues("lab")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.redirectsTotal.WithLabelValues("external")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejectionsTotal.WithLabelValues("400")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.registryServices))
}

func TestMetricsProbeGauge(t *testing.T) {
	m := New()

	m.ObserveProbe(tunnel.ResultAvailable)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tunnelAvailable))

	m.ObserveProbe(tunnel.ResultUnavailable)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.tunnelAvailable))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.probesTotal.WithLabelValues("unavailable")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRedirect("lab")
		m.ObserveRejection(404)
		m.ObserveProbe("available")
		m.SetRegistrySize(1)
	})
}

func TestMetricsHandler(t *testing.T) {
	m := New()
	m.ObserveRedirect("ip")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `link_router_redirects_total{zone="ip"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
