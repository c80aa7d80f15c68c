package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	t.Parallel()

	m, err := New()
	require.NoError(t, err)

	m.JobsSubmitted.Inc()
	m.JobsFinished.WithLabelValues("complete").Inc()
	m.JobRedeliveries.Inc()
	m.ActiveWorkers.Set(3)
	m.StageDuration.WithLabelValues("instant").Observe(0.5)
	m.CheckOutcomes.WithLabelValues("ssl_certificate", "pass").Inc()
	m.Subscribers.Inc()

	require.Equal(t, float64(1), testutil.ToFloat64(m.JobsSubmitted))
	require.Equal(t, float64(1), testutil.ToFloat64(m.JobsFinished.WithLabelValues("complete")))
	require.Equal(t, float64(3), testutil.ToFloat64(m.ActiveWorkers))
}

func TestHandlerServesMetrics(t *testing.T) {
	t.Parallel()

	m, err := New()
	require.NoError(t, err)
	m.JobsSubmitted.Inc()
	m.ObserveHTTPRequest(http.MethodGet, "/v1/analyses", http.StatusOK, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, "analysis_jobs_submitted_total"))
	require.True(t, strings.Contains(body, "http_requests_total"))
}

func TestIndependentRegistries(t *testing.T) {
	t.Parallel()

	// Two instances must not collide; each carries its own registry.
	m1, err := New()
	require.NoError(t, err)
	m2, err := New()
	require.NoError(t, err)

	m1.JobsSubmitted.Inc()
	require.Equal(t, float64(0), testutil.ToFloat64(m2.JobsSubmitted))
}
