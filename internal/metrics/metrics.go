// Package metrics exposes Prometheus collectors for the analysis service.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns all service collectors. Construct one per process and share it
// across the API server and the worker pool.
type Metrics struct {
	JobsSubmitted   prometheus.Counter
	JobsFinished    *prometheus.CounterVec
	JobRedeliveries prometheus.Counter
	ActiveWorkers   prometheus.Gauge
	StageDuration   *prometheus.HistogramVec
	CheckOutcomes   *prometheus.CounterVec
	Subscribers     prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New registers all collectors against a fresh registry.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_jobs_submitted_total",
			Help: "Total analysis jobs accepted at the enqueue boundary.",
		}),
		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_jobs_finished_total",
			Help: "Total jobs that reached a terminal status, partitioned by status.",
		}, []string{"status"}),
		JobRedeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_job_redeliveries_total",
			Help: "Deliveries with attempt > 1, i.e. re-runs after a lease expiry.",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analysis_active_workers",
			Help: "Workers currently processing a job.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analysis_stage_duration_seconds",
			Help:    "Wall time per pipeline stage.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60},
		}, []string{"stage"}),
		CheckOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_check_outcomes_total",
			Help: "Check results partitioned by check name and status.",
		}, []string{"check", "status"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analysis_progress_subscribers",
			Help: "Open live-progress subscriptions.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests, labeled by method and code.",
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
		registry: reg,
	}
	for _, collector := range []prometheus.Collector{
		m.JobsSubmitted,
		m.JobsFinished,
		m.JobRedeliveries,
		m.ActiveWorkers,
		m.StageDuration,
		m.CheckOutcomes,
		m.Subscribers,
		m.httpRequests,
		m.httpDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// Handler serves the registered collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
