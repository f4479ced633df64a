// Package metrics exposes render and bot counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	site2pdf "github.com/alnah/go-site2pdf"
)

const namespace = "site2pdf"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	jobs       *prometheus.CounterVec
	duration   prometheus.Histogram
	bands      prometheus.Histogram
	inFlight   prometheus.Gauge
	reclaimed  prometheus.Counter
	deliveries *prometheus.CounterVec
	throttled  prometheus.Counter
}

// Compile-time interface check.
var _ site2pdf.Observer = (*Metrics)(nil)

// New registers all collectors, plus Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Render jobs by final state.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of render jobs.",
			Buckets:   []float64{5, 10, 20, 40, 80, 160, 320, 640},
		}),
		bands: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_bands",
			Help:      "Viewport bands captured per job.",
			Buckets:   prometheus.LinearBuckets(1, 3, 10),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Render jobs currently running.",
		}),
		reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workspaces_reclaimed_total",
			Help:      "Job directories removed.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "PDF deliveries to chat by result.",
		}, []string{"result"}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_throttled_total",
			Help:      "Chat requests rejected by the per-user rate limit.",
		}),
	}

	m.registry.MustRegister(
		m.jobs, m.duration, m.bands, m.inFlight, m.reclaimed, m.deliveries, m.throttled,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// JobStarted implements site2pdf.Observer.
func (m *Metrics) JobStarted() {
	m.inFlight.Inc()
}

// JobFinished implements site2pdf.Observer.
func (m *Metrics) JobFinished(outcome site2pdf.JobState, elapsed time.Duration, bands int) {
	m.inFlight.Dec()
	m.jobs.WithLabelValues(outcome.String()).Inc()
	m.duration.Observe(elapsed.Seconds())
	if outcome == site2pdf.StateCompleted {
		m.bands.Observe(float64(bands))
	}
}

// WorkspacesReclaimed counts removed job directories.
func (m *Metrics) WorkspacesReclaimed(n int) {
	m.reclaimed.Add(float64(n))
}

// Delivery records a PDF delivery result ("ok", "retried", "failed").
func (m *Metrics) Delivery(result string) {
	m.deliveries.WithLabelValues(result).Inc()
}

// Throttled counts a rate-limited request.
func (m *Metrics) Throttled() {
	m.throttled.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx ends.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
