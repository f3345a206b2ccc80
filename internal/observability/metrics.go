package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	assessments   *prometheus.CounterVec
	latency       prometheus.Histogram
	errors        *prometheus.CounterVec
	degraded      prometheus.Counter
	rateLimited   prometheus.Counter
	workerResults *prometheus.CounterVec
}

// NewMetrics registers the Kestrel collectors plus Go runtime collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "assessments_total",
			Help:      "Completed profile assessments by risk level and estimator.",
		}, []string{"level", "estimator"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kestrel",
			Name:      "assessment_duration_seconds",
			Help:      "Time spent assessing one profile.",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "assessment_errors_total",
			Help:      "Failed assessments by error kind.",
		}, []string{"kind"}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "estimator_unavailable_total",
			Help:      "Assessments scored without the configured estimator.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		workerResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "worker_submissions_total",
			Help:      "Asynchronous submissions processed by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.assessments,
		m.latency,
		m.errors,
		m.degraded,
		m.rateLimited,
		m.workerResults,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveAssessment records a completed assessment.
func (m *Metrics) ObserveAssessment(level, estimator string, d time.Duration) {
	if m == nil {
		return
	}
	m.assessments.WithLabelValues(level, estimator).Inc()
	m.latency.Observe(d.Seconds())
}

// AssessmentFailed records a failed assessment.
func (m *Metrics) AssessmentFailed(kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(kind).Inc()
}

// EstimatorUnavailable records a degraded assessment.
func (m *Metrics) EstimatorUnavailable() {
	if m == nil {
		return
	}
	m.degraded.Inc()
}

// RateLimited records a rejected request.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// WorkerResult records the outcome of an asynchronous submission.
func (m *Metrics) WorkerResult(outcome string) {
	if m == nil {
		return
	}
	m.workerResults.WithLabelValues(outcome).Inc()
}
