package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics holds all Prometheus metrics of the harness.
// Every Record method is safe on a nil receiver so components can run without metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Discovery metrics
	DiscoveryRunsTotal     *prometheus.CounterVec
	DiscoveryWarningsTotal prometheus.Counter
	CallablesDiscovered    prometheus.Gauge

	// Generation metrics
	GenerationsTotal *prometheus.CounterVec
	FallbacksTotal   *prometheus.CounterVec

	// Inference metrics
	InferenceRequestsTotal *prometheus.CounterVec
	InferenceLatency       *prometheus.HistogramVec
	InferenceTokensTotal   *prometheus.CounterVec
	RetriesTotal           *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitTransitionsTotal *prometheus.CounterVec

	// Execution metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	VerdictsTotal     *prometheus.CounterVec
	BatchRunsTotal    prometheus.Counter

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsEvicted prometheus.Counter
}

// NewPrometheusMetrics registers the harness metrics on a dedicated registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,

		DiscoveryRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_discovery_runs_total",
				Help: "Total number of discovery passes",
			},
			[]string{"status"},
		),

		DiscoveryWarningsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "probe_discovery_warnings_total",
				Help: "Total number of source files skipped during discovery",
			},
		),

		CallablesDiscovered: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "probe_callables_discovered",
				Help: "Number of callables found by the latest discovery pass",
			},
		),

		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_generations_total",
				Help: "Total number of generated parameter values",
			},
			[]string{"strategy"},
		),

		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_generation_fallbacks_total",
				Help: "Total number of external generations that fell back to heuristics",
			},
			[]string{"reason"},
		),

		InferenceRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_inference_requests_total",
				Help: "Total number of inference service requests",
			},
			[]string{"model", "status"},
		),

		InferenceLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "probe_inference_latency_seconds",
				Help:    "Inference request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),

		InferenceTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_inference_tokens_total",
				Help: "Total number of tokens exchanged with the inference service",
			},
			[]string{"model", "direction"},
		),

		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_inference_retries_total",
				Help: "Total number of inference retries",
			},
			[]string{"model", "reason"},
		),

		CircuitTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_circuit_transitions_total",
				Help: "Total number of circuit breaker state changes",
			},
			[]string{"name", "to"},
		),

		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_executions_total",
				Help: "Total number of callable executions",
			},
			[]string{"kind", "outcome"},
		),

		ExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "probe_execution_duration_seconds",
				Help:    "Callable execution time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		VerdictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probe_verdicts_total",
				Help: "Total number of reviewer verdicts",
			},
			[]string{"verdict"},
		),

		BatchRunsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "probe_batch_runs_total",
				Help: "Total number of batch runs",
			},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "probe_sessions_active",
				Help: "Number of open sessions",
			},
		),

		SessionsEvicted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "probe_sessions_evicted_total",
				Help: "Total number of sessions closed by eviction or idle expiry",
			},
		),
	}
}

// Registry exposes the registry the metrics live in.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDiscovery records the result of one discovery pass
func (m *PrometheusMetrics) RecordDiscovery(status string, callables, warnings int) {
	if m == nil {
		return
	}
	m.DiscoveryRunsTotal.WithLabelValues(status).Inc()
	if status == "ok" {
		m.CallablesDiscovered.Set(float64(callables))
	}
	if warnings > 0 {
		m.DiscoveryWarningsTotal.Add(float64(warnings))
	}
}

// RecordGeneration records a generated value
func (m *PrometheusMetrics) RecordGeneration(strategy string) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(strategy).Inc()
}

// RecordFallback records a generation fallback
func (m *PrometheusMetrics) RecordFallback(reason string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(reason).Inc()
}

// RecordInference records an inference request and its latency
func (m *PrometheusMetrics) RecordInference(model, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.InferenceRequestsTotal.WithLabelValues(model, status).Inc()
	m.InferenceLatency.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordTokens records token metrics
func (m *PrometheusMetrics) RecordTokens(model string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	if inputTokens > 0 {
		m.InferenceTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.InferenceTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// RecordRetry records a retry
func (m *PrometheusMetrics) RecordRetry(model, reason string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(model, reason).Inc()
}

// RecordCircuitTransition records a circuit breaker state change
func (m *PrometheusMetrics) RecordCircuitTransition(name, to string) {
	if m == nil {
		return
	}
	m.CircuitTransitionsTotal.WithLabelValues(name, to).Inc()
}

// RecordExecution records one callable execution
func (m *PrometheusMetrics) RecordExecution(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ExecutionsTotal.WithLabelValues(kind, outcome).Inc()
	m.ExecutionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordVerdict records a reviewer verdict
func (m *PrometheusMetrics) RecordVerdict(verdict string) {
	if m == nil {
		return
	}
	m.VerdictsTotal.WithLabelValues(verdict).Inc()
}

// RecordBatch records a batch run
func (m *PrometheusMetrics) RecordBatch() {
	if m == nil {
		return
	}
	m.BatchRunsTotal.Inc()
}

// SessionOpened and SessionClosed track the number of open sessions.
func (m *PrometheusMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *PrometheusMetrics) SessionClosed(evicted bool) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	if evicted {
		m.SessionsEvicted.Inc()
	}
}
