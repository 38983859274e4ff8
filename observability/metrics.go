package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// It satisfies the recorder interfaces of memory, llm and pipeline.
type Metrics struct {
	MemoryOps         *prometheus.CounterVec
	StepDuration      *prometheus.HistogramVec
	StepErrors        *prometheus.CounterVec
	CompletionLatency *prometheus.HistogramVec
	MemoryQuality     prometheus.Histogram
	WSMessages        *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers instruments on reg. A nil reg uses a fresh registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		MemoryOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_operations_total",
			Help:      "Memory operations by operation and status.",
		}, []string{"op", "status"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_step_duration_seconds",
			Help:      "Pipeline step duration by step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step"}),
		StepErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_step_errors_total",
			Help:      "Pipeline step failures by step.",
		}, []string{"step"}),
		CompletionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_latency_seconds",
			Help:      "Text completion latency by prompt kind and status.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"kind", "status"}),
		MemoryQuality: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_quality_score",
			Help:      "Quality score of memories retrieved per turn.",
			Buckets:   []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		gatherer: reg,
	}
}

// ObserveMemoryOp implements memory.Recorder.
func (m *Metrics) ObserveMemoryOp(op string, err error) {
	m.MemoryOps.WithLabelValues(op, status(err)).Inc()
}

// ObserveStep implements pipeline.Recorder.
func (m *Metrics) ObserveStep(step string, elapsed time.Duration, err error) {
	m.StepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
	if err != nil {
		m.StepErrors.WithLabelValues(step).Inc()
	}
}

// ObserveQuality implements pipeline.Recorder.
func (m *Metrics) ObserveQuality(score float64) {
	m.MemoryQuality.Observe(score)
}

// ObserveCompletion implements llm.Recorder.
func (m *Metrics) ObserveCompletion(kind string, elapsed time.Duration, err error) {
	m.CompletionLatency.WithLabelValues(kind, status(err)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
