package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FlowMetrics instruments the offline pipeline: ingestion of works and
// retrieval evaluation runs.
type FlowMetrics struct {
	registry *prometheus.Registry

	worksTotal      *prometheus.CounterVec
	chunksIndexed   *prometheus.CounterVec
	ingestDuration  *prometheus.HistogramVec
	evalRunsTotal   *prometheus.CounterVec
	evalDuration    *prometheus.HistogramVec
	strategyMetrics *prometheus.GaugeVec
}

func NewFlowMetrics(service string) *FlowMetrics {
	registry := prometheus.NewRegistry()

	worksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gqa",
			Subsystem: "flow",
			Name:      "works_total",
			Help:      "Total ingested works by status.",
		},
		[]string{"service", "status"},
	)
	chunksIndexed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gqa",
			Subsystem: "flow",
			Name:      "chunks_indexed_total",
			Help:      "Total chunks written to the vector store.",
		},
		[]string{"service", "source"},
	)
	ingestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gqa",
			Subsystem: "flow",
			Name:      "work_ingest_duration_seconds",
			Help:      "Per-work ingestion duration in seconds by status.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	evalRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gqa",
			Subsystem: "flow",
			Name:      "evaluation_runs_total",
			Help:      "Total retrieval evaluation runs by status.",
		},
		[]string{"service", "status"},
	)
	evalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gqa",
			Subsystem: "flow",
			Name:      "evaluation_duration_seconds",
			Help:      "Retrieval evaluation run duration in seconds.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service"},
	)
	strategyMetrics := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gqa",
			Subsystem: "flow",
			Name:      "strategy_metric",
			Help:      "Latest evaluation metric value per strategy.",
		},
		[]string{"service", "strategy", "metric"},
	)

	registry.MustRegister(worksTotal, chunksIndexed, ingestDuration, evalRunsTotal, evalDuration, strategyMetrics)

	return &FlowMetrics{
		registry:        registry,
		worksTotal:      worksTotal,
		chunksIndexed:   chunksIndexed,
		ingestDuration:  ingestDuration,
		evalRunsTotal:   evalRunsTotal,
		evalDuration:    evalDuration,
		strategyMetrics: strategyMetrics,
	}
}

func (m *FlowMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *FlowMetrics) RecordWorkIngested(service string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.worksTotal.WithLabelValues(service, status).Inc()
	m.ingestDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *FlowMetrics) RecordChunksIndexed(service, source string, count int) {
	if count <= 0 {
		return
	}
	m.chunksIndexed.WithLabelValues(service, source).Add(float64(count))
}

func (m *FlowMetrics) RecordEvaluationRun(service string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.evalRunsTotal.WithLabelValues(service, status).Inc()
	if err == nil {
		m.evalDuration.WithLabelValues(service).Observe(duration.Seconds())
	}
}

func (m *FlowMetrics) RecordStrategyMetric(service, strategy, metric string, value float64) {
	m.strategyMetrics.WithLabelValues(service, strategy, metric).Set(value)
}
