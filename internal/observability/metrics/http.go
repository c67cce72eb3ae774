package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queriesTotal         *prometheus.CounterVec
	queryStrategyTotal   *prometheus.CounterVec
	queryNoContextTotal  *prometheus.CounterVec
	queryEvidenceChunks  *prometheus.HistogramVec
	queryDuration        *prometheus.HistogramVec
	sessionReloadsTotal  *prometheus.CounterVec
	initializationsTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gqa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gqa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gqa",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total answered questions by outcome.",
		},
		[]string{"service", "outcome"},
	)
	queryStrategyTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gqa",
			Subsystem: "query",
			Name:      "strategy_requests_total",
			Help:      "Total answered questions by active retrieval strategy.",
		},
		[]string{"service", "strategy"},
	)
	queryNoContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gqa",
			Subsystem: "query",
			Name:      "no_context_total",
			Help:      "Total questions answered without any retrieved evidence.",
		},
		[]string{"service"},
	)
	queryEvidenceChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gqa",
			Subsystem: "query",
			Name:      "evidence_chunks",
			Help:      "Distribution of evidence chunks per answered question.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gqa",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end query duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	sessionReloadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gqa",
			Subsystem: "workflow",
			Name:      "session_reloads_total",
			Help:      "Total session state reloads by trigger.",
		},
		[]string{"service", "trigger"},
	)
	initializationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gqa",
			Subsystem: "workflow",
			Name:      "initializations_total",
			Help:      "Total initialize calls by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queriesTotal,
		queryStrategyTotal,
		queryNoContextTotal,
		queryEvidenceChunks,
		queryDuration,
		sessionReloadsTotal,
		initializationsTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		queriesTotal:         queriesTotal,
		queryStrategyTotal:   queryStrategyTotal,
		queryNoContextTotal:  queryNoContextTotal,
		queryEvidenceChunks:  queryEvidenceChunks,
		queryDuration:        queryDuration,
		sessionReloadsTotal:  sessionReloadsTotal,
		initializationsTotal: initializationsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := NewResponseRecorder(w)

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.Status()),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *HTTPServerMetrics) RecordQuery(service, strategy string, evidenceCount int, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.queriesTotal.WithLabelValues(service, outcome).Inc()
	if err != nil {
		return
	}

	if strategy == "" {
		strategy = "unknown"
	}
	m.queryStrategyTotal.WithLabelValues(service, strategy).Inc()
	m.queryEvidenceChunks.WithLabelValues(service).Observe(float64(evidenceCount))
	m.queryDuration.WithLabelValues(service).Observe(duration.Seconds())
	if evidenceCount == 0 {
		m.queryNoContextTotal.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordSessionReload(service, trigger string) {
	if trigger == "" {
		trigger = "unknown"
	}
	m.sessionReloadsTotal.WithLabelValues(service, trigger).Inc()
}

func (m *HTTPServerMetrics) RecordInitialization(service string, initialized bool, err error) {
	outcome := "loaded"
	switch {
	case err != nil:
		outcome = "error"
	case !initialized:
		outcome = "no_session"
	}
	m.initializationsTotal.WithLabelValues(service, outcome).Inc()
}

