package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/avezhov/gutenberg-qa/internal/core/ports"
	"github.com/avezhov/gutenberg-qa/internal/observability/metrics"
)

// RouterConfig carries the HTTP-surface knobs: traffic control limits and
// the service label for metrics.
type RouterConfig struct {
	Service          string
	RateLimitRPS     int
	RateLimitBurst   int
	MaxConcurrent    int
	BackpressureWait time.Duration
}

// ConfigReport is the non-secret configuration snapshot served at
// /v1/config so front ends can display what they are talking to.
type ConfigReport struct {
	Collection       string `json:"collection"`
	EmbedModel       string `json:"embed_model"`
	LLMModel         string `json:"llm_model"`
	RerankModel      string `json:"rerank_model"`
	TopK             int    `json:"top_k"`
	HybridCandidates int    `json:"hybrid_candidates"`
}

type Router struct {
	workflow ports.Workflow
	metrics  *metrics.HTTPServerMetrics
	cfg      RouterConfig
	report   ConfigReport
}

func NewRouter(workflow ports.Workflow, m *metrics.HTTPServerMetrics, cfg RouterConfig, report ConfigReport) *Router {
	if cfg.Service == "" {
		cfg.Service = "api"
	}
	if cfg.BackpressureWait <= 0 {
		cfg.BackpressureWait = 100 * time.Millisecond
	}
	return &Router{workflow: workflow, metrics: m, cfg: cfg, report: report}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/config", rt.config)
	mux.HandleFunc("/v1/status", rt.status)
	mux.HandleFunc("/v1/initialize", rt.initialize)
	mux.HandleFunc("/v1/ingest", rt.ingest)
	mux.HandleFunc("/v1/evaluate/retrieval", rt.evaluateRetrieval)
	mux.HandleFunc("/v1/evaluate/response", rt.evaluateResponse)
	mux.HandleFunc("/v1/query", rt.query)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.cfg.MaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.MaxConcurrent, rt.cfg.BackpressureWait)
	}
	if rt.cfg.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.cfg.Service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	status := rt.workflow.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"state":       status.State,
		"initialized": status.Initialized,
	})
}

func (rt *Router) config(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, rt.report)
}

func (rt *Router) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, rt.workflow.Status())
}

func (rt *Router) initialize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	loaded, err := rt.workflow.Initialize(r.Context())
	if rt.metrics != nil {
		rt.metrics.RecordInitialization(rt.cfg.Service, loaded, err)
	}
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loaded": loaded,
		"status": rt.workflow.Status(),
	})
}

func (rt *Router) ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ports.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	summary, err := rt.workflow.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) evaluateRetrieval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ports.RetrievalEvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := rt.workflow.EvaluateRetrieval(r.Context(), req)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) evaluateResponse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ports.ResponseEvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := rt.workflow.EvaluateResponse(r.Context(), req)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	start := time.Now()
	result, err := rt.workflow.Query(r.Context(), req.Question)
	if rt.metrics != nil {
		evidence := 0
		strategy := ""
		if result != nil {
			evidence = len(result.Answer.Sources)
			strategy = result.Strategy
		}
		rt.metrics.RecordQuery(rt.cfg.Service, strategy, evidence, time.Since(start), err)
	}
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
