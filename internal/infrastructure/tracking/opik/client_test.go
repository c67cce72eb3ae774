package opik

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
	"github.com/avezhov/gutenberg-qa/internal/infrastructure/resilience"
)

func TestEnsureDatasetCreatesThenResolvesID(t *testing.T) {
	var created bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/private/datasets":
			created = true
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/private/datasets/retrieve":
			var req struct {
				DatasetName string `json:"dataset_name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DatasetName != "dickens-qa" {
				t.Errorf("unexpected retrieve request: %+v err=%v", req, err)
			}
			_, _ = w.Write([]byte(`{"id":"ds-123","name":"dickens-qa"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "gutenberg-qa")
	id, err := client.EnsureDataset(context.Background(), "dickens-qa")
	if err != nil {
		t.Fatalf("EnsureDataset() error = %v", err)
	}
	if !created {
		t.Fatalf("expected dataset create call")
	}
	if id != "ds-123" {
		t.Fatalf("unexpected dataset id: %q", id)
	}
}

func TestEnsureDatasetTreatsConflictAsExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/private/datasets":
			http.Error(w, "already exists", http.StatusConflict)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/private/datasets/retrieve":
			_, _ = w.Write([]byte(`{"id":"ds-456"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "gutenberg-qa")
	id, err := client.EnsureDataset(context.Background(), "dickens-qa")
	if err != nil {
		t.Fatalf("EnsureDataset() error = %v", err)
	}
	if id != "ds-456" {
		t.Fatalf("unexpected dataset id: %q", id)
	}
}

func TestAddAndListDatasetItemsRoundTrip(t *testing.T) {
	var stored []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/v1/private/datasets/items":
			var req struct {
				DatasetID string `json:"dataset_id"`
				Items     []struct {
					Data map[string]any `json:"data"`
				} `json:"items"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode items: %v", err)
			}
			if req.DatasetID != "ds-123" {
				t.Errorf("unexpected dataset id %q", req.DatasetID)
			}
			for _, it := range req.Items {
				stored = append(stored, it.Data)
			}
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/private/datasets/ds-123/items":
			resp := map[string]any{"content": []map[string]any{}}
			for _, d := range stored {
				resp["content"] = append(resp["content"].([]map[string]any), map[string]any{"data": d})
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "gutenberg-qa")
	items := []domain.DatasetItem{
		{Question: "Who adopts Oliver?", ReferenceAnswer: "Mr. Brownlow.", Contexts: []string{"ctx a"}},
		{Question: "Who is Nancy?", ReferenceAnswer: "A member of Fagin's gang."},
	}
	if err := client.AddDatasetItems(context.Background(), "ds-123", items); err != nil {
		t.Fatalf("AddDatasetItems() error = %v", err)
	}

	got, err := client.ListDatasetItems(context.Background(), "ds-123")
	if err != nil {
		t.Fatalf("ListDatasetItems() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].Question != "Who adopts Oliver?" || got[0].Contexts[0] != "ctx a" {
		t.Fatalf("unexpected first item: %+v", got[0])
	}
}

func TestAddDatasetItemsEmptySliceSkipsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	defer server.Close()

	client := New(server.URL, "gutenberg-qa")
	if err := client.AddDatasetItems(context.Background(), "ds-123", nil); err != nil {
		t.Fatalf("AddDatasetItems() error = %v", err)
	}
}

func TestLogTraceSendsProjectAndPayload(t *testing.T) {
	var trace map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/private/traces" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&trace); err != nil {
			t.Errorf("decode trace: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := New(server.URL, "gutenberg-qa")
	err := client.LogTrace(context.Background(), "query",
		map[string]any{"question": "Who is Pip?"},
		map[string]any{"answer": "An orphan."},
		map[string]any{"strategy": "hybrid_rerank_k5"},
	)
	if err != nil {
		t.Fatalf("LogTrace() error = %v", err)
	}
	if trace["project_name"] != "gutenberg-qa" || trace["name"] != "query" {
		t.Fatalf("unexpected trace envelope: %+v", trace)
	}
	if trace["id"] == "" || trace["start_time"] == "" {
		t.Fatalf("expected id and timestamps, got %+v", trace)
	}
}

func TestLogExperimentIncludesMetrics(t *testing.T) {
	var exp map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/private/experiments" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&exp); err != nil {
			t.Errorf("decode experiment: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := New(server.URL, "gutenberg-qa")
	err := client.LogExperiment(context.Background(), "dickens-qa", "response-eval-1", map[string]float64{
		"faithfulness": 0.87,
	})
	if err != nil {
		t.Fatalf("LogExperiment() error = %v", err)
	}
	if exp["dataset_name"] != "dickens-qa" || exp["name"] != "response-eval-1" {
		t.Fatalf("unexpected experiment envelope: %+v", exp)
	}
	meta, _ := exp["metadata"].(map[string]any)
	if meta == nil {
		t.Fatalf("expected metadata, got %+v", exp)
	}
	metrics, _ := meta["metrics"].(map[string]any)
	if metrics["faithfulness"] != 0.87 {
		t.Fatalf("expected faithfulness metric, got %+v", metrics)
	}
}

func TestLogTraceRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Policy{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  1.0,
	})
	client := New(server.URL, "gutenberg-qa", WithExecutor(executor))
	if err := client.LogTrace(context.Background(), "query", nil, nil, nil); err != nil {
		t.Fatalf("LogTrace() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestEnsureDatasetDoesNotRetryConflict(t *testing.T) {
	var creates atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/private/datasets":
			creates.Add(1)
			http.Error(w, "already exists", http.StatusConflict)
		case "/v1/private/datasets/retrieve":
			_, _ = w.Write([]byte(`{"id":"ds-7"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	executor := resilience.NewExecutor(resilience.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  1.0,
	})
	client := New(server.URL, "gutenberg-qa", WithExecutor(executor))
	id, err := client.EnsureDataset(context.Background(), "dickens-qa")
	if err != nil {
		t.Fatalf("EnsureDataset() error = %v", err)
	}
	if id != "ds-7" {
		t.Fatalf("unexpected id %q", id)
	}
	if creates.Load() != 1 {
		t.Fatalf("conflict must not retry, got %d create attempts", creates.Load())
	}
}
