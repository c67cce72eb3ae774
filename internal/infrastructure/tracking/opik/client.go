package opik

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
	"github.com/avezhov/gutenberg-qa/internal/infrastructure/resilience"
)

// Client talks to an Opik server over its private REST API: traces for
// per-query observability, datasets for response evaluation, experiments
// for aggregated judge scores. Tracking is best-effort infrastructure;
// callers decide whether its errors abort the operation.
type Client struct {
	baseURL    string
	project    string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

// WithExecutor runs tracking calls under the shared retry and circuit
// breaker policy.
func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func New(baseURL, project string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		project:    project,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyTrackerError)
}

// classifyTrackerError retries transport failures, throttling and server
// errors. Conflicts and other 4xx pass through for the caller to interpret.
func classifyTrackerError(err error) resilience.Outcome {
	if err == nil {
		return resilience.Outcome{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Outcome{}
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= http.StatusInternalServerError || statusErr.StatusCode == http.StatusTooManyRequests {
			return resilience.Outcome{Retry: true, CountAsFailure: true}
		}
		return resilience.Outcome{}
	}
	return resilience.Outcome{Retry: true, CountAsFailure: true}
}

func (c *Client) LogTrace(ctx context.Context, name string, input, output any, metadata map[string]any) error {
	now := time.Now().UTC()
	body := map[string]any{
		"id":           uuid.NewString(),
		"project_name": c.project,
		"name":         name,
		"input":        input,
		"output":       output,
		"metadata":     metadata,
		"start_time":   now.Format(time.RFC3339Nano),
		"end_time":     now.Format(time.RFC3339Nano),
	}
	if err := c.post(ctx, "log_trace", "/v1/private/traces", body, nil); err != nil {
		return fmt.Errorf("log trace: %w", err)
	}
	return nil
}

// EnsureDataset creates the dataset if missing and returns its ID. Creation
// races are fine: a conflict just means another writer got there first, so
// the lookup that follows resolves the ID either way.
func (c *Client) EnsureDataset(ctx context.Context, name string) (string, error) {
	err := c.post(ctx, "create_dataset", "/v1/private/datasets", map[string]any{"name": name}, nil)
	if err != nil && !isConflict(err) {
		return "", fmt.Errorf("create dataset: %w", err)
	}

	var resolved struct {
		ID string `json:"id"`
	}
	err = c.post(ctx, "resolve_dataset", "/v1/private/datasets/retrieve", map[string]any{"dataset_name": name}, &resolved)
	if err != nil {
		return "", fmt.Errorf("resolve dataset: %w", err)
	}
	if resolved.ID == "" {
		return "", fmt.Errorf("resolve dataset: empty id for %q", name)
	}
	return resolved.ID, nil
}

func (c *Client) AddDatasetItems(ctx context.Context, datasetID string, items []domain.DatasetItem) error {
	if len(items) == 0 {
		return nil
	}

	type item struct {
		Source string         `json:"source"`
		Data   map[string]any `json:"data"`
	}
	payload := make([]item, 0, len(items))
	for _, it := range items {
		payload = append(payload, item{
			Source: "sdk",
			Data: map[string]any{
				"question":         it.Question,
				"reference_answer": it.ReferenceAnswer,
				"contexts":         it.Contexts,
			},
		})
	}

	body := map[string]any{
		"dataset_id": datasetID,
		"items":      payload,
	}
	if err := c.put(ctx, "add_dataset_items", "/v1/private/datasets/items", body); err != nil {
		return fmt.Errorf("add dataset items: %w", err)
	}
	return nil
}

func (c *Client) ListDatasetItems(ctx context.Context, datasetID string) ([]domain.DatasetItem, error) {
	var page struct {
		Content []struct {
			Data struct {
				Question        string   `json:"question"`
				ReferenceAnswer string   `json:"reference_answer"`
				Contexts        []string `json:"contexts"`
			} `json:"data"`
		} `json:"content"`
	}
	path := fmt.Sprintf("/v1/private/datasets/%s/items?page=1&size=1000", datasetID)
	if err := c.get(ctx, "list_dataset_items", path, &page); err != nil {
		return nil, fmt.Errorf("list dataset items: %w", err)
	}

	items := make([]domain.DatasetItem, 0, len(page.Content))
	for _, entry := range page.Content {
		items = append(items, domain.DatasetItem{
			Question:        entry.Data.Question,
			ReferenceAnswer: entry.Data.ReferenceAnswer,
			Contexts:        entry.Data.Contexts,
		})
	}
	return items, nil
}

func (c *Client) LogExperiment(ctx context.Context, datasetName, experiment string, metrics map[string]float64) error {
	body := map[string]any{
		"dataset_name": datasetName,
		"name":         experiment,
		"metadata": map[string]any{
			"project": c.project,
			"metrics": metrics,
		},
	}
	if err := c.post(ctx, "log_experiment", "/v1/private/experiments", body, nil); err != nil {
		return fmt.Errorf("log experiment: %w", err)
	}
	return nil
}

type statusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *statusError) Error() string {
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("opik status: %s", e.Status)
	}
	return fmt.Sprintf("opik status: %s: %s", e.Status, strings.TrimSpace(e.Body))
}

func isConflict(err error) bool {
	var statusErr *statusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict
}

func (c *Client) post(ctx context.Context, operation, path string, body any, out any) error {
	return c.execute(ctx, operation, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, path, body, out)
	})
}

func (c *Client) put(ctx context.Context, operation, path string, body any) error {
	return c.execute(ctx, operation, func(ctx context.Context) error {
		return c.do(ctx, http.MethodPut, path, body, nil)
	})
}

func (c *Client) get(ctx context.Context, operation, path string, out any) error {
	return c.execute(ctx, operation, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	})
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(msg)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
