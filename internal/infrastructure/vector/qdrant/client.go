package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
	"github.com/avezhov/gutenberg-qa/internal/infrastructure/resilience"
)

const (
	denseVectorName   = "dense"
	lexicalVectorName = "lexical"
)

// Client talks to one Qdrant collection holding both a dense vector and a
// sparse lexical vector per chunk. Dense similarity and sparse scoring both
// run server-side; this client only prepares the request payloads.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu    sync.Mutex
	ensured     bool
	ensuredSize int
}

type Option func(*Client)

// WithExecutor runs every store call under the shared retry and circuit
// breaker policy.
func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
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
	return c.executor.Execute(ctx, operation, fn, classifyStoreError)
}

// classifyStoreError retries transport failures and server-side errors;
// 4xx means the request is malformed and will not improve on retry.
func classifyStoreError(err error) resilience.Outcome {
	if err == nil {
		return resilience.Outcome{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Outcome{}
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		if statusErr.code >= http.StatusInternalServerError || statusErr.code == http.StatusTooManyRequests {
			return resilience.Outcome{Retry: true, CountAsFailure: true}
		}
		return resilience.Outcome{}
	}
	return resilience.Outcome{Retry: true, CountAsFailure: true}
}

func (c *Client) UpsertChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}
	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		points = append(points, point{
			ID: chunk.ID,
			Vector: map[string]any{
				denseVectorName:   vectors[i],
				lexicalVectorName: encodeSparseChunk(chunk),
			},
			Payload: map[string]any{
				"chunk_id":     chunk.ID,
				"text":         chunk.Text,
				"title":        chunk.Title,
				"source":       string(chunk.Source),
				"gutenberg_id": chunk.GutenbergID,
				"position":     chunk.Position,
			},
		})
	}

	body, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	err = c.execute(ctx, "qdrant_upsert", func(ctx context.Context) error {
		return c.do(ctx, http.MethodPut, url, body, nil)
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (c *Client) SearchDense(ctx context.Context, queryVector []float32, k int) ([]domain.ScoredChunk, error) {
	reqBody := map[string]any{
		"query":        queryVector,
		"using":        denseVectorName,
		"limit":        k,
		"with_payload": true,
	}
	return c.query(ctx, reqBody)
}

func (c *Client) SearchLexical(ctx context.Context, queryText string, k int) ([]domain.ScoredChunk, error) {
	sparse := encodeSparseQuery(queryText)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"query":        sparse,
		"using":        lexicalVectorName,
		"limit":        k,
		"with_payload": true,
	}
	return c.query(ctx, reqBody)
}

func (c *Client) query(ctx context.Context, reqBody map[string]any) ([]domain.ScoredChunk, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal query body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)

	var resp struct {
		Result struct {
			Points []struct {
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	err = c.execute(ctx, "qdrant_query", func(ctx context.Context) error {
		return c.do(ctx, http.MethodPost, url, body, &resp)
	})
	if err != nil {
		// Distinguish "store unreachable" from "no matches": any transport
		// or server failure maps to the retrieval-unavailable kind.
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "qdrant query", err)
	}

	out := make([]domain.ScoredChunk, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		out = append(out, domain.ScoredChunk{
			Score: p.Score,
			Chunk: domain.Chunk{
				ID:          payloadString(p.Payload, "chunk_id"),
				Text:        payloadString(p.Payload, "text"),
				Title:       payloadString(p.Payload, "title"),
				Source:      domain.SourceKind(payloadString(p.Payload, "source")),
				GutenbergID: payloadInt(p.Payload, "gutenberg_id"),
				Position:    payloadInt(p.Payload, "position"),
			},
		})
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensured && c.ensuredSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			lexicalVectorName: map[string]any{},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err = c.execute(ctx, "qdrant_ensure_collection", func(ctx context.Context) error {
		err := c.do(ctx, http.MethodPut, url, body, nil)
		// 409 means the collection already exists.
		var statusErr *statusError
		if errors.As(err, &statusErr) && statusErr.code == http.StatusConflict {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}

	c.ensureMu.Lock()
	c.ensured = true
	c.ensuredSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{code: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type statusError struct {
	code   int
	status string
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("status %s", e.status)
	}
	return fmt.Sprintf("status %s: %s", e.status, e.body)
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func payloadInt(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
