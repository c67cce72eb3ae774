package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
	"github.com/avezhov/gutenberg-qa/internal/infrastructure/resilience"
)

// Client calls a text-embeddings-inference style rerank endpoint: POST
// /rerank with a query and candidate texts, scores come back per index.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

// WithExecutor runs rerank calls under the shared retry and circuit
// breaker policy.
func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func New(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) execute(ctx context.Context, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, "rerank", fn, classifyRerankError)
}

// classifyRerankError leans on the temporary kind the request path already
// assigns: transport failures and 5xx retry, everything else does not.
func classifyRerankError(err error) resilience.Outcome {
	if err == nil {
		return resilience.Outcome{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Outcome{}
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return resilience.Outcome{Retry: true, CountAsFailure: true}
	}
	return resilience.Outcome{}
}

func (c *Client) Model() string { return c.model }

// Rerank reorders candidates by cross-encoder score against the question.
// The reranker's scores replace the retrieval scores. Candidates missing
// from the response keep score zero rather than being dropped.
func (c *Client) Rerank(ctx context.Context, question string, candidates []domain.ScoredChunk) ([]domain.ScoredChunk, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	texts := make([]string, len(candidates))
	for i, sc := range candidates {
		texts[i] = sc.Chunk.Text
	}

	ranked, err := c.rankTexts(ctx, question, texts)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScoredChunk, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, domain.ScoredChunk{Chunk: candidates[r.Index].Chunk, Score: r.Score})
	}
	return out, nil
}

type rankedText struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

func (c *Client) rankTexts(ctx context.Context, query string, texts []string) ([]rankedText, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(map[string]any{
		"query": query,
		"texts": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank body: %w", err)
	}

	var ranked []rankedText
	err = c.execute(ctx, func(ctx context.Context) error {
		var callErr error
		ranked, callErr = c.postRerank(ctx, body)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	scores := make(map[int]float64, len(ranked))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("rerank index out of range: %d", r.Index)
		}
		scores[r.Index] = r.Score
	}

	out := make([]rankedText, 0, len(texts))
	for i := range texts {
		out = append(out, rankedText{Index: i, Score: scores[i]})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out, nil
}

func (c *Client) postRerank(ctx context.Context, body []byte) ([]rankedText, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "rerank request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 {
			return nil, domain.WrapError(domain.ErrTemporary, "rerank", err)
		}
		return nil, fmt.Errorf("rerank: %w", err)
	}

	var ranked []rankedText
	if err := json.NewDecoder(resp.Body).Decode(&ranked); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return ranked, nil
}
