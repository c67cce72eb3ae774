package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
	"github.com/avezhov/gutenberg-qa/internal/infrastructure/resilience"
)

// Client wraps the OpenAI API for every language-model capability the
// workflow needs: embeddings, answer synthesis, synthetic QA generation
// and response judging. All calls run under the shared retry executor.
type Client struct {
	api        *openai.Client
	genModel   string
	evalModel  string
	embedModel string
	executor   *resilience.Executor
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		cfg := openai.DefaultConfig("")
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
		c.api = openai.NewClientWithConfig(cfg)
	}
}

func New(apiKey, genModel, evalModel, embedModel string, executor *resilience.Executor, opts ...Option) *Client {
	c := &Client{
		api:        openai.NewClient(apiKey),
		genModel:   genModel,
		evalModel:  evalModel,
		embedModel: embedModel,
		executor:   executor,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Model() string { return e.client.embedModel }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp openai.EmbeddingResponse
	err := e.client.execute(ctx, "embed", func(ctx context.Context) error {
		var callErr error
		resp, callErr = e.client.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.client.embedModel),
			Input: texts,
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: asked %d, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index out of range: %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, evidence []domain.ScoredChunk) (string, error) {
	text, err := g.client.chat(ctx, "generate_answer", g.client.genModel, answerSystemPrompt, buildAnswerPrompt(question, evidence), false)
	if err != nil {
		return "", domain.WrapError(domain.ErrSynthesisFailed, "generate answer", err)
	}
	return text, nil
}

type QAGenerator struct {
	client *Client
}

func NewQAGenerator(client *Client) *QAGenerator {
	return &QAGenerator{client: client}
}

func (g *QAGenerator) GenerateQA(ctx context.Context, chunkText string, n int) ([]domain.QAPair, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := g.client.chat(ctx, "generate_qa", g.client.evalModel, qaSystemPrompt, buildQAPrompt(chunkText, n), true)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Pairs []domain.QAPair `json:"pairs"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse qa json: %w", err)
	}

	pairs := make([]domain.QAPair, 0, len(parsed.Pairs))
	for _, p := range parsed.Pairs {
		p.Question = strings.TrimSpace(p.Question)
		p.ReferenceAnswer = strings.TrimSpace(p.ReferenceAnswer)
		if p.Question == "" || p.ReferenceAnswer == "" {
			continue
		}
		pairs = append(pairs, p)
	}
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	return pairs, nil
}

type Judge struct {
	client *Client
}

func NewJudge(client *Client) *Judge {
	return &Judge{client: client}
}

func (j *Judge) Judge(ctx context.Context, metric, question, answer string, contexts []string, reference string) (float64, error) {
	prompt, err := buildJudgePrompt(metric, question, answer, contexts, reference)
	if err != nil {
		return 0, err
	}

	raw, err := j.client.chat(ctx, "judge_"+metric, j.client.evalModel, judgeSystemPrompt, prompt, true)
	if err != nil {
		return 0, err
	}

	var parsed struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return 0, fmt.Errorf("parse judge json: %w", err)
	}
	if parsed.Score < 0 {
		parsed.Score = 0
	}
	if parsed.Score > 1 {
		parsed.Score = 1
	}
	return parsed.Score, nil
}

func (c *Client) chat(ctx context.Context, operation, model, system, user string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var resp openai.ChatCompletionResponse
	err := c.execute(ctx, operation, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(ctx, req)
		return callErr
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion result")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyAPIError)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
