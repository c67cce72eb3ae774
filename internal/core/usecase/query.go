package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
	"github.com/avezhov/gutenberg-qa/internal/core/ports"
)

// QueryUseCase answers one question with the active retrieval strategy. No
// evidence means a fixed refusal without calling the language model; every
// answered question is traced to the tracking service best-effort.
type QueryUseCase struct {
	retriever *Retriever
	generator ports.AnswerGenerator
	tracker   ports.Tracker
	logger    *slog.Logger
}

func NewQueryUseCase(
	retriever *Retriever,
	generator ports.AnswerGenerator,
	tracker ports.Tracker,
	logger *slog.Logger,
) *QueryUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryUseCase{
		retriever: retriever,
		generator: generator,
		tracker:   tracker,
		logger:    logger,
	}
}

func (uc *QueryUseCase) Answer(ctx context.Context, strategy domain.RetrievalStrategy, question string) (*domain.QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer question", fmt.Errorf("empty question"))
	}

	evidence, err := uc.retriever.Retrieve(ctx, strategy, question)
	if err != nil {
		return nil, fmt.Errorf("retrieve evidence: %w", err)
	}

	result := &domain.QueryResult{
		Question: question,
		Answer:   domain.Answer{Sources: evidence},
		Strategy: strategy.ID,
	}

	if len(evidence) == 0 {
		result.Answer.Text = domain.InsufficientContextAnswer
		uc.trace(ctx, result)
		return result, nil
	}

	answerText, err := uc.generator.GenerateAnswer(ctx, question, evidence)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	result.Answer.Text = answerText
	result.Answer.CitedChunkIDs = citedChunkIDs(answerText, evidence)

	uc.trace(ctx, result)
	return result, nil
}

// citedChunkIDs resolves bracketed markers like [1] or [2][3] back to the
// evidence chunks they index. An answer with no markers cites all evidence.
func citedChunkIDs(answer string, evidence []domain.ScoredChunk) []string {
	seen := make(map[int]bool)
	var ids []string

	for i := 0; i < len(answer); i++ {
		if answer[i] != '[' {
			continue
		}
		end := strings.IndexByte(answer[i:], ']')
		if end < 0 {
			break
		}
		n, err := strconv.Atoi(answer[i+1 : i+end])
		if err == nil && n >= 1 && n <= len(evidence) && !seen[n] {
			seen[n] = true
			ids = append(ids, evidence[n-1].Chunk.ID)
		}
		i += end
	}

	if len(ids) == 0 {
		for _, sc := range evidence {
			ids = append(ids, sc.Chunk.ID)
		}
	}
	return ids
}

func (uc *QueryUseCase) trace(ctx context.Context, result *domain.QueryResult) {
	if uc.tracker == nil {
		return
	}

	sources := make([]map[string]any, 0, len(result.Answer.Sources))
	for _, sc := range result.Answer.Sources {
		sources = append(sources, map[string]any{
			"chunk_id": sc.Chunk.ID,
			"title":    sc.Chunk.Title,
			"score":    sc.Score,
		})
	}

	err := uc.tracker.LogTrace(ctx, "query",
		map[string]any{"question": result.Question},
		map[string]any{"answer": result.Answer.Text, "sources": sources},
		map[string]any{"strategy": result.Strategy, "cited_chunk_ids": result.Answer.CitedChunkIDs},
	)
	if err != nil {
		uc.logger.Warn("trace_log_failed", "error", err)
	}
}
