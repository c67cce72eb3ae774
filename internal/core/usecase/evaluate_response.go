package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
	"github.com/avezhov/gutenberg-qa/internal/core/ports"
)

// ResponseEvaluator answers every dataset question with the active strategy
// and has the judge model score each answer on the quality metrics. Scores
// aggregate to per-metric means and land in the tracking service as an
// experiment.
type ResponseEvaluator struct {
	retriever *Retriever
	generator ports.AnswerGenerator
	judge     ports.ResponseJudge
	tracker   ports.Tracker
	metrics   []string
	logger    *slog.Logger
}

func NewResponseEvaluator(
	retriever *Retriever,
	generator ports.AnswerGenerator,
	judge ports.ResponseJudge,
	tracker ports.Tracker,
	metrics []string,
	logger *slog.Logger,
) *ResponseEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseEvaluator{
		retriever: retriever,
		generator: generator,
		judge:     judge,
		tracker:   tracker,
		metrics:   metrics,
		logger:    logger,
	}
}

// EnsureDataset makes sure the named tracking dataset exists and holds the
// given items, returning its ID. Items are only pushed when provided;
// passing nil reuses whatever the dataset already contains.
func (e *ResponseEvaluator) EnsureDataset(ctx context.Context, name string, items []domain.DatasetItem) (string, error) {
	datasetID, err := e.tracker.EnsureDataset(ctx, name)
	if err != nil {
		return "", fmt.Errorf("ensure dataset: %w", err)
	}
	if len(items) > 0 {
		if err := e.tracker.AddDatasetItems(ctx, datasetID, items); err != nil {
			return "", fmt.Errorf("push dataset items: %w", err)
		}
	}
	return datasetID, nil
}

func (e *ResponseEvaluator) Evaluate(
	ctx context.Context,
	datasetName, datasetID string,
	strategy domain.RetrievalStrategy,
) (*domain.ResponseEvalResult, error) {
	items, err := e.tracker.ListDatasetItems(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("list dataset items: %w", err)
	}
	if len(items) == 0 {
		return nil, domain.WrapError(domain.ErrEvaluationFailed, "evaluate responses", fmt.Errorf("dataset %q is empty", datasetName))
	}

	sums := make(map[string]float64, len(e.metrics))
	counts := make(map[string]int, len(e.metrics))
	answered := 0

	for _, item := range items {
		answer, contexts, err := e.answer(ctx, strategy, item.Question)
		if err != nil {
			e.logger.Warn("response_eval_answer_failed", "question", item.Question, "error", err)
			continue
		}
		answered++

		for _, metric := range e.metrics {
			score, err := e.judge.Judge(ctx, metric, item.Question, answer, contexts, item.ReferenceAnswer)
			if err != nil {
				e.logger.Warn("judge_failed", "metric", metric, "question", item.Question, "error", err)
				continue
			}
			sums[metric] += score
			counts[metric]++
		}
	}

	if answered == 0 {
		return nil, domain.WrapError(domain.ErrEvaluationFailed, "evaluate responses", fmt.Errorf("no questions answered"))
	}

	result := &domain.ResponseEvalResult{
		Dataset:   datasetName,
		Questions: answered,
		Metrics:   make(map[string]float64, len(e.metrics)),
	}
	for _, metric := range e.metrics {
		if counts[metric] > 0 {
			result.Metrics[metric] = sums[metric] / float64(counts[metric])
		}
	}

	experiment := fmt.Sprintf("response-eval-%s-%s", strategy.ID, time.Now().UTC().Format("20060102-150405"))
	if err := e.tracker.LogExperiment(ctx, datasetName, experiment, result.Metrics); err != nil {
		e.logger.Warn("experiment_log_failed", "experiment", experiment, "error", err)
	}
	return result, nil
}

func (e *ResponseEvaluator) answer(ctx context.Context, strategy domain.RetrievalStrategy, question string) (string, []string, error) {
	evidence, err := e.retriever.Retrieve(ctx, strategy, question)
	if err != nil {
		return "", nil, err
	}
	if len(evidence) == 0 {
		return domain.InsufficientContextAnswer, nil, nil
	}

	answer, err := e.generator.GenerateAnswer(ctx, question, evidence)
	if err != nil {
		return "", nil, err
	}
	contexts := make([]string, len(evidence))
	for i, sc := range evidence {
		contexts[i] = sc.Chunk.Text
	}
	return answer, contexts, nil
}
