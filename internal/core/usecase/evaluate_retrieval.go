package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
	"github.com/avezhov/gutenberg-qa/internal/core/ports"
)

// RetrievalEvaluator scores every candidate strategy on a shared QA dataset
// and picks the winner. Strategies that error on any question are excluded
// from selection and reported as failed; scoring them zero would conflate
// outages with poor retrieval quality.
type RetrievalEvaluator struct {
	retriever *Retriever
	qaGen     ports.QAGenerator
	primary   domain.MetricName
	secondary domain.MetricName
	logger    *slog.Logger
}

func NewRetrievalEvaluator(
	retriever *Retriever,
	qaGen ports.QAGenerator,
	primary, secondary domain.MetricName,
	logger *slog.Logger,
) *RetrievalEvaluator {
	if primary == "" {
		primary = domain.MetricHitRate
	}
	if secondary == "" {
		secondary = domain.MetricMRR
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalEvaluator{
		retriever: retriever,
		qaGen:     qaGen,
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

// Dataset is the persisted shape of a synthetic QA dataset: retrieval
// ground truth plus the reference answers response evaluation reuses.
type Dataset struct {
	Examples []domain.EvalExample `json:"examples"`
	Items    []domain.DatasetItem `json:"items"`
}

// GenerateDataset builds synthetic QA examples from ingested chunks: every
// sampled chunk yields questions whose only relevant chunk is the one they
// came from.
func (e *RetrievalEvaluator) GenerateDataset(ctx context.Context, chunks []domain.Chunk, questionsPerChunk, maxChunks int) (*Dataset, error) {
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrEvaluationFailed, "generate dataset", fmt.Errorf("no chunks to generate from"))
	}
	if questionsPerChunk <= 0 {
		questionsPerChunk = 1
	}
	if maxChunks <= 0 || maxChunks > len(chunks) {
		maxChunks = len(chunks)
	}

	// Sample evenly across the corpus so one long book does not dominate.
	stride := len(chunks) / maxChunks
	if stride < 1 {
		stride = 1
	}

	dataset := &Dataset{}
	for i := 0; i < len(chunks) && len(dataset.Examples) < maxChunks*questionsPerChunk; i += stride {
		chunk := chunks[i]
		pairs, err := e.qaGen.GenerateQA(ctx, chunk.Text, questionsPerChunk)
		if err != nil {
			e.logger.Warn("qa_generation_failed", "chunk_id", chunk.ID, "error", err)
			continue
		}
		for _, pair := range pairs {
			dataset.Examples = append(dataset.Examples, domain.EvalExample{
				Question:         pair.Question,
				RelevantChunkIDs: []string{chunk.ID},
			})
			dataset.Items = append(dataset.Items, domain.DatasetItem{
				Question:        pair.Question,
				ReferenceAnswer: pair.ReferenceAnswer,
				Contexts:        []string{chunk.Text},
			})
		}
	}

	if len(dataset.Examples) == 0 {
		return nil, domain.WrapError(domain.ErrEvaluationFailed, "generate dataset", fmt.Errorf("no questions generated"))
	}
	return dataset, nil
}

func LoadDataset(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var dataset Dataset
	if err := json.Unmarshal(raw, &dataset); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if len(dataset.Examples) == 0 {
		return nil, fmt.Errorf("dataset %s has no examples", path)
	}
	return &dataset, nil
}

func SaveDataset(path string, dataset *Dataset) error {
	raw, err := json.MarshalIndent(dataset, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	return nil
}

// Evaluate scores every strategy over the dataset and selects the best one.
// Selection compares the primary metric, then the secondary, then falls back
// to declaration order, so identical inputs always produce the same winner.
func (e *RetrievalEvaluator) Evaluate(
	ctx context.Context,
	examples []domain.EvalExample,
	strategies []domain.RetrievalStrategy,
) (*domain.RetrievalEvalResult, error) {
	if len(examples) == 0 {
		return nil, domain.WrapError(domain.ErrEvaluationFailed, "evaluate retrieval", fmt.Errorf("empty dataset"))
	}
	if len(strategies) == 0 {
		return nil, domain.WrapError(domain.ErrEvaluationFailed, "evaluate retrieval", fmt.Errorf("no strategies"))
	}

	result := &domain.RetrievalEvalResult{}
	for _, strategy := range strategies {
		report := e.evaluateStrategy(ctx, strategy, examples)
		result.Reports = append(result.Reports, report)
	}

	best := -1
	for i, report := range result.Reports {
		if report.Failed {
			continue
		}
		if best < 0 || e.better(report.Metrics, result.Reports[best].Metrics) {
			best = i
		}
	}
	if best < 0 {
		return nil, domain.WrapError(domain.ErrEvaluationFailed, "evaluate retrieval", fmt.Errorf("all %d strategies failed", len(strategies)))
	}
	result.BestStrategyID = result.Reports[best].StrategyID
	return result, nil
}

func (e *RetrievalEvaluator) evaluateStrategy(
	ctx context.Context,
	strategy domain.RetrievalStrategy,
	examples []domain.EvalExample,
) domain.StrategyReport {
	report := domain.StrategyReport{StrategyID: strategy.ID}
	records := make([]map[domain.MetricName]float64, 0, len(examples))

	for _, example := range examples {
		retrieved, err := e.retriever.Retrieve(ctx, strategy, example.Question)
		if err != nil {
			report.Failed = true
			report.Error = err.Error()
			report.Metrics = nil
			e.logger.Warn("strategy_evaluation_failed", "strategy", strategy.ID, "question", example.Question, "error", err)
			return report
		}
		ids := make([]string, len(retrieved))
		for i, sc := range retrieved {
			ids[i] = sc.Chunk.ID
		}
		records = append(records, scoreRetrieval(ids, example.RelevantChunkIDs))
	}

	report.Questions = len(records)
	report.Metrics = meanMetrics(records)
	e.logger.Info("strategy_evaluated",
		"strategy", strategy.ID,
		"questions", report.Questions,
		string(e.primary), report.Metrics[e.primary],
		string(e.secondary), report.Metrics[e.secondary],
	)
	return report
}

// better reports whether a beats b: higher primary metric wins, the
// secondary breaks ties, and a strict tie keeps the earlier strategy.
func (e *RetrievalEvaluator) better(a, b map[domain.MetricName]float64) bool {
	if a[e.primary] != b[e.primary] {
		return a[e.primary] > b[e.primary]
	}
	return a[e.secondary] > b[e.secondary]
}
