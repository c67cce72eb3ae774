package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
)

func evalStrategies() []domain.RetrievalStrategy {
	return []domain.RetrievalStrategy{
		{ID: "dense_k5", Kind: domain.StrategyDense, TopK: 5},
		{ID: "lexical_k5", Kind: domain.StrategyLexical, TopK: 5},
	}
}

// benchmarkFixture builds ten questions where dense answers denseHits of
// them correctly and lexical answers lexicalHits.
func benchmarkFixture(denseHits, lexicalHits int) (*fakeVectorStore, []domain.EvalExample) {
	qc := &queryContext{}
	store := &fakeVectorStore{
		qc:      qc,
		dense:   make(map[string][]domain.ScoredChunk),
		lexical: make(map[string][]domain.ScoredChunk),
	}
	var examples []domain.EvalExample
	for i := 0; i < 10; i++ {
		question := fmt.Sprintf("question-%d", i)
		relevant := fmt.Sprintf("rel-%d", i)
		examples = append(examples, domain.EvalExample{Question: question, RelevantChunkIDs: []string{relevant}})

		if i < denseHits {
			store.dense[question] = []domain.ScoredChunk{chunkResult(relevant, 0.9)}
		} else {
			store.dense[question] = []domain.ScoredChunk{chunkResult("noise", 0.9)}
		}
		if i < lexicalHits {
			store.lexical[question] = []domain.ScoredChunk{chunkResult(relevant, 3.0)}
		} else {
			store.lexical[question] = []domain.ScoredChunk{chunkResult("noise", 3.0)}
		}
	}
	return store, examples
}

func newEvaluator(store *fakeVectorStore) *RetrievalEvaluator {
	retriever := NewRetriever(&fakeEmbedder{qc: store.qc}, store, &fakeReranker{})
	return NewRetrievalEvaluator(retriever, &fakeQAGenerator{}, domain.MetricHitRate, domain.MetricMRR, nil)
}

func TestEvaluateSelectsStrategyWithHigherHitRate(t *testing.T) {
	store, examples := benchmarkFixture(8, 5)
	e := newEvaluator(store)

	result, err := e.Evaluate(context.Background(), examples, evalStrategies())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.BestStrategyID != "dense_k5" {
		t.Fatalf("expected dense_k5 to win, got %s", result.BestStrategyID)
	}
	if len(result.Reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(result.Reports))
	}
	if got := result.Reports[0].Metrics[domain.MetricHitRate]; !almostEqual(got, 0.8) {
		t.Fatalf("dense hit_rate = %f, want 0.8", got)
	}
	if got := result.Reports[1].Metrics[domain.MetricHitRate]; !almostEqual(got, 0.5) {
		t.Fatalf("lexical hit_rate = %f, want 0.5", got)
	}
	if result.Reports[0].Questions != 10 {
		t.Fatalf("expected 10 questions scored, got %d", result.Reports[0].Questions)
	}
}

func TestEvaluatePerfectStrategyBeatsZeroAtK3(t *testing.T) {
	store, examples := benchmarkFixture(10, 0)
	e := newEvaluator(store)
	strategies := []domain.RetrievalStrategy{
		{ID: "dense_k3", Kind: domain.StrategyDense, TopK: 3},
		{ID: "lexical_k3", Kind: domain.StrategyLexical, TopK: 3},
	}

	result, err := e.Evaluate(context.Background(), examples, strategies)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.BestStrategyID != "dense_k3" {
		t.Fatalf("expected dense_k3 to win, got %s", result.BestStrategyID)
	}
	if got := result.Reports[0].Metrics[domain.MetricHitRate]; got != 1.0 {
		t.Fatalf("dense hit_rate = %f, want 1.0", got)
	}
	if got := result.Reports[1].Metrics[domain.MetricHitRate]; got != 0.0 {
		t.Fatalf("lexical hit_rate = %f, want 0.0", got)
	}
}

func TestEvaluateIsDeterministicAcrossRuns(t *testing.T) {
	store, examples := benchmarkFixture(8, 5)
	e := newEvaluator(store)

	first, err := e.Evaluate(context.Background(), examples, evalStrategies())
	if err != nil {
		t.Fatalf("first Evaluate() error = %v", err)
	}
	second, err := e.Evaluate(context.Background(), examples, evalStrategies())
	if err != nil {
		t.Fatalf("second Evaluate() error = %v", err)
	}
	if first.BestStrategyID != second.BestStrategyID {
		t.Fatalf("selection not deterministic: %s vs %s", first.BestStrategyID, second.BestStrategyID)
	}
	for i := range first.Reports {
		for _, name := range domain.MetricNames {
			if first.Reports[i].Metrics[name] != second.Reports[i].Metrics[name] {
				t.Fatalf("metric %s differs across runs", name)
			}
		}
	}
}

func TestEvaluateTieBrokenByDeclarationOrder(t *testing.T) {
	// Identical results for both strategies: the earlier declared wins.
	store, examples := benchmarkFixture(6, 6)
	e := newEvaluator(store)

	result, err := e.Evaluate(context.Background(), examples, evalStrategies())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.BestStrategyID != "dense_k5" {
		t.Fatalf("expected declaration-order tie-break, got %s", result.BestStrategyID)
	}
}

func TestEvaluateExcludesFailedStrategyFromSelection(t *testing.T) {
	store, examples := benchmarkFixture(8, 5)
	store.denseErr = errors.New("index offline")
	e := newEvaluator(store)

	result, err := e.Evaluate(context.Background(), examples, evalStrategies())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.BestStrategyID != "lexical_k5" {
		t.Fatalf("expected surviving strategy to win, got %s", result.BestStrategyID)
	}
	if !result.Reports[0].Failed || result.Reports[0].Error == "" {
		t.Fatalf("expected dense report marked failed: %+v", result.Reports[0])
	}
	if result.Reports[0].Metrics != nil {
		t.Fatalf("failed strategy must not carry scores: %+v", result.Reports[0])
	}
}

func TestEvaluateAllStrategiesFailed(t *testing.T) {
	store, examples := benchmarkFixture(8, 5)
	store.denseErr = errors.New("index offline")
	store.lexicalErr = errors.New("index offline")
	e := newEvaluator(store)

	_, err := e.Evaluate(context.Background(), examples, evalStrategies())
	if !domain.IsKind(err, domain.ErrEvaluationFailed) {
		t.Fatalf("expected evaluation-failed kind, got %v", err)
	}
}

func TestEvaluateEmptyDatasetFails(t *testing.T) {
	store, _ := benchmarkFixture(1, 1)
	e := newEvaluator(store)

	_, err := e.Evaluate(context.Background(), nil, evalStrategies())
	if !domain.IsKind(err, domain.ErrEvaluationFailed) {
		t.Fatalf("expected evaluation-failed kind, got %v", err)
	}
}

func TestGenerateDatasetLinksQuestionsToSourceChunks(t *testing.T) {
	store, _ := benchmarkFixture(1, 1)
	e := newEvaluator(store)

	chunks := []domain.Chunk{
		{ID: "c1", Text: "alpha passage"},
		{ID: "c2", Text: "beta passage"},
	}
	dataset, err := e.GenerateDataset(context.Background(), chunks, 2, 0)
	if err != nil {
		t.Fatalf("GenerateDataset() error = %v", err)
	}
	if len(dataset.Examples) != 4 {
		t.Fatalf("expected 4 examples, got %d", len(dataset.Examples))
	}
	if dataset.Examples[0].RelevantChunkIDs[0] != "c1" {
		t.Fatalf("expected first questions tied to c1, got %v", dataset.Examples[0].RelevantChunkIDs)
	}
	if len(dataset.Items) != len(dataset.Examples) {
		t.Fatalf("items/examples mismatch: %d/%d", len(dataset.Items), len(dataset.Examples))
	}
	if dataset.Items[0].ReferenceAnswer == "" || len(dataset.Items[0].Contexts) == 0 {
		t.Fatalf("dataset item incomplete: %+v", dataset.Items[0])
	}
}

func TestGenerateDatasetNoChunksFails(t *testing.T) {
	store, _ := benchmarkFixture(1, 1)
	e := newEvaluator(store)

	_, err := e.GenerateDataset(context.Background(), nil, 1, 0)
	if !domain.IsKind(err, domain.ErrEvaluationFailed) {
		t.Fatalf("expected evaluation-failed kind, got %v", err)
	}
}

func TestDatasetSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	original := &Dataset{
		Examples: []domain.EvalExample{{Question: "q", RelevantChunkIDs: []string{"c1"}}},
		Items:    []domain.DatasetItem{{Question: "q", ReferenceAnswer: "a", Contexts: []string{"ctx"}}},
	}
	if err := SaveDataset(path, original); err != nil {
		t.Fatalf("SaveDataset() error = %v", err)
	}

	loaded, err := LoadDataset(path)
	if err != nil {
		t.Fatalf("LoadDataset() error = %v", err)
	}
	if len(loaded.Examples) != 1 || loaded.Examples[0].Question != "q" {
		t.Fatalf("unexpected loaded dataset: %+v", loaded)
	}
}
