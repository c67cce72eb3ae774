package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
)

// queryContext links the embedder and store fakes: EmbedQuery records the
// question so the store can serve per-question results despite only seeing
// the vector. Evaluation runs questions sequentially, so this is safe.
type queryContext struct {
	mu      sync.Mutex
	current string
}

func (qc *queryContext) set(q string) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.current = q
}

func (qc *queryContext) get() string {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return qc.current
}

type fakeEmbedder struct {
	qc  *queryContext
	err error
}

func (f *fakeEmbedder) Model() string { return "fake-embed" }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.qc != nil {
		f.qc.set(text)
	}
	return []float32{float32(len(text)), 1}, nil
}

type fakeVectorStore struct {
	qc         *queryContext
	dense      map[string][]domain.ScoredChunk
	lexical    map[string][]domain.ScoredChunk
	denseErr   error
	lexicalErr error

	mu       sync.Mutex
	upserted []domain.Chunk
}

func (f *fakeVectorStore) UpsertChunks(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *fakeVectorStore) SearchDense(_ context.Context, _ []float32, k int) ([]domain.ScoredChunk, error) {
	if f.denseErr != nil {
		return nil, f.denseErr
	}
	return capResults(f.dense[f.qc.get()], k), nil
}

func (f *fakeVectorStore) SearchLexical(_ context.Context, queryText string, k int) ([]domain.ScoredChunk, error) {
	if f.lexicalErr != nil {
		return nil, f.lexicalErr
	}
	return capResults(f.lexical[queryText], k), nil
}

func capResults(results []domain.ScoredChunk, k int) []domain.ScoredChunk {
	if len(results) > k {
		return results[:k]
	}
	return results
}

// fakeReranker scores candidates from a fixed relevance table and sorts
// descending, mimicking a cross-encoder with known preferences.
type fakeReranker struct {
	scores map[string]float64
	err    error
}

func (f *fakeReranker) Model() string { return "fake-rerank" }

func (f *fakeReranker) Rerank(_ context.Context, _ string, candidates []domain.ScoredChunk) ([]domain.ScoredChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.ScoredChunk, len(candidates))
	for i, sc := range candidates {
		out[i] = domain.ScoredChunk{Chunk: sc.Chunk, Score: f.scores[sc.Chunk.ID]}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Score > out[i].Score {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

type fakeGenerator struct {
	answer string
	err    error
	calls  int
}

func (f *fakeGenerator) GenerateAnswer(_ context.Context, _ string, _ []domain.ScoredChunk) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeQAGenerator struct {
	perChunk int
	err      error
}

func (f *fakeQAGenerator) GenerateQA(_ context.Context, chunkText string, n int) ([]domain.QAPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	count := n
	if f.perChunk > 0 {
		count = f.perChunk
	}
	pairs := make([]domain.QAPair, 0, count)
	for i := 0; i < count; i++ {
		pairs = append(pairs, domain.QAPair{
			Question:        fmt.Sprintf("q%d about %s", i, firstWord(chunkText)),
			ReferenceAnswer: fmt.Sprintf("a%d", i),
		})
	}
	return pairs, nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

type fakeJudge struct {
	scores map[string]float64
	err    error
}

func (f *fakeJudge) Judge(_ context.Context, metric, _, _ string, _ []string, _ string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.scores[metric], nil
}

type fakeTracker struct {
	mu          sync.Mutex
	traces      []string
	items       map[string][]domain.DatasetItem
	experiments map[string]map[string]float64
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		items:       make(map[string][]domain.DatasetItem),
		experiments: make(map[string]map[string]float64),
	}
}

func (f *fakeTracker) LogTrace(_ context.Context, name string, _, _ any, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traces = append(f.traces, name)
	return nil
}

func (f *fakeTracker) EnsureDataset(_ context.Context, name string) (string, error) {
	return "id-" + name, nil
}

func (f *fakeTracker) AddDatasetItems(_ context.Context, datasetID string, items []domain.DatasetItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[datasetID] = append(f.items[datasetID], items...)
	return nil
}

func (f *fakeTracker) ListDatasetItems(_ context.Context, datasetID string) ([]domain.DatasetItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[datasetID], nil
}

func (f *fakeTracker) LogExperiment(_ context.Context, _, experiment string, metrics map[string]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.experiments[experiment] = metrics
	return nil
}

type fakeSessionStore struct {
	mu    sync.Mutex
	state *domain.SessionState
	saves int
	err   error
}

func (f *fakeSessionStore) Save(_ context.Context, state domain.SessionState) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = &state
	f.saves++
	return nil
}

func (f *fakeSessionStore) Load(_ context.Context) (domain.SessionState, error) {
	if f.err != nil {
		return domain.SessionState{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == nil {
		return domain.SessionState{}, domain.ErrSessionNotFound
	}
	return *f.state, nil
}

type fakeCatalog struct {
	mu       sync.Mutex
	works    []domain.Work
	statuses map[string]domain.WorkStatus
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{statuses: make(map[string]domain.WorkStatus)}
}

func (f *fakeCatalog) UpsertWork(_ context.Context, work *domain.Work) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.works = append(f.works, *work)
	f.statuses[work.ID] = work.Status
	return nil
}

func (f *fakeCatalog) UpdateWorkStatus(_ context.Context, id string, status domain.WorkStatus, _ int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func (f *fakeCatalog) ListWorks(_ context.Context) ([]domain.Work, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Work(nil), f.works...), nil
}

type fakeEvalLog struct {
	mu      sync.Mutex
	records []domain.RetrievalEvalResult
}

func (f *fakeEvalLog) RecordRetrievalRun(_ context.Context, result domain.RetrievalEvalResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, result)
	return nil
}

type fakeEvents struct {
	mu        sync.Mutex
	ingested  int
	revisions []int
}

func (f *fakeEvents) PublishWorksIngested(_ context.Context, _, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested++
	return nil
}

func (f *fakeEvents) PublishSessionUpdated(_ context.Context, revision int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revisions = append(f.revisions, revision)
	return nil
}

type fakeBookFetcher struct {
	texts map[int]string
}

func (f *fakeBookFetcher) FetchBook(_ context.Context, gutenbergID int) (string, error) {
	text, ok := f.texts[gutenbergID]
	if !ok {
		return "", fmt.Errorf("book %d not found", gutenbergID)
	}
	return text, nil
}

type fakeArticleFetcher struct {
	texts map[string]string
}

func (f *fakeArticleFetcher) FetchArticle(_ context.Context, title string) (string, error) {
	text, ok := f.texts[title]
	if !ok {
		return "", fmt.Errorf("article %q not found", title)
	}
	return text, nil
}

// fakeChunker splits on blank lines, the simplest stand-in for the real
// splitter.
type fakeChunker struct{}

func (fakeChunker) Split(text string) []string {
	var out []string
	for _, part := range strings.Split(text, "\n\n") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
