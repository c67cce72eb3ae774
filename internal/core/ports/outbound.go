package ports

import (
	"context"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
)

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// VectorStore indexes chunks and serves dense and lexical search. An empty
// result slice means the index responded with no matches; an unreachable
// store is an error.
type VectorStore interface {
	UpsertChunks(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	SearchDense(ctx context.Context, queryVector []float32, k int) ([]domain.ScoredChunk, error)
	SearchLexical(ctx context.Context, queryText string, k int) ([]domain.ScoredChunk, error)
}

// Reranker reorders candidate chunks with a cross-encoder; its scores
// replace any prior scores.
type Reranker interface {
	Rerank(ctx context.Context, question string, candidates []domain.ScoredChunk) ([]domain.ScoredChunk, error)
	Model() string
}

// AnswerGenerator produces the final user-facing answer from evidence.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, evidence []domain.ScoredChunk) (string, error)
}

// QAGenerator produces synthetic question/answer pairs from a chunk for
// evaluation datasets.
type QAGenerator interface {
	GenerateQA(ctx context.Context, chunkText string, n int) ([]domain.QAPair, error)
}

// ResponseJudge scores one answered question on a named quality metric,
// returning a value in [0, 1].
type ResponseJudge interface {
	Judge(ctx context.Context, metric, question, answer string, contexts []string, reference string) (float64, error)
}

// Chunker splits source text into indexable chunks.
type Chunker interface {
	Split(text string) []string
}

// BookFetcher pulls the plain text of a public-domain book.
type BookFetcher interface {
	FetchBook(ctx context.Context, gutenbergID int) (string, error)
}

// ArticleFetcher pulls the plain text of an encyclopedia article.
type ArticleFetcher interface {
	FetchArticle(ctx context.Context, title string) (string, error)
}

// SessionStore persists the selected-strategy snapshot. Save replaces the
// whole state atomically; a concurrent Load never observes a partial write.
// Load returns domain.ErrSessionNotFound on a fresh deployment.
type SessionStore interface {
	Save(ctx context.Context, state domain.SessionState) error
	Load(ctx context.Context) (domain.SessionState, error)
}

// WorkCatalog records ingested works and their status.
type WorkCatalog interface {
	UpsertWork(ctx context.Context, work *domain.Work) error
	UpdateWorkStatus(ctx context.Context, id string, status domain.WorkStatus, chunkCount int, errMessage string) error
	ListWorks(ctx context.Context) ([]domain.Work, error)
}

// EvaluationLog keeps the history of retrieval evaluation runs.
type EvaluationLog interface {
	RecordRetrievalRun(ctx context.Context, result domain.RetrievalEvalResult) error
}

// EventPublisher broadcasts workflow lifecycle events so other processes
// (the API serving queries, the offline flow runner) can react.
type EventPublisher interface {
	PublishWorksIngested(ctx context.Context, works, chunks int) error
	PublishSessionUpdated(ctx context.Context, revision int) error
}

// Tracker is the evaluation-tracking capability: traces, datasets and
// experiment scores.
type Tracker interface {
	LogTrace(ctx context.Context, name string, input, output any, metadata map[string]any) error
	EnsureDataset(ctx context.Context, name string) (string, error)
	AddDatasetItems(ctx context.Context, datasetID string, items []domain.DatasetItem) error
	ListDatasetItems(ctx context.Context, datasetID string) ([]domain.DatasetItem, error)
	LogExperiment(ctx context.Context, datasetName, experiment string, metrics map[string]float64) error
}
