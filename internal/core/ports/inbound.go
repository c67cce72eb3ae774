package ports

import (
	"context"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
)

// BookRef identifies one catalog entry to ingest.
type BookRef struct {
	Title       string `json:"title"`
	GutenbergID int    `json:"gutenberg_id"`
}

// IngestRequest describes the sources for one ingestion run: either an
// explicit book list or a catalog file (CSV or XLSX) with Title and
// Gutenberg ID columns.
type IngestRequest struct {
	CatalogPath string    `json:"catalog_path,omitempty"`
	Books       []BookRef `json:"books,omitempty"`
}

// IngestSummary reports one completed ingestion run.
type IngestSummary struct {
	Works  int `json:"works"`
	Chunks int `json:"chunks"`
}

// RetrievalEvalRequest describes the dataset for one retrieval evaluation
// run: a persisted dataset by path, or synthetic generation from the
// ingested chunks.
type RetrievalEvalRequest struct {
	DatasetPath       string `json:"dataset_path,omitempty"`
	QuestionsPerChunk int    `json:"questions_per_chunk,omitempty"`
	MaxChunks         int    `json:"max_chunks,omitempty"`
	TopK              int    `json:"top_k,omitempty"`
	SavePath          string `json:"save_path,omitempty"`
}

// ResponseEvalRequest names the tracking-service dataset to score answers
// against, generating it from ingested chunks when absent.
type ResponseEvalRequest struct {
	DatasetName       string `json:"dataset_name,omitempty"`
	QuestionsPerChunk int    `json:"questions_per_chunk,omitempty"`
	MaxChunks         int    `json:"max_chunks,omitempty"`
}

// WorkflowStatus is a read-only snapshot of the coordinator.
type WorkflowStatus struct {
	State       string `json:"state"`
	Initialized bool   `json:"initialized"`
	StrategyID  string `json:"strategy_id,omitempty"`
}

// Workflow is the inbound contract of the coordinator: the named
// operations the API surface and the flow runner drive.
type Workflow interface {
	Initialize(ctx context.Context) (bool, error)
	Ingest(ctx context.Context, req IngestRequest) (*IngestSummary, error)
	EvaluateRetrieval(ctx context.Context, req RetrievalEvalRequest) (*domain.RetrievalEvalResult, error)
	EvaluateResponse(ctx context.Context, req ResponseEvalRequest) (*domain.ResponseEvalResult, error)
	Query(ctx context.Context, question string) (*domain.QueryResult, error)
	Status() WorkflowStatus
}
