package domain

import "time"

// SourceKind tags chunk provenance. The set is fixed: book text from
// Project Gutenberg or its companion encyclopedia article.
type SourceKind string

const (
	SourceBook      SourceKind = "book"
	SourceWikipedia SourceKind = "wikipedia"
)

// Chunk is one retrievable unit of source text. Immutable after ingestion.
type Chunk struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Title       string     `json:"title"`
	Source      SourceKind `json:"source"`
	GutenbergID int        `json:"gutenberg_id"`
	Position    int        `json:"position"`
}

type WorkStatus string

const (
	WorkPending  WorkStatus = "pending"
	WorkIngested WorkStatus = "ingested"
	WorkFailed   WorkStatus = "failed"
)

// Work is one catalog entry: a book plus its encyclopedia article,
// tracked through ingestion.
type Work struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	GutenbergID int        `json:"gutenberg_id"`
	Status      WorkStatus `json:"status"`
	ChunkCount  int        `json:"chunk_count"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
