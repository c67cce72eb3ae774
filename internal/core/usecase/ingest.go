package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
	"github.com/avezhov/gutenberg-qa/internal/core/ports"
)

// chunkNamespace seeds deterministic chunk IDs: re-ingesting the same text
// produces the same point IDs, so repeated runs upsert instead of
// duplicating.
var chunkNamespace = uuid.MustParse("8f0c2f35-5a17-4e9e-9b41-6f2a1d9f4c6e")

// CatalogReader loads a book list from a catalog file.
type CatalogReader func(path string) ([]ports.BookRef, error)

const embedBatchSize = 64

// IngestUseCase runs the full ingestion pipeline for a set of works: fetch
// book and companion article, chunk, embed, index, record catalog status.
// A failing work is recorded and skipped; it does not abort the run.
type IngestUseCase struct {
	books       ports.BookFetcher
	articles    ports.ArticleFetcher
	chunker     ports.Chunker
	embedder    ports.Embedder
	store       ports.VectorStore
	catalog     ports.WorkCatalog
	readCatalog CatalogReader
	logger      *slog.Logger
}

func NewIngestUseCase(
	books ports.BookFetcher,
	articles ports.ArticleFetcher,
	chunker ports.Chunker,
	embedder ports.Embedder,
	store ports.VectorStore,
	catalog ports.WorkCatalog,
	readCatalog CatalogReader,
	logger *slog.Logger,
) *IngestUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		books:       books,
		articles:    articles,
		chunker:     chunker,
		embedder:    embedder,
		store:       store,
		catalog:     catalog,
		readCatalog: readCatalog,
		logger:      logger,
	}
}

// Ingest processes every requested work and returns the summary plus the
// indexed chunks, which evaluation reuses for synthetic dataset generation.
func (uc *IngestUseCase) Ingest(ctx context.Context, req ports.IngestRequest) (*ports.IngestSummary, []domain.Chunk, error) {
	books, err := uc.resolveBooks(req)
	if err != nil {
		return nil, nil, err
	}

	summary := &ports.IngestSummary{}
	var allChunks []domain.Chunk

	for _, book := range books {
		chunks, err := uc.ingestWork(ctx, book)
		if err != nil {
			uc.logger.Error("work_ingest_failed", "title", book.Title, "gutenberg_id", book.GutenbergID, "error", err)
			continue
		}
		summary.Works++
		summary.Chunks += len(chunks)
		allChunks = append(allChunks, chunks...)
	}

	if summary.Works == 0 {
		return nil, nil, fmt.Errorf("no works ingested out of %d requested", len(books))
	}
	return summary, allChunks, nil
}

func (uc *IngestUseCase) resolveBooks(req ports.IngestRequest) ([]ports.BookRef, error) {
	if len(req.Books) > 0 {
		for _, b := range req.Books {
			if b.Title == "" || b.GutenbergID <= 0 {
				return nil, domain.WrapError(domain.ErrInvalidInput, "resolve books", fmt.Errorf("bad book ref: %+v", b))
			}
		}
		return req.Books, nil
	}
	if req.CatalogPath == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve books", fmt.Errorf("no books and no catalog path"))
	}
	if uc.readCatalog == nil {
		return nil, fmt.Errorf("catalog reader not configured")
	}
	books, err := uc.readCatalog(req.CatalogPath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read catalog", err)
	}
	return books, nil
}

func (uc *IngestUseCase) ingestWork(ctx context.Context, book ports.BookRef) ([]domain.Chunk, error) {
	now := time.Now().UTC()
	work := &domain.Work{
		ID:          uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("work:%d", book.GutenbergID))).String(),
		Title:       book.Title,
		GutenbergID: book.GutenbergID,
		Status:      domain.WorkPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.catalog.UpsertWork(ctx, work); err != nil {
		return nil, fmt.Errorf("record work: %w", err)
	}

	chunks, err := uc.buildChunks(ctx, book)
	if err != nil {
		if updateErr := uc.catalog.UpdateWorkStatus(ctx, work.ID, domain.WorkFailed, 0, err.Error()); updateErr != nil {
			uc.logger.Error("work_status_update_failed", "work_id", work.ID, "error", updateErr)
		}
		return nil, err
	}

	if err := uc.indexChunks(ctx, chunks); err != nil {
		if updateErr := uc.catalog.UpdateWorkStatus(ctx, work.ID, domain.WorkFailed, 0, err.Error()); updateErr != nil {
			uc.logger.Error("work_status_update_failed", "work_id", work.ID, "error", updateErr)
		}
		return nil, err
	}

	if err := uc.catalog.UpdateWorkStatus(ctx, work.ID, domain.WorkIngested, len(chunks), ""); err != nil {
		uc.logger.Error("work_status_update_failed", "work_id", work.ID, "error", err)
	}
	uc.logger.Info("work_ingested", "title", book.Title, "gutenberg_id", book.GutenbergID, "chunks", len(chunks))
	return chunks, nil
}

func (uc *IngestUseCase) buildChunks(ctx context.Context, book ports.BookRef) ([]domain.Chunk, error) {
	bookText, err := uc.books.FetchBook(ctx, book.GutenbergID)
	if err != nil {
		return nil, fmt.Errorf("fetch book: %w", err)
	}

	chunks := uc.chunkText(book, bookText, domain.SourceBook)

	// The companion article enriches retrieval but its absence is not
	// fatal: plenty of catalog titles have no article of the same name.
	articleText, err := uc.articles.FetchArticle(ctx, book.Title)
	if err != nil {
		uc.logger.Warn("article_fetch_failed", "title", book.Title, "error", err)
	} else {
		chunks = append(chunks, uc.chunkText(book, articleText, domain.SourceWikipedia)...)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks produced for %q", book.Title)
	}
	return chunks, nil
}

func (uc *IngestUseCase) chunkText(book ports.BookRef, text string, source domain.SourceKind) []domain.Chunk {
	pieces := uc.chunker.Split(text)
	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		seed := fmt.Sprintf("%d:%s:%d", book.GutenbergID, source, i)
		chunks = append(chunks, domain.Chunk{
			ID:          uuid.NewSHA1(chunkNamespace, []byte(seed)).String(),
			Text:        piece,
			Title:       book.Title,
			Source:      source,
			GutenbergID: book.GutenbergID,
			Position:    i,
		})
	}
	return chunks
}

func (uc *IngestUseCase) indexChunks(ctx context.Context, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed batch at %d: got %d vectors for %d texts", start, len(vectors), len(batch))
		}
		if err := uc.store.UpsertChunks(ctx, batch, vectors); err != nil {
			return fmt.Errorf("index batch at %d: %w", start, err)
		}
	}
	return nil
}
