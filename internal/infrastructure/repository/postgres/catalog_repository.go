package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
)

// CatalogRepository records every work that entered the pipeline and its
// ingestion outcome. The vector store holds the chunks; this table answers
// "what was ingested, when, and did it succeed".
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *CatalogRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/flow startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS works (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	gutenberg_id INTEGER NOT NULL,
	status TEXT NOT NULL,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_works_gutenberg_id ON works(gutenberg_id);
CREATE INDEX IF NOT EXISTS idx_works_status ON works(status);

CREATE TABLE IF NOT EXISTS retrieval_runs (
	id TEXT PRIMARY KEY,
	best_strategy_id TEXT NOT NULL,
	reports JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_retrieval_runs_created_at ON retrieval_runs(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *CatalogRepository) UpsertWork(ctx context.Context, work *domain.Work) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO works (id, title, gutenberg_id, status, chunk_count, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (gutenberg_id) DO UPDATE
SET title = EXCLUDED.title, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
`,
		work.ID, work.Title, work.GutenbergID, string(work.Status), work.ChunkCount, work.Error,
		work.CreatedAt, work.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert work: %w", err)
	}
	return nil
}

func (r *CatalogRepository) UpdateWorkStatus(ctx context.Context, id string, status domain.WorkStatus, chunkCount int, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE works
SET status = $2, chunk_count = $3, error_message = $4, updated_at = $5
WHERE id = $1
`, id, string(status), chunkCount, errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update work status: %w", err)
	}
	return nil
}

func (r *CatalogRepository) ListWorks(ctx context.Context) ([]domain.Work, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, gutenberg_id, status, chunk_count, error_message, created_at, updated_at
FROM works
ORDER BY created_at ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list works: %w", err)
	}
	defer rows.Close()

	var works []domain.Work
	for rows.Next() {
		var w domain.Work
		var status string
		var errMessage sql.NullString
		if err := rows.Scan(&w.ID, &w.Title, &w.GutenbergID, &status, &w.ChunkCount, &errMessage, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan work: %w", err)
		}
		w.Status = domain.WorkStatus(status)
		w.Error = errMessage.String
		works = append(works, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate works: %w", err)
	}
	return works, nil
}
