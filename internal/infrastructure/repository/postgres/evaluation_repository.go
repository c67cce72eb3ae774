package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
)

// EvaluationRepository keeps the history of retrieval evaluation runs so
// strategy selection stays auditable after the session state moves on.
type EvaluationRepository struct {
	db *sql.DB
}

func NewEvaluationRepository(db *sql.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

func (r *EvaluationRepository) RecordRetrievalRun(ctx context.Context, result domain.RetrievalEvalResult) error {
	reportsJSON, err := json.Marshal(result.Reports)
	if err != nil {
		return fmt.Errorf("marshal strategy reports: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO retrieval_runs (id, best_strategy_id, reports, created_at)
VALUES ($1,$2,$3,$4)
`, uuid.NewString(), result.BestStrategyID, reportsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert retrieval run: %w", err)
	}
	return nil
}

// ListRetrievalRuns returns past runs, newest first.
func (r *EvaluationRepository) ListRetrievalRuns(ctx context.Context, limit int) ([]domain.RetrievalEvalResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT best_strategy_id, reports
FROM retrieval_runs
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list retrieval runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RetrievalEvalResult
	for rows.Next() {
		var run domain.RetrievalEvalResult
		var reportsRaw []byte
		if err := rows.Scan(&run.BestStrategyID, &reportsRaw); err != nil {
			return nil, fmt.Errorf("scan retrieval run: %w", err)
		}
		if err := json.Unmarshal(reportsRaw, &run.Reports); err != nil {
			return nil, fmt.Errorf("unmarshal strategy reports: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retrieval runs: %w", err)
	}
	return runs, nil
}
