package postgres

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
)

func newEvalWithMock(t *testing.T) (*EvaluationRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &EvaluationRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestRecordRetrievalRunPersistsReportsAsJSON(t *testing.T) {
	repo, mock, done := newEvalWithMock(t)
	defer done()

	result := domain.RetrievalEvalResult{
		BestStrategyID: "hybrid_rerank_k5",
		Reports: []domain.StrategyReport{
			{StrategyID: "dense_k5", Questions: 10, Metrics: map[domain.MetricName]float64{domain.MetricHitRate: 0.8}},
			{StrategyID: "hybrid_rerank_k5", Questions: 10, Metrics: map[domain.MetricName]float64{domain.MetricHitRate: 0.9}},
		},
	}

	mock.ExpectExec("INSERT INTO retrieval_runs").
		WithArgs(sqlmock.AnyArg(), "hybrid_rerank_k5", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.RecordRetrievalRun(context.Background(), result); err != nil {
		t.Fatalf("RecordRetrievalRun() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRetrievalRunsDecodesReports(t *testing.T) {
	repo, mock, done := newEvalWithMock(t)
	defer done()

	reports, _ := json.Marshal([]domain.StrategyReport{
		{StrategyID: "lexical_k5", Questions: 10, Metrics: map[domain.MetricName]float64{domain.MetricMRR: 0.55}},
	})
	rows := sqlmock.NewRows([]string{"best_strategy_id", "reports"}).
		AddRow("lexical_k5", reports)

	mock.ExpectQuery("SELECT best_strategy_id, reports").
		WithArgs(5).
		WillReturnRows(rows)

	runs, err := repo.ListRetrievalRuns(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListRetrievalRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].BestStrategyID != "lexical_k5" || runs[0].Reports[0].Metrics[domain.MetricMRR] != 0.55 {
		t.Fatalf("unexpected run: %+v", runs[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
