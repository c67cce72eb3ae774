package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
	"github.com/avezhov/gutenberg-qa/internal/core/ports"
)

// Workflow states. Transitions are driven by the named operations; exactly
// one mutating operation runs at a time.
const (
	StateUninitialized = "uninitialized"
	StateIngesting     = "ingesting"
	StateEvaluating    = "evaluating"
	StateReady         = "ready"
)

// WorkflowConfig carries the deployment-level knobs the coordinator needs
// to assemble strategies and session snapshots.
type WorkflowConfig struct {
	Collection        string
	EmbedModel        string
	TopK              int
	HybridCandidates  int
	RerankModel       string
	DatasetName       string
	QuestionsPerChunk int
	MaxChunks         int
}

// Workflow coordinates the pipeline: ingest, evaluate, select, serve. It is
// the single writer of session state; queries read the active strategy
// without blocking behind mutating operations.
type Workflow struct {
	ingest    *IngestUseCase
	retrieval *RetrievalEvaluator
	response  *ResponseEvaluator
	query     *QueryUseCase
	sessions  ports.SessionStore
	evalLog   ports.EvaluationLog
	events    ports.EventPublisher
	cfg       WorkflowConfig
	logger    *slog.Logger

	mu      sync.RWMutex
	state   string
	busy    bool
	session *domain.SessionState
	chunks  []domain.Chunk
	dataset *Dataset
}

func NewWorkflow(
	ingest *IngestUseCase,
	retrieval *RetrievalEvaluator,
	response *ResponseEvaluator,
	query *QueryUseCase,
	sessions ports.SessionStore,
	evalLog ports.EvaluationLog,
	events ports.EventPublisher,
	cfg WorkflowConfig,
	logger *slog.Logger,
) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		ingest:    ingest,
		retrieval: retrieval,
		response:  response,
		query:     query,
		sessions:  sessions,
		evalLog:   evalLog,
		events:    events,
		cfg:       cfg,
		logger:    logger,
		state:     StateUninitialized,
	}
}

// Initialize loads persisted session state. It is idempotent: a missing
// session is not an error, it just leaves the workflow uninitialized until
// an evaluation run selects a strategy.
func (w *Workflow) Initialize(ctx context.Context) (bool, error) {
	state, err := w.sessions.Load(ctx)
	if domain.IsKind(err, domain.ErrSessionNotFound) {
		w.logger.Info("no_persisted_session")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}

	w.mu.Lock()
	w.session = &state
	if !w.busy {
		w.state = StateReady
	}
	w.mu.Unlock()

	w.logger.Info("session_loaded", "strategy", state.Strategy.ID, "revision", state.Revision)
	return true, nil
}

func (w *Workflow) Ingest(ctx context.Context, req ports.IngestRequest) (*ports.IngestSummary, error) {
	release, err := w.acquire(StateIngesting)
	if err != nil {
		return nil, err
	}
	defer release()

	summary, chunks, err := w.ingest.Ingest(ctx, req)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.chunks = chunks
	w.dataset = nil
	w.mu.Unlock()

	if w.events != nil {
		if err := w.events.PublishWorksIngested(ctx, summary.Works, summary.Chunks); err != nil {
			w.logger.Warn("publish_works_ingested_failed", "error", err)
		}
	}
	return summary, nil
}

func (w *Workflow) EvaluateRetrieval(ctx context.Context, req ports.RetrievalEvalRequest) (*domain.RetrievalEvalResult, error) {
	release, err := w.acquire(StateEvaluating)
	if err != nil {
		return nil, err
	}
	defer release()

	dataset, err := w.resolveDataset(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.SavePath != "" {
		if err := SaveDataset(req.SavePath, dataset); err != nil {
			w.logger.Warn("dataset_save_failed", "path", req.SavePath, "error", err)
		}
	}

	topK := req.TopK
	if topK <= 0 {
		topK = w.cfg.TopK
	}
	strategies := DefaultStrategies(topK, w.cfg.HybridCandidates, w.cfg.RerankModel)

	result, err := w.retrieval.Evaluate(ctx, dataset.Examples, strategies)
	if err != nil {
		return nil, err
	}

	var winner domain.RetrievalStrategy
	for _, s := range strategies {
		if s.ID == result.BestStrategyID {
			winner = s
			break
		}
	}

	w.mu.RLock()
	revision := 0
	if w.session != nil {
		revision = w.session.Revision
	}
	chunkCount := len(w.chunks)
	w.mu.RUnlock()

	session := domain.SessionState{
		Strategy:   winner,
		Collection: w.cfg.Collection,
		EmbedModel: w.cfg.EmbedModel,
		ChunkCount: chunkCount,
		Revision:   revision + 1,
		SelectedAt: time.Now().UTC(),
	}
	if err := w.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	w.mu.Lock()
	w.session = &session
	w.dataset = dataset
	w.mu.Unlock()

	if w.evalLog != nil {
		if err := w.evalLog.RecordRetrievalRun(ctx, *result); err != nil {
			w.logger.Warn("evaluation_record_failed", "error", err)
		}
	}
	if w.events != nil {
		if err := w.events.PublishSessionUpdated(ctx, session.Revision); err != nil {
			w.logger.Warn("publish_session_updated_failed", "error", err)
		}
	}

	w.logger.Info("strategy_selected", "strategy", winner.ID, "revision", session.Revision)
	return result, nil
}

func (w *Workflow) EvaluateResponse(ctx context.Context, req ports.ResponseEvalRequest) (*domain.ResponseEvalResult, error) {
	release, err := w.acquire(StateEvaluating)
	if err != nil {
		return nil, err
	}
	defer release()

	// Snapshot under the writer slot: a re-evaluation cannot swap the
	// strategy between here and the judging below.
	w.mu.RLock()
	session := w.session
	dataset := w.dataset
	chunks := w.chunks
	w.mu.RUnlock()
	if session == nil {
		return nil, domain.WrapError(domain.ErrNotInitialized, "evaluate responses", fmt.Errorf("no strategy selected"))
	}

	datasetName := req.DatasetName
	if datasetName == "" {
		datasetName = w.cfg.DatasetName
	}

	var items []domain.DatasetItem
	switch {
	case dataset != nil:
		items = dataset.Items
	case len(chunks) > 0:
		generated, err := w.retrieval.GenerateDataset(ctx, chunks, w.questionsPerChunk(req.QuestionsPerChunk), w.maxChunks(req.MaxChunks))
		if err != nil {
			return nil, err
		}
		items = generated.Items
	}

	datasetID, err := w.response.EnsureDataset(ctx, datasetName, items)
	if err != nil {
		return nil, err
	}
	return w.response.Evaluate(ctx, datasetName, datasetID, session.Strategy)
}

func (w *Workflow) Query(ctx context.Context, question string) (*domain.QueryResult, error) {
	w.mu.RLock()
	session := w.session
	w.mu.RUnlock()
	if session == nil {
		return nil, domain.WrapError(domain.ErrNotInitialized, "answer question", fmt.Errorf("no strategy selected"))
	}
	return w.query.Answer(ctx, session.Strategy, question)
}

func (w *Workflow) Status() ports.WorkflowStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := ports.WorkflowStatus{
		State:       w.state,
		Initialized: w.session != nil,
	}
	if w.session != nil {
		status.StrategyID = w.session.Strategy.ID
	}
	return status
}

// ReloadSession refreshes the active strategy from the store. The API
// process calls this when a session-updated event arrives from the flow
// runner.
func (w *Workflow) ReloadSession(ctx context.Context) error {
	state, err := w.sessions.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload session: %w", err)
	}

	w.mu.Lock()
	w.session = &state
	if !w.busy {
		w.state = StateReady
	}
	w.mu.Unlock()

	w.logger.Info("session_reloaded", "strategy", state.Strategy.ID, "revision", state.Revision)
	return nil
}

func (w *Workflow) resolveDataset(ctx context.Context, req ports.RetrievalEvalRequest) (*Dataset, error) {
	if req.DatasetPath != "" {
		dataset, err := LoadDataset(req.DatasetPath)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "load dataset", err)
		}
		return dataset, nil
	}

	w.mu.RLock()
	chunks := w.chunks
	w.mu.RUnlock()
	return w.retrieval.GenerateDataset(ctx, chunks, w.questionsPerChunk(req.QuestionsPerChunk), w.maxChunks(req.MaxChunks))
}

func (w *Workflow) questionsPerChunk(requested int) int {
	if requested > 0 {
		return requested
	}
	if w.cfg.QuestionsPerChunk > 0 {
		return w.cfg.QuestionsPerChunk
	}
	return 1
}

func (w *Workflow) maxChunks(requested int) int {
	if requested > 0 {
		return requested
	}
	return w.cfg.MaxChunks
}

// acquire claims the single-writer slot and moves the state machine. The
// returned release restores ready/uninitialized based on whether a strategy
// is active.
func (w *Workflow) acquire(state string) (func(), error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return nil, domain.WrapError(domain.ErrBusy, "acquire workflow", fmt.Errorf("state %s", w.state))
	}
	w.busy = true
	w.state = state

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.busy = false
		if w.session != nil {
			w.state = StateReady
		} else {
			w.state = StateUninitialized
		}
	}, nil
}
