package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/avezhov/gutenberg-qa/internal/config"
	"github.com/avezhov/gutenberg-qa/internal/core/domain"
	"github.com/avezhov/gutenberg-qa/internal/core/usecase"
	"github.com/avezhov/gutenberg-qa/internal/infrastructure/catalogfile"
	"github.com/avezhov/gutenberg-qa/internal/infrastructure/chunking"
	"github.com/avezhov/gutenberg-qa/internal/infrastructure/ingestion/gutenberg"
	"github.com/avezhov/gutenberg-qa/internal/infrastructure/ingestion/wikipedia"
	"github.com/avezhov/gutenberg-qa/internal/infrastructure/llm/openai"
	natsqueue "github.com/avezhov/gutenberg-qa/internal/infrastructure/queue/nats"
	"github.com/avezhov/gutenberg-qa/internal/infrastructure/repository/postgres"
	"github.com/avezhov/gutenberg-qa/internal/infrastructure/rerank/tei"
	"github.com/avezhov/gutenberg-qa/internal/infrastructure/resilience"
	redisstore "github.com/avezhov/gutenberg-qa/internal/infrastructure/session/redis"
	"github.com/avezhov/gutenberg-qa/internal/infrastructure/tracking/opik"
	"github.com/avezhov/gutenberg-qa/internal/infrastructure/vector/qdrant"
)

// App wires configuration into the full dependency graph. Both binaries
// build the same graph; they differ only in which operations they drive.
type App struct {
	Config   config.Config
	Workflow *usecase.Workflow
	Bus      *natsqueue.Bus
	Sessions *redisstore.Store

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	catalog := postgres.NewCatalogRepository(db)
	if err := catalog.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	evalLog := postgres.NewEvaluationRepository(db)

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	sessions := redisstore.NewStore(redisClient, cfg.SessionKey)
	if err := sessions.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	bus, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubjectPrefix, natsqueue.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultPolicy()),
	})
	if err != nil {
		_ = db.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultPolicy())
	var llmOpts []openai.Option
	if cfg.OpenAIBaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	llm := openai.New(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.EvalLLMModel, cfg.EmbedModel, executor, llmOpts...)
	embedder := openai.NewEmbedder(llm)
	generator := openai.NewGenerator(llm)
	qaGen := openai.NewQAGenerator(llm)
	judge := openai.NewJudge(llm)

	vector := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.WithExecutor(executor))
	reranker := tei.New(cfg.RerankURL, cfg.RerankModel, tei.WithExecutor(executor))
	tracker := opik.New(cfg.OpikURL, cfg.OpikProject, opik.WithExecutor(executor))

	books := gutenberg.NewFetcher(cfg.GutenbergMirror, 0)
	articles := wikipedia.NewFetcher(cfg.WikipediaAPIURL, 0)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	retriever := usecase.NewRetriever(embedder, vector, reranker)
	ingest := usecase.NewIngestUseCase(books, articles, chunker, embedder, vector, catalog, catalogfile.Read, logger)
	retrieval := usecase.NewRetrievalEvaluator(retriever, qaGen, domain.MetricName(cfg.PrimaryMetric), domain.MetricName(cfg.SecondaryMetric), logger)
	response := usecase.NewResponseEvaluator(retriever, generator, judge, tracker, openai.JudgeMetrics, logger)
	query := usecase.NewQueryUseCase(retriever, generator, tracker, logger)

	workflow := usecase.NewWorkflow(ingest, retrieval, response, query, sessions, evalLog, bus, usecase.WorkflowConfig{
		Collection:        cfg.QdrantCollection,
		EmbedModel:        cfg.EmbedModel,
		TopK:              cfg.DefaultTopK,
		HybridCandidates:  cfg.HybridCandidates,
		RerankModel:       cfg.RerankModel,
		DatasetName:       cfg.DatasetName,
		QuestionsPerChunk: cfg.QuestionsPerChunk,
		MaxChunks:         cfg.EvalMaxChunks,
	}, logger)

	return &App{
		Config:   cfg,
		Workflow: workflow,
		Bus:      bus,
		Sessions: sessions,

		closeFn: func() {
			bus.Close()
			_ = redisClient.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
