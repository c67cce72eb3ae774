package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/avezhov/gutenberg-qa/internal/adapters/http"
	"github.com/avezhov/gutenberg-qa/internal/bootstrap"
	"github.com/avezhov/gutenberg-qa/internal/config"
	"github.com/avezhov/gutenberg-qa/internal/observability/logging"
	"github.com/avezhov/gutenberg-qa/internal/observability/metrics"
)

const service = "api"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.Setup(service, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	m := metrics.NewHTTPServerMetrics(service)

	loaded, err := app.Workflow.Initialize(ctx)
	m.RecordInitialization(service, loaded, err)
	if err != nil {
		logger.Error("initialize_failed", "error", err)
	} else if loaded {
		logger.Info("session_restored", "strategy", app.Workflow.Status().StrategyID)
	} else {
		logger.Info("no_session_yet")
	}

	// Pick up strategy selections made by the flow runner without a restart.
	go func() {
		err := app.Bus.SubscribeSessionUpdated(ctx, func(handlerCtx context.Context, revision int) error {
			reloadCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Second)
			defer cancel()
			if err := app.Workflow.ReloadSession(reloadCtx); err != nil {
				return err
			}
			m.RecordSessionReload(service, "event")
			logger.Info("session_reloaded_from_event", "revision", revision)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("session_subscription_failed", "error", err)
		}
	}()

	router := httpadapter.NewRouter(app.Workflow, m, httpadapter.RouterConfig{
		Service:        service,
		RateLimitRPS:   cfg.APIRateLimitRPS,
		RateLimitBurst: cfg.APIRateLimitBurst,
		MaxConcurrent:  cfg.APIMaxConcurrent,
	}, httpadapter.ConfigReport{
		Collection:       cfg.QdrantCollection,
		EmbedModel:       cfg.EmbedModel,
		LLMModel:         cfg.LLMModel,
		RerankModel:      cfg.RerankModel,
		TopK:             cfg.DefaultTopK,
		HybridCandidates: cfg.HybridCandidates,
	}).Handler()

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_error", "error", err)
	}
}
