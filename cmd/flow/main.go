package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/avezhov/gutenberg-qa/internal/bootstrap"
	"github.com/avezhov/gutenberg-qa/internal/config"
	"github.com/avezhov/gutenberg-qa/internal/core/domain"
	"github.com/avezhov/gutenberg-qa/internal/core/ports"
	"github.com/avezhov/gutenberg-qa/internal/observability/logging"
	"github.com/avezhov/gutenberg-qa/internal/observability/metrics"
)

const service = "flow"

// The flow runner drives the offline pipeline end to end: ingest the
// catalog, evaluate retrieval strategies, persist the winner, then score
// answer quality. The API picks the selection up over the event bus.
func main() {
	catalogPath := flag.String("catalog", "", "CSV or XLSX catalog of books to ingest")
	datasetPath := flag.String("dataset", "", "load the QA dataset from this JSON file instead of generating one")
	saveDataset := flag.String("save-dataset", "", "write the generated QA dataset to this JSON file")
	skipIngest := flag.Bool("skip-ingest", false, "reuse the existing index, requires -dataset")
	skipResponse := flag.Bool("skip-response", false, "stop after strategy selection")
	metricsPort := flag.String("metrics-port", "9091", "port to expose pipeline metrics on while running, empty disables")
	flag.Parse()

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

	m := metrics.NewFlowMetrics(service)
	if *metricsPort != "" {
		go serveMetrics(*metricsPort, m, logger)
	}

	if !*skipIngest {
		if *catalogPath == "" {
			log.Fatalf("-catalog is required unless -skip-ingest is set")
		}
		start := time.Now()
		summary, err := app.Workflow.Ingest(ctx, ports.IngestRequest{CatalogPath: *catalogPath})
		m.RecordWorkIngested(service, time.Since(start), err)
		if err != nil {
			log.Fatalf("ingest error: %v", err)
		}
		m.RecordChunksIndexed(service, "all", summary.Chunks)
		logger.Info("ingest_complete", "works", summary.Works, "chunks", summary.Chunks)
	} else if *datasetPath == "" {
		log.Fatalf("-skip-ingest requires -dataset")
	}

	start := time.Now()
	result, err := app.Workflow.EvaluateRetrieval(ctx, ports.RetrievalEvalRequest{
		DatasetPath: *datasetPath,
		SavePath:    *saveDataset,
	})
	m.RecordEvaluationRun(service, time.Since(start), err)
	if err != nil {
		log.Fatalf("retrieval evaluation error: %v", err)
	}
	recordStrategyMetrics(m, result)
	logger.Info("strategy_selected", "strategy", result.BestStrategyID)

	if *skipResponse {
		return
	}

	responseResult, err := app.Workflow.EvaluateResponse(ctx, ports.ResponseEvalRequest{})
	if err != nil {
		log.Fatalf("response evaluation error: %v", err)
	}
	logger.Info("response_evaluation_complete",
		"dataset", responseResult.Dataset,
		"questions", responseResult.Questions,
		"metrics", responseResult.Metrics,
	)
}

func recordStrategyMetrics(m *metrics.FlowMetrics, result *domain.RetrievalEvalResult) {
	for _, report := range result.Reports {
		if report.Failed {
			continue
		}
		for name, value := range report.Metrics {
			m.RecordStrategyMetric(service, report.StrategyID, string(name), value)
		}
	}
}

func serveMetrics(port string, m *metrics.FlowMetrics, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Error("metrics_server_error", "error", err)
	}
}
