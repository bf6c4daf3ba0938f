package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/markbunyevacz/lambda-extractor/internal/analysis"
	"github.com/markbunyevacz/lambda-extractor/internal/async"
	"github.com/markbunyevacz/lambda-extractor/internal/common"
	"github.com/markbunyevacz/lambda-extractor/internal/confidence"
	"github.com/markbunyevacz/lambda-extractor/internal/document"
	"github.com/markbunyevacz/lambda-extractor/internal/experts"
	"github.com/markbunyevacz/lambda-extractor/internal/idempotency"
	"github.com/markbunyevacz/lambda-extractor/internal/ingest"
	"github.com/markbunyevacz/lambda-extractor/internal/pipeline"
	"github.com/markbunyevacz/lambda-extractor/internal/tables"
	"github.com/markbunyevacz/lambda-extractor/internal/textextract"
)

// extractd watches inbox directories and runs the extraction pipeline on
// every PDF that lands in them.
func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Idempotency store
	store, cleanup, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.Error("failed to open idempotency store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	policy := idempotency.PolicyReturnProcessing
	if cfg.Store.WaitForInFlight {
		policy = idempotency.PolicyWait
	}
	idem := idempotency.NewLog(store, idempotency.Config{Policy: policy}, logger)

	// Analysis config, hot-reloadable when a file is given
	anaCfg := analysis.DefaultConfig()
	if cfg.AnalysisConfigPath != "" {
		anaCfg, err = analysis.LoadFile(cfg.AnalysisConfigPath)
		if err != nil {
			logger.Error("failed to load analysis config", "path", cfg.AnalysisConfigPath, "error", err)
			os.Exit(1)
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && anaCfg.APIKey == "" {
		anaCfg.APIKey = key
	}
	provider := analysis.NewProvider(anaCfg, logger)
	if cfg.AnalysisConfigPath != "" {
		provider.WatchFile(cfg.AnalysisConfigPath)
	}

	// Expert registry
	var expertCfgs []experts.ExpertConfig
	alpha := 0.0
	if cfg.ExpertsConfigPath != "" {
		expertCfgs, alpha, err = experts.LoadFile(cfg.ExpertsConfigPath)
		if err != nil {
			logger.Error("failed to load experts config", "path", cfg.ExpertsConfigPath, "error", err)
			os.Exit(1)
		}
	}
	registry := experts.NewRegistry(expertCfgs, alpha, logger)

	// Table engine tuning
	tblCfg := tables.Config{}
	if cfg.TablesConfigPath != "" {
		tblCfg, err = tables.LoadFile(cfg.TablesConfigPath)
		if err != nil {
			logger.Error("failed to load tables config", "path", cfg.TablesConfigPath, "error", err)
			os.Exit(1)
		}
	}

	// Pipeline stages
	chain := textextract.NewChain(textextract.Config{
		Pdftotext:     cfg.Extract.Pdftotext,
		Pdftoppm:      cfg.Extract.Pdftoppm,
		Tesseract:     cfg.Extract.Tesseract,
		TesseractLang: cfg.Extract.TesseractLang,
		DPI:           cfg.Extract.DPI,
		MaxPages:      cfg.Extract.MaxPages,
	}, logger)
	engine := tables.NewEngine(tblCfg, logger)
	analyzer := analysis.NewService(provider, logger)
	aggregator := confidence.NewAggregator(confidence.Config{})

	processor := pipeline.NewProcessor(logger, idem, registry, chain, engine, analyzer, aggregator)

	mode := async.Block
	if cfg.Queue.RejectWhenFull {
		mode = async.Reject
	}
	queue := async.NewQueue(processor, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithTaskTimeout(cfg.Queue.TaskTimeout),
		async.WithBackpressure(mode),
	)

	// Inbox watcher
	paths, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       cfg.Ingest.Roots,
		InitialScan: true,
		Debounce:    cfg.Ingest.Debounce,
	})
	if err != nil {
		logger.Error("failed to start inbox watcher", "roots", cfg.Ingest.Roots, "error", err)
		os.Exit(1)
	}

	logger.Info("extractd started",
		"roots", cfg.Ingest.Roots, "workers", cfg.Queue.Workers,
		"store", cfg.Store.Driver, "model", anaCfg.Model,
	)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case werr, ok := <-watchErrs:
			if ok {
				logger.Error("inbox watcher error", "error", werr)
			}
		case path, ok := <-paths:
			if !ok {
				break loop
			}
			enqueueFile(ctx, logger, queue, path)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}

// enqueueFile loads one inbox file and submits it; a bad file is logged and
// skipped, never fatal to the daemon.
func enqueueFile(ctx context.Context, logger *slog.Logger, queue *async.Queue, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed to read inbox file", "path", path, "error", err)
		return
	}
	doc, err := document.New(data, filepath.Base(path), logger)
	if err != nil {
		logger.Warn("skipping invalid document", "path", path, "error", err)
		return
	}
	task := pipeline.Task{
		ID:          uuid.New(),
		Doc:         doc,
		SubmittedAt: time.Now(),
	}
	if err := queue.Enqueue(ctx, task); err != nil {
		logger.Error("failed to enqueue task", "path", path, "task_id", task.ID, "error", err)
	}
}

func openStore(ctx context.Context, cfg common.StoreConfig) (idempotency.Store, func(), error) {
	switch cfg.Driver {
	case "postgres":
		st, err := idempotency.NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "sqlite":
		st, err := idempotency.NewSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return idempotency.NewMemoryStore(), func() {}, nil
	}
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
