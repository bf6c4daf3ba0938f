package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/markbunyevacz/lambda-extractor/internal/analysis"
	"github.com/markbunyevacz/lambda-extractor/internal/common"
	"github.com/markbunyevacz/lambda-extractor/internal/confidence"
	"github.com/markbunyevacz/lambda-extractor/internal/document"
	"github.com/markbunyevacz/lambda-extractor/internal/experts"
	"github.com/markbunyevacz/lambda-extractor/internal/extract"
	"github.com/markbunyevacz/lambda-extractor/internal/fetch"
	"github.com/markbunyevacz/lambda-extractor/internal/idempotency"
	"github.com/markbunyevacz/lambda-extractor/internal/pipeline"
	"github.com/markbunyevacz/lambda-extractor/internal/tables"
	"github.com/markbunyevacz/lambda-extractor/internal/textextract"
)

var (
	flagDir          string
	flagS3Prefix     string
	flagOut          string
	flagConcurrency  int
	flagManufacturer string
	flagDocType      string
)

var rootCmd = &cobra.Command{
	Use:   "extract-batch",
	Short: "Run the datasheet extraction pipeline over a directory or S3 prefix",
	Long: `extract-batch processes every PDF under --dir (or under --s3-prefix in the
configured bucket) and writes one JSON result per line to --out.

Documents already present in the idempotency store are skipped with a
duplicate result; one bad document never aborts the batch.`,
	RunE: runBatch,
}

func init() {
	rootCmd.Flags().StringVar(&flagDir, "dir", "", "local directory to process (recursive)")
	rootCmd.Flags().StringVar(&flagS3Prefix, "s3-prefix", "", "object prefix in the configured S3 bucket")
	rootCmd.Flags().StringVar(&flagOut, "out", "results.jsonl", "output file, one JSON result per line")
	rootCmd.Flags().IntVar(&flagConcurrency, "concurrency", 4, "number of documents processed in parallel")
	rootCmd.Flags().StringVar(&flagManufacturer, "manufacturer", "", "manufacturer hint for expert routing")
	rootCmd.Flags().StringVar(&flagDocType, "doc-type", "", "document type hint for expert routing")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runBatch(cmd *cobra.Command, _ []string) error {
	if flagDir == "" && flagS3Prefix == "" {
		return fmt.Errorf("either --dir or --s3-prefix is required")
	}

	_ = godotenv.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := cmd.Context()

	proc, cleanup, err := buildProcessor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	loads, err := collectLoaders(ctx, cfg)
	if err != nil {
		return err
	}
	if len(loads) == 0 {
		return fmt.Errorf("no PDF documents found")
	}

	out, err := os.Create(flagOut)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)
	defer w.Flush()

	var (
		mu        sync.Mutex
		processed int
		failed    int
		dupes     int
	)
	writeResult := func(res extract.Result) error {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case res.Duplicate:
			dupes++
		case res.Success:
			processed++
		default:
			failed++
		}
		line, err := json.Marshal(res)
		if err != nil {
			return err
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
		return w.WriteByte('\n')
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(flagConcurrency)

	for _, load := range loads {
		load := load
		g.Go(func() error {
			name, data, err := load(gctx)
			if err != nil {
				logger.Error("failed to load document", "name", name, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			doc, err := document.New(data, name, logger)
			if err != nil {
				logger.Warn("skipping invalid document", "name", name, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			res, err := proc.Process(gctx, pipeline.Task{
				ID:               uuid.New(),
				Doc:              doc,
				ManufacturerHint: flagManufacturer,
				DocTypeHint:      flagDocType,
				SubmittedAt:      time.Now(),
			})
			if err != nil {
				// Storage failure or cancellation; either way the batch stops.
				return fmt.Errorf("process %s: %w", name, err)
			}
			return writeResult(res)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("batch complete",
		"documents", len(loads), "succeeded", processed,
		"failed", failed, "duplicates", dupes,
		"elapsed", time.Since(start).String(), "output", flagOut,
	)
	fmt.Printf("Processed %d documents: %d succeeded, %d failed, %d duplicates -> %s\n",
		len(loads), processed, failed, dupes, flagOut)
	return nil
}

// loader defers reading a document's bytes until a worker picks it up.
type loader func(ctx context.Context) (name string, data []byte, err error)

func collectLoaders(ctx context.Context, cfg *common.Config) ([]loader, error) {
	if flagDir != "" {
		var loads []loader
		err := filepath.WalkDir(flagDir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
				return nil
			}
			loads = append(loads, func(context.Context) (string, []byte, error) {
				data, err := os.ReadFile(path)
				return filepath.Base(path), data, err
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", flagDir, err)
		}
		return loads, nil
	}

	src, err := fetch.NewS3Source(cfg.Fetch)
	if err != nil {
		return nil, err
	}
	keys, err := src.List(ctx, flagS3Prefix)
	if err != nil {
		return nil, err
	}
	loads := make([]loader, 0, len(keys))
	for _, key := range keys {
		key := key
		loads = append(loads, func(ctx context.Context) (string, []byte, error) {
			data, err := src.Fetch(ctx, key)
			return filepath.Base(key), data, err
		})
	}
	return loads, nil
}

func buildProcessor(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*pipeline.Processor, func(), error) {
	var (
		store   idempotency.Store
		cleanup = func() {}
	)
	switch cfg.Store.Driver {
	case "postgres":
		st, err := idempotency.NewPostgresStore(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		store, cleanup = st, st.Close
	case "sqlite":
		st, err := idempotency.NewSQLiteStore(cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		store, cleanup = st, func() { _ = st.Close() }
	default:
		store = idempotency.NewMemoryStore()
	}
	policy := idempotency.PolicyReturnProcessing
	if cfg.Store.WaitForInFlight {
		policy = idempotency.PolicyWait
	}
	idem := idempotency.NewLog(store, idempotency.Config{Policy: policy}, logger)

	anaCfg := analysis.DefaultConfig()
	if cfg.AnalysisConfigPath != "" {
		var err error
		anaCfg, err = analysis.LoadFile(cfg.AnalysisConfigPath)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && anaCfg.APIKey == "" {
		anaCfg.APIKey = key
	}
	provider := analysis.NewProvider(anaCfg, logger)

	var expertCfgs []experts.ExpertConfig
	alpha := 0.0
	if cfg.ExpertsConfigPath != "" {
		var err error
		expertCfgs, alpha, err = experts.LoadFile(cfg.ExpertsConfigPath)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	tblCfg := tables.Config{}
	if cfg.TablesConfigPath != "" {
		var err error
		tblCfg, err = tables.LoadFile(cfg.TablesConfigPath)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	chain := textextract.NewChain(textextract.Config{
		Pdftotext:     cfg.Extract.Pdftotext,
		Pdftoppm:      cfg.Extract.Pdftoppm,
		Tesseract:     cfg.Extract.Tesseract,
		TesseractLang: cfg.Extract.TesseractLang,
		DPI:           cfg.Extract.DPI,
		MaxPages:      cfg.Extract.MaxPages,
	}, logger)

	proc := pipeline.NewProcessor(
		logger,
		idem,
		experts.NewRegistry(expertCfgs, alpha, logger),
		chain,
		tables.NewEngine(tblCfg, logger),
		analysis.NewService(provider, logger),
		confidence.NewAggregator(confidence.Config{}),
	)
	return proc, cleanup, nil
}
