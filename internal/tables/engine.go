package tables

import (
	"context"
	"log/slog"
	"time"

	"github.com/markbunyevacz/lambda-extractor/constants"
	"github.com/markbunyevacz/lambda-extractor/internal/document"
	"github.com/markbunyevacz/lambda-extractor/internal/extract"
)

// Backend is one table extraction strategy. RawTables carry unnormalized rows;
// the engine owns normalization and scoring.
type Backend interface {
	ID() string
	Extract(ctx context.Context, doc document.Document, layoutText string) ([]RawTable, error)
}

// RawTable is a backend's unnormalized output for one table.
type RawTable struct {
	Page int
	Rows [][]string
	// ReportedAccuracy is the parser's self-estimate in 0..1; 0 = not reported.
	ReportedAccuracy float64
}

// Config tunes scoring. Zero values fall back to package defaults.
type Config struct {
	// BackendWeights overrides constants.DefaultBackendWeights per backend id.
	BackendWeights map[string]float64
	// QualityWeight and AgreementWeight blend the confidence score.
	QualityWeight   float64 // default 0.7
	AgreementWeight float64 // default 0.3
	// Keywords overrides the domain-plausibility vocabulary.
	Keywords []string
	// SaturationCells is the cell count at which sat() reaches 0.5; default 40.
	SaturationCells float64
}

// Engine runs every registered backend, scores each result independently and
// picks the winner. Backend failures are recorded, never propagated: a noisy
// table set beats a silently dropped one.
type Engine struct {
	backends []Backend
	cfg      Config
	logger   *slog.Logger
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	return NewEngineWithBackends(cfg, logger,
		&latticeBackend{},
		&streamBackend{},
		&blockBackend{},
		&fallbackBackend{},
	)
}

// NewEngineWithBackends is the test seam; backend order fixes tie-breaking.
func NewEngineWithBackends(cfg Config, logger *slog.Logger, backends ...Backend) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QualityWeight <= 0 && cfg.AgreementWeight <= 0 {
		cfg.QualityWeight, cfg.AgreementWeight = 0.7, 0.3
	}
	if cfg.SaturationCells <= 0 {
		cfg.SaturationCells = 40
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = constants.TableKeywords
	}
	return &Engine{backends: backends, cfg: cfg, logger: logger}
}

func (e *Engine) weight(backend string, overrides map[string]float64) float64 {
	if w, ok := overrides[backend]; ok && w > 0 {
		return w
	}
	if w, ok := e.cfg.BackendWeights[backend]; ok && w > 0 {
		return w
	}
	if w, ok := constants.DefaultBackendWeights[backend]; ok {
		return w
	}
	return 0.5
}

// Extract implements extract.TableExtractor.
func (e *Engine) Extract(ctx context.Context, doc document.Document, layoutText string, weightOverrides map[string]float64) extract.TableResult {
	type scored struct {
		backend string
		tables  []extract.Table
		score   float64
	}

	var (
		res       extract.TableResult
		best      *scored
		producers int
	)

	for _, b := range e.backends {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		raw, err := e.runBackend(ctx, b, doc, layoutText)
		att := extract.Attempt{Backend: b.ID(), Duration: time.Since(start)}
		if err != nil {
			att.Error = err.Error()
			res.Attempts = append(res.Attempts, att)
			e.logger.Warn("tables.backend.failed", "backend", b.ID(), "file", doc.Filename, "error", err)
			continue
		}

		tabs, accuracy := normalize(raw, b.ID())
		att.Success = true
		att.Tables = len(tabs)
		res.Attempts = append(res.Attempts, att)

		if len(tabs) == 0 {
			continue
		}
		producers++

		score := e.score(tabs, b.ID(), accuracy, weightOverrides)
		e.logger.Debug("tables.backend.scored",
			"backend", b.ID(), "file", doc.Filename,
			"tables", len(tabs), "score", score,
		)
		// Strict greater-than keeps ties resolved by registration order.
		if best == nil || score > best.score {
			best = &scored{backend: b.ID(), tables: tabs, score: score}
		}
	}

	if best == nil {
		res.Degraded = true
		e.logger.Warn("tables.degraded", "file", doc.Filename, "backends", len(e.backends))
		return res
	}

	res.Tables = best.tables
	res.Method = best.backend
	res.QualityScore = best.score

	agreement := float64(producers) / float64(len(e.backends))
	quality := best.score
	if quality > 1 {
		quality = 1
	}
	res.Confidence = clamp01(e.cfg.QualityWeight*quality + e.cfg.AgreementWeight*agreement)

	e.logger.Info("tables.ok",
		"file", doc.Filename, "method", res.Method,
		"tables", len(res.Tables), "quality", res.QualityScore,
		"confidence", res.Confidence, "agreement", agreement,
	)
	return res
}

// runBackend isolates a backend call; the in-process PDF parsers are not
// panic-free on malformed documents.
func (e *Engine) runBackend(ctx context.Context, b Backend, doc document.Document, layoutText string) (raw []RawTable, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoveredErr(b.ID(), r)
		}
	}()
	return b.Extract(ctx, doc, layoutText)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
