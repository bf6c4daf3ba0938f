package extract

import (
	"context"
	"time"

	"github.com/markbunyevacz/lambda-extractor/internal/document"
)

// TextExtractor is Stage 1: document -> plain text with fallback.
type TextExtractor interface {
	Extract(ctx context.Context, doc document.Document) (TextResult, error)
}

// TableExtractor is Stage 2: document (+ layout text from Stage 1) -> tables.
// weightOverrides lets the routed expert reweight backends per task; nil
// keeps the engine defaults.
type TableExtractor interface {
	Extract(ctx context.Context, doc document.Document, layoutText string, weightOverrides map[string]float64) TableResult
}

// Attempt records one backend run, kept for diagnostics whether or not the
// backend's output was chosen.
type Attempt struct {
	Backend  string        `json:"backend"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Tables   int           `json:"tables,omitempty"`
	TextLen  int           `json:"text_len,omitempty"`
}

// TextResult is the outcome of the text fallback chain.
type TextResult struct {
	Text     string
	Method   string // winning backend id
	Pages    int
	Attempts []Attempt
	// LayoutText is the raw -layout rendering when the layout backend ran,
	// retained for the table stage even when another backend won.
	LayoutText string
}

// Table is a normalized extracted table.
type Table struct {
	Page    int        `json:"page"`
	Header  []string   `json:"header,omitempty"`
	Rows    [][]string `json:"rows"`
	Backend string     `json:"backend"`
}

// Candidate is a table plus its pre-normalization quality score.
type Candidate struct {
	Table Table
	// Score is the raw quality score, >= 0, before cross-backend normalization.
	Score float64
	// ReportedAccuracy is the parser's own estimate in 0..1; 0 means none given.
	ReportedAccuracy float64
}

// TableResult is the outcome of the hybrid table engine.
type TableResult struct {
	Tables       []Table
	Method       string // winning backend id, "" when nothing was found
	QualityScore float64
	Confidence   float64 // blend of normalized quality and agreement ratio
	Attempts     []Attempt
	Degraded     bool // all backends failed or found nothing
}
