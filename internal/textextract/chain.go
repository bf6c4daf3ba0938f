package textextract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/markbunyevacz/lambda-extractor/constants"
	"github.com/markbunyevacz/lambda-extractor/internal/document"
	"github.com/markbunyevacz/lambda-extractor/internal/extract"
)

// Backend is one concrete text extraction strategy. Implementations must not
// retain the document or any native handle after Extract returns.
type Backend interface {
	ID() string
	Extract(ctx context.Context, doc document.Document, scratch *Scratch) (string, int, error)
}

// Scratch gives external-process backends a materialized file path for the
// document, created lazily and removed when the chain finishes.
type Scratch struct {
	dir  string
	path string
}

// Path writes the document to a temp file on first use.
func (s *Scratch) Path(doc document.Document) (string, error) {
	if s.path != "" {
		return s.path, nil
	}
	dir, err := os.MkdirTemp("", "lx-doc-*")
	if err != nil {
		return "", err
	}
	s.dir = dir
	s.path = filepath.Join(dir, doc.Filename)
	if err := os.WriteFile(s.path, doc.Bytes, 0o600); err != nil {
		return "", err
	}
	return s.path, nil
}

func (s *Scratch) cleanup() {
	if s.dir != "" {
		_ = os.RemoveAll(s.dir)
		s.dir, s.path = "", ""
	}
}

// Config for the fallback chain and its stock backends.
type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // if empty -> "pdftoppm"
	Tesseract string // if empty -> "tesseract"

	TesseractLang string // default "hun+eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit
}

// Chain tries backends in fixed priority order and returns the first
// non-blank text. Every backend failure is recorded and does not abort the
// chain; the chain itself fails only when all backends do.
type Chain struct {
	backends []Backend
	logger   *slog.Logger
}

// ErrNoText is wrapped into the error returned when every backend failed or
// produced only blank text.
var ErrNoText = fmt.Errorf("no text backend produced usable output")

func NewChain(cfg Config, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "hun+eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	r := execRunner{}
	return &Chain{
		logger: logger,
		backends: []Backend{
			&layoutBackend{runner: r, bin: cfg.Pdftotext},
			&linearBackend{},
			&ocrBackend{runner: r, cfg: cfg},
		},
	}
}

// NewChainWithBackends builds a chain over explicit backends, used in tests
// and by callers that need a custom priority order.
func NewChainWithBackends(logger *slog.Logger, backends ...Backend) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{backends: backends, logger: logger}
}

// Extract runs the chain. The layout backend's raw rendering is retained on
// the result even when a later backend wins, because the table stage feeds
// on it.
func (c *Chain) Extract(ctx context.Context, doc document.Document) (extract.TextResult, error) {
	res := extract.TextResult{Pages: doc.Pages}
	scratch := &Scratch{}
	defer scratch.cleanup()

	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		start := time.Now()
		text, pages, err := b.Extract(ctx, doc, scratch)
		att := extract.Attempt{
			Backend:  b.ID(),
			Duration: time.Since(start),
			TextLen:  len(text),
		}
		if err != nil {
			att.Error = err.Error()
			res.Attempts = append(res.Attempts, att)
			c.logger.Warn("textextract.backend.failed", "backend", b.ID(), "file", doc.Filename, "error", err)
			continue
		}
		if b.ID() == constants.TextBackendLayout {
			res.LayoutText = text
		}
		if strings.TrimSpace(text) == "" {
			att.Error = "blank output"
			res.Attempts = append(res.Attempts, att)
			c.logger.Warn("textextract.backend.blank", "backend", b.ID(), "file", doc.Filename)
			continue
		}
		att.Success = true
		res.Attempts = append(res.Attempts, att)

		res.Text = text
		res.Method = b.ID()
		if pages > 0 {
			res.Pages = pages
		}
		c.logger.Info("textextract.ok",
			"backend", b.ID(), "file", doc.Filename,
			"text_len", len(text), "pages", res.Pages,
		)
		return res, nil
	}

	return res, fmt.Errorf("%w: %s (%d backends tried)", ErrNoText, doc.Filename, len(c.backends))
}
