package tables

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/markbunyevacz/lambda-extractor/constants"
	"github.com/markbunyevacz/lambda-extractor/internal/document"
)

// ---- lattice: ruling-character grids in layout text ----

// latticeBackend detects tables drawn with explicit cell separators ('|'
// columns, '-'/'=' rules). Datasheets exported from office suites often keep
// these characters in the text layer.
type latticeBackend struct{}

func (b *latticeBackend) ID() string { return constants.TableBackendLattice }

var reRule = regexp.MustCompile(`^[\s|+\-=_]+$`)

func (b *latticeBackend) Extract(_ context.Context, _ document.Document, layoutText string) ([]RawTable, error) {
	if strings.TrimSpace(layoutText) == "" {
		return nil, fmt.Errorf("no layout text available")
	}

	var out []RawTable
	for pageNo, page := range strings.Split(layoutText, "\f") {
		var rows [][]string
		flush := func() {
			if len(rows) >= 2 {
				out = append(out, RawTable{Page: pageNo + 1, Rows: rows, ReportedAccuracy: 0.9})
			}
			rows = nil
		}
		for _, line := range strings.Split(page, "\n") {
			if strings.Count(line, "|") >= 2 && !reRule.MatchString(line) {
				cells := strings.Split(strings.Trim(line, "| "), "|")
				rows = append(rows, cells)
				continue
			}
			if reRule.MatchString(line) && strings.ContainsAny(line, "-=+") {
				continue // horizontal rule inside a grid, not a row boundary
			}
			flush()
		}
		flush()
	}
	return out, nil
}

// ---- stream: whitespace column inference over layout text ----

// streamBackend infers columns from runs of two or more spaces, the way
// pdftotext -layout renders tab stops. A block of consecutive multi-cell
// lines with stable cell counts is treated as one table.
type streamBackend struct{}

func (b *streamBackend) ID() string { return constants.TableBackendStream }

var reColGap = regexp.MustCompile(`\s{2,}|\t`)

func (b *streamBackend) Extract(_ context.Context, _ document.Document, layoutText string) ([]RawTable, error) {
	if strings.TrimSpace(layoutText) == "" {
		return nil, fmt.Errorf("no layout text available")
	}

	var out []RawTable
	for pageNo, page := range strings.Split(layoutText, "\f") {
		var rows [][]string
		flush := func() {
			if len(rows) >= 2 {
				out = append(out, RawTable{Page: pageNo + 1, Rows: rows})
			}
			rows = nil
		}
		for _, line := range strings.Split(page, "\n") {
			cells := splitColumns(line)
			if len(cells) < 2 {
				flush()
				continue
			}
			// Cell-count drift beyond one column means a new table.
			if len(rows) > 0 && abs(len(cells)-len(rows[len(rows)-1])) > 1 {
				flush()
			}
			rows = append(rows, cells)
		}
		flush()
	}
	return out, nil
}

func splitColumns(line string) []string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	parts := reColGap.Split(trimmed, -1)
	var cells []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// ---- block: positioned-content clustering via the in-process parser ----

// blockBackend clusters positioned text runs into rows (by Y) and cells (by
// X gaps). It works without any external binary and without a layout render,
// so it still produces candidates when pdftotext is unavailable.
type blockBackend struct{}

func (b *blockBackend) ID() string { return constants.TableBackendBlock }

const (
	rowTolerance = 2.5  // max Y delta for two runs to share a row
	cellGap      = 12.0 // min X gap that opens a new cell
)

func (b *blockBackend) Extract(ctx context.Context, doc document.Document, _ string) ([]RawTable, error) {
	reader, err := pdf.NewReader(doc.Reader(), doc.Size())
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var out []RawTable
	for pageNo := 1; pageNo <= reader.NumPage(); pageNo++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(pageNo)
		if page.V.IsNull() {
			continue
		}
		rows := clusterRows(page.Content().Text)

		// Consecutive multi-cell rows form a table candidate.
		var current [][]string
		flush := func() {
			if len(current) >= 2 {
				out = append(out, RawTable{Page: pageNo, Rows: current})
			}
			current = nil
		}
		for _, r := range rows {
			if len(r) >= 2 {
				current = append(current, r)
			} else {
				flush()
			}
		}
		flush()
	}
	return out, nil
}

func clusterRows(texts []pdf.Text) [][]string {
	if len(texts) == 0 {
		return nil
	}
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	// PDF Y grows upward; sort top-to-bottom, then left-to-right.
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var rows [][]string
	var line []pdf.Text
	lineY := sorted[0].Y
	emit := func() {
		if len(line) == 0 {
			return
		}
		var cells []string
		var cell strings.Builder
		prevEnd := line[0].X
		for i, t := range line {
			if i > 0 && t.X-prevEnd > cellGap {
				cells = append(cells, strings.TrimSpace(cell.String()))
				cell.Reset()
			}
			cell.WriteString(t.S)
			prevEnd = t.X + t.W
		}
		cells = append(cells, strings.TrimSpace(cell.String()))
		rows = append(rows, cells)
		line = nil
	}

	for _, t := range sorted {
		if lineY-t.Y > rowTolerance {
			emit()
			lineY = t.Y
		}
		line = append(line, t)
	}
	emit()
	return rows
}

// ---- fallback: cheap line splitting ----

// fallbackBackend is the low-cost safety net: any line that splits into two
// or more cells is kept, one table per page. Low reliability weight keeps it
// from winning unless everything else failed.
type fallbackBackend struct{}

func (b *fallbackBackend) ID() string { return constants.TableBackendFallback }

func (b *fallbackBackend) Extract(_ context.Context, _ document.Document, layoutText string) ([]RawTable, error) {
	if strings.TrimSpace(layoutText) == "" {
		return nil, fmt.Errorf("no layout text available")
	}

	var out []RawTable
	for pageNo, page := range strings.Split(layoutText, "\f") {
		var rows [][]string
		for _, line := range strings.Split(page, "\n") {
			if cells := splitColumns(line); len(cells) >= 2 {
				rows = append(rows, cells)
			}
		}
		if len(rows) >= 2 {
			out = append(out, RawTable{Page: pageNo + 1, Rows: rows, ReportedAccuracy: 0.4})
		}
	}
	return out, nil
}
