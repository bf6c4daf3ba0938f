package tables

import (
	"strings"

	"github.com/markbunyevacz/lambda-extractor/internal/extract"
)

// normalize trims cells, pads ragged rows to the widest row, drops all-empty
// rows and promotes the first row to header. Returns the normalized tables
// and the mean self-reported accuracy (0 when none reported).
func normalize(raw []RawTable, backend string) ([]extract.Table, float64) {
	var (
		out     []extract.Table
		accSum  float64
		accSeen int
	)
	for _, rt := range raw {
		width := 0
		for _, row := range rt.Rows {
			if len(row) > width {
				width = len(row)
			}
		}
		if width == 0 {
			continue
		}

		var rows [][]string
		for _, row := range rt.Rows {
			cells := make([]string, width)
			empty := true
			for i := 0; i < width; i++ {
				if i < len(row) {
					cells[i] = strings.TrimSpace(row[i])
				}
				if cells[i] != "" {
					empty = false
				}
			}
			if !empty {
				rows = append(rows, cells)
			}
		}
		if len(rows) == 0 {
			continue
		}

		t := extract.Table{Page: rt.Page, Backend: backend}
		t.Header = rows[0]
		t.Rows = rows[1:]
		out = append(out, t)

		if rt.ReportedAccuracy > 0 {
			accSum += rt.ReportedAccuracy
			accSeen++
		}
	}
	if accSeen == 0 {
		return out, 0
	}
	return out, accSum / float64(accSeen)
}
