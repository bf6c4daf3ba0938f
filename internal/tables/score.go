package tables

import (
	"fmt"
	"strings"

	"github.com/markbunyevacz/lambda-extractor/constants"
	"github.com/markbunyevacz/lambda-extractor/internal/extract"
)

// score computes the per-backend quality score:
//
//	sat(totalCells) × reliabilityWeight × (reportedAccuracy | default)
//
// then applies the domain-plausibility adjustment. Implausible tables are
// deprioritized, not dropped — a false negative costs more than a noisy table.
func (e *Engine) score(tabs []extract.Table, backend string, accuracy float64, overrides map[string]float64) float64 {
	cells := 0
	for _, t := range tabs {
		if len(t.Header) > 0 {
			cells += len(t.Header)
		}
		for _, r := range t.Rows {
			cells += len(r)
		}
	}
	if accuracy <= 0 {
		accuracy = constants.DefaultParserAccuracy
	}

	s := saturate(float64(cells), e.cfg.SaturationCells) * e.weight(backend, overrides) * accuracy

	if keywordHits(tabs, e.cfg.Keywords) < constants.TableKeywordMinHits {
		s *= constants.TableImplausiblePenalty
	}
	return s
}

// saturate maps [0,∞) onto [0,1) with diminishing returns; k is the midpoint.
func saturate(x, k float64) float64 {
	if x <= 0 {
		return 0
	}
	return x / (x + k)
}

// keywordHits counts distinct keyword matches over the flattened table text.
func keywordHits(tabs []extract.Table, keywords []string) int {
	var sb strings.Builder
	for _, t := range tabs {
		sb.WriteString(strings.ToLower(strings.Join(t.Header, " ")))
		sb.WriteByte(' ')
		for _, r := range t.Rows {
			sb.WriteString(strings.ToLower(strings.Join(r, " ")))
			sb.WriteByte(' ')
		}
	}
	body := sb.String()

	hits := 0
	for _, kw := range keywords {
		if strings.Contains(body, kw) {
			hits++
		}
	}
	return hits
}

func recoveredErr(backend string, r any) error {
	return fmt.Errorf("%s backend panic: %v", backend, r)
}
