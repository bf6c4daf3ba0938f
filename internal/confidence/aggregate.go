package confidence

import (
	"strings"

	"github.com/markbunyevacz/lambda-extractor/constants"
	"github.com/markbunyevacz/lambda-extractor/internal/analysis"
	"github.com/markbunyevacz/lambda-extractor/internal/extract"
)

// Weights for the composite confidence formula. They should sum to 1; the
// aggregator normalizes anyway so a sloppy config cannot push scores out of
// [0,1].
type Weights struct {
	AI             float64
	TextQuality    float64
	TableQuality   float64
	Identification float64
}

func DefaultWeights() Weights {
	return Weights{AI: 0.5, TextQuality: 0.2, TableQuality: 0.2, Identification: 0.1}
}

// Config tunes the saturating quality functions.
type Config struct {
	Weights Weights
	// TextSaturation is the text length (bytes) at which textQuality = 0.5.
	TextSaturation float64 // default 2000
	// TableSaturation is the table count at which tableQuality = 0.5.
	TableSaturation float64 // default 2
}

// Aggregator combines the three extractor signals into the composite score
// plus the secondary metrics. It is stateless and safe for concurrent use.
type Aggregator struct {
	cfg Config
}

func NewAggregator(cfg Config) *Aggregator {
	zero := Weights{}
	if cfg.Weights == zero {
		cfg.Weights = DefaultWeights()
	}
	if cfg.TextSaturation <= 0 {
		cfg.TextSaturation = 2000
	}
	if cfg.TableSaturation <= 0 {
		cfg.TableSaturation = 2
	}
	return &Aggregator{cfg: cfg}
}

// Scores are the three independently exposed metrics.
type Scores struct {
	Confidence       float64
	DataCompleteness float64
	StructureQuality float64
	FieldConfidences map[string]float64
}

// Aggregate computes all metrics from the stage outputs. Every returned value
// is clamped to [0,1], including for degenerate empty inputs.
func (a *Aggregator) Aggregate(text extract.TextResult, tabs extract.TableResult, ai analysis.StructuredResult) Scores {
	w := a.cfg.Weights
	total := w.AI + w.TextQuality + w.TableQuality + w.Identification
	if total <= 0 {
		w = DefaultWeights()
		total = 1
	}

	textQ := saturate(float64(len(text.Text)), a.cfg.TextSaturation)
	tableQ := saturate(float64(len(tabs.Tables)), a.cfg.TableSaturation)
	identC := identificationCompleteness(ai)

	composite := (w.AI*ai.Confidence + w.TextQuality*textQ + w.TableQuality*tableQ + w.Identification*identC) / total

	return Scores{
		Confidence:       clamp01(composite),
		DataCompleteness: clamp01(dataCompleteness(ai)),
		StructureQuality: clamp01(structureQuality(tabs, ai)),
		FieldConfidences: fieldConfidences(ai),
	}
}

// identificationCompleteness is the filled fraction of {name, code, category,
// application}.
func identificationCompleteness(ai analysis.StructuredResult) float64 {
	ident := ai.Section("identification")
	if ident == nil {
		return 0
	}
	filled := 0
	for _, f := range constants.IdentificationFields {
		if nonEmpty(ident[f]) {
			filled++
		}
	}
	return float64(filled) / float64(len(constants.IdentificationFields))
}

// dataCompleteness walks the fixed required-field checklist.
func dataCompleteness(ai analysis.StructuredResult) float64 {
	if ai.Data == nil {
		return 0
	}
	present := 0
	for _, path := range constants.RequiredChecklist {
		if nonEmpty(lookupPath(ai.Data, path)) {
			present++
		}
	}
	return float64(present) / float64(len(constants.RequiredChecklist))
}

// structureQuality averages two booleans: the chosen table looks like a table
// (header plus at least one data row) and the AI result carries both required
// sections.
func structureQuality(tabs extract.TableResult, ai analysis.StructuredResult) float64 {
	score := 0.0
	for _, t := range tabs.Tables {
		if len(t.Header) > 0 && len(t.Rows) >= 1 {
			score += 0.5
			break
		}
	}

	sections := 0
	for _, s := range constants.RequiredSections {
		if ai.Section(s) != nil {
			sections++
		}
	}
	if sections == len(constants.RequiredSections) {
		score += 0.5
	}
	return score
}

// fieldConfidences assigns the model confidence to every non-empty leaf of
// the structured data, so callers can threshold per field-path.
func fieldConfidences(ai analysis.StructuredResult) map[string]float64 {
	out := make(map[string]float64)
	if ai.Data == nil {
		return out
	}
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		switch t := v.(type) {
		case map[string]any:
			for k, child := range t {
				p := k
				if prefix != "" {
					p = prefix + "." + k
				}
				walk(p, child)
			}
		default:
			if prefix != "" && prefix != "confidence" && nonEmpty(v) {
				out[prefix] = clamp01(ai.Confidence)
			}
		}
	}
	walk("", ai.Data)
	return out
}

func lookupPath(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[part]
	}
	return cur
}

func nonEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	default:
		return true
	}
}

func saturate(x, k float64) float64 {
	if x <= 0 {
		return 0
	}
	return x / (x + k)
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
