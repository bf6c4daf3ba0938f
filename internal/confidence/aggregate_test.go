package confidence

import (
	"strings"
	"testing"

	"github.com/markbunyevacz/lambda-extractor/internal/analysis"
	"github.com/markbunyevacz/lambda-extractor/internal/extract"
)

// datasheetAI mirrors a typical structuring result for a stone wool datasheet.
func datasheetAI() analysis.StructuredResult {
	return analysis.StructuredResult{
		Data: map[string]any{
			"identification": map[string]any{
				"name":        "Airrock ND",
				"code":        "AR-ND",
				"category":    "stone wool",
				"application": "partition walls",
			},
			"technical_specifications": map[string]any{
				"thermal_conductivity": "0.035 W/mK",
				"fire_classification":  "A1",
				"density":              "140 kg/m³",
			},
			"confidence": 0.85,
		},
		Confidence: 0.85,
	}
}

func datasheetTable() extract.TableResult {
	return extract.TableResult{
		Tables: []extract.Table{{
			Page:   1,
			Header: []string{"Property", "Value", "Standard"},
			Rows: [][]string{
				{"Thermal conductivity", "0.035 W/mK", "EN 13162"},
				{"Fire classification", "A1", "EN 13501-1"},
				{"Density", "140 kg/m³", "EN 1602"},
			},
		}},
		Method:     "lattice",
		Confidence: 0.8,
	}
}

func TestAggregateTypicalDatasheet(t *testing.T) {
	agg := NewAggregator(Config{})
	text := extract.TextResult{Text: strings.Repeat("datasheet text ", 300)} // ~4.5KB

	scores := agg.Aggregate(text, datasheetTable(), datasheetAI())

	if scores.Confidence <= 0.6 {
		t.Errorf("Confidence = %v, want > 0.6 for a well-extracted datasheet", scores.Confidence)
	}
	if scores.Confidence > 1 {
		t.Errorf("Confidence = %v, want <= 1", scores.Confidence)
	}
	// All four checklist fields present.
	if scores.DataCompleteness != 1 {
		t.Errorf("DataCompleteness = %v, want 1", scores.DataCompleteness)
	}
	// Table has header+rows and both required sections exist.
	if scores.StructureQuality != 1 {
		t.Errorf("StructureQuality = %v, want 1", scores.StructureQuality)
	}
	if c := scores.FieldConfidences["technical_specifications.thermal_conductivity"]; c != 0.85 {
		t.Errorf("thermal_conductivity field confidence = %v, want 0.85", c)
	}
}

func TestAggregateEmptyInputsStayBounded(t *testing.T) {
	agg := NewAggregator(Config{})
	scores := agg.Aggregate(extract.TextResult{}, extract.TableResult{Degraded: true}, analysis.StructuredResult{Err: "no data"})

	for name, v := range map[string]float64{
		"Confidence":       scores.Confidence,
		"DataCompleteness": scores.DataCompleteness,
		"StructureQuality": scores.StructureQuality,
	} {
		if v < 0 || v > 1 {
			t.Errorf("%s = %v, want in [0,1]", name, v)
		}
	}
	if scores.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0 for empty inputs", scores.Confidence)
	}
	if len(scores.FieldConfidences) != 0 {
		t.Errorf("FieldConfidences = %v, want empty", scores.FieldConfidences)
	}
}

func TestAggregatePartialChecklist(t *testing.T) {
	ai := analysis.StructuredResult{
		Data: map[string]any{
			"identification": map[string]any{"name": "Airrock"},
			"technical_specifications": map[string]any{
				"thermal_conductivity": "0.035 W/mK",
			},
		},
		Confidence: 0.7,
	}
	agg := NewAggregator(Config{})
	scores := agg.Aggregate(extract.TextResult{Text: "x"}, extract.TableResult{}, ai)

	// name + thermal_conductivity present, code + fire_classification missing.
	if scores.DataCompleteness != 0.5 {
		t.Errorf("DataCompleteness = %v, want 0.5", scores.DataCompleteness)
	}
	// No usable table, but both required sections present.
	if scores.StructureQuality != 0.5 {
		t.Errorf("StructureQuality = %v, want 0.5", scores.StructureQuality)
	}
}

func TestAggregateSloppyWeightsNormalized(t *testing.T) {
	// Weights summing to 2 must not push the composite above 1.
	agg := NewAggregator(Config{Weights: Weights{AI: 1, TextQuality: 0.5, TableQuality: 0.3, Identification: 0.2}})
	ai := datasheetAI()
	ai.Confidence = 1

	scores := agg.Aggregate(
		extract.TextResult{Text: strings.Repeat("a", 100000)},
		datasheetTable(),
		ai,
	)
	if scores.Confidence > 1 {
		t.Errorf("Confidence = %v, want <= 1 after normalization", scores.Confidence)
	}
}

func TestFieldConfidencesSkipConfidenceLeaf(t *testing.T) {
	scores := NewAggregator(Config{}).Aggregate(extract.TextResult{}, extract.TableResult{}, datasheetAI())
	if _, ok := scores.FieldConfidences["confidence"]; ok {
		t.Error("FieldConfidences contains the confidence leaf itself")
	}
	if _, ok := scores.FieldConfidences["identification.name"]; !ok {
		t.Error("FieldConfidences missing identification.name")
	}
}
