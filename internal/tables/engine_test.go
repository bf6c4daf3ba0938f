package tables

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/markbunyevacz/lambda-extractor/constants"
	"github.com/markbunyevacz/lambda-extractor/internal/document"
	"github.com/markbunyevacz/lambda-extractor/internal/extract"
)

type stubTableBackend struct {
	id    string
	raw   []RawTable
	err   error
	panic bool
}

func (s *stubTableBackend) ID() string { return s.id }

func (s *stubTableBackend) Extract(context.Context, document.Document, string) ([]RawTable, error) {
	if s.panic {
		panic("corrupt xref")
	}
	return s.raw, s.err
}

func doc() document.Document {
	return document.Document{Filename: "datasheet.pdf", Fingerprint: "fp"}
}

// plausibleRows contains enough domain vocabulary to clear the keyword
// threshold.
func plausibleRows() [][]string {
	return [][]string{
		{"Tulajdonság", "Érték", "Szabvány"},
		{"Hővezetési tényező", "0,035 W/mK", "EN 13162"},
		{"Tűzvédelmi osztály", "A1", "EN 13501-1"},
		{"Testsűrűség", "140 kg/m³", "EN 1602"},
	}
}

func implausibleRows() [][]string {
	return [][]string{
		{"Col1", "Col2"},
		{"foo", "bar"},
		{"baz", "qux"},
	}
}

func TestEnginePicksHighestScore(t *testing.T) {
	big := &stubTableBackend{id: constants.TableBackendLattice, raw: []RawTable{{Page: 1, Rows: plausibleRows()}}}
	small := &stubTableBackend{id: constants.TableBackendFallback, raw: []RawTable{{Page: 1, Rows: plausibleRows()[:2]}}}
	e := NewEngineWithBackends(Config{}, nil, small, big)

	res := e.Extract(context.Background(), doc(), "", nil)
	if res.Degraded {
		t.Fatal("Degraded = true, want false")
	}
	if res.Method != constants.TableBackendLattice {
		t.Errorf("Method = %q, want %q", res.Method, constants.TableBackendLattice)
	}
	if len(res.Tables) != 1 {
		t.Fatalf("len(Tables) = %d, want 1", len(res.Tables))
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		t.Errorf("Confidence = %v, want in [0,1]", res.Confidence)
	}
}

func TestEngineTieGoesToRegistrationOrder(t *testing.T) {
	rows := plausibleRows()
	// Same rows, same reliability weight: identical scores.
	a := &stubTableBackend{id: "alpha", raw: []RawTable{{Page: 1, Rows: rows}}}
	b := &stubTableBackend{id: "beta", raw: []RawTable{{Page: 1, Rows: rows}}}
	weights := map[string]float64{"alpha": 0.9, "beta": 0.9}
	e := NewEngineWithBackends(Config{BackendWeights: weights}, nil, a, b)

	for i := 0; i < 5; i++ {
		res := e.Extract(context.Background(), doc(), "", nil)
		if res.Method != "alpha" {
			t.Fatalf("run %d: Method = %q, want alpha (registration order)", i, res.Method)
		}
	}
}

func TestEngineImplausiblePenalty(t *testing.T) {
	e := NewEngineWithBackends(Config{}, nil)

	plausible, _ := normalize([]RawTable{{Page: 1, Rows: plausibleRows()}}, "x")
	implausible, _ := normalize([]RawTable{{Page: 1, Rows: implausibleRows()}}, "x")

	sp := e.score(plausible, constants.TableBackendLattice, 0, nil)
	si := e.score(implausible, constants.TableBackendLattice, 0, nil)
	if si >= sp {
		t.Errorf("implausible score %v >= plausible score %v, want penalized", si, sp)
	}
}

func TestEngineExpertOverridesFlipWinner(t *testing.T) {
	rows := plausibleRows()
	lattice := &stubTableBackend{id: constants.TableBackendLattice, raw: []RawTable{{Page: 1, Rows: rows}}}
	stream := &stubTableBackend{id: constants.TableBackendStream, raw: []RawTable{{Page: 1, Rows: rows}}}
	e := NewEngineWithBackends(Config{}, nil, lattice, stream)

	// Defaults favor lattice (1.0 vs 0.9).
	res := e.Extract(context.Background(), doc(), "", nil)
	if res.Method != constants.TableBackendLattice {
		t.Fatalf("default Method = %q, want lattice", res.Method)
	}

	// An expert that distrusts ruled lines flips the choice.
	overrides := map[string]float64{
		constants.TableBackendLattice: 0.3,
		constants.TableBackendStream:  1.0,
	}
	res = e.Extract(context.Background(), doc(), "", overrides)
	if res.Method != constants.TableBackendStream {
		t.Errorf("overridden Method = %q, want stream", res.Method)
	}
}

func TestEngineDegradedWhenNothingFound(t *testing.T) {
	e := NewEngineWithBackends(Config{}, nil,
		&stubTableBackend{id: "a", err: errors.New("parse error")},
		&stubTableBackend{id: "b", panic: true},
		&stubTableBackend{id: "c"},
	)

	res := e.Extract(context.Background(), doc(), "", nil)
	if !res.Degraded {
		t.Fatal("Degraded = false, want true")
	}
	if len(res.Tables) != 0 {
		t.Errorf("len(Tables) = %d, want 0", len(res.Tables))
	}
	if len(res.Attempts) != 3 {
		t.Fatalf("len(Attempts) = %d, want 3", len(res.Attempts))
	}
	// The panicking backend must surface as a recorded failure, not a crash.
	if res.Attempts[1].Error == "" {
		t.Error("panicking backend attempt has empty Error")
	}
}

func TestSaturate(t *testing.T) {
	tests := []struct {
		x, k, want float64
	}{
		{0, 40, 0},
		{-5, 40, 0},
		{40, 40, 0.5},
		{120, 40, 0.75},
	}
	for _, tt := range tests {
		if got := saturate(tt.x, tt.k); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("saturate(%v, %v) = %v, want %v", tt.x, tt.k, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	raw := []RawTable{{
		Page: 2,
		Rows: [][]string{
			{" Property ", "Value"},
			{"λ", "0.035", "W/mK"}, // ragged: wider than header
			{"", "  ", ""},         // all empty, dropped
			{"Density", "140"},
		},
		ReportedAccuracy: 0.9,
	}}

	tabs, acc := normalize(raw, "stream")
	if len(tabs) != 1 {
		t.Fatalf("len(tabs) = %d, want 1", len(tabs))
	}
	tab := tabs[0]
	if len(tab.Header) != 3 {
		t.Errorf("header width = %d, want 3 (padded to widest row)", len(tab.Header))
	}
	if tab.Header[0] != "Property" {
		t.Errorf("Header[0] = %q, want trimmed %q", tab.Header[0], "Property")
	}
	if len(tab.Rows) != 2 {
		t.Errorf("len(Rows) = %d, want 2 (empty row dropped)", len(tab.Rows))
	}
	if tab.Page != 2 || tab.Backend != "stream" {
		t.Errorf("Page/Backend = %d/%q, want 2/stream", tab.Page, tab.Backend)
	}
	if acc != 0.9 {
		t.Errorf("accuracy = %v, want 0.9", acc)
	}
}

var _ extract.TableExtractor = (*Engine)(nil)
