package tables

import (
	"context"
	"testing"

	"github.com/markbunyevacz/lambda-extractor/internal/document"
)

func TestLatticeBackend(t *testing.T) {
	layout := `ROCKWOOL Airrock ND

| Property              | Value      | Standard   |
|-----------------------|------------|------------|
| Thermal conductivity  | 0.035 W/mK | EN 13162   |
| Fire classification   | A1         | EN 13501-1 |

Footer text.`

	raw, err := (&latticeBackend{}).Extract(context.Background(), document.Document{}, layout)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("len(raw) = %d, want 1", len(raw))
	}
	tab := raw[0]
	if tab.Page != 1 {
		t.Errorf("Page = %d, want 1", tab.Page)
	}
	if len(tab.Rows) != 3 {
		t.Fatalf("len(Rows) = %d, want 3 (rule lines skipped)", len(tab.Rows))
	}
	if got := tab.Rows[1][1]; got != " 0.035 W/mK " {
		t.Errorf("cell = %q, want raw cell with padding (normalization trims later)", got)
	}
}

func TestLatticeBackendNoLayoutText(t *testing.T) {
	if _, err := (&latticeBackend{}).Extract(context.Background(), document.Document{}, "  "); err == nil {
		t.Error("Extract() error = nil for empty layout text, want error")
	}
}

func TestStreamBackend(t *testing.T) {
	layout := "Product datasheet\n" +
		"Property                Value        Standard\n" +
		"Thermal conductivity    0.035 W/mK   EN 13162\n" +
		"Fire classification     A1           EN 13501-1\n" +
		"\n" +
		"Single column paragraph continues here.\n"

	raw, err := (&streamBackend{}).Extract(context.Background(), document.Document{}, layout)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("len(raw) = %d, want 1", len(raw))
	}
	if len(raw[0].Rows) != 3 {
		t.Fatalf("len(Rows) = %d, want 3", len(raw[0].Rows))
	}
	if raw[0].Rows[1][1] != "0.035 W/mK" {
		t.Errorf("cell = %q, want %q", raw[0].Rows[1][1], "0.035 W/mK")
	}
}

func TestStreamBackendSplitsOnCellCountDrift(t *testing.T) {
	layout := "a1  b1\n" +
		"a2  b2\n" +
		"x1  x2  x3  x4\n" +
		"y1  y2  y3  y4\n"

	raw, err := (&streamBackend{}).Extract(context.Background(), document.Document{}, layout)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(raw) != 2 {
		t.Fatalf("len(raw) = %d, want 2 (drift of >1 column starts a new table)", len(raw))
	}
}

func TestStreamBackendPages(t *testing.T) {
	layout := "h1  h2\nv1  v2\n\fh3  h4\nv3  v4\n"
	raw, err := (&streamBackend{}).Extract(context.Background(), document.Document{}, layout)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(raw) != 2 || raw[0].Page != 1 || raw[1].Page != 2 {
		t.Fatalf("pages = %+v, want tables on pages 1 and 2", raw)
	}
}

func TestFallbackBackend(t *testing.T) {
	layout := "Title line\n" +
		"λ  0.035\n" +
		"prose without columns\n" +
		"density  140\n"

	raw, err := (&fallbackBackend{}).Extract(context.Background(), document.Document{}, layout)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("len(raw) = %d, want 1", len(raw))
	}
	if len(raw[0].Rows) != 2 {
		t.Errorf("len(Rows) = %d, want 2 (non-consecutive multi-cell lines kept)", len(raw[0].Rows))
	}
	if raw[0].ReportedAccuracy != 0.4 {
		t.Errorf("ReportedAccuracy = %v, want 0.4", raw[0].ReportedAccuracy)
	}
}

func TestSplitColumns(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"a  b  c", 3},
		{"a\tb", 2},
		{"single", 1},
		{"   ", 0},
		{"a b", 1}, // single space is not a column gap
	}
	for _, tt := range tests {
		if got := len(splitColumns(tt.in)); got != tt.want {
			t.Errorf("splitColumns(%q) = %d cells, want %d", tt.in, got, tt.want)
		}
	}
}
