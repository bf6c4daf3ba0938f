package constants

import "testing"

func TestNormalizeDocType(t *testing.T) {
	tests := []struct {
		in   string
		want DocumentType
	}{
		{"datasheet", DocTypeDatasheet},
		{"Műszaki adatlap", DocTypeDatasheet},
		{"  ADATLAP ", DocTypeDatasheet},
		{"árlista", DocTypePriceList},
		{"DoP", DocTypeDeclaration},
		{"teljesítménynyilatkozat", DocTypeDeclaration},
		{"prospektus", DocTypeBrochure},
		{"", DocTypeUnknown},
		{"random", DocTypeUnknown},
	}
	for _, tt := range tests {
		if got := NormalizeDocType(tt.in); got != tt.want {
			t.Errorf("NormalizeDocType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeManufacturer(t *testing.T) {
	if got := NormalizeManufacturer("  Rockwool "); got != "ROCKWOOL" {
		t.Errorf("NormalizeManufacturer = %q, want ROCKWOOL", got)
	}
}

func TestNormalizeExt(t *testing.T) {
	tests := []struct{ in, want string }{
		{".PDF", "pdf"},
		{"pdf", "pdf"},
		{".docx", "docx"},
	}
	for _, tt := range tests {
		if got := NormalizeExt(tt.in); got != tt.want {
			t.Errorf("NormalizeExt(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
