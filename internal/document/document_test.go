package document

import (
	"errors"
	"testing"
)

func TestNewRejectsNonPDF(t *testing.T) {
	_, err := New([]byte("hello"), "notes.txt", nil)
	if !errors.Is(err, ErrNotPDF) {
		t.Fatalf("New() error = %v, want ErrNotPDF", err)
	}
}

func TestNewRejectsEmpty(t *testing.T) {
	if _, err := New(nil, "empty.pdf", nil); err == nil {
		t.Fatal("New() error = nil for empty bytes, want error")
	}
}

func TestNewFingerprintIsContentDerived(t *testing.T) {
	a, err := New([]byte("%PDF-1.4 garbage"), "a.pdf", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New([]byte("%PDF-1.4 garbage"), "/inbox/b.PDF", nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Fingerprint != b.Fingerprint {
		t.Error("same bytes produced different fingerprints")
	}
	if a.Fingerprint == "" || len(a.Fingerprint) != 64 {
		t.Errorf("Fingerprint = %q, want 64 hex chars", a.Fingerprint)
	}

	c, err := New([]byte("%PDF-1.4 other"), "a.pdf", nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.Fingerprint == a.Fingerprint {
		t.Error("different bytes produced the same fingerprint")
	}
}

func TestNewMalformedPDFDegradesPageCount(t *testing.T) {
	// Not a parseable PDF: page counting fails but the document is still
	// accepted, since the OCR backend may cope where the parser cannot.
	doc, err := New([]byte("%PDF-1.4 truncated"), "scan.pdf", nil)
	if err != nil {
		t.Fatalf("New() error = %v, want acceptance with Pages=0", err)
	}
	if doc.Pages != 0 {
		t.Errorf("Pages = %d, want 0 for unparseable document", doc.Pages)
	}
	if doc.Filename != "scan.pdf" {
		t.Errorf("Filename = %q", doc.Filename)
	}
}
