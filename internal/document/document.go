package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/markbunyevacz/lambda-extractor/constants"
)

// Document is an immutable datasheet: raw bytes plus identity metadata.
// Fingerprint is the SHA-256 of the bytes and is the dedup key for the
// idempotency log.
type Document struct {
	Bytes       []byte
	Filename    string
	Fingerprint string
	Pages       int
}

var ErrNotPDF = errors.New("document is not a pdf")

// New builds a Document from raw bytes. Page count comes from pdfcpu; a
// malformed cross-reference table degrades to Pages=0 with a warning rather
// than rejecting the document, since the extraction backends may still cope.
func New(data []byte, filename string, logger *slog.Logger) (Document, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(data) == 0 {
		return Document{}, fmt.Errorf("empty document: %s", filename)
	}
	ext := constants.NormalizeExt(filepath.Ext(filename))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotPDF, filename)
	}

	sum := sha256.Sum256(data)
	doc := Document{
		Bytes:       data,
		Filename:    filepath.Base(filename),
		Fingerprint: hex.EncodeToString(sum[:]),
	}

	pages, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		logger.Warn("document.pagecount.failed", "file", doc.Filename, "error", err)
	} else {
		doc.Pages = pages
	}
	return doc, nil
}

// Reader returns a fresh ReaderAt over the document bytes. Backends must not
// share readers; each acquires its own so a failed parse cannot poison the
// next backend in the chain.
func (d Document) Reader() *bytes.Reader {
	return bytes.NewReader(d.Bytes)
}

func (d Document) Size() int64 { return int64(len(d.Bytes)) }
