package textextract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/markbunyevacz/lambda-extractor/constants"
	"github.com/markbunyevacz/lambda-extractor/internal/document"
)

// linearBackend reads the PDF in-process and concatenates plain page text.
// It has no layout awareness but needs no external binaries.
type linearBackend struct{}

func (b *linearBackend) ID() string { return constants.TextBackendLinear }

func (b *linearBackend) Extract(ctx context.Context, doc document.Document, _ *Scratch) (text string, pages int, err error) {
	// The parser panics on malformed xref tables; convert that to a backend
	// error so the chain can move on.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(doc.Reader(), doc.Size())
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}

	var sb strings.Builder
	n := reader.NumPage()
	for i := 1; i <= n; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", 0, ctxErr
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, perr := page.GetPlainText(nil)
		if perr != nil {
			continue // a single broken page must not sink the document
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), n, nil
}
