package textextract

import (
	"context"
	"strings"

	"github.com/markbunyevacz/lambda-extractor/constants"
	"github.com/markbunyevacz/lambda-extractor/internal/document"
)

// layoutBackend shells out to pdftotext with -layout, which preserves the
// visual column structure. Its output doubles as the input for the
// layout-based table backends.
type layoutBackend struct {
	runner Runner
	bin    string
}

func (b *layoutBackend) ID() string { return constants.TextBackendLayout }

func (b *layoutBackend) Extract(ctx context.Context, doc document.Document, scratch *Scratch) (string, int, error) {
	path, err := scratch.Path(doc)
	if err != nil {
		return "", 0, err
	}
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, _, err := b.runner.Run(ctx, b.bin, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, err
	}
	text := string(out)
	// A form-feed \f is used as page separator by default.
	pages := 1 + strings.Count(text, "\f")
	return text, pages, nil
}
