package textextract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/markbunyevacz/lambda-extractor/constants"
	"github.com/markbunyevacz/lambda-extractor/internal/document"
)

// ocrBackend rasterizes pages with pdftoppm and OCRs each image with
// tesseract. It is the block/region backend of last resort for scanned
// datasheets where the text layer is missing or garbage.
type ocrBackend struct {
	runner Runner
	cfg    Config
}

func (b *ocrBackend) ID() string { return constants.TextBackendOCR }

func (b *ocrBackend) Extract(ctx context.Context, doc document.Document, scratch *Scratch) (string, int, error) {
	path, err := scratch.Path(doc)
	if err != nil {
		return "", 0, err
	}

	tmpDir, err := os.MkdirTemp("", "lx-pp-*")
	if err != nil {
		return "", 0, err
	}
	defer func() {
		if rerr := os.RemoveAll(tmpDir); rerr != nil {
			fmt.Printf("warning: failed to remove temp dir %q: %v\n", tmpDir, rerr)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := b.runner.Run(ctx, b.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", b.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", 0, fmt.Errorf("pdftoppm: %w (%s)", err, truncate(string(errb), 512))
	}

	// collect generated pngs (prefix-1.png, prefix-2.png, ...)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if b.cfg.MaxPages > 0 && len(matches) > b.cfg.MaxPages {
		matches = matches[:b.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, fmt.Errorf("pdftoppm produced no images")
	}

	var sb strings.Builder
	for _, img := range matches {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", 0, ctxErr
		}
		args := []string{img, "stdout", "-l", b.cfg.TesseractLang}
		out, _, terr := b.runner.Run(ctx, b.cfg.Tesseract, args...)
		if terr != nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\f\n") // keep a clear page break marker
		}
		sb.Write(out)
	}
	return sb.String(), len(matches), nil
}
