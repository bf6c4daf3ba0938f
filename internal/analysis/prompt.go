package analysis

import (
	"fmt"
	"strings"

	"github.com/markbunyevacz/lambda-extractor/internal/extract"
)

const defaultDatasheetTemplate = `You are a technical datasheet parser for building-insulation products.
The document may mix Hungarian and English terminology. Return ONLY JSON that
matches the provided JSON Schema.

Rules:
- 'identification' must hold the product name, article code (cikkszám), category and intended application.
- Put thermal conductivity (lambda, hővezetési tényező, W/mK), fire classification
  (tűzvédelmi osztály, e.g. A1), density (testsűrűség, kg/m³) and any other measured
  values under 'technical_specifications', keeping the original units as strings.
- Put list prices or price-per-unit data under 'pricing'; omit the section if absent.
- Report an overall 'confidence' in [0,1] for how certain you are in the extraction.
- Never output null. If a field is not present, omit it.

Filename: {{FILENAME}}

Extracted tables:
{{TABLES}}

Document text:
{{TEXT}}`

// buildUserPrompt renders the selected template with the document material.
// Text and table summaries are truncated per the active config so a 200-page
// catalog cannot blow the request.
func buildUserPrompt(cfg Config, templateID, text, filename string, tabs []extract.Table) (string, error) {
	tpl, ok := cfg.PromptTemplates[templateID]
	if !ok {
		tpl, ok = cfg.PromptTemplates[cfg.DefaultTemplate]
		if !ok {
			return "", fmt.Errorf("no prompt template for %q and no default", templateID)
		}
	}

	if cfg.MaxTextLength > 0 && len(text) > cfg.MaxTextLength {
		text = text[:cfg.MaxTextLength] + "\n…(truncated)"
	}

	r := strings.NewReplacer(
		"{{TEXT}}", text,
		"{{TABLES}}", summarizeTables(tabs, cfg.MaxTablesSummary),
		"{{FILENAME}}", filename,
	)
	return r.Replace(tpl), nil
}

// summarizeTables renders up to max tables as pipe-delimited rows, the format
// the models reproduce most reliably.
func summarizeTables(tabs []extract.Table, max int) string {
	if len(tabs) == 0 {
		return "(no tables extracted)"
	}
	if max > 0 && len(tabs) > max {
		tabs = tabs[:max]
	}

	var sb strings.Builder
	for i, t := range tabs {
		fmt.Fprintf(&sb, "Table %d (page %d):\n", i+1, t.Page)
		if len(t.Header) > 0 {
			sb.WriteString(strings.Join(t.Header, " | "))
			sb.WriteByte('\n')
		}
		for _, row := range t.Rows {
			sb.WriteString(strings.Join(row, " | "))
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
