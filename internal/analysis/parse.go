package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StructuredResult is the predictable shape every caller receives, even when
// the model returned garbage: parse failures populate Err and zero the
// confidence instead of raising.
type StructuredResult struct {
	Data        map[string]any
	Confidence  float64 // model-reported, 0 on failure
	RawResponse string  // kept verbatim for audit
	Err         string  // non-empty only for error-shaped results
}

// OK reports whether the result carries usable structured data.
func (r StructuredResult) OK() bool { return r.Err == "" && r.Data != nil }

// Section returns a named top-level object section, or nil.
func (r StructuredResult) Section(name string) map[string]any {
	if m, ok := r.Data[name].(map[string]any); ok {
		return m
	}
	return nil
}

// parseStructured locates the first balanced JSON object in the free-form
// response, validates it against the datasheet schema and decodes it. Any
// failure yields an error-shaped result, never an error value.
func parseStructured(raw string) StructuredResult {
	res := StructuredResult{RawResponse: raw}

	obj, ok := firstJSONObject(raw)
	if !ok {
		res.Err = "no balanced JSON object in response"
		return res
	}
	if err := ValidateJSONAgainstSchema(BuildDatasheetJSONSchema(), []byte(obj)); err != nil {
		res.Err = fmt.Sprintf("schema validation failed: %v", err)
		return res
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(obj), &data); err != nil {
		res.Err = fmt.Sprintf("decode structured object: %v", err)
		return res
	}
	res.Data = data
	if c, ok := data["confidence"].(float64); ok && c >= 0 && c <= 1 {
		res.Confidence = c
	}
	return res
}

// firstJSONObject scans for the first balanced {...} span with brace counting,
// skipping braces inside string literals and escape sequences. A greedy regex
// cannot do this: model answers routinely contain prose with stray braces.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
