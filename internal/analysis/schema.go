package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildDatasheetJSONSchema returns the JSON-Schema (draft 2020-12 subset) the
// model output must satisfy. Passed to the API as a structured-output hint and
// used locally to validate what actually came back.
func BuildDatasheetJSONSchema() map[string]any {
	specValue := map[string]any{
		"type": "string", "minLength": 1,
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"identification": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":         map[string]any{"type": "string", "minLength": 1},
					"code":         map[string]any{"type": "string"},
					"category":     map[string]any{"type": "string"},
					"application":  map[string]any{"type": "string"},
					"manufacturer": map[string]any{"type": "string"},
				},
				"required": []string{"name"},
			},
			"technical_specifications": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"thermal_conductivity": specValue,
					"fire_classification":  specValue,
					"density":              specValue,
					"compressive_strength": specValue,
					"thickness_range":      specValue,
				},
				"additionalProperties": map[string]any{"type": "string"},
			},
			"pricing": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"list_price": map[string]any{"type": "string"},
					"currency":   map[string]any{"type": "string"},
					"unit":       map[string]any{"type": "string"},
				},
			},
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"identification", "technical_specifications"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
