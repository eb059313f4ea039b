package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildItemsJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass this to the model as a structured output constraint
// and also use it locally to validate. Category stays a free string here:
// an out-of-set category is remapped by the caller, not rejected, so a
// single stray label does not burn a whole retry attempt.
func BuildItemsJSONSchema() map[string]any {
	category := map[string]any{"type": "string", "minLength": 1}
	item := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"name":          map[string]any{"type": "string", "minLength": 1},
			"name_original": map[string]any{"type": "string"},
			"quantity":      decimalProp(),
			"unit_price":    decimalProp(),
			"total":         decimalProp(),
			"category":      category,
			"alternatives": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "string", "minLength": 1},
				"maxItems": 3,
			},
		},
		"required": []string{"name", "quantity", "unit_price", "total", "category"},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"currency": map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
			"items":    map[string]any{"type": "array", "items": item},
		},
		"required": []string{"currency", "items"},
	}
}

// BuildSummaryJSONSchema constrains the correction model to the Summary
// shape. Category names are restricted to the group's known set.
func BuildSummaryJSONSchema(allowedCategories []string) map[string]any {
	name := map[string]any{"type": "string", "minLength": 1}
	if len(allowedCategories) > 0 {
		name = map[string]any{"type": "string", "enum": allowedCategories}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"categories": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]any{
						"name": name,
						"items": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type":                 "object",
								"additionalProperties": false,
								"properties": map[string]any{
									"item_id": map[string]any{"type": "integer"},
									"name":    map[string]any{"type": "string", "minLength": 1},
									"total":   decimalProp(),
								},
								"required": []string{"name", "total"},
							},
						},
					},
					"required": []string{"name", "items"},
				},
			},
			"total_amount": decimalProp(),
			"currency":     map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
		},
		"required": []string{"categories", "total_amount", "currency"},
	}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^-?\d+(\.\d{1,4})?$`,
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
