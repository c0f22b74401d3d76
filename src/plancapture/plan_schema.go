package plancapture

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// planJSONSchema accepts the two JSON plan shapes this layer captures:
// Postgres EXPLAIN (FORMAT JSON) emits an array of objects each carrying a
// "Plan" tree; MySQL EXPLAIN FORMAT=JSON emits one object with a
// "query_block" tree.
const planJSONSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"oneOf": [
		{
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["Plan"],
				"properties": {
					"Plan": {"type": "object"}
				}
			}
		},
		{
			"type": "object",
			"required": ["query_block"],
			"properties": {
				"query_block": {"type": "object"}
			}
		}
	]
}`

var planSchemaLoader = gojsonschema.NewStringLoader(planJSONSchema)

// ValidateJSONPlan checks that payload is a well-formed JSON plan document
// before it is handed to callers.
func ValidateJSONPlan(payload string) error {
	result, err := gojsonschema.Validate(planSchemaLoader, gojsonschema.NewStringLoader(payload))
	if err != nil {
		return fmt.Errorf("plan payload is not valid JSON: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("plan payload does not match any known plan shape: %v", result.Errors())
	}
	return nil
}
