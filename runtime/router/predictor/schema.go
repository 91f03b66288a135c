package predictor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// predictionSchema constrains the shapes of the well-known keys without
// requiring them: missing keys default downstream, but a key present with the
// wrong shape (e.g. entity_resolution as an object) is a parse failure.
const predictionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "intent": {
      "type": "object",
      "properties": {
        "action_type": {"type": ["string", "null"]},
        "entities": {"type": ["array", "null"], "items": {"type": "string"}},
        "view_type": {"type": ["string", "null"]}
      }
    },
    "entity_resolution": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "entity_name": {"type": ["string", "null"]},
          "search_tables": {"type": ["array", "null"], "items": {"type": "string"}},
          "search_fields": {"type": ["array", "null"], "items": {"type": "string"}}
        }
      }
    },
    "route_matching": {
      "type": "object",
      "properties": {
        "matched_pattern": {"type": ["string", "null"]},
        "resolved_route": {"type": ["string", "null"]},
        "parameters": {"type": ["array", "null"], "items": {"type": "object"}}
      }
    },
    "reasoning": {"type": ["string", "null"]}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(predictionSchema))
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("prediction.json", doc); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("prediction.json")
	})
	return schema, schemaErr
}

// validateShape checks the candidate JSON document against the prediction
// schema.
func validateShape(candidate []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile prediction schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(candidate)))
	if err != nil {
		return err
	}
	return sch.Validate(doc)
}
