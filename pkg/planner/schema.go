package planner

import (
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// decompositionSchemaURL is a synthetic resource ID; the schema is compiled
// from an embedded string, never fetched over the network.
const decompositionSchemaURL = "https://eap.schemas.local/goal-planner/decomposition.schema.json"

const decompositionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["tasks"],
  "properties": {
    "tasks": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "description", "agent_id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "description": {"type": "string", "minLength": 1},
          "agent_id": {"type": "string", "minLength": 1},
          "dependencies": {
            "type": "array",
            "items": {"type": "string"}
          }
        }
      }
    }
  }
}`

var (
	compiledSchemaOnce sync.Once
	compiledSchema     *jsonschema.Schema
	compiledSchemaErr  error
)

// compileDecompositionSchema compiles the decomposition response schema
// once and reuses it across calls; jsonschema.Schema is safe for concurrent
// Validate calls.
func compileDecompositionSchema() (*jsonschema.Schema, error) {
	compiledSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(decompositionSchemaURL, strings.NewReader(decompositionSchemaJSON)); err != nil {
			compiledSchemaErr = err
			return
		}
		compiledSchema, compiledSchemaErr = c.Compile(decompositionSchemaURL)
	})
	return compiledSchema, compiledSchemaErr
}
