package config

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	schemaOnce sync.Once
	schemaJSON []byte
	schemaErr  error
)

// JSONSchema returns JSON Schemas for the three yaml document types,
// keyed by document name. Served by the admin API for editor support.
func JSONSchema() ([]byte, error) {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			FieldNameTag: "yaml",
		}
		doc := map[string]*jsonschema.Schema{
			"config":  r.Reflect(&Config{}),
			"catalog": r.Reflect(&Catalog{}),
			"model":   r.Reflect(&ModelFile{}),
		}
		schemaJSON, schemaErr = json.MarshalIndent(doc, "", "  ")
	})
	return schemaJSON, schemaErr
}

// JSONSchema describes the condition mapping form: one operator key plus
// an optional case key.
func (Condition) JSONSchema() *jsonschema.Schema {
	properties := jsonschema.NewProperties()
	for _, op := range []string{"contains", "equals", "starts_with", "ends_with", "regex"} {
		properties.Set(op, &jsonschema.Schema{Type: "string"})
	}
	properties.Set("case", &jsonschema.Schema{
		Type: "string",
		Enum: []any{"sensitive", "insensitive"},
	})
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           properties,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}
