package toolexecutor

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/arcade/pkg/arcade"
)

// compileSchema builds a JSON Schema for a tool's input. Unknown properties
// are allowed since remote tools may accept more than they advertise.
func compileSchema(params arcade.InputSchema) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{}, len(params.Properties))
	for name, prop := range params.Properties {
		propSchema := map[string]interface{}{}
		if prop.Type != "" {
			propSchema["type"] = prop.Type
		}
		if prop.Description != "" {
			propSchema["description"] = prop.Description
		}
		properties[name] = propSchema
	}

	schemaMap := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(params.Required) > 0 {
		schemaMap["required"] = params.Required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

// validateInput checks input against a compiled schema.
func validateInput(schema *gojsonschema.Schema, input map[string]any) error {
	if schema == nil {
		return nil
	}
	if input == nil {
		input = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return fmt.Errorf("%w: %v", arcade.ErrInvalidInput, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", arcade.ErrInvalidInput, strings.Join(msgs, "; "))
	}
	return nil
}

// ToJSONSchema renders the input schema as a plain map for host tool
// registration.
func (t RegisteredTool) ToJSONSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(t.Parameters.Properties))
	for name, prop := range t.Parameters.Properties {
		p := map[string]interface{}{"type": prop.Type}
		if prop.Type == "" {
			p["type"] = "string"
		}
		if prop.Description != "" {
			p["description"] = prop.Description
		}
		properties[name] = p
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(t.Parameters.Required) > 0 {
		schema["required"] = append([]string(nil), t.Parameters.Required...)
	}
	return schema
}
