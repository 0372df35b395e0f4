// Package tools provides JSON-schema helpers and the built-in tools
// that expose the memory document and the shared cohort block to the
// reasoning model.
package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// ObjectSchema assembles the top-level schema for a tool's input:
// always an object, with the given property maps and the names the
// model must supply.
func ObjectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty builds a described string field.
func StringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// StringEnumProperty builds a string field restricted to the listed
// values.
func StringEnumProperty(description string, values ...string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}

// IntegerProperty builds a described integer field.
func IntegerProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
	}
}

// NumberProperty builds a described floating-point field.
func NumberProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"description": description,
	}
}

// BooleanProperty builds a described boolean field.
func BooleanProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "boolean",
		"description": description,
	}
}

// ArrayProperty builds an array field whose elements match itemType.
func ArrayProperty(description string, itemType map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": description,
		"items":       itemType,
	}
}

// ReflectSchema derives a schema map from a typed input struct, using
// `json` and `jsonschema` struct tags. Handy when a tool's input is a
// Go type rather than a hand-built property map.
func ReflectSchema(v interface{}) map[string]interface{} {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	b, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return ObjectSchema(map[string]interface{}{})
	}

	var schema map[string]interface{}
	if err := json.Unmarshal(b, &schema); err != nil {
		return ObjectSchema(map[string]interface{}{})
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	return schema
}
