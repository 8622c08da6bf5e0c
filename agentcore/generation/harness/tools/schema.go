package tools

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
)

// instructionSchema is the shape of a structured tool call.
const instructionSchema = `{
  "type": "object",
  "properties": {
    "name":   {"type": "string", "minLength": 1},
    "method": {"type": "string"},
    "url":    {"type": "string"},
    "params": {"type": "object"}
  },
  "required": ["name"]
}`

var instructionLoader = gojsonschema.NewStringLoader(instructionSchema)

// validateDocument checks doc against schema and flattens the violations.
func validateDocument(schema gojsonschema.JSONLoader, doc any) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// parameterSchema builds a JSON schema from a tool's declared parameters.
// Undeclared params are allowed.
func parameterSchema(tool capability.ToolCapability) gojsonschema.JSONLoader {
	props := map[string]any{}
	required := []string{}
	for _, p := range tool.Parameters {
		prop := map[string]any{}
		if t := schemaType(p.Type); t != "" {
			prop["type"] = t
		}
		if len(p.Enum) > 0 {
			enum := make([]any, len(p.Enum))
			for i, e := range p.Enum {
				enum[i] = e
			}
			prop["enum"] = enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return gojsonschema.NewGoLoader(schema)
}

func schemaType(t string) string {
	switch t {
	case "string", "integer", "number", "boolean", "object", "array":
		return t
	default:
		return ""
	}
}

// coerceParams converts string values to the declared scalar type when they
// parse cleanly; models often quote numbers.
func coerceParams(tool capability.ToolCapability, params map[string]any) {
	for _, p := range tool.Parameters {
		s, ok := params[p.Name].(string)
		if !ok {
			continue
		}
		switch p.Type {
		case "integer":
			if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				params[p.Name] = n
			}
		case "number":
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				params[p.Name] = f
			}
		case "boolean":
			if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
				params[p.Name] = b
			}
		}
	}
}
