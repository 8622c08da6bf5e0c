package capability

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type openAPIDoc struct {
	Info struct {
		Title   string `json:"title"`
		Version string `json:"version"`
	} `json:"info"`
	Servers []struct {
		URL string `json:"url"`
	} `json:"servers"`
	Paths map[string]map[string]jsoniter.RawMessage `json:"paths"`
}

type openAPIOperation struct {
	OperationID string             `json:"operationId"`
	Summary     string             `json:"summary"`
	Description string             `json:"description"`
	Parameters  []openAPIParameter `json:"parameters"`
	RequestBody *struct {
		Required bool `json:"required"`
		Content  map[string]struct {
			Schema openAPISchema `json:"schema"`
		} `json:"content"`
	} `json:"requestBody"`
}

type openAPIParameter struct {
	Name        string        `json:"name"`
	In          string        `json:"in"`
	Required    bool          `json:"required"`
	Description string        `json:"description"`
	Schema      openAPISchema `json:"schema"`
}

type openAPISchema struct {
	Type        string                   `json:"type"`
	Description string                   `json:"description"`
	Enum        []any                    `json:"enum"`
	Required    []string                 `json:"required"`
	Properties  map[string]openAPISchema `json:"properties"`
}

var httpMethods = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true, "delete": true,
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// FromOpenAPI converts an OpenAPI 3 JSON document into one tool per
// operation. Operations are returned sorted by name.
func FromOpenAPI(doc []byte) ([]ToolCapability, error) {
	var spec openAPIDoc
	if err := json.Unmarshal(doc, &spec); err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if len(spec.Servers) == 0 || spec.Servers[0].URL == "" {
		return nil, fmt.Errorf("openapi document has no server url")
	}
	base := strings.TrimRight(spec.Servers[0].URL, "/")

	var tools []ToolCapability
	for path, ops := range spec.Paths {
		for method, raw := range ops {
			if !httpMethods[strings.ToLower(method)] {
				continue
			}
			var op openAPIOperation
			if err := json.Unmarshal(raw, &op); err != nil {
				return nil, fmt.Errorf("parse %s %s: %w", strings.ToUpper(method), path, err)
			}
			tools = append(tools, toolFromOperation(base, path, strings.ToUpper(method), op, spec.Info.Version))
		}
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools, nil
}

func toolFromOperation(base, path, method string, op openAPIOperation, version string) ToolCapability {
	name := op.OperationID
	if name == "" {
		name = strings.ToLower(method) + "_" + strings.Trim(nonIdent.ReplaceAllString(path, "_"), "_")
	}
	purpose := op.Summary
	if purpose == "" {
		purpose = op.Description
	}

	t := ToolCapability{
		ID:          name,
		Name:        name,
		Purpose:     purpose,
		Version:     version,
		Method:      method,
		URLTemplate: base + path,
	}
	for _, p := range op.Parameters {
		t.Parameters = append(t.Parameters, Parameter{
			Name:        p.Name,
			In:          p.In,
			Required:    p.Required || p.In == InPath,
			Type:        schemaType(p.Schema),
			Description: p.Description,
			Enum:        enumStrings(p.Schema.Enum),
		})
	}
	if op.RequestBody != nil {
		if media, ok := op.RequestBody.Content["application/json"]; ok {
			required := map[string]bool{}
			for _, r := range media.Schema.Required {
				required[r] = true
			}
			names := make([]string, 0, len(media.Schema.Properties))
			for n := range media.Schema.Properties {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				prop := media.Schema.Properties[n]
				t.Parameters = append(t.Parameters, Parameter{
					Name:        n,
					In:          InBody,
					Required:    required[n],
					Type:        schemaType(prop),
					Description: prop.Description,
					Enum:        enumStrings(prop.Enum),
				})
			}
		}
	}
	return t
}

func schemaType(s openAPISchema) string {
	if s.Type == "" {
		return "string"
	}
	return s.Type
}

func enumStrings(vals []any) []string {
	if len(vals) == 0 {
		return nil
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = fmt.Sprint(v)
	}
	return out
}
