// Package capability describes the tools and knowledge bases a reasoning call
// may use. Descriptors are built once per request from registry records and
// are read-only afterwards.
package capability

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind discriminates the Capability union.
type Kind string

const (
	KindTool          Kind = "tool"
	KindKnowledgeBase Kind = "knowledge_base"
)

// Parameter locations.
const (
	InPath   = "path"
	InQuery  = "query"
	InBody   = "body"
	InHeader = "header"
)

// AuthType selects how pre-bound credentials are attached to a tool call.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "apiKey"
)

// ParseAuthType normalizes stored auth type spellings.
func ParseAuthType(s string) AuthType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bearer":
		return AuthBearer
	case "apikey", "api_key", "api-key":
		return AuthAPIKey
	default:
		return AuthNone
	}
}

// Parameter describes one argument of a tool.
type Parameter struct {
	Name        string   `json:"name"`
	In          string   `json:"in"`
	Required    bool     `json:"required"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Settings holds values bound to a tool by its owner: credentials plus
// default parameter values.
type Settings struct {
	AuthType    AuthType          `json:"auth_type,omitempty"`
	Token       string            `json:"token,omitempty"`
	APIKey      string            `json:"api_key,omitempty"`
	KeyName     string            `json:"key_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
	Values      map[string]any    `json:"values,omitempty"`
}

// SettingsFromMap splits a stored settings object into credentials and plain
// parameter defaults. Credential keys follow the plugin runtime parameters:
// auth_type, token, api_key, key_name, headers, query_params.
func SettingsFromMap(m map[string]any) Settings {
	s := Settings{Values: map[string]any{}}
	for k, v := range m {
		switch k {
		case "auth_type":
			s.AuthType = ParseAuthType(fmt.Sprint(v))
		case "token":
			s.Token = fmt.Sprint(v)
		case "api_key":
			s.APIKey = fmt.Sprint(v)
		case "key_name":
			s.KeyName = fmt.Sprint(v)
		case "headers":
			s.Headers = stringMap(v)
		case "query_params":
			s.QueryParams = stringMap(v)
		default:
			s.Values[k] = v
		}
	}
	if s.AuthType == "" || s.AuthType == AuthNone {
		switch {
		case s.Token != "":
			s.AuthType = AuthBearer
		case s.APIKey != "":
			s.AuthType = AuthAPIKey
		default:
			s.AuthType = AuthNone
		}
	}
	return s
}

func stringMap(v any) map[string]string {
	out := map[string]string{}
	switch m := v.(type) {
	case map[string]string:
		for k, val := range m {
			out[k] = val
		}
	case map[string]any:
		for k, val := range m {
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

// ToolCapability is an HTTP endpoint the model may call.
type ToolCapability struct {
	ID          string
	Name        string
	Purpose     string
	Version     string
	Method      string
	URLTemplate string
	Parameters  []Parameter
	Settings    Settings
}

// CallMethod renders the "METHOD url" template the tool was declared with.
func (t ToolCapability) CallMethod() string {
	return t.Method + " " + t.URLTemplate
}

// Parameter looks up a declared parameter by name.
func (t ToolCapability) Parameter(name string) (Parameter, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// KnowledgeBase is a retrieval source backed by a vector-store collection.
type KnowledgeBase struct {
	ID         string
	Name       string
	Collection string
	Metric     string
}

// CollectionName returns the backing collection, defaulting to the kb id.
func (k KnowledgeBase) CollectionName() string {
	if k.Collection != "" {
		return k.Collection
	}
	return k.ID
}

// Capability is the tagged union of a tool or a knowledge base.
type Capability struct {
	Tool          *ToolCapability
	KnowledgeBase *KnowledgeBase
}

// Kind reports which variant is populated.
func (c Capability) Kind() Kind {
	if c.Tool != nil {
		return KindTool
	}
	return KindKnowledgeBase
}

// FromTool wraps a tool descriptor.
func FromTool(t ToolCapability) Capability { return Capability{Tool: &t} }

// FromKnowledgeBase wraps a knowledge-base descriptor.
func FromKnowledgeBase(k KnowledgeBase) Capability { return Capability{KnowledgeBase: &k} }

var callMethodPattern = regexp.MustCompile(`^\s*([A-Za-z]+)\s+(\S+)\s*$`)

// ParseCallMethod splits a "GET https://host/path/{id}" template.
func ParseCallMethod(s string) (method, url string, err error) {
	m := callMethodPattern.FindStringSubmatch(s)
	if m == nil {
		return "", "", fmt.Errorf("invalid call method %q: expected \"METHOD url\"", s)
	}
	return strings.ToUpper(m[1]), m[2], nil
}
