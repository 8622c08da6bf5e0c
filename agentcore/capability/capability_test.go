package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallMethod(t *testing.T) {
	method, url, err := ParseCallMethod("get https://api.example.com/users/{id}")
	require.NoError(t, err)
	assert.Equal(t, "GET", method)
	assert.Equal(t, "https://api.example.com/users/{id}", url)

	_, _, err = ParseCallMethod("https://api.example.com")
	assert.Error(t, err)
	_, _, err = ParseCallMethod("GET a b")
	assert.Error(t, err)
}

func TestParseAuthType(t *testing.T) {
	assert.Equal(t, AuthBearer, ParseAuthType("Bearer"))
	assert.Equal(t, AuthAPIKey, ParseAuthType("apiKey"))
	assert.Equal(t, AuthAPIKey, ParseAuthType("api_key"))
	assert.Equal(t, AuthNone, ParseAuthType(""))
	assert.Equal(t, AuthNone, ParseAuthType("oauth"))
}

func TestSettingsFromMap(t *testing.T) {
	s := SettingsFromMap(map[string]any{
		"auth_type":    "api_key",
		"api_key":      "secret",
		"key_name":     "X-Token",
		"headers":      map[string]any{"X-Trace": 1},
		"query_params": map[string]string{"lang": "en"},
		"limit":        5,
	})

	assert.Equal(t, AuthAPIKey, s.AuthType)
	assert.Equal(t, "secret", s.APIKey)
	assert.Equal(t, "X-Token", s.KeyName)
	assert.Equal(t, map[string]string{"X-Trace": "1"}, s.Headers)
	assert.Equal(t, map[string]string{"lang": "en"}, s.QueryParams)
	assert.Equal(t, map[string]any{"limit": 5}, s.Values)
}

func TestSettingsFromMap_InfersAuthType(t *testing.T) {
	assert.Equal(t, AuthBearer, SettingsFromMap(map[string]any{"token": "t"}).AuthType)
	assert.Equal(t, AuthAPIKey, SettingsFromMap(map[string]any{"api_key": "k"}).AuthType)
	assert.Equal(t, AuthNone, SettingsFromMap(nil).AuthType)
}

func TestSet(t *testing.T) {
	set := NewSet(
		FromTool(ToolCapability{Name: "weather"}),
		FromKnowledgeBase(KnowledgeBase{ID: "kb1", Name: "Docs"}),
		FromTool(ToolCapability{Name: "weather", Purpose: "duplicate"}),
		FromKnowledgeBase(KnowledgeBase{ID: "kb2", Name: "FAQ", Collection: "faq_v2"}),
	)

	assert.False(t, set.Empty())
	require.Len(t, set.Tools(), 1)
	assert.Empty(t, set.Tools()[0].Purpose)
	assert.Equal(t, []string{"kb1", "kb2"}, set.KnowledgeBaseIDs())

	tool, ok := set.ToolByName("weather")
	assert.True(t, ok)
	assert.Equal(t, "weather", tool.Name)
	_, ok = set.ToolByName("missing")
	assert.False(t, ok)

	kb, ok := set.KnowledgeBase("kb2")
	require.True(t, ok)
	assert.Equal(t, "faq_v2", kb.CollectionName())
	kb, _ = set.KnowledgeBase("kb1")
	assert.Equal(t, "kb1", kb.CollectionName())

	assert.True(t, NewSet().Empty())
}

func TestFromOpenAPI(t *testing.T) {
	doc := []byte(`{
  "openapi": "3.0.0",
  "info": {"title": "Pets", "version": "1.2"},
  "servers": [{"url": "https://pets.example.com/v1/"}],
  "paths": {
    "/pets/{petId}": {
      "parameters": [],
      "get": {
        "operationId": "getPet",
        "summary": "Fetch a pet",
        "parameters": [
          {"name": "petId", "in": "path", "schema": {"type": "integer"}},
          {"name": "fields", "in": "query", "schema": {"type": "string", "enum": ["name", "age"]}}
        ]
      }
    },
    "/pets": {
      "post": {
        "description": "Create a pet",
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "required": ["name"],
                "properties": {
                  "name": {"type": "string"},
                  "age": {"type": "integer"}
                }
              }
            }
          }
        }
      }
    }
  }
}`)

	tools, err := FromOpenAPI(doc)
	require.NoError(t, err)
	require.Len(t, tools, 2)

	get := tools[0]
	assert.Equal(t, "getPet", get.Name)
	assert.Equal(t, "GET", get.Method)
	assert.Equal(t, "https://pets.example.com/v1/pets/{petId}", get.URLTemplate)
	assert.Equal(t, "Fetch a pet", get.Purpose)
	assert.Equal(t, "1.2", get.Version)
	require.Len(t, get.Parameters, 2)
	assert.True(t, get.Parameters[0].Required)
	assert.Equal(t, "integer", get.Parameters[0].Type)
	assert.Equal(t, []string{"name", "age"}, get.Parameters[1].Enum)

	post := tools[1]
	assert.Equal(t, "post_pets", post.Name)
	assert.Equal(t, "Create a pet", post.Purpose)
	require.Len(t, post.Parameters, 2)
	age, ok := post.Parameter("age")
	require.True(t, ok)
	assert.False(t, age.Required)
	name, _ := post.Parameter("name")
	assert.True(t, name.Required)
	assert.Equal(t, InBody, name.In)
}

func TestFromOpenAPI_Errors(t *testing.T) {
	_, err := FromOpenAPI([]byte("not json"))
	assert.Error(t, err)

	_, err = FromOpenAPI([]byte(`{"paths": {}}`))
	assert.Error(t, err)
}
