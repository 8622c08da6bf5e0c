package tools

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
	"github.com/ZanzyTHEbar/agentcore/agentcore/memory/service"
)

type recorded struct {
	method string
	path   string
	query  string
	header http.Header
	body   string
}

func newRecordingServer(t *testing.T, status int, reply string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.header = r.Header.Clone()
		rec.body = string(b)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func toolCall(name string, params map[string]any) ports.Instruction {
	return ports.Instruction{Kind: ports.InstructionToolCall, Name: name, Params: params}
}

func newExecutor(cfg Config, retriever Retriever) *Executor {
	return NewExecutor(cfg, retriever, zerolog.Nop())
}

func TestStructuredGetSubstitutesPath(t *testing.T) {
	srv, rec := newRecordingServer(t, http.StatusOK, `{"id":42}`)
	caps := capability.NewSet(capability.FromTool(capability.ToolCapability{
		Name:        "get_item",
		Method:      http.MethodGet,
		URLTemplate: srv.URL + "/y/{id}",
		Parameters: []capability.Parameter{
			{Name: "id", In: capability.InPath, Required: true, Type: "integer"},
			{Name: "verbose", In: capability.InQuery, Type: "boolean"},
		},
		Settings: capability.Settings{AuthType: capability.AuthBearer, Token: "tok-123"},
	}))

	out := newExecutor(Config{}, nil).Execute(context.Background(),
		toolCall("get_item", map[string]any{"id": float64(42), "verbose": "true", "extra": "x y"}), caps)

	assert.Equal(t, `{"id":42}`, out)
	assert.Equal(t, http.MethodGet, rec.method)
	assert.Equal(t, "/y/42", rec.path)
	assert.Contains(t, rec.query, "verbose=true")
	assert.Contains(t, rec.query, "extra=x+y")
	assert.Equal(t, "Bearer tok-123", rec.header.Get("Authorization"))
	assert.Empty(t, rec.body)
}

func TestStructuredPostSendsJSONBodyWithAPIKey(t *testing.T) {
	srv, rec := newRecordingServer(t, http.StatusCreated, "created")
	caps := capability.NewSet(capability.FromTool(capability.ToolCapability{
		Name:        "create_user",
		Method:      http.MethodPost,
		URLTemplate: srv.URL + "/users",
		Parameters:  []capability.Parameter{{Name: "name", In: capability.InBody, Required: true, Type: "string"}},
		Settings: capability.Settings{
			AuthType:    capability.AuthAPIKey,
			APIKey:      "key-9",
			QueryParams: map[string]string{"tenant": "acme"},
			Headers:     map[string]string{"X-Client": "agentcore"},
			Values:      map[string]any{"role": "admin"},
		},
	}))

	out := newExecutor(Config{}, nil).Execute(context.Background(),
		toolCall("create_user", map[string]any{"name": "ada"}), caps)

	assert.Equal(t, "created", out)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "tenant=acme", rec.query)
	assert.Equal(t, "key-9", rec.header.Get("X-API-Key"))
	assert.Equal(t, "agentcore", rec.header.Get("X-Client"))
	assert.Equal(t, "application/json", rec.header.Get("Content-Type"))
	assert.JSONEq(t, `{"name":"ada","role":"admin"}`, rec.body)
}

func TestStructuredErrorsBecomeText(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusNotFound, "no such item")
	caps := capability.NewSet(capability.FromTool(capability.ToolCapability{
		Name:        "get_item",
		Method:      http.MethodGet,
		URLTemplate: srv.URL + "/items/{id}",
		Parameters:  []capability.Parameter{{Name: "q", In: capability.InQuery, Type: "string", Enum: []string{"a", "b"}}},
	}))
	exec := newExecutor(Config{}, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		instr ports.Instruction
		want  string
	}{
		{"missing name", toolCall("", nil), "invalid tool call"},
		{"unknown tool", toolCall("nope", nil), `tool "nope" is not available`},
		{"missing path param", toolCall("get_item", map[string]any{}), "missing path parameter(s): id"},
		{"enum violation", toolCall("get_item", map[string]any{"id": "1", "q": "z"}), "invalid parameters"},
		{"bad method", ports.Instruction{Kind: ports.InstructionToolCall, Name: "get_item", Method: "OPTIONS"}, "unsupported method: OPTIONS"},
		{"foreign url", ports.Instruction{Kind: ports.InstructionToolCall, Name: "get_item", URL: "https://evil.example.com/x"}, "does not belong"},
		{"non-2xx", toolCall("get_item", map[string]any{"id": "7"}), "HTTP 404: no such item"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, exec.Execute(ctx, tt.instr, caps), tt.want)
		})
	}
}

func TestTransportFailureHidesQueryCredentials(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	caps := capability.NewSet(capability.FromTool(capability.ToolCapability{
		Name:        "weather",
		Method:      http.MethodGet,
		URLTemplate: base + "/w",
		Parameters:  []capability.Parameter{{Name: "city", In: capability.InQuery, Required: true, Type: "string"}},
		Settings:    capability.Settings{QueryParams: map[string]string{"appid": "SECRET123"}},
	}))

	out := newExecutor(Config{}, nil).Execute(context.Background(),
		toolCall("weather", map[string]any{"city": "Paris"}), caps)

	assert.Contains(t, out, "request to weather")
	assert.Contains(t, out, "/w")
	assert.NotContains(t, out, "SECRET123")
	assert.NotContains(t, out, "appid")
}

func TestGetSendsBodyParamsAsQuery(t *testing.T) {
	srv, rec := newRecordingServer(t, http.StatusOK, "ok")
	caps := capability.NewSet(capability.FromTool(capability.ToolCapability{
		Name:        "search",
		Method:      http.MethodGet,
		URLTemplate: srv.URL + "/search",
		Parameters:  []capability.Parameter{{Name: "q", In: capability.InBody, Required: true, Type: "string"}},
	}))

	out := newExecutor(Config{}, nil).Execute(context.Background(),
		toolCall("search", map[string]any{"q": "golang"}), caps)

	assert.Equal(t, "ok", out)
	assert.Equal(t, "q=golang", rec.query)
	assert.Empty(t, rec.body)
}

func TestGuardrailsBlockSchemesAndHosts(t *testing.T) {
	caps := capability.NewSet(
		capability.FromTool(capability.ToolCapability{Name: "ftp", Method: http.MethodGet, URLTemplate: "ftp://files.example.com/x"}),
		capability.FromTool(capability.ToolCapability{Name: "other", Method: http.MethodGet, URLTemplate: "https://other.example.org/x"}),
	)
	exec := newExecutor(Config{AllowedHosts: []string{"example.com"}}, nil)

	assert.Contains(t, exec.Execute(context.Background(), toolCall("ftp", nil), caps), `scheme "ftp" is not allowed`)
	assert.Contains(t, exec.Execute(context.Background(), toolCall("other", nil), caps), "not in the allow-list")

	g := NewGuardrails([]string{"example.com"}, 0)
	_, err := g.CheckURL("https://api.example.com/v1")
	assert.NoError(t, err)
	_, err = g.CheckURL("https://example.com.evil.net/v1")
	assert.Error(t, err)
	assert.Equal(t, "Authorization: Bearer [REDACTED]", g.Redact("Authorization: Bearer abc.def"))
}

func TestResponseIsCapped(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusOK, strings.Repeat("a", 100))
	caps := capability.NewSet(capability.FromTool(capability.ToolCapability{Name: "big", Method: http.MethodGet, URLTemplate: srv.URL}))

	out := newExecutor(Config{MaxResponseBytes: 10}, nil).Execute(context.Background(), toolCall("big", nil), caps)
	assert.Equal(t, strings.Repeat("a", 10)+"\n[response truncated]", out)
}

func TestToolTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	caps := capability.NewSet(capability.FromTool(capability.ToolCapability{Name: "slow", Method: http.MethodGet, URLTemplate: srv.URL}))

	out := newExecutor(Config{Timeout: 50 * time.Millisecond}, nil).Execute(context.Background(), toolCall("slow", nil), caps)
	assert.Contains(t, out, "request to slow failed")
}

func TestLegacyCall(t *testing.T) {
	srv, rec := newRecordingServer(t, http.StatusOK, "ok")
	caps := capability.NewSet(capability.FromTool(capability.ToolCapability{
		Name:        "orders",
		Method:      http.MethodPost,
		URLTemplate: srv.URL + "/orders/{id}",
		Settings:    capability.Settings{AuthType: capability.AuthAPIKey, APIKey: "k", KeyName: "X-Token"},
	}))
	exec := newExecutor(Config{}, nil)

	instr := ports.Instruction{Kind: ports.InstructionToolCall, Raw: "post " + srv.URL + `/orders/5 {"qty": 2}`}
	out := exec.Execute(context.Background(), instr, caps)

	assert.Equal(t, "ok", out)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/orders/5", rec.path)
	assert.Equal(t, "k", rec.header.Get("X-Token"))
	assert.JSONEq(t, `{"qty": 2}`, rec.body)

	bad := ports.Instruction{Kind: ports.InstructionToolCall, Raw: "TRACE " + srv.URL}
	assert.Equal(t, "Error: tool execution error: unsupported method: TRACE", exec.Execute(context.Background(), bad, caps))

	body := ports.Instruction{Kind: ports.InstructionToolCall, Raw: "PUT " + srv.URL + " {not json"}
	assert.Contains(t, exec.Execute(context.Background(), body, caps), "not valid JSON")
}

func TestMatchToolByURL(t *testing.T) {
	tool := func(id, tmpl string) capability.Capability {
		return capability.FromTool(capability.ToolCapability{ID: id, Name: id, Method: http.MethodGet, URLTemplate: tmpl})
	}
	caps := capability.NewSet(
		tool("api", "https://api.example.com/{path}"),
		tool("orders", "https://api.example.com/v1/orders/{id}"),
		tool("orders-dup", "https://api.example.com/v1/orders/{id}/items"),
		tool("bare", "{url}"),
	)

	tests := []struct {
		target string
		want   string
	}{
		{"https://api.example.com/v1/orders/7", "orders"},
		{"https://api.example.com/v2/users", "api"},
		{"https://other.example.com/v1/orders/7", ""},
	}
	for _, tt := range tests {
		got, ok := matchToolByURL(caps, tt.target)
		if tt.want == "" {
			assert.False(t, ok, tt.target)
			continue
		}
		require.True(t, ok, tt.target)
		assert.Equal(t, tt.want, got.Name, tt.target)
	}
}

type mockRetriever struct {
	mock.Mock
}

func (m *mockRetriever) RetrieveFrom(ctx context.Context, resolver service.KnowledgeBaseResolver, query string, kbIDs []string, k int, threshold float64) ([]service.Hit, error) {
	args := m.Called(ctx, resolver, query, kbIDs, k, threshold)
	hits, _ := args.Get(0).([]service.Hit)
	return hits, args.Error(1)
}

func TestRagQuery(t *testing.T) {
	ctx := context.Background()
	rag := func(q string) ports.Instruction { return ports.Instruction{Kind: ports.InstructionRagQuery, Query: q} }
	kbs := capability.NewSet(capability.FromKnowledgeBase(capability.KnowledgeBase{ID: "kb1", Name: "Docs"}))

	t.Run("no knowledge base", func(t *testing.T) {
		r := new(mockRetriever)
		out := newExecutor(Config{}, r).Execute(ctx, rag("anything"), capability.NewSet())
		assert.Contains(t, out, "No knowledge base")
		r.AssertNotCalled(t, "RetrieveFrom", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("zero hits", func(t *testing.T) {
		r := new(mockRetriever)
		r.On("RetrieveFrom", mock.Anything, mock.Anything, "refund policy", []string{"kb1"}, 10, 0.6).Return([]service.Hit{}, nil)
		out := newExecutor(Config{}, r).Execute(ctx, rag(" refund policy "), kbs)
		assert.Contains(t, out, NoResultsText)
		r.AssertExpectations(t)
	})

	t.Run("hits", func(t *testing.T) {
		r := new(mockRetriever)
		long := strings.Repeat("é", 600)
		r.On("RetrieveFrom", mock.Anything, mock.Anything, "q", []string{"kb1"}, 10, 0.6).Return([]service.Hit{
			{KnowledgeBaseID: "kb1", KnowledgeBaseName: "Docs", Content: "short", Source: "a.md", Similarity: 0.91234},
			{KnowledgeBaseID: "kb1", Content: long, Similarity: 0.7},
		}, nil)
		out := newExecutor(Config{}, r).Execute(ctx, rag("q"), kbs)

		assert.Contains(t, out, "[1] similarity: 0.9123 | source: a.md | knowledge base: Docs\nshort")
		assert.Contains(t, out, "[2] similarity: 0.7000 | source: unknown | knowledge base: kb1")
		assert.Contains(t, out, strings.Repeat("é", 500)+"...")
		assert.NotContains(t, out, strings.Repeat("é", 501))
	})

	t.Run("searches the bound descriptors", func(t *testing.T) {
		r := new(mockRetriever)
		bound := service.StaticResolver{"kb1": {ID: "kb1", Name: "Docs"}}
		r.On("RetrieveFrom", mock.Anything, bound, "q", []string{"kb1"}, 10, 0.6).Return([]service.Hit{}, nil)
		newExecutor(Config{}, r).Execute(ctx, rag("q"), kbs)
		r.AssertExpectations(t)
	})

	t.Run("retrieval error", func(t *testing.T) {
		r := new(mockRetriever)
		r.On("RetrieveFrom", mock.Anything, mock.Anything, "q", []string{"kb1"}, 10, 0.6).Return(nil, assert.AnError)
		out := newExecutor(Config{}, r).Execute(ctx, rag("q"), kbs)
		assert.Contains(t, out, "Knowledge base search failed")
	})
}

func TestSubstitutePath(t *testing.T) {
	params := map[string]any{"id": "a b/c", "v": 2.0}
	out, err := substitutePath("https://x/y/{id}/v{v}", params)
	require.NoError(t, err)
	assert.Equal(t, "https://x/y/a%20b%2Fc/v2", out)
	assert.Empty(t, params)
}
