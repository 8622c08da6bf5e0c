// Package mcpserver exposes chat and retrieval as MCP tools over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/agentcore/agentcore"
	"github.com/ZanzyTHEbar/agentcore/agentcore/memory/service"
	"github.com/ZanzyTHEbar/agentcore/agentcore/session"
)

// Chatter is the session surface the chat tool drives.
type Chatter interface {
	Chat(ctx context.Context, sessionID, message string, opts session.ChatOptions) (<-chan session.AnswerChunk, error)
}

// Retriever is the knowledge-base search the retrieve tool drives.
type Retriever interface {
	Retrieve(ctx context.Context, query string, kbIDs []string, k int, threshold float64) ([]service.Hit, error)
}

// RetrieveDefaults apply when the caller omits top_k or threshold.
type RetrieveDefaults struct {
	TopK      int
	Threshold float64
}

const serverInstructions = "Use `chat` to talk to the agent; pass the same session_id to continue a conversation. " +
	"Use `retrieve` to search knowledge bases directly."

// New builds the MCP server with the chat and retrieve tools.
func New(chat Chatter, retriever Retriever, defaults RetrieveDefaults, logger zerolog.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		agentcore.DefaultAppName,
		agentcore.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions),
	)

	chatTool := NewChatTool(chat, logger)
	s.AddTool(chatTool.Definition(), chatTool.Handle)

	retrieveTool := NewRetrieveTool(retriever, defaults)
	s.AddTool(retrieveTool.Definition(), retrieveTool.Handle)

	return s
}

// Serve runs the server on stdin/stdout until EOF.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// ChatTool handles the chat MCP tool.
type ChatTool struct {
	chat   Chatter
	logger zerolog.Logger
}

func NewChatTool(chat Chatter, logger zerolog.Logger) *ChatTool {
	return &ChatTool{chat: chat, logger: logger}
}

// Definition returns the MCP tool definition for chat.
func (t *ChatTool) Definition() mcp.Tool {
	return mcp.NewTool("chat",
		mcp.WithDescription("Send a message to the agent and return its complete answer. "+
			"The agent may call the listed tools and search the listed knowledge bases before answering."),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The user message"),
		),
		mcp.WithString("session_id",
			mcp.Description("Conversation to continue (default: \"default\")"),
		),
		mcp.WithString("model",
			mcp.Description("Model id; becomes the session's model"),
		),
		mcp.WithString("system_prompt",
			mcp.Description("Overrides the default system instructions for this call"),
		),
		mcp.WithArray("tool_ids",
			mcp.Description("Tool ids the agent may call"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("kb_ids",
			mcp.Description("Knowledge-base ids the agent may search"),
			mcp.WithStringItems(),
		),
	)
}

// Handle collects the answer stream into a single text result.
func (t *ChatTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message := req.GetString("message", "")
	if strings.TrimSpace(message) == "" {
		return mcp.NewToolResultError("'message' is required"), nil
	}
	sessionID := req.GetString("session_id", "")
	opts := session.ChatOptions{
		Model:            req.GetString("model", ""),
		SystemPrompt:     req.GetString("system_prompt", ""),
		ToolIDs:          stringsArg(req, "tool_ids"),
		KnowledgeBaseIDs: stringsArg(req, "kb_ids"),
	}

	chunks, err := t.chat.Chat(ctx, sessionID, message, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("chat failed: %v", err)), nil
	}

	var (
		answer  strings.Builder
		summary string
		meta    *session.ChunkMetadata
	)
	for c := range chunks {
		if c.Error != "" {
			return mcp.NewToolResultError(fmt.Sprintf("chat failed: %s", c.Error)), nil
		}
		answer.WriteString(c.Content)
		if c.Summary != "" {
			summary = c.Summary
		}
		if c.Metadata != nil {
			meta = c.Metadata
		}
	}
	if err := ctx.Err(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("chat cancelled: %v", err)), nil
	}
	if meta != nil {
		t.logger.Debug().
			Str("session_id", sessionID).
			Int("history_length", meta.HistoryLength).
			Int("reasoning_steps", meta.ReasoningSteps).
			Msg("mcp chat answered")
	}

	text := answer.String()
	if summary != "" {
		text += "\n\n---\nConversation summary:\n" + summary
	}
	return mcp.NewToolResultText(text), nil
}

// RetrieveTool handles the retrieve MCP tool.
type RetrieveTool struct {
	retriever Retriever
	defaults  RetrieveDefaults
}

func NewRetrieveTool(retriever Retriever, defaults RetrieveDefaults) *RetrieveTool {
	if defaults.TopK <= 0 {
		defaults.TopK = service.DefaultTopK
	}
	if defaults.Threshold <= 0 {
		defaults.Threshold = service.DefaultThreshold
	}
	return &RetrieveTool{retriever: retriever, defaults: defaults}
}

// Definition returns the MCP tool definition for retrieve.
func (t *RetrieveTool) Definition() mcp.Tool {
	return mcp.NewTool("retrieve",
		mcp.WithDescription("Search knowledge bases and return matching passages ordered by similarity."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithArray("kb_ids",
			mcp.Required(),
			mcp.Description("Knowledge-base ids to search"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("top_k",
			mcp.Description(fmt.Sprintf("Max results per knowledge base (default: %d)", t.defaults.TopK)),
		),
		mcp.WithNumber("threshold",
			mcp.Description(fmt.Sprintf("Minimum similarity (default: %g)", t.defaults.Threshold)),
		),
	)
}

func (t *RetrieveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	kbIDs := stringsArg(req, "kb_ids")
	if len(kbIDs) == 0 {
		return mcp.NewToolResultError("'kb_ids' must name at least one knowledge base"), nil
	}
	topK := t.defaults.TopK
	if v, ok := req.GetArguments()["top_k"].(float64); ok && v > 0 {
		topK = int(v)
	}
	threshold := t.defaults.Threshold
	if v, ok := req.GetArguments()["threshold"].(float64); ok {
		threshold = v
	}

	hits, err := t.retriever.Retrieve(ctx, query, kbIDs, topK, threshold)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("retrieve failed: %v", err)), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("No passages found above the similarity threshold."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d passages:\n", len(hits))
	for i, h := range hits {
		fmt.Fprintf(&b, "\n%d. [%s] similarity %.3f", i+1, h.KnowledgeBaseName, h.Similarity)
		if h.Source != "" {
			fmt.Fprintf(&b, " (source: %s)", h.Source)
		}
		fmt.Fprintf(&b, "\n%s\n", h.Content)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// stringsArg reads an array argument, accepting a comma-separated string too.
func stringsArg(req mcp.CallToolRequest, key string) []string {
	switch v := req.GetArguments()[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
