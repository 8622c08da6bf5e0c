// Package tools executes the instructions a model emits: HTTP tool calls
// against bound endpoints and retrieval queries against bound knowledge
// bases. Every failure is reported as result text for the next round.
package tools

import (
	"context"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/agentcore/agentcore"
	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
	"github.com/ZanzyTHEbar/agentcore/agentcore/config"
	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
	"github.com/ZanzyTHEbar/agentcore/agentcore/memory/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Retriever is the retrieval collaborator used for rag queries.
type Retriever interface {
	RetrieveFrom(ctx context.Context, resolver service.KnowledgeBaseResolver, query string, kbIDs []string, k int, threshold float64) ([]service.Hit, error)
}

// Config tunes the executor. Zero values take the defaults below.
type Config struct {
	Timeout          time.Duration
	LegacyTimeout    time.Duration
	MaxResponseBytes int64
	AllowedHosts     []string
	DefaultKeyName   string
	TopK             int
	Threshold        float64
	MaxContentChars  int
}

// Executor defaults.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultLegacyTimeout    = 10 * time.Second
	DefaultMaxResponseBytes = 64 * 1024
	DefaultKeyName          = "X-API-Key"
	DefaultMaxContentChars  = 500
)

// ConfigFrom maps the application config onto executor settings.
func ConfigFrom(tools config.ToolsConfig, retrieval config.RetrievalConfig) Config {
	return Config{
		Timeout:          tools.Timeout,
		LegacyTimeout:    tools.LegacyTimeout,
		MaxResponseBytes: tools.MaxResponseBytes,
		AllowedHosts:     tools.AllowedHosts,
		DefaultKeyName:   tools.DefaultKeyName,
		TopK:             retrieval.TopK,
		Threshold:        retrieval.Threshold,
		MaxContentChars:  retrieval.MaxContentChars,
	}
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.LegacyTimeout <= 0 {
		c.LegacyTimeout = DefaultLegacyTimeout
	}
	if c.MaxResponseBytes == 0 {
		c.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if c.DefaultKeyName == "" {
		c.DefaultKeyName = DefaultKeyName
	}
	if c.TopK <= 0 {
		c.TopK = service.DefaultTopK
	}
	if c.Threshold <= 0 {
		c.Threshold = service.DefaultThreshold
	}
	if c.MaxContentChars <= 0 {
		c.MaxContentChars = DefaultMaxContentChars
	}
	return c
}

// Executor runs instructions. It is safe for concurrent use.
type Executor struct {
	cfg        Config
	client     *http.Client
	retriever  Retriever
	guardrails *Guardrails
	logger     zerolog.Logger
}

// NewExecutor creates an executor. retriever may be nil when no knowledge
// bases are ever bound.
func NewExecutor(cfg Config, retriever Retriever, logger zerolog.Logger) *Executor {
	cfg = cfg.withDefaults()
	return &Executor{
		cfg:        cfg,
		client:     &http.Client{},
		retriever:  retriever,
		guardrails: NewGuardrails(cfg.AllowedHosts, cfg.MaxResponseBytes),
		logger:     logger,
	}
}

// WithHTTPClient replaces the outbound client (tests, custom transports).
func (e *Executor) WithHTTPClient(c *http.Client) *Executor {
	e.client = c
	return e
}

// Execute runs one instruction and returns its result text. It never fails:
// errors are rendered into the text the model sees next round.
func (e *Executor) Execute(ctx context.Context, instr ports.Instruction, caps capability.Set) string {
	switch instr.Kind {
	case ports.InstructionRagQuery:
		return e.executeRag(ctx, instr.Query, caps)
	case ports.InstructionToolCall:
		if instr.Legacy() {
			return e.executeLegacy(ctx, instr.Raw, caps)
		}
		return e.executeStructured(ctx, instr, caps)
	default:
		return errorText(agentcore.ToolExecutionError("unknown instruction kind %q", instr.Kind))
	}
}

func errorText(err error) string {
	return "Error: " + err.Error()
}
