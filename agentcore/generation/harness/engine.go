package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/agentcore/agentcore"
	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
	"github.com/ZanzyTHEbar/agentcore/agentcore/config"
	"github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
)

// Apology is returned when the loop is exhausted and the fallback call
// produces nothing usable.
const Apology = "I'm sorry, I wasn't able to complete an answer to your question. Please try rephrasing it or asking again."

// Engine defaults.
const (
	DefaultMaxRounds          = 5
	DefaultMaxHistory         = 20
	DefaultHistoryTokenBudget = 3000
	DefaultLenientMinChars    = 20
)

// Executor runs the instructions the model emits.
type Executor interface {
	Execute(ctx context.Context, instr ports.Instruction, caps capability.Set) string
}

// EngineConfig bounds the reasoning loop.
type EngineConfig struct {
	MaxRounds          int
	MaxHistory         int
	HistoryTokenBudget int
	LenientFallback    bool
	LenientMinChars    int
	SystemPrompt       string
}

// EngineConfigFrom maps the agent section of the application config.
func EngineConfigFrom(c config.AgentConfig) EngineConfig {
	return EngineConfig{
		MaxRounds:          c.MaxRounds,
		MaxHistory:         c.MaxHistoryLength,
		HistoryTokenBudget: c.HistoryTokenBudget,
		LenientFallback:    c.LenientFallback,
		LenientMinChars:    c.LenientMinChars,
		SystemPrompt:       c.SystemPrompt,
	}
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.MaxRounds <= 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = DefaultMaxHistory
	}
	if c.HistoryTokenBudget <= 0 {
		c.HistoryTokenBudget = DefaultHistoryTokenBudget
	}
	if c.LenientMinChars <= 0 {
		c.LenientMinChars = DefaultLenientMinChars
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = config.DefaultSystemPrompt
	}
	return c
}

// RunRequest is one user message to answer.
type RunRequest struct {
	SessionID    string
	Model        string // limiter key and log field
	Provider     ports.Provider
	Options      ports.Options
	System       string
	Summary      string
	History      []ports.Turn // prior turns, oldest first, excluding Message
	Message      string
	Capabilities capability.Set
}

// Round records what happened in one generation round.
type Round struct {
	Step        int                `json:"step"`
	Kind        DecisionKind       `json:"kind"`
	Strategy    string             `json:"strategy,omitempty"`
	Instruction *ports.Instruction `json:"instruction,omitempty"`
	Result      string             `json:"result,omitempty"`
	Answer      string             `json:"answer,omitempty"`
}

// RunResult is the outcome of a reasoning run. Answer is never empty.
type RunResult struct {
	Answer    string  `json:"answer"`
	Rounds    []Round `json:"rounds"`
	Exhausted bool    `json:"exhausted"`
}

// Engine drives the bounded generate, parse, execute loop.
type Engine struct {
	mu      sync.RWMutex
	cfg     EngineConfig
	builder *PromptBuilder
	parser  *OutputParser

	executor Executor
	limiter  ports.RateLimiter
	tracer   ports.Tracer
	logger   zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

func WithRateLimiter(l ports.RateLimiter) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.limiter = l
		}
	}
}

func WithTracer(t ports.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an engine around a tool executor.
func NewEngine(cfg EngineConfig, executor Executor, opts ...EngineOption) *Engine {
	e := &Engine{
		executor: executor,
		limiter:  &noOpRateLimiter{},
		tracer:   adapters.NopTracer{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.Configure(cfg)
	return e
}

// Configure swaps the loop limits. Runs already in flight keep the limits
// they started with.
func (e *Engine) Configure(cfg EngineConfig) {
	cfg = cfg.withDefaults()
	assembler := NewContextAssembler(Budget{MaxContextTokens: cfg.HistoryTokenBudget, MaxTurns: cfg.MaxHistory}, nil)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
	e.builder = NewPromptBuilder(assembler, cfg.SystemPrompt)
	e.parser = NewOutputParser(ParserOptions{LenientFallback: cfg.LenientFallback, LenientMinChars: cfg.LenientMinChars})
}

// Config returns the limits currently in effect.
func (e *Engine) Config() EngineConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

func (e *Engine) snapshot() (EngineConfig, *PromptBuilder, *OutputParser) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg, e.builder, e.parser
}

// Run answers req.Message in at most MaxRounds generation rounds plus one
// fallback call. Only provider failures are returned as errors; tool and
// retrieval failures are fed back to the model as text.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.Provider == nil {
		return nil, agentcore.ConfigurationError("no provider for model %q", req.Model)
	}
	cfg, builder, parser := e.snapshot()
	logger := e.logger.With().Str("session_id", req.SessionID).Str("model", req.Model).Logger()

	ctx, finish := e.tracer.StartSpan(ctx, "reasoning_run", map[string]any{
		"session_id":   req.SessionID,
		"model":        req.Model,
		"tools":        len(req.Capabilities.Tools()),
		"kbs":          len(req.Capabilities.KnowledgeBases()),
		"max_rounds":   cfg.MaxRounds,
		"history_size": len(req.History),
	})

	in := RoundInput{
		System:       req.System,
		Summary:      req.Summary,
		History:      req.History,
		Question:     req.Message,
		Capabilities: req.Capabilities,
		Meta:         map[string]string{"session_id": req.SessionID, "model": req.Model},
	}
	result := &RunResult{Rounds: make([]Round, 0, cfg.MaxRounds)}

	for step := 1; step <= cfg.MaxRounds; step++ {
		text, err := e.generate(ctx, req, builder.BuildRound(in), step)
		if err != nil {
			finish(err)
			return nil, err
		}

		decision, perr := parser.Parse(text)
		round := Round{Step: step, Kind: decision.Kind, Strategy: decision.Strategy}
		rlog := logger.With().Int("round", step).Str("decision", string(decision.Kind)).Logger()

		switch decision.Kind {
		case DecisionDirectAnswer:
			round.Answer = decision.Answer
			result.Rounds = append(result.Rounds, round)
			result.Answer = decision.Answer
			rlog.Debug().Str("strategy", decision.Strategy).Msg("direct answer")
			finish(nil)
			return result, nil

		case DecisionToolCall, DecisionRagQuery:
			instr := decision.Instruction
			out := e.execute(ctx, instr, req.Capabilities)
			e.tracer.Event(ctx, "tool_result", map[string]any{
				"round":      step,
				"tool":       instr.Name,
				"result_len": len(out),
			})
			round.Instruction = &instr
			round.Result = out
			in.Question += fmt.Sprintf("\n\nTool result (round %d): %s", step, out)
			rlog.Debug().Str("tool", instr.Name).Int("result_len", len(out)).Msg("instruction executed")

		default:
			rlog.Warn().Err(perr).Msg("unparseable model output")
			if !strings.Contains(in.Question, FormatReminder) {
				in.Question += "\n\n" + FormatReminder
			}
		}
		result.Rounds = append(result.Rounds, round)
	}

	result.Exhausted = true
	result.Answer = e.fallback(ctx, req, builder.BuildFallback(in), cfg.MaxRounds+1, logger)
	finish(nil)
	return result, nil
}

func (e *Engine) execute(ctx context.Context, instr ports.Instruction, caps capability.Set) string {
	if e.executor == nil {
		return "Error: " + agentcore.ToolExecutionError("no executor configured").Error()
	}
	return e.executor.Execute(ctx, instr, caps)
}

// fallback asks once for a direct answer without capabilities.
func (e *Engine) fallback(ctx context.Context, req RunRequest, prompt ports.PromptInput, step int, logger zerolog.Logger) string {
	text, err := e.generate(ctx, req, prompt, step)
	if err != nil {
		logger.Warn().Err(err).Msg("fallback generation failed")
		return Apology
	}
	answer := strings.TrimSpace(text)
	if loc := markerPattern.FindStringIndex(answer); loc != nil {
		answer = strings.TrimSpace(answer[loc[1]:])
	}
	if answer == "" {
		return Apology
	}
	return answer
}

// generate performs one rate-limited, traced and time-bounded provider call.
func (e *Engine) generate(ctx context.Context, req RunRequest, prompt ports.PromptInput, step int) (string, error) {
	release, err := e.limiter.Acquire(ctx, req.Model)
	if err != nil {
		return "", agentcore.ProviderError(fmt.Errorf("rate limit: %w", err))
	}
	defer release()

	ctx, finish := e.tracer.StartSpan(ctx, "generation", map[string]any{"round": step, "model": req.Model})

	opts := req.Options.WithDefaults()
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
	defer cancel()

	completion, err := req.Provider.Complete(callCtx, prompt, opts)
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("generation timed out after %dms: %w", opts.TimeoutMs, err)
		}
		finish(err)
		return "", agentcore.ProviderError(err)
	}
	finish(nil)
	return completion.Text, nil
}

// ChunkText splits s into pieces of at most size runes whose concatenation
// is s. A non-positive size yields a single chunk.
func ChunkText(s string, size int) []string {
	if s == "" {
		return nil
	}
	if size <= 0 {
		return []string{s}
	}
	var chunks []string
	start, count := 0, 0
	for i := 0; i < len(s); {
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
		count++
		if count == size {
			chunks = append(chunks, s[start:i])
			start, count = i, 0
		}
	}
	if start < len(s) {
		chunks = append(chunks, s[start:])
	}
	return chunks
}
