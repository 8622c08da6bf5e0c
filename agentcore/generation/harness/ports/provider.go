package harnessports

import (
	"context"
)

// PromptMessage represents a single chat message used to build prompts.
type PromptMessage struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	System   string            // high-level system instructions
	Messages []PromptMessage   // ordered chat messages
	Meta     map[string]string // lightweight metadata for tracing/caching keys
}

// Default generation options.
const (
	DefaultMaxNewTokens = 1000
	DefaultTemperature  = 0.7
	DefaultTimeoutMs    = 30_000
)

// Options controls sampling and limits. Zero integer limits mean "unset";
// sampling parameters are unset when nil so an explicit 0 is kept.
type Options struct {
	MaxNewTokens     int
	Temperature      *float32
	TopP             *float32
	TopK             int
	FrequencyPenalty *float32
	PresencePenalty  *float32
	Stop             []string
	// TimeoutMs applies to the provider call only (not overall harness deadline)
	TimeoutMs int
}

// WithDefaults fills each unset limit independently.
func (o Options) WithDefaults() Options {
	if o.MaxNewTokens <= 0 {
		o.MaxNewTokens = DefaultMaxNewTokens
	}
	if o.Temperature == nil {
		o.Temperature = Float32(DefaultTemperature)
	}
	if o.TimeoutMs <= 0 {
		o.TimeoutMs = DefaultTimeoutMs
	}
	return o
}

// Float32 returns a pointer to v.
func Float32(v float32) *float32 { return &v }

// Usage captures token accounting for telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's non-streaming response.
type Completion struct {
	Text  string
	Raw   any    // raw provider payload for debugging/telemetry
	Usage *Usage // optional usage information
}

// CompletionChunk is the provider's streaming delta.
type CompletionChunk struct {
	DeltaText string
	Done      bool
	Err       error
	Usage     *Usage // on final chunk when available
}

// Provider is the abstraction for all LLM backends.
type Provider interface {
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
	Stream(ctx context.Context, in PromptInput, opts Options) (<-chan CompletionChunk, error)
}
