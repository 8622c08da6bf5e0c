// Package models adapts hosted and local LLM backends to the harness
// Provider port and resolves model records into ready providers.
package models

import (
	"context"
	"strings"

	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
	"github.com/ZanzyTHEbar/agentcore/agentcore/memory/database"
)

// Provider kinds accepted in the provider column of a model record.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
)

// Settings is what a provider constructor needs from a model record.
type Settings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// SettingsFromRecord extracts constructor settings.
func SettingsFromRecord(rec database.ModelRecord) Settings {
	return Settings{
		Provider: normalizeProvider(rec.Provider),
		Model:    rec.Model,
		APIKey:   rec.APIKey,
		BaseURL:  rec.BaseURL,
	}
}

func normalizeProvider(p string) string {
	switch p = strings.ToLower(strings.TrimSpace(p)); p {
	case "", "openai_compatible", "openai-compatible", "deepseek":
		return ProviderOpenAI
	case "claude":
		return ProviderAnthropic
	case "google":
		return ProviderGemini
	default:
		return p
	}
}

// OptionsFromRecord maps the record's generation parameters onto provider
// options. Unset parameters stay unset and take the harness defaults; an
// explicit zero is passed through.
func OptionsFromRecord(rec database.ModelRecord) ports.Options {
	var o ports.Options
	if rec.MaxTokens != nil {
		o.MaxNewTokens = *rec.MaxTokens
	}
	if rec.Temperature != nil {
		o.Temperature = ports.Float32(float32(*rec.Temperature))
	}
	if rec.TopP != nil {
		o.TopP = ports.Float32(float32(*rec.TopP))
	}
	if rec.TopK != nil {
		o.TopK = *rec.TopK
	}
	if rec.FrequencyPenalty != nil {
		o.FrequencyPenalty = ports.Float32(float32(*rec.FrequencyPenalty))
	}
	if rec.PresencePenalty != nil {
		o.PresencePenalty = ports.Float32(float32(*rec.PresencePenalty))
	}
	if rec.TimeoutSeconds != nil {
		o.TimeoutMs = *rec.TimeoutSeconds * 1000
	}
	return o
}

// streamSingle adapts a non-streaming call to the streaming contract.
func streamSingle(ctx context.Context, p ports.Provider, in ports.PromptInput, opts ports.Options) (<-chan ports.CompletionChunk, error) {
	ch := make(chan ports.CompletionChunk, 1)
	go func() {
		defer close(ch)
		c, err := p.Complete(ctx, in, opts)
		if err != nil {
			ch <- ports.CompletionChunk{Done: true, Err: err}
			return
		}
		ch <- ports.CompletionChunk{DeltaText: c.Text, Done: true, Usage: c.Usage}
	}()
	return ch, nil
}

// send delivers a chunk unless the caller has gone away.
func send(ctx context.Context, ch chan<- ports.CompletionChunk, c ports.CompletionChunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
