package models

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/ZanzyTHEbar/agentcore/agentcore"
	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
)

// OllamaProvider talks to a local or remote Ollama server.
type OllamaProvider struct {
	client *api.Client
	model  string
}

// NewOllamaProvider creates a provider; an empty BaseURL uses OLLAMA_HOST.
func NewOllamaProvider(s Settings) (*OllamaProvider, error) {
	var client *api.Client
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil {
			return nil, agentcore.ConfigurationError("invalid ollama base url %q: %v", s.BaseURL, err)
		}
		client = api.NewClient(u, http.DefaultClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
	}
	return &OllamaProvider{client: client, model: s.Model}, nil
}

func (p *OllamaProvider) request(in ports.PromptInput, opts ports.Options, stream bool) *api.ChatRequest {
	messages := make([]api.Message, 0, len(in.Messages)+1)
	if in.System != "" {
		messages = append(messages, api.Message{Role: ports.RoleSystem, Content: in.System})
	}
	for _, m := range in.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}
	return &api.ChatRequest{
		Model:    p.model,
		Messages: messages,
		Options:  ollamaOptions(opts),
		Stream:   &stream,
	}
}

func ollamaOptions(opts ports.Options) map[string]any {
	o := map[string]any{}
	if opts.MaxNewTokens > 0 {
		o["num_predict"] = opts.MaxNewTokens
	}
	if opts.Temperature != nil {
		o["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		o["top_p"] = *opts.TopP
	}
	if opts.TopK > 0 {
		o["top_k"] = opts.TopK
	}
	if opts.FrequencyPenalty != nil {
		o["frequency_penalty"] = *opts.FrequencyPenalty
	}
	if opts.PresencePenalty != nil {
		o["presence_penalty"] = *opts.PresencePenalty
	}
	if len(opts.Stop) > 0 {
		o["stop"] = opts.Stop
	}
	return o
}

func (p *OllamaProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	var (
		text  strings.Builder
		usage *ports.Usage
	)
	err := p.client.Chat(ctx, p.request(in, opts, false), func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		if resp.Done {
			usage = &ports.Usage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
				TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			}
		}
		return nil
	})
	if err != nil {
		return ports.Completion{}, fmt.Errorf("ollama chat: %w", err)
	}
	return ports.Completion{Text: text.String(), Usage: usage}, nil
}

func (p *OllamaProvider) Stream(ctx context.Context, in ports.PromptInput, opts ports.Options) (<-chan ports.CompletionChunk, error) {
	out := make(chan ports.CompletionChunk, 32)
	go func() {
		defer close(out)
		err := p.client.Chat(ctx, p.request(in, opts, true), func(resp api.ChatResponse) error {
			if resp.Message.Content == "" {
				return nil
			}
			if !send(ctx, out, ports.CompletionChunk{DeltaText: resp.Message.Content}) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			send(ctx, out, ports.CompletionChunk{Done: true, Err: fmt.Errorf("ollama chat: %w", err)})
			return
		}
		send(ctx, out, ports.CompletionChunk{Done: true})
	}()
	return out, nil
}

// Ensure OllamaProvider implements the Provider interface.
var _ ports.Provider = (*OllamaProvider)(nil)
