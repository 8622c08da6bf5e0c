package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
)

// AnthropicProvider wraps the Anthropic Messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates a provider; an empty APIKey falls back to ANTHROPIC_API_KEY.
func NewAnthropicProvider(s Settings) *AnthropicProvider {
	var opts []option.RequestOption
	if s.APIKey != "" {
		opts = append(opts, option.WithAPIKey(s.APIKey))
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{client: &client, model: s.Model}
}

func (p *AnthropicProvider) params(in ports.PromptInput, opts ports.Options) anthropic.MessageNewParams {
	opts = opts.WithDefaults()
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		Messages:    anthropicMessages(in.Messages),
		MaxTokens:   int64(opts.MaxNewTokens),
		Temperature: anthropic.Float(float64(*opts.Temperature)),
	}
	if in.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: in.System}}
	}
	if opts.TopP != nil {
		params.TopP = anthropic.Float(float64(*opts.TopP))
	}
	if opts.TopK > 0 {
		params.TopK = anthropic.Int(int64(opts.TopK))
	}
	if len(opts.Stop) > 0 {
		params.StopSequences = opts.Stop
	}
	return params
}

// anthropicMessages merges consecutive same-role turns; the API requires
// alternating roles.
func anthropicMessages(msgs []ports.PromptMessage) []anthropic.MessageParam {
	var (
		out      []anthropic.MessageParam
		lastRole string
		buf      []string
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		block := anthropic.NewTextBlock(strings.Join(buf, "\n\n"))
		if lastRole == ports.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
		buf = buf[:0]
	}
	for _, m := range msgs {
		role := ports.RoleUser
		if m.Role == ports.RoleAssistant {
			role = ports.RoleAssistant
		}
		if role != lastRole {
			flush()
			lastRole = role
		}
		if m.Content != "" {
			buf = append(buf, m.Content)
		}
	}
	flush()
	return out
}

func (p *AnthropicProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	resp, err := p.client.Messages.New(ctx, p.params(in, opts))
	if err != nil {
		return ports.Completion{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	return ports.Completion{
		Text: text.String(),
		Raw:  resp,
		Usage: &ports.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// Stream emits the whole completion as one chunk.
func (p *AnthropicProvider) Stream(ctx context.Context, in ports.PromptInput, opts ports.Options) (<-chan ports.CompletionChunk, error) {
	return streamSingle(ctx, p, in, opts)
}

// Ensure AnthropicProvider implements the Provider interface.
var _ ports.Provider = (*AnthropicProvider)(nil)
