package models

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
)

// OpenAIProvider wraps the Chat Completions API. Any OpenAI-compatible
// endpoint works through BaseURL.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider; an empty APIKey falls back to OPENAI_API_KEY.
func NewOpenAIProvider(s Settings) *OpenAIProvider {
	var opts []option.RequestOption
	if s.APIKey != "" {
		opts = append(opts, option.WithAPIKey(s.APIKey))
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client, model: s.Model}
}

func (p *OpenAIProvider) params(in ports.PromptInput, opts ports.Options) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages)+1)
	if in.System != "" {
		messages = append(messages, openai.SystemMessage(in.System))
	}
	for _, m := range in.Messages {
		switch m.Role {
		case ports.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		case ports.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    p.model,
	}
	if opts.MaxNewTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxNewTokens))
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(float64(*opts.Temperature))
	}
	if opts.TopP != nil {
		params.TopP = openai.Float(float64(*opts.TopP))
	}
	if opts.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(float64(*opts.FrequencyPenalty))
	}
	if opts.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(float64(*opts.PresencePenalty))
	}
	if len(opts.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.Stop}
	}
	return params
}

func (p *OpenAIProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.params(in, opts))
	if err != nil {
		return ports.Completion{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ports.Completion{}, fmt.Errorf("openai api error: no choices returned")
	}
	return ports.Completion{
		Text: resp.Choices[0].Message.Content,
		Raw:  resp,
		Usage: &ports.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, in ports.PromptInput, opts ports.Options) (<-chan ports.CompletionChunk, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(in, opts))
	out := make(chan ports.CompletionChunk, 32)
	go func() {
		defer close(out)
		defer stream.Close()

		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content == "" {
					continue
				}
				if !send(ctx, out, ports.CompletionChunk{DeltaText: ch.Delta.Content}) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			send(ctx, out, ports.CompletionChunk{Done: true, Err: fmt.Errorf("openai streaming error: %w", err)})
			return
		}
		send(ctx, out, ports.CompletionChunk{Done: true})
	}()
	return out, nil
}

// Ensure OpenAIProvider implements the Provider interface.
var _ ports.Provider = (*OpenAIProvider)(nil)
