package models

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/ZanzyTHEbar/agentcore/agentcore"
	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
)

// GeminiProvider wraps the Gemini API through the genai SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a provider; an empty APIKey falls back to GOOGLE_API_KEY.
func NewGeminiProvider(ctx context.Context, s Settings) (*GeminiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:  s.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if s.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: s.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, agentcore.ConfigurationError("failed to create gemini client: %v", err)
	}
	return &GeminiProvider{client: client, model: s.Model}, nil
}

func (p *GeminiProvider) request(in ports.PromptInput, opts ports.Options) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(in.Messages))
	for _, m := range in.Messages {
		if m.Content == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if m.Role == ports.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{}
	if in.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: in.System}}}
	}
	if opts.MaxNewTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxNewTokens)
	}
	if opts.Temperature != nil {
		cfg.Temperature = genai.Ptr(*opts.Temperature)
	}
	if opts.TopP != nil {
		cfg.TopP = genai.Ptr(*opts.TopP)
	}
	if opts.TopK > 0 {
		cfg.TopK = genai.Ptr(float32(opts.TopK))
	}
	if opts.FrequencyPenalty != nil {
		cfg.FrequencyPenalty = genai.Ptr(*opts.FrequencyPenalty)
	}
	if opts.PresencePenalty != nil {
		cfg.PresencePenalty = genai.Ptr(*opts.PresencePenalty)
	}
	if len(opts.Stop) > 0 {
		cfg.StopSequences = opts.Stop
	}
	return contents, cfg
}

// responseText joins the non-thought text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func (p *GeminiProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	contents, cfg := p.request(in, opts)
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("gemini api error: %w", err)
	}
	c := ports.Completion{Text: responseText(resp), Raw: resp}
	if u := resp.UsageMetadata; u != nil {
		c.Usage = &ports.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return c, nil
}

func (p *GeminiProvider) Stream(ctx context.Context, in ports.PromptInput, opts ports.Options) (<-chan ports.CompletionChunk, error) {
	contents, cfg := p.request(in, opts)
	out := make(chan ports.CompletionChunk, 32)
	go func() {
		defer close(out)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, cfg) {
			if err != nil {
				send(ctx, out, ports.CompletionChunk{Done: true, Err: fmt.Errorf("gemini streaming error: %w", err)})
				return
			}
			if text := responseText(resp); text != "" {
				if !send(ctx, out, ports.CompletionChunk{DeltaText: text}) {
					return
				}
			}
		}
		send(ctx, out, ports.CompletionChunk{Done: true})
	}()
	return out, nil
}

// Ensure GeminiProvider implements the Provider interface.
var _ ports.Provider = (*GeminiProvider)(nil)
