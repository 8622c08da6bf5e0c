package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ZanzyTHEbar/agentcore/agentcore"
	"github.com/ZanzyTHEbar/agentcore/agentcore/config"
)

// NewEmbedder builds the embedder selected by retrieval.embedding.provider.
func NewEmbedder(cfg config.EmbeddingConfig) (Embedder, error) {
	if cfg.Model == "" {
		return nil, agentcore.ConfigurationError("retrieval.embedding.model is required")
	}
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIEmbedder(cfg.Model, cfg.APIKey, cfg.BaseURL), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.Model, cfg.BaseURL)
	default:
		return nil, agentcore.ConfigurationError("unsupported embedding provider %q", cfg.Provider)
	}
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates an embedder; an empty apiKey falls back to OPENAI_API_KEY.
func NewOpenAIEmbedder(model, apiKey, baseURL string) *OpenAIEmbedder {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIEmbedder{client: &client, model: model}
}

func (e *OpenAIEmbedder) Model() string { return e.model }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}
	return resp.Data[0].Embedding, nil
}

// OllamaEmbedder calls a local Ollama server.
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

// NewOllamaEmbedder creates an embedder; an empty baseURL uses OLLAMA_HOST.
func NewOllamaEmbedder(model, baseURL string) (*OllamaEmbedder, error) {
	var (
		client *api.Client
		err    error
	)
	if baseURL != "" {
		u, perr := url.Parse(baseURL)
		if perr != nil {
			return nil, agentcore.ConfigurationError("invalid ollama base url %q: %v", baseURL, perr)
		}
		client = api.NewClient(u, http.DefaultClient)
	} else {
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
	}
	return &OllamaEmbedder{client: client, model: model}, nil
}

func (e *OllamaEmbedder) Model() string { return e.model }

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama embed: empty response")
	}
	out := make([]float64, len(resp.Embeddings[0]))
	for i, v := range resp.Embeddings[0] {
		out[i] = float64(v)
	}
	return out, nil
}
