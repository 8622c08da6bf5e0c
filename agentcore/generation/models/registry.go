package models

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/agentcore/agentcore"
	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
	"github.com/ZanzyTHEbar/agentcore/agentcore/memory/database"
)

// ModelSource is the read side of the metadata store the registry needs.
type ModelSource interface {
	GetModel(ctx context.Context, id string) (database.ModelRecord, error)
	ListModels(ctx context.Context, enabledOnly bool) ([]database.ModelRecord, error)
}

// Constructor builds a provider for one model record.
type Constructor func(ctx context.Context, s Settings) (ports.Provider, error)

// Resolved is a model ready for generation.
type Resolved struct {
	Record   database.ModelRecord
	Provider ports.Provider
	Options  ports.Options
}

type cachedProvider struct {
	settings Settings
	provider ports.Provider
}

// Registry resolves model ids into providers and keeps one provider per
// model until its record changes.
type Registry struct {
	source       ModelSource
	constructors map[string]Constructor
	logger       zerolog.Logger

	mu    sync.Mutex
	cache map[string]cachedProvider
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithConstructor registers or replaces the constructor for a provider kind.
func WithConstructor(provider string, c Constructor) RegistryOption {
	return func(r *Registry) { r.constructors[normalizeProvider(provider)] = c }
}

func WithRegistryLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates a registry with the built-in openai, anthropic,
// ollama and gemini constructors.
func NewRegistry(source ModelSource, opts ...RegistryOption) *Registry {
	r := &Registry{
		source: source,
		constructors: map[string]Constructor{
			ProviderOpenAI: func(_ context.Context, s Settings) (ports.Provider, error) {
				return NewOpenAIProvider(s), nil
			},
			ProviderAnthropic: func(_ context.Context, s Settings) (ports.Provider, error) {
				return NewAnthropicProvider(s), nil
			},
			ProviderOllama: func(_ context.Context, s Settings) (ports.Provider, error) {
				return NewOllamaProvider(s)
			},
			ProviderGemini: func(ctx context.Context, s Settings) (ports.Provider, error) {
				return NewGeminiProvider(ctx, s)
			},
		},
		logger: zerolog.Nop(),
		cache:  make(map[string]cachedProvider),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the provider for id. An empty id selects the first enabled
// model. Unknown, disabled or unbuildable models are configuration errors.
func (r *Registry) Resolve(ctx context.Context, id string) (*Resolved, error) {
	rec, err := r.record(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Enabled {
		return nil, agentcore.ConfigurationError("model %q is disabled", rec.ID)
	}

	provider, err := r.provider(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &Resolved{Record: rec, Provider: provider, Options: OptionsFromRecord(rec)}, nil
}

func (r *Registry) record(ctx context.Context, id string) (database.ModelRecord, error) {
	if id == "" {
		enabled, err := r.source.ListModels(ctx, true)
		if err != nil {
			return database.ModelRecord{}, fmt.Errorf("failed to list models: %w", err)
		}
		if len(enabled) == 0 {
			return database.ModelRecord{}, agentcore.ConfigurationError("no enabled model is configured")
		}
		return enabled[0], nil
	}

	rec, err := r.source.GetModel(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return database.ModelRecord{}, agentcore.ConfigurationError("unknown model %q", id)
	}
	if err != nil {
		return database.ModelRecord{}, fmt.Errorf("failed to load model %s: %w", id, err)
	}
	return rec, nil
}

func (r *Registry) provider(ctx context.Context, rec database.ModelRecord) (ports.Provider, error) {
	settings := SettingsFromRecord(rec)

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cache[rec.ID]; ok && c.settings == settings {
		return c.provider, nil
	}
	construct, ok := r.constructors[settings.Provider]
	if !ok {
		return nil, agentcore.ConfigurationError("model %q uses unsupported provider %q", rec.ID, rec.Provider)
	}
	if settings.Model == "" {
		return nil, agentcore.ConfigurationError("model %q has no provider model name", rec.ID)
	}
	p, err := construct(ctx, settings)
	if err != nil {
		if errors.Is(err, agentcore.ErrConfiguration) {
			return nil, err
		}
		return nil, agentcore.ConfigurationError("failed to build provider for model %q: %v", rec.ID, err)
	}
	r.cache[rec.ID] = cachedProvider{settings: settings, provider: p}
	r.logger.Debug().Str("model", rec.ID).Str("provider", settings.Provider).Msg("provider created")
	return p, nil
}
