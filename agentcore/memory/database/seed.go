package database

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/agentcore/agentcore/config"
)

// SeedModels syncs the configured model list into the registry. List order
// becomes the registry order, so the first enabled entry is the default.
func SeedModels(ctx context.Context, store MetadataStore, models []config.ModelConfig) error {
	for i, m := range models {
		rec := ModelRecord{
			ID:               m.ID,
			DisplayName:      m.DisplayName,
			Provider:         m.Provider,
			Model:            m.Model,
			APIKey:           m.APIKey,
			BaseURL:          m.BaseURL,
			Enabled:          m.IsEnabled(),
			Description:      m.Description,
			MaxTokens:        m.MaxTokens,
			Temperature:      m.Temperature,
			TopP:             m.TopP,
			TopK:             m.TopK,
			FrequencyPenalty: m.FrequencyPenalty,
			PresencePenalty:  m.PresencePenalty,
			TimeoutSeconds:   m.TimeoutSeconds,
			Position:         i,
		}
		if rec.DisplayName == "" {
			rec.DisplayName = m.ID
		}
		if err := store.UpsertModel(ctx, rec); err != nil {
			return fmt.Errorf("failed to seed model %s: %w", m.ID, err)
		}
	}
	return nil
}
