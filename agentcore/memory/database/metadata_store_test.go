package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
	"github.com/ZanzyTHEbar/agentcore/agentcore/config"
)

func createTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, db))

	v, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	for _, table := range []string{"models", "plugin_tools", "knowledge_bases", "kb_chunks", "conversation_turns"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestToolCRUD(t *testing.T) {
	store := NewSQLMetadataStore(createTestDB(t))
	ctx := context.Background()

	rec := ToolRecord{
		ID:         "t1",
		Name:       "weather",
		Purpose:    "Look up weather",
		CallMethod: "GET https://api.example.com/weather/{city}",
		Parameters: []capability.Parameter{{Name: "city", In: capability.InPath, Required: true, Type: "string"}},
		UserSettings: map[string]any{
			"auth_type": "bearer",
			"token":     "secret",
			"units":     "metric",
		},
	}
	require.NoError(t, store.UpsertTool(ctx, rec))

	got, err := store.GetTool(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "weather", got.Name)
	assert.Equal(t, rec.Parameters, got.Parameters)
	assert.Equal(t, "metric", got.UserSettings["units"])

	byName, err := store.GetTool(ctx, "weather")
	require.NoError(t, err)
	assert.Equal(t, "t1", byName.ID)

	tool, err := got.Capability()
	require.NoError(t, err)
	assert.Equal(t, "GET", tool.Method)
	assert.Equal(t, "https://api.example.com/weather/{city}", tool.URLTemplate)
	assert.Equal(t, capability.AuthBearer, tool.Settings.AuthType)
	assert.Equal(t, "metric", tool.Settings.Values["units"])

	// Re-import without settings keeps stored credentials.
	rec.Purpose = "Weather v2"
	rec.UserSettings = nil
	require.NoError(t, store.UpsertTool(ctx, rec))
	got, err = store.GetTool(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Weather v2", got.Purpose)
	assert.Equal(t, "secret", got.UserSettings["token"])

	_, err = store.GetTool(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestKnowledgeBaseCRUD(t *testing.T) {
	store := NewSQLMetadataStore(createTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.UpsertKnowledgeBase(ctx, KnowledgeBaseRecord{ID: "kb1", Metric: "cosine"}))

	got, err := store.GetKnowledgeBase(ctx, "kb1")
	require.NoError(t, err)
	assert.Equal(t, "kb1", got.Name)
	kb := got.Capability()
	assert.Equal(t, "kb1", kb.CollectionName())
	assert.Equal(t, "cosine", kb.Metric)

	_, err = store.GetKnowledgeBase(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSeedAndListModels(t *testing.T) {
	store := NewSQLMetadataStore(createTestDB(t))
	ctx := context.Background()

	disabled := false
	temp := 0.2
	maxTokens := 256
	err := SeedModels(ctx, store, []config.ModelConfig{
		{ID: "local", Provider: "ollama", Model: "llama3", Enabled: &disabled},
		{ID: "gpt", Provider: "openai", Model: "gpt-4o-mini", Temperature: &temp, MaxTokens: &maxTokens},
		{ID: "claude", Provider: "anthropic", Model: "claude-3-5-haiku-latest"},
	})
	require.NoError(t, err)

	all, err := store.ListModels(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "local", all[0].ID)

	enabled, err := store.ListModels(ctx, true)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, "gpt", enabled[0].ID)
	require.NotNil(t, enabled[0].Temperature)
	assert.InDelta(t, 0.2, *enabled[0].Temperature, 1e-9)
	require.NotNil(t, enabled[0].MaxTokens)
	assert.Equal(t, 256, *enabled[0].MaxTokens)
	assert.Nil(t, enabled[0].TopP)
	assert.Equal(t, "gpt", enabled[0].DisplayName)

	m, err := store.GetModel(ctx, "local")
	require.NoError(t, err)
	assert.False(t, m.Enabled)

	_, err = store.GetModel(ctx, "ghost")
	assert.True(t, errors.Is(err, ErrNotFound))
}
