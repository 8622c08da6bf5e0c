package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ZanzyTHEbar/agentcore/agentcore"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	suite.tempDir = suite.T().TempDir()
	require.NoError(suite.T(), os.Chdir(suite.tempDir))
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		_ = os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) writeConfig(name, content string) string {
	path := filepath.Join(suite.tempDir, name)
	require.NoError(suite.T(), os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), 5, cfg.Agent.MaxRounds)
	assert.Equal(suite.T(), 20, cfg.Agent.MaxHistoryLength)
	assert.Equal(suite.T(), 16, cfg.Agent.SummaryTrigger)
	assert.Equal(suite.T(), 4, cfg.Agent.KeepAfterSummary)
	assert.True(suite.T(), cfg.Agent.LenientFallback)
	assert.Equal(suite.T(), DefaultSystemPrompt, cfg.Agent.SystemPrompt)

	assert.Equal(suite.T(), 30*time.Second, cfg.Tools.Timeout)
	assert.Equal(suite.T(), 10*time.Second, cfg.Tools.LegacyTimeout)
	assert.Equal(suite.T(), "X-API-Key", cfg.Tools.DefaultKeyName)

	assert.Equal(suite.T(), 10, cfg.Retrieval.TopK)
	assert.InDelta(suite.T(), 0.6, cfg.Retrieval.Threshold, 1e-9)
	assert.Equal(suite.T(), "ip", cfg.Retrieval.Metric)
	assert.Equal(suite.T(), 500, cfg.Retrieval.MaxContentChars)

	assert.Equal(suite.T(), agentcore.DefaultDriver, cfg.Store.Driver)
	assert.Equal(suite.T(), time.Second, cfg.Harness.RateLimitRefillRate)
	assert.Equal(suite.T(), 30*time.Second, cfg.Harness.RateLimitMaxWait)
	assert.Equal(suite.T(), 3600, cfg.EmbeddingCacheTTL())
	assert.Empty(suite.T(), cfg.Models)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	path := suite.writeConfig("config.yaml", `
agent:
  max_rounds: 3
  summary_trigger: 8
tools:
  timeout: 5s
  allowed_hosts: ["api.example.com"]
retrieval:
  metric: cosine
  threshold: 0.75
store:
  driver: sqlite
  path: ":memory:"
models:
  - id: gpt
    provider: openai
    model: gpt-4o-mini
    temperature: 0.2
  - id: local
    provider: ollama
    model: llama3
    enabled: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), 3, cfg.Agent.MaxRounds)
	assert.Equal(suite.T(), 8, cfg.Agent.SummaryTrigger)
	assert.Equal(suite.T(), 5*time.Second, cfg.Tools.Timeout)
	assert.Equal(suite.T(), []string{"api.example.com"}, cfg.Tools.AllowedHosts)
	assert.Equal(suite.T(), "cosine", cfg.Retrieval.Metric)
	assert.Equal(suite.T(), ":memory:", cfg.Store.DatabasePath())

	require.Len(suite.T(), cfg.Models, 2)
	assert.True(suite.T(), cfg.Models[0].IsEnabled())
	require.NotNil(suite.T(), cfg.Models[0].Temperature)
	assert.InDelta(suite.T(), 0.2, *cfg.Models[0].Temperature, 1e-9)
	assert.Nil(suite.T(), cfg.Models[0].MaxTokens)
	assert.False(suite.T(), cfg.Models[1].IsEnabled())
}

func (suite *ConfigTestSuite) TestEnvironmentOverride() {
	suite.T().Setenv("AGENT_MAX_ROUNDS", "7")
	suite.T().Setenv("RETRIEVAL_TOP_K", "3")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), 7, cfg.Agent.MaxRounds)
	assert.Equal(suite.T(), 3, cfg.Retrieval.TopK)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	path := suite.writeConfig("malformed.yaml", `
agent:
  max_rounds: 3
  invalid_yaml: [unclosed bracket
`)

	cfg, err := LoadConfig(path)

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestValidationRejectsBadValues() {
	cases := map[string]string{
		"rounds":    "agent:\n  max_rounds: 0\n",
		"threshold": "retrieval:\n  threshold: 1.5\n",
		"driver":    "store:\n  driver: postgres\n",
		"model":     "models:\n  - id: a\n",
		"duplicate": "models:\n  - id: a\n    model: m\n  - id: a\n    model: n\n",
	}

	for name, content := range cases {
		path := suite.writeConfig(name+".yaml", content)
		cfg, err := LoadConfig(path)
		assert.Nil(suite.T(), cfg, name)
		assert.True(suite.T(), errors.Is(err, agentcore.ErrConfiguration), "%s: %v", name, err)
	}
}

func (suite *ConfigTestSuite) TestAppConfigGlobal() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), cfg.Agent.MaxRounds, AppConfig.Agent.MaxRounds)
}

func (suite *ConfigTestSuite) TestWatchReloadsOnWrite() {
	path := suite.writeConfig("watched.yaml", "agent:\n  max_rounds: 2\n")

	loader := NewLoader(path)
	cfg, err := loader.Load()
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), 2, cfg.Agent.MaxRounds)

	var rounds atomic.Int64
	loader.Watch(zerolog.Nop(), func(c *Config) {
		rounds.Store(int64(c.Agent.MaxRounds))
	})

	require.NoError(suite.T(), os.WriteFile(path, []byte("agent:\n  max_rounds: 9\n"), 0o644))

	assert.Eventually(suite.T(), func() bool { return rounds.Load() == 9 }, 3*time.Second, 20*time.Millisecond)
}

func TestStoreConfig_DatabasePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", "agent.db"), StoreConfig{Path: "agent.db", DataDir: "/data"}.DatabasePath())
	assert.Equal(t, "/abs/agent.db", StoreConfig{Path: "/abs/agent.db", DataDir: "/data"}.DatabasePath())
	assert.Equal(t, ":memory:", StoreConfig{Path: ":memory:", DataDir: "/data"}.DatabasePath())
}

// BenchmarkLoadConfig benchmarks config loading performance
func BenchmarkLoadConfig(b *testing.B) {
	for b.Loop() {
		if _, err := LoadConfig(""); err != nil {
			b.Fatal(err)
		}
	}
}

func TestEmbeddingCacheTTL(t *testing.T) {
	cfg := &Config{Harness: HarnessConfig{CacheTTLSeconds: 3600}}
	assert.Equal(t, 3600, cfg.EmbeddingCacheTTL())

	cfg.Retrieval.Embedding.CacheTTLSeconds = 120
	assert.Equal(t, 120, cfg.EmbeddingCacheTTL())
}
