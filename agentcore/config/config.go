package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/agentcore/agentcore"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Agent     AgentConfig     `mapstructure:"agent"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Store     StoreConfig     `mapstructure:"store"`
	Harness   HarnessConfig   `mapstructure:"harness"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Models    []ModelConfig   `mapstructure:"models"`
}

// AgentConfig bounds the reasoning loop and the per-session memory.
type AgentConfig struct {
	MaxRounds          int    `mapstructure:"max_rounds"`           // Generation rounds per chat call
	MaxHistoryLength   int    `mapstructure:"max_history_length"`   // Turns shown in the recent history window
	SummaryTrigger     int    `mapstructure:"summary_trigger"`      // History length that triggers summarization
	KeepAfterSummary   int    `mapstructure:"keep_after_summary"`   // Turns kept once a summary is produced
	HistoryTokenBudget int    `mapstructure:"history_token_budget"` // Approximate token budget for the history window
	StreamChunkSize    int    `mapstructure:"stream_chunk_size"`    // Runes per emitted answer chunk
	LenientFallback    bool   `mapstructure:"lenient_fallback"`     // Treat long URL-free text as a final answer
	LenientMinChars    int    `mapstructure:"lenient_min_chars"`    // Minimum length for the lenient fallback
	SystemPrompt       string `mapstructure:"system_prompt"`        // Default system instructions
}

// ToolsConfig controls outbound HTTP tool calls.
type ToolsConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`            // Structured tool call timeout
	LegacyTimeout    time.Duration `mapstructure:"legacy_timeout"`     // Plain-text "METHOD url" call timeout
	MaxResponseBytes int64         `mapstructure:"max_response_bytes"` // Response body cap
	AllowedHosts     []string      `mapstructure:"allowed_hosts"`      // Empty allows every host
	DefaultKeyName   string        `mapstructure:"default_key_name"`   // Header used for apiKey auth
}

// EmbeddingConfig selects the embedding collaborator.
type EmbeddingConfig struct {
	Provider        string `mapstructure:"provider"` // "openai" | "ollama"
	Model           string `mapstructure:"model"`
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"` // 0 falls back to harness.cache_ttl_seconds
}

// RetrievalConfig stores knowledge-base retrieval settings.
type RetrievalConfig struct {
	TopK            int             `mapstructure:"top_k"`
	Threshold       float64         `mapstructure:"threshold"`
	Metric          string          `mapstructure:"metric"` // "ip" | "cosine" | "l2"
	MaxContentChars int             `mapstructure:"max_content_chars"`
	Concurrency     int             `mapstructure:"concurrency"`
	Embedding       EmbeddingConfig `mapstructure:"embedding"`
}

// StoreConfig stores database connection details.
type StoreConfig struct {
	Driver  string `mapstructure:"driver"` // "libsql" | "sqlite"
	Path    string `mapstructure:"path"`
	DataDir string `mapstructure:"data_dir"`
	Migrate bool   `mapstructure:"migrate"`
}

// HarnessConfig stores LLM harness configurations.
type HarnessConfig struct {
	// Cache settings
	CacheEnabled    bool `mapstructure:"cache_enabled"`     // Enable embedding caching
	CacheCapacity   int  `mapstructure:"cache_capacity"`    // LRU cache capacity
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds"` // Default cache entry TTL

	// Rate limiting
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`     // Enable rate limiting
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`    // Token bucket capacity
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"` // Refill rate
	RateLimitMaxWait    time.Duration `mapstructure:"rate_limit_max_wait"`    // How long a call waits for a token

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"` // Enable structured logging/tracing
}

// ServerConfig stores transport settings.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ModelConfig seeds a model record at startup. Pointer fields are optional
// generation parameters; nil means the provider default applies.
type ModelConfig struct {
	ID               string   `mapstructure:"id"`
	DisplayName      string   `mapstructure:"display_name"`
	Provider         string   `mapstructure:"provider"` // "openai" | "anthropic" | "ollama" | "gemini"
	Model            string   `mapstructure:"model"`
	APIKey           string   `mapstructure:"api_key"`
	BaseURL          string   `mapstructure:"base_url"`
	Enabled          *bool    `mapstructure:"enabled"`
	Description      string   `mapstructure:"description"`
	MaxTokens        *int     `mapstructure:"max_tokens"`
	Temperature      *float64 `mapstructure:"temperature"`
	TopP             *float64 `mapstructure:"top_p"`
	TopK             *int     `mapstructure:"top_k"`
	FrequencyPenalty *float64 `mapstructure:"frequency_penalty"`
	PresencePenalty  *float64 `mapstructure:"presence_penalty"`
	TimeoutSeconds   *int     `mapstructure:"timeout"`
}

// IsEnabled reports whether the seeded model is enabled (default true).
func (m ModelConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

const DefaultSystemPrompt = "You are a helpful AI assistant. Use the available tools and knowledge bases when they help answer the user's question."

var AppConfig Config

// Loader reads configuration through a dedicated viper instance so that
// reloads and tests do not share global state.
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader creates a loader for the given config file. An empty path searches
// the default locations for config.yaml.
func NewLoader(configPath string) *Loader {
	return &Loader{v: viper.New(), path: configPath}
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	cfg, err := NewLoader(configPath).Load()
	if err != nil {
		return nil, err
	}
	AppConfig = *cfg
	return cfg, nil
}

// Load reads the configuration with defaults applied.
func (l *Loader) Load() (*Config, error) {
	v := l.v
	if l.path != "" {
		v.SetConfigFile(l.path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", agentcore.DefaultAppName))
		v.AddConfigPath(agentcore.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. agent.max_rounds becomes AGENT_MAX_ROUNDS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment apply.
	}

	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Agent defaults
	v.SetDefault("agent.max_rounds", 5)
	v.SetDefault("agent.max_history_length", 20)
	v.SetDefault("agent.summary_trigger", 16)
	v.SetDefault("agent.keep_after_summary", 4)
	v.SetDefault("agent.history_token_budget", 3000)
	v.SetDefault("agent.stream_chunk_size", 24)
	v.SetDefault("agent.lenient_fallback", true)
	v.SetDefault("agent.lenient_min_chars", 20)
	v.SetDefault("agent.system_prompt", DefaultSystemPrompt)

	// Tool call defaults
	v.SetDefault("tools.timeout", "30s")
	v.SetDefault("tools.legacy_timeout", "10s")
	v.SetDefault("tools.max_response_bytes", 64*1024)
	v.SetDefault("tools.allowed_hosts", []string{}) // Empty means allow all
	v.SetDefault("tools.default_key_name", "X-API-Key")

	// Retrieval defaults
	v.SetDefault("retrieval.top_k", 10)
	v.SetDefault("retrieval.threshold", 0.6)
	v.SetDefault("retrieval.metric", "ip")
	v.SetDefault("retrieval.max_content_chars", 500)
	v.SetDefault("retrieval.concurrency", 4)
	v.SetDefault("retrieval.embedding.provider", "openai")
	v.SetDefault("retrieval.embedding.model", "text-embedding-3-small")
	v.SetDefault("retrieval.embedding.base_url", "")
	v.SetDefault("retrieval.embedding.api_key", "")
	v.SetDefault("retrieval.embedding.cache_ttl_seconds", 0)

	// Store defaults
	v.SetDefault("store.driver", agentcore.DefaultDriver)
	v.SetDefault("store.path", agentcore.DefaultDatabaseDSN)
	v.SetDefault("store.data_dir", agentcore.DefaultDatabaseDir)
	v.SetDefault("store.migrate", true)

	// Harness defaults
	v.SetDefault("harness.cache_enabled", true)
	v.SetDefault("harness.cache_capacity", 1000)
	v.SetDefault("harness.cache_ttl_seconds", 3600) // 1 hour
	v.SetDefault("harness.rate_limit_enabled", false)
	v.SetDefault("harness.rate_limit_capacity", 10)
	v.SetDefault("harness.rate_limit_refill_rate", "1s")
	v.SetDefault("harness.rate_limit_max_wait", "30s")
	v.SetDefault("harness.enable_tracing", true)

	// Transport defaults
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate rejects settings the core cannot run with.
func (c *Config) Validate() error {
	if c.Agent.MaxRounds < 1 {
		return agentcore.ConfigurationError("agent.max_rounds must be at least 1, got %d", c.Agent.MaxRounds)
	}
	if c.Agent.SummaryTrigger < 1 {
		return agentcore.ConfigurationError("agent.summary_trigger must be at least 1, got %d", c.Agent.SummaryTrigger)
	}
	if c.Agent.KeepAfterSummary < 0 {
		return agentcore.ConfigurationError("agent.keep_after_summary must not be negative")
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return agentcore.ConfigurationError("retrieval.threshold must be within [0,1], got %v", c.Retrieval.Threshold)
	}
	switch c.Store.Driver {
	case "libsql", "sqlite":
	default:
		return agentcore.ConfigurationError("unsupported store.driver %q", c.Store.Driver)
	}
	seen := make(map[string]struct{}, len(c.Models))
	for i, m := range c.Models {
		if m.ID == "" || m.Model == "" {
			return agentcore.ConfigurationError("models[%d] requires id and model", i)
		}
		if _, dup := seen[m.ID]; dup {
			return agentcore.ConfigurationError("duplicate model id %q", m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

// DatabasePath resolves the configured database file against the data dir.
func (s StoreConfig) DatabasePath() string {
	if s.Path == ":memory:" || filepath.IsAbs(s.Path) || s.DataDir == "" {
		return s.Path
	}
	return filepath.Join(s.DataDir, s.Path)
}

// EmbeddingCacheTTL is the TTL for memoised query embeddings.
func (c *Config) EmbeddingCacheTTL() int {
	if c.Retrieval.Embedding.CacheTTLSeconds > 0 {
		return c.Retrieval.Embedding.CacheTTLSeconds
	}
	return c.Harness.CacheTTLSeconds
}
