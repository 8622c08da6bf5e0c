package harness

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/agentcore/agentcore/config"
	"github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
)

// Factory creates and wires harness components from configuration.
type Factory struct {
	cfg    *config.Config
	db     *sql.DB // Optional, for conversation store
	logger zerolog.Logger
}

// NewFactory creates a new harness factory.
func NewFactory(cfg *config.Config, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		db:     db,
		logger: logger,
	}
}

// CreateEngine creates a fully wired Engine from config.
func (f *Factory) CreateEngine(executor Executor) *Engine {
	return NewEngine(
		EngineConfigFrom(f.cfg.Agent),
		executor,
		WithRateLimiter(f.CreateRateLimiter()),
		WithTracer(f.CreateTracer()),
		WithLogger(f.logger.With().Str("component", "engine").Logger()),
	)
}

// CreateCache creates a cache adapter from config.
func (f *Factory) CreateCache() ports.Cache {
	if !f.cfg.Harness.CacheEnabled {
		return &noOpCache{}
	}

	return adapters.NewLRUCache(f.cfg.Harness.CacheCapacity)
}

// CreateRateLimiter creates a rate limiter adapter from config.
func (f *Factory) CreateRateLimiter() ports.RateLimiter {
	if !f.cfg.Harness.RateLimitEnabled {
		return &noOpRateLimiter{}
	}

	return adapters.NewTokenBucket(f.cfg.Harness.RateLimitCapacity, f.cfg.Harness.RateLimitRefillRate).
		WithMaxWait(f.cfg.Harness.RateLimitMaxWait)
}

// CreateTracer creates a tracer adapter from config.
func (f *Factory) CreateTracer() ports.Tracer {
	if !f.cfg.Harness.EnableTracing {
		return adapters.NopTracer{}
	}

	return adapters.NewZerologTracer(f.logger)
}

// CreateStore creates a conversation store adapter. Without a database,
// committed turns live only in memory.
func (f *Factory) CreateStore() ports.ConversationStore {
	if f.db == nil {
		return &noOpStore{}
	}

	return adapters.NewSQLConversationStore(f.db)
}

// noOpCache implements Cache interface with no-op behavior for testing/disabled cache.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpStore implements ConversationStore interface with no-op behavior.
type noOpStore struct{}

func (s *noOpStore) SaveTurn(ctx context.Context, conversationID string, turn ports.Turn) error {
	return nil
}

func (s *noOpStore) LoadContext(ctx context.Context, conversationID string, k int) ([]ports.Turn, error) {
	return nil, nil
}

// Ensure all no-op types implement their interfaces.
var (
	_ ports.Cache             = (*noOpCache)(nil)
	_ ports.RateLimiter       = (*noOpRateLimiter)(nil)
	_ ports.ConversationStore = (*noOpStore)(nil)
)
