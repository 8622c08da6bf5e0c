package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/agentcore/agentcore/config"
	"github.com/ZanzyTHEbar/agentcore/agentcore/db"
	"github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness"
	"github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/tools"
	"github.com/ZanzyTHEbar/agentcore/agentcore/generation/models"
	"github.com/ZanzyTHEbar/agentcore/agentcore/memory/database"
	"github.com/ZanzyTHEbar/agentcore/agentcore/memory/service"
	"github.com/ZanzyTHEbar/agentcore/agentcore/session"
)

// app holds the resources shared by every subcommand.
type app struct {
	cfg      *config.Config
	loader   *config.Loader
	logger   zerolog.Logger
	db       *sql.DB
	metadata *database.SQLMetadataStore
}

// services are the long-lived components behind serve and mcp.
type services struct {
	engine    *harness.Engine
	retriever *service.Retriever
	sessions  *session.Manager
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// bootstrap loads config, opens and migrates the database and syncs the
// configured models into the registry.
func bootstrap(ctx context.Context, configPath string) (*app, error) {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	config.AppConfig = *cfg
	logger := newLogger(cfg.Log)

	conn, err := db.ConnectWithOptions(db.Options{
		Driver:       cfg.Store.Driver,
		DatabasePath: cfg.Store.DatabasePath(),
		Logger:       logger.With().Str("component", "db").Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Store.Migrate {
		if err := database.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, err
		}
	}

	metadata := database.NewSQLMetadataStore(conn)
	if err := database.SeedModels(ctx, metadata, cfg.Models); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Debug().
		Str("driver", cfg.Store.Driver).
		Str("path", cfg.Store.DatabasePath()).
		Int("models", len(cfg.Models)).
		Msg("bootstrap complete")

	return &app{cfg: cfg, loader: loader, logger: logger, db: conn, metadata: metadata}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// embedder builds the configured embedding collaborator.
func (a *app) embedder() (service.Embedder, error) {
	e, err := service.NewEmbedder(a.cfg.Retrieval.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return e, nil
}

// wire assembles retrieval, tools, the reasoning engine and the session
// manager, and hot-applies agent limits on config changes.
func (a *app) wire() (*services, error) {
	factory := harness.NewFactory(a.cfg, a.db, a.logger)

	embedder, err := a.embedder()
	if err != nil {
		return nil, err
	}
	retriever := service.NewRetriever(
		embedder,
		service.NewSQLVectorStore(a.db),
		service.MetadataResolver{Store: a.metadata},
		service.WithEmbeddingCache(factory.CreateCache(), a.cfg.EmbeddingCacheTTL()),
		service.WithDefaultMetric(a.cfg.Retrieval.Metric),
		service.WithConcurrency(a.cfg.Retrieval.Concurrency),
		service.WithLogger(a.logger.With().Str("component", "retrieval").Logger()),
	)

	executor := tools.NewExecutor(
		tools.ConfigFrom(a.cfg.Tools, a.cfg.Retrieval),
		retriever,
		a.logger.With().Str("component", "tools").Logger(),
	)
	engine := factory.CreateEngine(executor)

	registry := models.NewRegistry(a.metadata,
		models.WithRegistryLogger(a.logger.With().Str("component", "models").Logger()))

	sessions := session.NewManager(
		session.ConfigFrom(a.cfg.Agent),
		engine,
		registry,
		a.metadata,
		session.WithConversationStore(factory.CreateStore()),
		session.WithLogger(a.logger.With().Str("component", "session").Logger()),
	)

	a.loader.Watch(a.logger, func(cfg *config.Config) {
		engine.Configure(harness.EngineConfigFrom(cfg.Agent))
		sessions.Configure(session.ConfigFrom(cfg.Agent))
	})

	return &services{engine: engine, retriever: retriever, sessions: sessions}, nil
}
