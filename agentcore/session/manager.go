// Package session owns per-session conversation state and turns a chat call
// into a stream of answer chunks.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/agentcore/agentcore"
	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
	"github.com/ZanzyTHEbar/agentcore/agentcore/config"
	"github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness"
	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
	"github.com/ZanzyTHEbar/agentcore/agentcore/generation/models"
	"github.com/ZanzyTHEbar/agentcore/agentcore/memory/database"
)

// Session defaults.
const (
	DefaultMaxHistoryLength = 20
	DefaultSummaryTrigger   = 16
	DefaultKeepAfterSummary = 4
	DefaultStreamChunkSize  = 24
)

// Runner answers one message; *harness.Engine implements it.
type Runner interface {
	Run(ctx context.Context, req harness.RunRequest) (*harness.RunResult, error)
}

// ModelResolver turns a model id into a ready provider; *models.Registry implements it.
type ModelResolver interface {
	Resolve(ctx context.Context, id string) (*models.Resolved, error)
}

// CapabilitySource loads tool and knowledge-base records.
type CapabilitySource interface {
	GetTool(ctx context.Context, id string) (database.ToolRecord, error)
	GetKnowledgeBase(ctx context.Context, id string) (database.KnowledgeBaseRecord, error)
}

// Config bounds the per-session memory and the answer stream.
type Config struct {
	MaxHistoryLength int
	SummaryTrigger   int
	KeepAfterSummary int
	StreamChunkSize  int
}

// ConfigFrom maps the agent section of the application config.
func ConfigFrom(c config.AgentConfig) Config {
	return Config{
		MaxHistoryLength: c.MaxHistoryLength,
		SummaryTrigger:   c.SummaryTrigger,
		KeepAfterSummary: c.KeepAfterSummary,
		StreamChunkSize:  c.StreamChunkSize,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxHistoryLength <= 0 {
		c.MaxHistoryLength = DefaultMaxHistoryLength
	}
	if c.SummaryTrigger <= 0 {
		c.SummaryTrigger = DefaultSummaryTrigger
	}
	if c.KeepAfterSummary <= 0 {
		c.KeepAfterSummary = DefaultKeepAfterSummary
	}
	if c.StreamChunkSize <= 0 {
		c.StreamChunkSize = DefaultStreamChunkSize
	}
	return c
}

// ChatOptions selects the model and capabilities for one call. A non-nil
// History switches the call to stateless mode.
type ChatOptions struct {
	Model            string       `json:"model,omitempty"`
	SystemPrompt     string       `json:"system_prompt,omitempty"`
	ToolIDs          []string     `json:"tool_ids,omitempty"`
	KnowledgeBaseIDs []string     `json:"kb_ids,omitempty"`
	History          []ports.Turn `json:"history,omitempty"`
}

// ChunkMetadata closes a successful stream.
type ChunkMetadata struct {
	HistoryLength  int `json:"historyLength"`
	ReasoningSteps int `json:"reasoningSteps"`
}

// AnswerChunk is one element of a chat stream.
type AnswerChunk struct {
	Content  string         `json:"content"`
	Done     bool           `json:"done"`
	Summary  string         `json:"summary,omitempty"`
	Metadata *ChunkMetadata `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Manager serializes chat calls per session and streams their answers.
type Manager struct {
	cfgMu sync.RWMutex
	cfg   Config

	sessions *Store
	engine   Runner
	models   ModelResolver
	metadata CapabilitySource
	turns    ports.ConversationStore
	logger   zerolog.Logger
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithConversationStore persists committed turns and hydrates new sessions.
func WithConversationStore(s ports.ConversationStore) Option {
	return func(m *Manager) { m.turns = s }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a session manager.
func NewManager(cfg Config, engine Runner, resolver ModelResolver, metadata CapabilitySource, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg.withDefaults(),
		sessions: NewStore(),
		engine:   engine,
		models:   resolver,
		metadata: metadata,
		logger:   zerolog.Nop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Configure swaps the memory limits for subsequent calls.
func (m *Manager) Configure(cfg Config) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	m.cfg = cfg.withDefaults()
}

func (m *Manager) config() Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

// Session returns a copy of the session state. It waits for any chat call
// in progress on that session.
func (m *Manager) Session(id string) (State, bool) {
	if id == "" {
		id = agentcore.DefaultSessionID
	}
	sess, ok := m.sessions.Get(id)
	if !ok {
		return State{}, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state(), true
}

// Sessions lists the known session ids.
func (m *Manager) Sessions() []string {
	return m.sessions.IDs()
}

// Chat answers message within the session and streams the answer.
// Configuration errors are returned before any generation; every later
// failure is reported as a single error chunk. The returned channel is
// always closed. Callers must drain it or cancel ctx.
func (m *Manager) Chat(ctx context.Context, sessionID, message string, opts ChatOptions) (<-chan AnswerChunk, error) {
	if sessionID == "" {
		sessionID = agentcore.DefaultSessionID
	}
	cfg := m.config()
	logger := m.logger.With().Str("session_id", sessionID).Logger()

	sess := m.sessions.GetOrCreate(sessionID)
	sess.mu.Lock()
	m.hydrate(ctx, sess, cfg, logger)

	stateless := opts.History != nil
	modelID := opts.Model
	if modelID == "" {
		modelID = sess.model
	}
	resolved, err := m.models.Resolve(ctx, modelID)
	if err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	if !stateless && opts.Model != "" {
		sess.model = opts.Model
	}
	caps := m.capabilities(ctx, opts, logger)

	out := make(chan AnswerChunk, 8)
	go func() {
		defer close(out)
		defer sess.mu.Unlock()
		m.run(ctx, sess, cfg, resolved, caps, message, opts, out, logger)
	}()
	return out, nil
}

func (m *Manager) hydrate(ctx context.Context, sess *Session, cfg Config, logger zerolog.Logger) {
	if sess.hydrated {
		return
	}
	sess.hydrated = true
	if m.turns == nil {
		return
	}
	turns, err := m.turns.LoadContext(ctx, sess.ID, cfg.MaxHistoryLength)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to hydrate session history")
		return
	}
	sess.history = turns
	logger.Debug().Int("turns", len(turns)).Msg("session hydrated")
}

func (m *Manager) capabilities(ctx context.Context, opts ChatOptions, logger zerolog.Logger) capability.Set {
	if m.metadata == nil {
		if len(opts.ToolIDs)+len(opts.KnowledgeBaseIDs) > 0 {
			logger.Warn().Msg("capabilities requested without a metadata store")
		}
		return capability.NewSet()
	}

	items := make([]capability.Capability, 0, len(opts.ToolIDs)+len(opts.KnowledgeBaseIDs))
	for _, id := range opts.ToolIDs {
		rec, err := m.metadata.GetTool(ctx, id)
		if err != nil {
			logger.Warn().Err(err).Str("tool_id", id).Msg("skipping tool")
			continue
		}
		tool, err := rec.Capability()
		if err != nil {
			logger.Warn().Err(err).Str("tool_id", id).Msg("skipping tool")
			continue
		}
		items = append(items, capability.FromTool(tool))
	}
	for _, id := range opts.KnowledgeBaseIDs {
		rec, err := m.metadata.GetKnowledgeBase(ctx, id)
		if err != nil {
			logger.Warn().Err(err).Str("kb_id", id).Msg("skipping knowledge base")
			continue
		}
		items = append(items, capability.FromKnowledgeBase(rec.Capability()))
	}
	return capability.NewSet(items...)
}

// run works on a copy of the session state and commits it only when the
// call is stateful and the engine succeeded.
func (m *Manager) run(
	ctx context.Context,
	sess *Session,
	cfg Config,
	resolved *models.Resolved,
	caps capability.Set,
	message string,
	opts ChatOptions,
	out chan<- AnswerChunk,
	logger zerolog.Logger,
) {
	stateless := opts.History != nil
	history := slices.Clone(sess.history)
	if stateless {
		history = slices.Clone(opts.History)
	}
	summary := sess.summary

	userTurn := ports.Turn{Role: ports.RoleUser, Content: message, CreatedAt: m.now()}
	history = append(history, userTurn)

	var fresh string
	if needsSummary(len(history), cfg.SummaryTrigger, summary != "") {
		s, err := summarize(ctx, resolved.Provider, resolved.Options, history, cfg.MaxHistoryLength)
		if err != nil {
			logger.Warn().Err(err).Msg("summarization skipped")
		} else {
			summary, fresh = s, s
			if len(history) > cfg.KeepAfterSummary {
				history = slices.Clone(history[len(history)-cfg.KeepAfterSummary:])
			}
			logger.Debug().Int("kept", len(history)).Msg("history summarized")
		}
	}

	result, err := m.engine.Run(ctx, harness.RunRequest{
		SessionID:    sess.ID,
		Model:        resolved.Record.ID,
		Provider:     resolved.Provider,
		Options:      resolved.Options,
		System:       opts.SystemPrompt,
		Summary:      summary,
		History:      history[:len(history)-1],
		Message:      message,
		Capabilities: caps,
	})
	if err != nil {
		logger.Error().Err(err).Msg("chat failed")
		send(ctx, out, AnswerChunk{Done: true, Error: err.Error()})
		return
	}

	assistantTurn := ports.Turn{Role: ports.RoleAssistant, Content: result.Answer, CreatedAt: m.now()}
	history = append(history, assistantTurn)
	if !stateless {
		sess.history = history
		sess.summary = summary
		m.persist(ctx, sess.ID, logger, userTurn, assistantTurn)
	}
	logger.Info().
		Int("rounds", len(result.Rounds)).
		Bool("exhausted", result.Exhausted).
		Bool("stateless", stateless).
		Msg("chat answered")

	for i, piece := range harness.ChunkText(result.Answer, cfg.StreamChunkSize) {
		chunk := AnswerChunk{Content: piece}
		if i == 0 {
			chunk.Summary = fresh
		}
		if !send(ctx, out, chunk) {
			return
		}
	}
	send(ctx, out, AnswerChunk{
		Done:     true,
		Metadata: &ChunkMetadata{HistoryLength: len(history), ReasoningSteps: len(result.Rounds)},
	})
}

func (m *Manager) persist(ctx context.Context, id string, logger zerolog.Logger, turns ...ports.Turn) {
	if m.turns == nil {
		return
	}
	// Committed turns are persisted even when the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	for _, t := range turns {
		if err := m.turns.SaveTurn(ctx, id, t); err != nil {
			logger.Warn().Err(err).Str("role", t.Role).Msg("failed to persist turn")
		}
	}
}

// send delivers c unless ctx is done.
func send(ctx context.Context, out chan<- AnswerChunk, c AnswerChunk) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
