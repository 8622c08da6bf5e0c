package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// MetadataStore reads and writes the registry records a chat call resolves.
type MetadataStore interface {
	GetTool(ctx context.Context, id string) (ToolRecord, error)
	GetKnowledgeBase(ctx context.Context, id string) (KnowledgeBaseRecord, error)
	GetModel(ctx context.Context, id string) (ModelRecord, error)
	ListModels(ctx context.Context, enabledOnly bool) ([]ModelRecord, error)
	UpsertTool(ctx context.Context, rec ToolRecord) error
	UpsertKnowledgeBase(ctx context.Context, rec KnowledgeBaseRecord) error
	UpsertModel(ctx context.Context, rec ModelRecord) error
}

// SQLMetadataStore implements MetadataStore over the migrated schema.
type SQLMetadataStore struct {
	db *sql.DB
}

// NewSQLMetadataStore creates a store over an already migrated database.
func NewSQLMetadataStore(db *sql.DB) *SQLMetadataStore {
	return &SQLMetadataStore{db: db}
}

// GetTool loads a tool by id or, failing that, by unique name.
func (s *SQLMetadataStore) GetTool(ctx context.Context, id string) (ToolRecord, error) {
	const query = `
		SELECT id, name, purpose, version, call_method, parameters, user_settings
		FROM plugin_tools
		WHERE id = ? OR name = ?
		ORDER BY CASE WHEN id = ? THEN 0 ELSE 1 END
		LIMIT 1
	`
	var (
		rec              ToolRecord
		params, settings string
	)
	err := s.db.QueryRowContext(ctx, query, id, id, id).Scan(
		&rec.ID, &rec.Name, &rec.Purpose, &rec.Version, &rec.CallMethod, &params, &settings)
	if errors.Is(err, sql.ErrNoRows) {
		return ToolRecord{}, fmt.Errorf("tool %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ToolRecord{}, fmt.Errorf("failed to load tool %s: %w", id, err)
	}
	if err := json.UnmarshalFromString(params, &rec.Parameters); err != nil {
		return ToolRecord{}, fmt.Errorf("failed to decode parameters of tool %s: %w", id, err)
	}
	if err := json.UnmarshalFromString(settings, &rec.UserSettings); err != nil {
		return ToolRecord{}, fmt.Errorf("failed to decode settings of tool %s: %w", id, err)
	}
	return rec, nil
}

// UpsertTool inserts or replaces a tool. Existing user settings survive when
// the record carries none, so re-importing a spec keeps credentials.
func (s *SQLMetadataStore) UpsertTool(ctx context.Context, rec ToolRecord) error {
	if rec.ID == "" || rec.Name == "" {
		return fmt.Errorf("tool id and name are required")
	}
	params, err := json.MarshalToString(rec.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}
	if rec.Parameters == nil {
		params = "[]"
	}
	var settings *string
	if rec.UserSettings != nil {
		str, err := json.MarshalToString(rec.UserSettings)
		if err != nil {
			return fmt.Errorf("failed to marshal settings: %w", err)
		}
		settings = &str
	}

	const query = `
		INSERT INTO plugin_tools (id, name, purpose, version, call_method, parameters, user_settings)
		VALUES (?, ?, ?, ?, ?, ?, COALESCE(?, '{}'))
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			purpose = excluded.purpose,
			version = excluded.version,
			call_method = excluded.call_method,
			parameters = excluded.parameters,
			user_settings = COALESCE(?, plugin_tools.user_settings),
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Name, rec.Purpose, rec.Version, rec.CallMethod, params, settings, settings); err != nil {
		return fmt.Errorf("failed to upsert tool %s: %w", rec.ID, err)
	}
	return nil
}

// GetKnowledgeBase loads a knowledge base by id.
func (s *SQLMetadataStore) GetKnowledgeBase(ctx context.Context, id string) (KnowledgeBaseRecord, error) {
	const query = `
		SELECT id, name, collection, metric, description
		FROM knowledge_bases
		WHERE id = ?
	`
	var rec KnowledgeBaseRecord
	err := s.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.Name, &rec.Collection, &rec.Metric, &rec.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return KnowledgeBaseRecord{}, fmt.Errorf("knowledge base %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return KnowledgeBaseRecord{}, fmt.Errorf("failed to load knowledge base %s: %w", id, err)
	}
	return rec, nil
}

// UpsertKnowledgeBase inserts or replaces a knowledge base.
func (s *SQLMetadataStore) UpsertKnowledgeBase(ctx context.Context, rec KnowledgeBaseRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("knowledge base id is required")
	}
	if rec.Name == "" {
		rec.Name = rec.ID
	}
	const query = `
		INSERT INTO knowledge_bases (id, name, collection, metric, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			collection = excluded.collection,
			metric = excluded.metric,
			description = excluded.description,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, rec.ID, rec.Name, rec.Collection, rec.Metric, rec.Description); err != nil {
		return fmt.Errorf("failed to upsert knowledge base %s: %w", rec.ID, err)
	}
	return nil
}

const modelColumns = `id, display_name, provider, model, api_key, base_url, enabled, description,
	max_tokens, temperature, top_p, top_k, frequency_penalty, presence_penalty, timeout_seconds, position`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (ModelRecord, error) {
	var (
		rec                             ModelRecord
		enabled                         int
		maxTokens, topK, timeout        sql.NullInt64
		temperature, topP, freqP, presP sql.NullFloat64
	)
	if err := row.Scan(&rec.ID, &rec.DisplayName, &rec.Provider, &rec.Model, &rec.APIKey, &rec.BaseURL,
		&enabled, &rec.Description, &maxTokens, &temperature, &topP, &topK, &freqP, &presP, &timeout,
		&rec.Position); err != nil {
		return ModelRecord{}, err
	}
	rec.Enabled = enabled != 0
	rec.MaxTokens = intPtr(maxTokens)
	rec.TopK = intPtr(topK)
	rec.TimeoutSeconds = intPtr(timeout)
	rec.Temperature = floatPtr(temperature)
	rec.TopP = floatPtr(topP)
	rec.FrequencyPenalty = floatPtr(freqP)
	rec.PresencePenalty = floatPtr(presP)
	return rec, nil
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// GetModel loads a model by id regardless of its enabled flag.
func (s *SQLMetadataStore) GetModel(ctx context.Context, id string) (ModelRecord, error) {
	rec, err := scanModel(s.db.QueryRowContext(ctx, "SELECT "+modelColumns+" FROM models WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return ModelRecord{}, fmt.Errorf("model %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ModelRecord{}, fmt.Errorf("failed to load model %s: %w", id, err)
	}
	return rec, nil
}

// ListModels returns models in seeding order.
func (s *SQLMetadataStore) ListModels(ctx context.Context, enabledOnly bool) ([]ModelRecord, error) {
	query := "SELECT " + modelColumns + " FROM models"
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY position, created_at, id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}
	defer rows.Close()

	var out []ModelRecord
	for rows.Next() {
		rec, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating models: %w", err)
	}
	return out, nil
}

// UpsertModel inserts or replaces a model record.
func (s *SQLMetadataStore) UpsertModel(ctx context.Context, rec ModelRecord) error {
	if rec.ID == "" || rec.Model == "" || rec.Provider == "" {
		return fmt.Errorf("model id, provider and model are required")
	}
	enabled := 0
	if rec.Enabled {
		enabled = 1
	}
	const query = `
		INSERT INTO models (` + modelColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			provider = excluded.provider,
			model = excluded.model,
			api_key = excluded.api_key,
			base_url = excluded.base_url,
			enabled = excluded.enabled,
			description = excluded.description,
			max_tokens = excluded.max_tokens,
			temperature = excluded.temperature,
			top_p = excluded.top_p,
			top_k = excluded.top_k,
			frequency_penalty = excluded.frequency_penalty,
			presence_penalty = excluded.presence_penalty,
			timeout_seconds = excluded.timeout_seconds,
			position = excluded.position,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.DisplayName, rec.Provider, rec.Model, rec.APIKey, rec.BaseURL, enabled, rec.Description,
		rec.MaxTokens, rec.Temperature, rec.TopP, rec.TopK, rec.FrequencyPenalty, rec.PresencePenalty,
		rec.TimeoutSeconds, rec.Position); err != nil {
		return fmt.Errorf("failed to upsert model %s: %w", rec.ID, err)
	}
	return nil
}

// Ensure SQLMetadataStore implements the MetadataStore interface.
var _ MetadataStore = (*SQLMetadataStore)(nil)
