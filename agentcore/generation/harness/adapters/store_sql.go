package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SQLConversationStore persists turns in the conversation_turns table. It
// works with both the libsql and the modernc sqlite driver.
type SQLConversationStore struct {
	db *sql.DB
}

// NewSQLConversationStore creates a store over an already migrated database.
func NewSQLConversationStore(db *sql.DB) *SQLConversationStore {
	return &SQLConversationStore{db: db}
}

// SaveTurn appends a turn to the conversation.
func (s *SQLConversationStore) SaveTurn(ctx context.Context, conversationID string, turn ports.Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	data, err := json.MarshalToString(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	const query = `
		INSERT INTO conversation_turns (conversation_id, turn_data, created_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, conversationID, data, turn.CreatedAt); err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// LoadContext loads the last k turns for a conversation, oldest first.
func (s *SQLConversationStore) LoadContext(ctx context.Context, conversationID string, k int) ([]ports.Turn, error) {
	if k <= 0 {
		return nil, nil
	}
	const query = `
		SELECT turn_data FROM conversation_turns
		WHERE conversation_id = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []ports.Turn
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		var turn ports.Turn
		if err := json.UnmarshalFromString(data, &turn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Ensure SQLConversationStore implements the ConversationStore interface.
var _ ports.ConversationStore = (*SQLConversationStore)(nil)
