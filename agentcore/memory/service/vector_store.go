package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
)

// SQLVectorStore is a brute-force vector store over the kb_chunks table.
// Embeddings are stored as JSON arrays; every search scans one collection.
type SQLVectorStore struct {
	db *sql.DB
}

// NewSQLVectorStore creates a store over an already migrated database.
func NewSQLVectorStore(db *sql.DB) *SQLVectorStore {
	return &SQLVectorStore{db: db}
}

// Upsert adds or replaces chunks in a collection. Chunks without an id get a
// fresh uuid; the ids actually written are returned in input order.
func (s *SQLVectorStore) Upsert(ctx context.Context, collection string, chunks []Chunk) ([]string, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO kb_chunks (id, collection, content, source, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			collection = excluded.collection,
			content = excluded.content,
			source = excluded.source,
			embedding = excluded.embedding
	`
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return nil, fmt.Errorf("chunk %d has no embedding", i)
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		vec, err := json.MarshalToString(c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("failed to encode vector: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, c.ID, collection, c.Text, c.Source, vec); err != nil {
			return nil, fmt.Errorf("failed to upsert chunk %s: %w", c.ID, err)
		}
		ids[i] = c.ID
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chunks: %w", err)
	}
	return ids, nil
}

// Search returns the topK closest chunks of a collection, closest first.
// Chunks whose dimension differs from the query are skipped.
func (s *SQLVectorStore) Search(ctx context.Context, collection string, vector []float64, topK int, metric Metric) ([]Match, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	const query = `
		SELECT id, content, source, embedding
		FROM kb_chunks
		WHERE collection = ?
	`
	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vectors: %w", err)
	}
	defer rows.Close()

	queryNorm := floats.Norm(vector, 2)
	var matches []Match
	for rows.Next() {
		var (
			m   Match
			raw string
		)
		if err := rows.Scan(&m.ID, &m.Text, &m.Source, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var vec []float64
		if err := json.UnmarshalFromString(raw, &vec); err != nil || len(vec) != len(vector) {
			continue
		}
		m.Distance = distance(metric, vector, vec, queryNorm)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	if metric.HigherIsCloser() {
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance > matches[j].Distance })
	} else {
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	}
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteCollection removes every chunk of a collection.
func (s *SQLVectorStore) DeleteCollection(ctx context.Context, collection string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kb_chunks WHERE collection = ?", collection); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", collection, err)
	}
	return nil
}

// distance returns the metric's native distance: inner product for ip,
// 1-cosine for cosine and euclidean distance for l2.
func distance(metric Metric, query, vec []float64, queryNorm float64) float64 {
	switch metric {
	case MetricCosine:
		norm := floats.Norm(vec, 2)
		if queryNorm == 0 || norm == 0 {
			return 1
		}
		return 1 - floats.Dot(query, vec)/(queryNorm*norm)
	case MetricL2:
		return floats.Distance(query, vec, 2)
	default:
		return floats.Dot(query, vec)
	}
}

// Ensure SQLVectorStore implements the VectorStore interface.
var _ VectorStore = (*SQLVectorStore)(nil)
