package service

import (
	"context"

	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
)

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
}

// Match is a raw vector-store hit. Distance is in the metric's native scale.
type Match struct {
	ID       string
	Text     string
	Source   string
	Distance float64
}

// Chunk is a document fragment to index.
type Chunk struct {
	ID        string
	Text      string
	Source    string
	Embedding []float64
}

// VectorStore manages vector storage and similarity search per collection.
type VectorStore interface {
	Search(ctx context.Context, collection string, vector []float64, topK int, metric Metric) ([]Match, error)
}

// KnowledgeBaseResolver maps a kb id to its descriptor.
type KnowledgeBaseResolver interface {
	ResolveKnowledgeBase(ctx context.Context, id string) (capability.KnowledgeBase, error)
}

// Hit is a retrieval result tagged with its knowledge base.
type Hit struct {
	KnowledgeBaseID   string  `json:"kb_id"`
	KnowledgeBaseName string  `json:"kb_name"`
	DocumentID        string  `json:"document_id"`
	Content           string  `json:"content"`
	Source            string  `json:"source"`
	Similarity        float64 `json:"similarity"`
}
