package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
)

func TestSplitParagraphs(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     []string
	}{
		{"empty", "  \n\n  ", 10, nil},
		{"packs small paragraphs", "aa\n\nbb\n\ncc", 6, []string{"aa\n\nbb", "cc"}},
		{"crlf", "aa\r\n\r\nbb", 100, []string{"aa\n\nbb"}},
		{"cuts long paragraph", "abcdefgh", 3, []string{"abc", "def", "gh"}},
		{"cuts on runes", "ééééé", 2, []string{"éé", "éé", "é"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitParagraphs(tt.text, tt.maxChars))
		})
	}
}

func TestIngester_WritesSearchableChunks(t *testing.T) {
	store, _ := newTestVectorStore(t)
	embedder := new(mockEmbedder)
	embedder.On("Embed", mock.Anything, "refunds are accepted within 30 days").Return([]float64{1, 0}, nil)
	embedder.On("Embed", mock.Anything, "shipping takes a week").Return([]float64{0, 1}, nil)

	ing := NewIngester(embedder, store, 2, zerolog.Nop())
	kb := capability.KnowledgeBase{ID: "policies"}
	text := "refunds are accepted within 30 days\n\nshipping takes a week"

	ids, err := ing.Ingest(context.Background(), kb, "policy.md", text, 40)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	matches, err := store.Search(context.Background(), "policies", []float64{1, 0}, 1, MetricIP)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, ids[0], matches[0].ID)
	assert.Equal(t, "policy.md", matches[0].Source)
	assert.True(t, strings.HasPrefix(matches[0].Text, "refunds"))
	embedder.AssertExpectations(t)
}

func TestIngester_EmbeddingFailureAborts(t *testing.T) {
	store, db := newTestVectorStore(t)
	embedder := new(mockEmbedder)
	embedder.On("Embed", mock.Anything, "good").Return([]float64{1}, nil).Maybe()
	embedder.On("Embed", mock.Anything, "bad").Return(nil, errors.New("quota exceeded"))

	ing := NewIngester(embedder, store, 1, zerolog.Nop())
	_, err := ing.Ingest(context.Background(), capability.KnowledgeBase{ID: "kb"}, "", "good\n\nbad", 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM kb_chunks`).Scan(&n))
	assert.Zero(t, n)
}
