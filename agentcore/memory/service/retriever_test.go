package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
	"github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/adapters"
)

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	args := m.Called(ctx, text)
	v, _ := args.Get(0).([]float64)
	return v, args.Error(1)
}

func (m *mockEmbedder) Model() string { return "test-embed" }

// stubStore returns canned matches per collection.
type stubStore struct {
	matches map[string][]Match
	fail    map[string]error
	metrics map[string]Metric
}

func (s *stubStore) Search(_ context.Context, collection string, _ []float64, topK int, metric Metric) ([]Match, error) {
	if s.metrics != nil {
		s.metrics[collection] = metric
	}
	if err := s.fail[collection]; err != nil {
		return nil, err
	}
	m := s.matches[collection]
	if len(m) > topK {
		m = m[:topK]
	}
	return m, nil
}

func TestRetrieve_EmptyKnowledgeBasesSkipsEmbedding(t *testing.T) {
	emb := new(mockEmbedder)
	r := NewRetriever(emb, &stubStore{}, StaticResolver{})

	hits, err := r.Retrieve(context.Background(), "anything", nil, 10, 0.6)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
	emb.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestRetrieve_MergesThresholdsAndSorts(t *testing.T) {
	emb := new(mockEmbedder)
	emb.On("Embed", mock.Anything, "q").Return([]float64{1, 0}, nil).Once()

	store := &stubStore{matches: map[string][]Match{
		"a": {{ID: "a1", Text: "alpha", Distance: 0.9}, {ID: "a2", Text: "weak", Distance: 0.5}},
		"b": {{ID: "b1", Text: "beta", Source: "faq.md", Distance: 0.8}},
	}}
	resolver := StaticResolver{
		"A": {ID: "A", Name: "Docs", Collection: "a"},
		"B": {ID: "B", Name: "FAQ", Collection: "b"},
	}
	r := NewRetriever(emb, store, resolver)

	hits, err := r.Retrieve(context.Background(), "q", []string{"A", "B"}, 10, 0.6)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a1", hits[0].DocumentID)
	assert.InDelta(t, 0.9, hits[0].Similarity, 1e-9)
	assert.Equal(t, "Docs", hits[0].KnowledgeBaseName)
	assert.Equal(t, "b1", hits[1].DocumentID)
	assert.Equal(t, "B", hits[1].KnowledgeBaseID)
	assert.Equal(t, "faq.md", hits[1].Source)
	emb.AssertExpectations(t)
}

func TestRetrieve_SkipsBrokenKnowledgeBases(t *testing.T) {
	emb := new(mockEmbedder)
	emb.On("Embed", mock.Anything, "q").Return([]float64{1}, nil).Once()

	store := &stubStore{
		matches: map[string][]Match{"ok": {{ID: "x", Distance: 0.7}}},
		fail:    map[string]error{"down": errors.New("connection refused")},
	}
	resolver := StaticResolver{
		"ok":      {ID: "ok", Name: "OK"},
		"down":    {ID: "down", Name: "Down"},
		"badmetr": {ID: "badmetr", Name: "Bad", Metric: "hamming"},
	}
	r := NewRetriever(emb, store, resolver)

	hits, err := r.Retrieve(context.Background(), "q", []string{"missing", "down", "badmetr", "ok"}, 5, 0.6)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ok", hits[0].KnowledgeBaseID)
}

func TestRetrieve_EmbeddingFailureIsAnError(t *testing.T) {
	emb := new(mockEmbedder)
	emb.On("Embed", mock.Anything, "q").Return(nil, errors.New("quota"))
	r := NewRetriever(emb, &stubStore{}, StaticResolver{"A": {ID: "A"}})

	_, err := r.Retrieve(context.Background(), "q", []string{"A"}, 5, 0.6)
	assert.Error(t, err)
}

func TestRetrieve_MetricOverrideAndDefault(t *testing.T) {
	emb := new(mockEmbedder)
	emb.On("Embed", mock.Anything, "q").Return([]float64{1}, nil)

	store := &stubStore{
		matches: map[string][]Match{
			"cos": {{ID: "c", Distance: 0.1}}, // similarity 0.9
			"l2":  {{ID: "l", Distance: 1.0}}, // similarity 0.5
		},
		metrics: map[string]Metric{},
	}
	resolver := StaticResolver{
		"cos": {ID: "cos", Metric: "COSINE"},
		"l2":  {ID: "l2"},
	}
	r := NewRetriever(emb, store, resolver, WithDefaultMetric("l2"), WithConcurrency(1))

	hits, err := r.Retrieve(context.Background(), "q", []string{"cos", "l2"}, 5, 0.4)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c", hits[0].DocumentID)
	assert.InDelta(t, 0.9, hits[0].Similarity, 1e-9)
	assert.InDelta(t, 0.5, hits[1].Similarity, 1e-9)
	assert.Equal(t, MetricCosine, store.metrics["cos"])
	assert.Equal(t, MetricL2, store.metrics["l2"])
}

func TestRetrieve_CachesQueryEmbedding(t *testing.T) {
	emb := new(mockEmbedder)
	emb.On("Embed", mock.Anything, "q").Return([]float64{0.5, 0.5}, nil).Once()

	store := &stubStore{matches: map[string][]Match{"A": {{ID: "1", Distance: 0.95}}}}
	r := NewRetriever(emb, store, StaticResolver{"A": {ID: "A"}},
		WithEmbeddingCache(adapters.NewLRUCache(8), 60))

	for i := 0; i < 3; i++ {
		hits, err := r.Retrieve(context.Background(), "q", []string{"A"}, 5, 0.6)
		require.NoError(t, err)
		require.Len(t, hits, 1)
	}
	emb.AssertNumberOfCalls(t, "Embed", 1)
}

func TestRetrieveFrom_UsesGivenDescriptors(t *testing.T) {
	emb := new(mockEmbedder)
	emb.On("Embed", mock.Anything, "q").Return([]float64{1}, nil)

	store := &stubStore{matches: map[string][]Match{"bound": {{ID: "b", Distance: 0.8}}}}
	// The retriever's own resolver knows nothing about the knowledge base.
	r := NewRetriever(emb, store, StaticResolver{})

	hits, err := r.Retrieve(context.Background(), "q", []string{"A"}, 5, 0.6)
	require.NoError(t, err)
	assert.Empty(t, hits)

	bound := ResolverFor([]capability.KnowledgeBase{{ID: "A", Name: "Bound", Collection: "bound"}})
	hits, err = r.RetrieveFrom(context.Background(), bound, "q", []string{"A"}, 5, 0.6)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Bound", hits[0].KnowledgeBaseName)
	assert.Equal(t, "b", hits[0].DocumentID)
}

func TestMetricSimilarity(t *testing.T) {
	tests := []struct {
		metric   Metric
		distance float64
		want     float64
	}{
		{MetricIP, 0.42, 0.42},
		{MetricIP, 1.7, 1},
		{MetricIP, -0.3, 0},
		{MetricCosine, 0.25, 0.75},
		{MetricCosine, 1.5, 0},
		{MetricL2, 0, 1},
		{MetricL2, 3, 0.25},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, tt.metric.Similarity(tt.distance), 1e-9, "%s(%v)", tt.metric, tt.distance)
	}

	m, err := ParseMetric(" IP ")
	require.NoError(t, err)
	assert.Equal(t, MetricIP, m)
	_, err = ParseMetric("dot")
	assert.Error(t, err)
}

func TestStaticResolver(t *testing.T) {
	r := StaticResolver{"kb": capability.KnowledgeBase{ID: "kb", Name: "KB"}}
	kb, err := r.ResolveKnowledgeBase(context.Background(), "kb")
	require.NoError(t, err)
	assert.Equal(t, "KB", kb.Name)
	_, err = r.ResolveKnowledgeBase(context.Background(), "nope")
	assert.Error(t, err)
}
