package service

import (
	"context"
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Retrieval defaults.
const (
	DefaultTopK        = 10
	DefaultThreshold   = 0.6
	DefaultConcurrency = 4
)

// Retriever embeds a query once, searches every requested knowledge base,
// and merges the thresholded hits into a single ranking.
type Retriever struct {
	embedder      Embedder
	store         VectorStore
	resolver      KnowledgeBaseResolver
	cache         ports.Cache
	cacheTTL      int
	defaultMetric string
	concurrency   int
	logger        zerolog.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithEmbeddingCache memoizes query embeddings.
func WithEmbeddingCache(cache ports.Cache, ttlSeconds int) RetrieverOption {
	return func(r *Retriever) {
		r.cache = cache
		r.cacheTTL = ttlSeconds
	}
}

// WithDefaultMetric sets the metric for knowledge bases that declare none.
func WithDefaultMetric(metric string) RetrieverOption {
	return func(r *Retriever) { r.defaultMetric = metric }
}

// WithConcurrency bounds the per-kb fan-out.
func WithConcurrency(n int) RetrieverOption {
	return func(r *Retriever) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the logger used for per-kb warnings.
func WithLogger(logger zerolog.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = logger }
}

// NewRetriever creates a new retriever
func NewRetriever(embedder Embedder, store VectorStore, resolver KnowledgeBaseResolver, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder:      embedder,
		store:         store,
		resolver:      resolver,
		defaultMetric: string(MetricIP),
		concurrency:   DefaultConcurrency,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type kbResult struct {
	index int
	hits  []Hit
}

// Retrieve returns hits with similarity >= threshold from every resolvable
// knowledge base, sorted by similarity descending. A knowledge base that
// cannot be resolved or searched is skipped with a warning; only a failed
// query embedding is an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, kbIDs []string, k int, threshold float64) ([]Hit, error) {
	return r.RetrieveFrom(ctx, r.resolver, query, kbIDs, k, threshold)
}

// RetrieveFrom is Retrieve with descriptors looked up in resolver instead of
// the retriever's own.
func (r *Retriever) RetrieveFrom(ctx context.Context, resolver KnowledgeBaseResolver, query string, kbIDs []string, k int, threshold float64) ([]Hit, error) {
	if len(kbIDs) == 0 {
		return []Hit{}, nil
	}
	if k <= 0 {
		k = DefaultTopK
	}

	vector, err := r.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	p := pool.NewWithResults[kbResult]().WithMaxGoroutines(r.concurrency)
	for i, id := range kbIDs {
		p.Go(func() kbResult {
			return kbResult{index: i, hits: r.searchKnowledgeBase(ctx, resolver, id, vector, k, threshold)}
		})
	}
	results := p.Wait()
	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })

	hits := []Hit{}
	for _, res := range results {
		hits = append(hits, res.hits...)
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Similarity > hits[b].Similarity })
	return hits, nil
}

func (r *Retriever) searchKnowledgeBase(ctx context.Context, resolver KnowledgeBaseResolver, id string, vector []float64, k int, threshold float64) []Hit {
	logger := r.logger.With().Str("kb_id", id).Logger()

	kb, err := resolver.ResolveKnowledgeBase(ctx, id)
	if err != nil {
		logger.Warn().Err(err).Msg("skipping unresolvable knowledge base")
		return nil
	}

	metricName := kb.Metric
	if metricName == "" {
		metricName = r.defaultMetric
	}
	metric, err := ParseMetric(metricName)
	if err != nil {
		logger.Warn().Err(err).Msg("skipping knowledge base with invalid metric")
		return nil
	}

	matches, err := r.store.Search(ctx, kb.CollectionName(), vector, k, metric)
	if err != nil {
		logger.Warn().Err(err).Str("collection", kb.CollectionName()).Msg("knowledge base search failed")
		return nil
	}

	var hits []Hit
	for _, m := range matches {
		sim := metric.Similarity(m.Distance)
		if sim < threshold {
			continue
		}
		hits = append(hits, Hit{
			KnowledgeBaseID:   kb.ID,
			KnowledgeBaseName: kb.Name,
			DocumentID:        m.ID,
			Content:           m.Text,
			Source:            m.Source,
			Similarity:        sim,
		})
	}
	return hits
}

func (r *Retriever) embed(ctx context.Context, query string) ([]float64, error) {
	key := "embedding:" + r.embedder.Model() + ":" + query
	if r.cache != nil {
		if raw, ok := r.cache.Get(ctx, key); ok {
			var cached []float64
			if err := json.Unmarshal(raw, &cached); err == nil && len(cached) > 0 {
				return cached, nil
			}
		}
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if raw, err := json.Marshal(vector); err == nil {
			_ = r.cache.Set(ctx, key, raw, r.cacheTTL)
		}
	}
	return vector, nil
}
