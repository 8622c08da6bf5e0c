package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
)

// DefaultChunkChars bounds the size of an ingested chunk.
const DefaultChunkChars = 1000

// ChunkWriter stores embedded chunks; *SQLVectorStore implements it.
type ChunkWriter interface {
	Upsert(ctx context.Context, collection string, chunks []Chunk) ([]string, error)
}

// Ingester splits documents, embeds the pieces and writes them into a
// knowledge base's collection.
type Ingester struct {
	embedder    Embedder
	writer      ChunkWriter
	concurrency int
	logger      zerolog.Logger
}

func NewIngester(embedder Embedder, writer ChunkWriter, concurrency int, logger zerolog.Logger) *Ingester {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Ingester{embedder: embedder, writer: writer, concurrency: concurrency, logger: logger}
}

type embedded struct {
	index int
	chunk Chunk
}

// Ingest indexes text under kb and returns the ids written. Any embedding
// failure aborts the whole document.
func (in *Ingester) Ingest(ctx context.Context, kb capability.KnowledgeBase, source, text string, maxChars int) ([]string, error) {
	pieces := SplitParagraphs(text, maxChars)
	if len(pieces) == 0 {
		return nil, nil
	}

	p := pool.NewWithResults[embedded]().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(in.concurrency)
	for i, piece := range pieces {
		p.Go(func(ctx context.Context) (embedded, error) {
			vec, err := in.embedder.Embed(ctx, piece)
			if err != nil {
				return embedded{}, fmt.Errorf("failed to embed chunk %d: %w", i, err)
			}
			return embedded{index: i, chunk: Chunk{Text: piece, Source: source, Embedding: vec}}, nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })

	chunks := make([]Chunk, len(results))
	for i, r := range results {
		chunks[i] = r.chunk
	}
	ids, err := in.writer.Upsert(ctx, kb.CollectionName(), chunks)
	if err != nil {
		return nil, err
	}
	in.logger.Info().
		Str("kb_id", kb.ID).
		Str("collection", kb.CollectionName()).
		Str("source", source).
		Int("chunks", len(ids)).
		Msg("document ingested")
	return ids, nil
}

// SplitParagraphs splits text on blank lines and packs consecutive
// paragraphs into pieces of at most maxChars runes. A paragraph longer than
// maxChars is cut on rune boundaries.
func SplitParagraphs(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkChars
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		out     []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
			size = 0
		}
	}
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		n := utf8.RuneCountInString(para)
		if n > maxChars {
			flush()
			out = append(out, cutRunes(para, maxChars)...)
			continue
		}
		if size > 0 && size+2+n > maxChars {
			flush()
		}
		if size > 0 {
			current.WriteString("\n\n")
			size += 2
		}
		current.WriteString(para)
		size += n
	}
	flush()
	return out
}

func cutRunes(s string, n int) []string {
	var out []string
	for s != "" {
		end, count := 0, 0
		for end < len(s) && count < n {
			_, w := utf8.DecodeRuneInString(s[end:])
			end += w
			count++
		}
		if piece := strings.TrimSpace(s[:end]); piece != "" {
			out = append(out, piece)
		}
		s = s[end:]
	}
	return out
}
