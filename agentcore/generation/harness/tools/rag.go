package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
	"github.com/ZanzyTHEbar/agentcore/agentcore/memory/service"
)

// NoResultsText is the fixed phrase reported when retrieval finds nothing.
const NoResultsText = "no results above threshold"

func (e *Executor) executeRag(ctx context.Context, query string, caps capability.Set) string {
	query = strings.TrimSpace(query)
	kbs := caps.KnowledgeBases()
	if len(kbs) == 0 || e.retriever == nil {
		return "No knowledge base is available for this conversation; answer from the information you already have."
	}
	if query == "" {
		return "The rag_query was empty; provide the text to search for."
	}

	// The descriptors were loaded with the capability set; search them as bound.
	hits, err := e.retriever.RetrieveFrom(ctx, service.ResolverFor(kbs), query, caps.KnowledgeBaseIDs(), e.cfg.TopK, e.cfg.Threshold)
	if err != nil {
		e.logger.Warn().Err(err).Msg("knowledge base search failed")
		return fmt.Sprintf("Knowledge base search failed: %v", err)
	}
	if len(hits) == 0 {
		return fmt.Sprintf("Knowledge base search for %q returned %s (%.2f).", query, NoResultsText, e.cfg.Threshold)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Knowledge base results for %q:\n", query)
	for i, h := range hits {
		source := h.Source
		if source == "" {
			source = "unknown"
		}
		kb := h.KnowledgeBaseName
		if kb == "" {
			kb = h.KnowledgeBaseID
		}
		fmt.Fprintf(&b, "\n[%d] similarity: %.4f | source: %s | knowledge base: %s\n%s\n",
			i+1, h.Similarity, source, kb, excerpt(h.Content, e.cfg.MaxContentChars))
	}
	return b.String()
}
