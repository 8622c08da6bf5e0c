package service

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
	"github.com/ZanzyTHEbar/agentcore/agentcore/memory/database"
)

// MetadataResolver resolves knowledge bases from the registry tables.
type MetadataResolver struct {
	Store database.MetadataStore
}

func (r MetadataResolver) ResolveKnowledgeBase(ctx context.Context, id string) (capability.KnowledgeBase, error) {
	rec, err := r.Store.GetKnowledgeBase(ctx, id)
	if err != nil {
		return capability.KnowledgeBase{}, err
	}
	return rec.Capability(), nil
}

// StaticResolver resolves from a fixed map of descriptors.
type StaticResolver map[string]capability.KnowledgeBase

func (r StaticResolver) ResolveKnowledgeBase(_ context.Context, id string) (capability.KnowledgeBase, error) {
	kb, ok := r[id]
	if !ok {
		return capability.KnowledgeBase{}, fmt.Errorf("knowledge base %s: %w", id, database.ErrNotFound)
	}
	return kb, nil
}

// ResolverFor indexes already-loaded descriptors by id.
func ResolverFor(kbs []capability.KnowledgeBase) StaticResolver {
	r := make(StaticResolver, len(kbs))
	for _, kb := range kbs {
		r[kb.ID] = kb
	}
	return r
}
