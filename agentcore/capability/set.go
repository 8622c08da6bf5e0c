package capability

// Set is the per-request snapshot of bound capabilities.
type Set struct {
	items  []Capability
	tools  map[string]int
	kbByID map[string]int
}

// NewSet builds a snapshot. Later duplicates of a tool name or kb id are ignored.
func NewSet(items ...Capability) Set {
	s := Set{
		tools:  make(map[string]int),
		kbByID: make(map[string]int),
	}
	for _, c := range items {
		switch c.Kind() {
		case KindTool:
			if c.Tool == nil {
				continue
			}
			if _, dup := s.tools[c.Tool.Name]; dup {
				continue
			}
			s.tools[c.Tool.Name] = len(s.items)
		case KindKnowledgeBase:
			if c.KnowledgeBase == nil {
				continue
			}
			if _, dup := s.kbByID[c.KnowledgeBase.ID]; dup {
				continue
			}
			s.kbByID[c.KnowledgeBase.ID] = len(s.items)
		}
		s.items = append(s.items, c)
	}
	return s
}

// Empty reports whether nothing is bound.
func (s Set) Empty() bool { return len(s.items) == 0 }

// Tools returns the bound tools in binding order.
func (s Set) Tools() []ToolCapability {
	var out []ToolCapability
	for _, c := range s.items {
		if c.Tool != nil {
			out = append(out, *c.Tool)
		}
	}
	return out
}

// KnowledgeBases returns the bound knowledge bases in binding order.
func (s Set) KnowledgeBases() []KnowledgeBase {
	var out []KnowledgeBase
	for _, c := range s.items {
		if c.KnowledgeBase != nil {
			out = append(out, *c.KnowledgeBase)
		}
	}
	return out
}

// KnowledgeBaseIDs returns the bound kb ids in binding order.
func (s Set) KnowledgeBaseIDs() []string {
	kbs := s.KnowledgeBases()
	ids := make([]string, len(kbs))
	for i, kb := range kbs {
		ids[i] = kb.ID
	}
	return ids
}

// ToolByName resolves a bound tool.
func (s Set) ToolByName(name string) (ToolCapability, bool) {
	i, ok := s.tools[name]
	if !ok {
		return ToolCapability{}, false
	}
	return *s.items[i].Tool, true
}

// KnowledgeBase resolves a bound kb by id.
func (s Set) KnowledgeBase(id string) (KnowledgeBase, bool) {
	i, ok := s.kbByID[id]
	if !ok {
		return KnowledgeBase{}, false
	}
	return *s.items[i].KnowledgeBase, true
}
