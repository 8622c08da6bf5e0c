package harness

import (
	"strings"

	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
)

// Budget bounds the recent-history window shown to the model.
type Budget struct {
	MaxContextTokens int // approximate token cap for the window
	MaxTurns         int // hard bound on the number of turns
}

// ContextAssembler selects the most recent turns that fit a token budget.
type ContextAssembler struct {
	defaultBudget Budget
	// TokenEstimator should be a fast heuristic; we avoid binding to a specific tokenizer here.
	TokenEstimator func(s string) int
}

func NewContextAssembler(b Budget, est func(s string) int) *ContextAssembler {
	if est == nil {
		est = estimateTokens
	}
	return &ContextAssembler{defaultBudget: b, TokenEstimator: est}
}

// rough heuristic: ~4 chars per token
func estimateTokens(s string) int {
	l := len(s)
	if l == 0 {
		return 0
	}
	return (l + 3) / 4
}

// Window returns the newest turns, oldest first, within the budget. The most
// recent turn is always kept even when it alone exceeds the token cap.
func (a *ContextAssembler) Window(turns []ports.Turn, b *Budget) []ports.Turn {
	if b == nil {
		b = &a.defaultBudget
	}
	if len(turns) == 0 {
		return nil
	}

	start := 0
	if b.MaxTurns > 0 && len(turns) > b.MaxTurns {
		start = len(turns) - b.MaxTurns
	}
	candidates := turns[start:]
	if b.MaxContextTokens <= 0 {
		return normalizeTurns(candidates)
	}

	remaining := b.MaxContextTokens
	first := len(candidates)
	for i := len(candidates) - 1; i >= 0; i-- {
		cost := a.TokenEstimator(candidates[i].Content)
		if cost > remaining && first < len(candidates) {
			break
		}
		remaining -= cost
		first = i
	}
	return normalizeTurns(candidates[first:])
}

func normalizeTurns(turns []ports.Turn) []ports.Turn {
	out := make([]ports.Turn, len(turns))
	for i, t := range turns {
		t.Content = normalize(t.Content)
		out[i] = t
	}
	return out
}

// normalize trims and unifies newlines to reduce prompt diffs.
func normalize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
}
