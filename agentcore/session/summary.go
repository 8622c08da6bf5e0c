package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
)

// SummaryPrompt prefixes the transcript sent for summarization.
const SummaryPrompt = "Summarize the key information of the following conversation (user needs, preferences, unresolved issues, conversation topics) as concise bullet points:\n"

// needsSummary reports whether a history of n turns should be summarized.
// A summary is produced once n reaches trigger and refreshed only once n
// reaches twice the trigger.
func needsSummary(n, trigger int, hasSummary bool) bool {
	if trigger <= 0 || n < trigger {
		return false
	}
	if hasSummary && n < 2*trigger {
		return false
	}
	return true
}

// transcript renders the last window turns as "User: ..." / "Assistant: ..." lines.
func transcript(history []ports.Turn, window int) string {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	lines := make([]string, 0, len(history))
	for _, t := range history {
		speaker := "User"
		if t.Role == ports.RoleAssistant {
			speaker = "Assistant"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, t.Content))
	}
	return strings.Join(lines, "\n")
}

// summarize asks the provider for a summary of the recent window in a
// single non-streaming call.
func summarize(ctx context.Context, p ports.Provider, opts ports.Options, history []ports.Turn, window int) (string, error) {
	opts = opts.WithDefaults()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
	defer cancel()

	in := ports.PromptInput{
		Messages: []ports.PromptMessage{{Role: ports.RoleUser, Content: SummaryPrompt + transcript(history, window)}},
		Meta:     map[string]string{"purpose": "summary"},
	}
	c, err := p.Complete(ctx, in, opts)
	if err != nil {
		return "", fmt.Errorf("failed to summarize history: %w", err)
	}
	summary := strings.TrimSpace(c.Text)
	if summary == "" {
		return "", fmt.Errorf("failed to summarize history: empty summary")
	}
	return summary, nil
}
