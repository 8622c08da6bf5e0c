package harness

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/agentcore/agentcore/capability"
	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
)

// FinalAnswerMarker prefixes a direct answer in model output.
const FinalAnswerMarker = "Final Answer:"

const (
	catalogueHeader = "## Available capabilities"
	contractHeader  = "## Response format"

	fallbackInstruction = "You have used every available tool round. Answer the user's question directly " +
		"with the information gathered so far, even if it is incomplete, and say what is missing. " +
		"Do not request any tool or knowledge base."
)

// RoundInput is everything one generation round is built from.
type RoundInput struct {
	System       string
	Summary      string
	History      []ports.Turn
	Question     string
	Capabilities capability.Set
	Meta         map[string]string
}

// PromptBuilder assembles model-ready inputs for the reasoning loop.
type PromptBuilder struct {
	assembler     *ContextAssembler
	defaultSystem string
}

func NewPromptBuilder(assembler *ContextAssembler, defaultSystem string) *PromptBuilder {
	if assembler == nil {
		assembler = NewContextAssembler(Budget{}, nil)
	}
	return &PromptBuilder{assembler: assembler, defaultSystem: defaultSystem}
}

// BuildRound renders one round: system instructions, rolling summary,
// capability catalogue and output contract go in the system text; the
// history window and working question become the messages.
func (b *PromptBuilder) BuildRound(in RoundInput) ports.PromptInput {
	var sys strings.Builder
	sys.WriteString(b.system(in.System))
	writeSummary(&sys, in.Summary)
	if !in.Capabilities.Empty() {
		sys.WriteString("\n\n")
		sys.WriteString(renderCatalogue(in.Capabilities))
	}
	sys.WriteString("\n\n")
	sys.WriteString(renderContract(in.Capabilities))

	return ports.PromptInput{
		System:   sys.String(),
		Messages: b.messages(in),
		Meta:     in.Meta,
	}
}

// BuildFallback renders the final no-tools round used once the loop is exhausted.
func (b *PromptBuilder) BuildFallback(in RoundInput) ports.PromptInput {
	var sys strings.Builder
	sys.WriteString(b.system(in.System))
	writeSummary(&sys, in.Summary)
	sys.WriteString("\n\n")
	sys.WriteString(fallbackInstruction)

	return ports.PromptInput{
		System:   sys.String(),
		Messages: b.messages(in),
		Meta:     in.Meta,
	}
}

func (b *PromptBuilder) system(override string) string {
	if s := normalize(override); s != "" {
		return s
	}
	return normalize(b.defaultSystem)
}

func (b *PromptBuilder) messages(in RoundInput) []ports.PromptMessage {
	window := b.assembler.Window(in.History, nil)
	msgs := make([]ports.PromptMessage, 0, len(window)+1)
	for _, t := range window {
		msgs = append(msgs, ports.PromptMessage{Role: t.Role, Content: t.Content})
	}
	return append(msgs, ports.PromptMessage{Role: ports.RoleUser, Content: normalize(in.Question)})
}

func writeSummary(sys *strings.Builder, summary string) {
	if s := normalize(summary); s != "" {
		sys.WriteString("\n\n## Conversation summary\n")
		sys.WriteString(s)
	}
}

func renderCatalogue(caps capability.Set) string {
	var sb strings.Builder
	sb.WriteString(catalogueHeader)

	if tools := caps.Tools(); len(tools) > 0 {
		sb.WriteString("\n\nTools:")
		for _, t := range tools {
			fmt.Fprintf(&sb, "\n- %s", t.Name)
			if t.Purpose != "" {
				fmt.Fprintf(&sb, ": %s", t.Purpose)
			}
			fmt.Fprintf(&sb, "\n  call: %s", t.CallMethod())
			for _, p := range t.Parameters {
				fmt.Fprintf(&sb, "\n  param %s (%s", p.Name, orDefault(p.In, capability.InQuery))
				if p.Type != "" {
					fmt.Fprintf(&sb, ", %s", p.Type)
				}
				if p.Required {
					sb.WriteString(", required")
				}
				sb.WriteString(")")
				if p.Description != "" {
					fmt.Fprintf(&sb, ": %s", p.Description)
				}
				if len(p.Enum) > 0 {
					fmt.Fprintf(&sb, " one of [%s]", strings.Join(p.Enum, ", "))
				}
			}
		}
	}

	if kbs := caps.KnowledgeBases(); len(kbs) > 0 {
		sb.WriteString("\n\nKnowledge bases:")
		for _, kb := range kbs {
			fmt.Fprintf(&sb, "\n- %s", orDefault(kb.Name, kb.ID))
		}
		sb.WriteString("\nSearch them with a rag_query when the answer may depend on their documents.")
	}
	return sb.String()
}

func renderContract(caps capability.Set) string {
	var sb strings.Builder
	sb.WriteString(contractHeader)
	sb.WriteString("\nReply in exactly one of these forms:")
	n := 1
	if len(caps.Tools()) > 0 {
		fmt.Fprintf(&sb, "\n%d. Call a tool with a single JSON object: {\"tool_call\": {\"name\": \"<tool name>\", \"params\": {...}}}", n)
		n++
	}
	if len(caps.KnowledgeBases()) > 0 {
		fmt.Fprintf(&sb, "\n%d. Search the knowledge bases: {\"rag_query\": \"<search query>\"}", n)
		n++
	}
	fmt.Fprintf(&sb, "\n%d. Answer the user: %s <your answer>", n, FinalAnswerMarker)
	return sb.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
