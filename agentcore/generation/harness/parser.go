package harness

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"

	"github.com/ZanzyTHEbar/agentcore/agentcore"
	ports "github.com/ZanzyTHEbar/agentcore/agentcore/generation/harness/ports"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DecisionKind is the state the loop moves to after a round.
type DecisionKind string

const (
	DecisionContinue     DecisionKind = "continue"
	DecisionToolCall     DecisionKind = "tool_call"
	DecisionRagQuery     DecisionKind = "rag_query"
	DecisionDirectAnswer DecisionKind = "direct_answer"
)

// Decision is what a parsing strategy extracted from model output.
type Decision struct {
	Kind        DecisionKind
	Instruction ports.Instruction
	Answer      string
	Strategy    string
}

// Strategy is one way of reading model output. Strategies are tried in a
// fixed order and the first match wins.
type Strategy interface {
	Name() string
	TryParse(text string) (Decision, bool)
}

// FormatReminder is appended to the working question after unparseable output.
const FormatReminder = "Reminder: reply with a single JSON tool_call or rag_query object, or with \"" +
	FinalAnswerMarker + "\" followed by your answer."

var (
	markerPattern   = regexp.MustCompile(`(?i)final\s*answer\s*:`)
	legacyPattern   = regexp.MustCompile(`\b(GET|POST|PUT|PATCH|DELETE|HEAD|OPTIONS)[ \t]+https?://[^\s{]+`)
	urlLikePattern  = regexp.MustCompile(`(?i)\bhttps?://|\bwww\.`)
	codeFence       = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	trailingComma   = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKey     = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
	instructionKeys = []string{"tool_call", "rag_query"}
)

// ParserOptions tunes the lenient fallback.
type ParserOptions struct {
	LenientFallback bool
	LenientMinChars int
}

// OutputParser turns model output into a loop decision.
type OutputParser struct {
	strategies []Strategy
}

// NewOutputParser creates a parser with the default strategy order:
// final-answer marker, whole-response JSON, first embedded JSON object,
// legacy "METHOD url" line and, when enabled, the lenient fallback.
func NewOutputParser(opts ParserOptions) *OutputParser {
	strategies := []Strategy{
		markerStrategy{},
		wholeJSONStrategy{},
		embeddedJSONStrategy{},
		legacyStrategy{},
	}
	if opts.LenientFallback {
		strategies = append(strategies, lenientStrategy{minChars: opts.LenientMinChars})
	}
	return &OutputParser{strategies: strategies}
}

// Strategies returns the strategy names in evaluation order.
func (p *OutputParser) Strategies() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name()
	}
	return names
}

// Parse runs every strategy in order. When none matches the decision is
// Continue and the error wraps agentcore.ErrParseAmbiguity.
func (p *OutputParser) Parse(text string) (Decision, error) {
	for _, s := range p.strategies {
		if d, ok := s.TryParse(text); ok {
			d.Strategy = s.Name()
			return d, nil
		}
	}
	return Decision{Kind: DecisionContinue}, fmt.Errorf("%w: no strategy matched %d chars of output", agentcore.ErrParseAmbiguity, utf8.RuneCountInString(text))
}

type markerStrategy struct{}

func (markerStrategy) Name() string { return "final_answer_marker" }

// A marker inside the first JSON object (for example in a tool argument)
// does not count.
func (markerStrategy) TryParse(text string) (Decision, bool) {
	start, end, hasObject := balancedObjectBounds(text)
	for _, loc := range markerPattern.FindAllStringIndex(text, -1) {
		if hasObject && loc[0] > start && loc[0] < end {
			continue
		}
		answer := strings.TrimSpace(text[loc[1]:])
		if answer == "" {
			return Decision{}, false
		}
		return Decision{Kind: DecisionDirectAnswer, Answer: answer}, true
	}
	return Decision{}, false
}

type wholeJSONStrategy struct{}

func (wholeJSONStrategy) Name() string { return "json" }

func (wholeJSONStrategy) TryParse(text string) (Decision, bool) {
	s := strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return Decision{}, false
	}
	return decodeInstruction(s)
}

type embeddedJSONStrategy struct{}

func (embeddedJSONStrategy) Name() string { return "embedded_json" }

func (embeddedJSONStrategy) TryParse(text string) (Decision, bool) {
	span, ok := firstBalancedObject(text)
	if !ok {
		return Decision{}, false
	}
	return decodeInstruction(span)
}

type legacyStrategy struct{}

func (legacyStrategy) Name() string { return "legacy_call" }

// The call may appear anywhere in the text. A JSON object that follows the
// URL on the same line is kept as the request body.
func (legacyStrategy) TryParse(text string) (Decision, bool) {
	loc := legacyPattern.FindStringIndex(text)
	if loc == nil {
		return Decision{}, false
	}
	call := strings.TrimRight(text[loc[0]:loc[1]], ".,;:!?)\"'")
	rest := text[loc[1]:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	if trimmed := strings.TrimLeft(rest, " \t"); strings.HasPrefix(trimmed, "{") {
		if body, ok := firstBalancedObject(trimmed); ok {
			call += " " + body
		}
	}
	return Decision{
		Kind:        DecisionToolCall,
		Instruction: ports.Instruction{Kind: ports.InstructionToolCall, Raw: call},
	}, true
}

type lenientStrategy struct {
	minChars int
}

func (lenientStrategy) Name() string { return "lenient" }

func (l lenientStrategy) TryParse(text string) (Decision, bool) {
	s := strings.TrimSpace(text)
	if utf8.RuneCountInString(s) < l.minChars || urlLikePattern.MatchString(s) {
		return Decision{}, false
	}
	for _, key := range instructionKeys {
		if strings.Contains(s, key) {
			return Decision{}, false
		}
	}
	return Decision{Kind: DecisionDirectAnswer, Answer: s}, true
}

// decodeInstruction reads a tool_call or rag_query object, retrying once
// after fixJSON repairs.
func decodeInstruction(raw string) (Decision, bool) {
	var doc map[string]jsoniter.RawMessage
	if err := json.UnmarshalFromString(raw, &doc); err != nil {
		if err := json.UnmarshalFromString(fixJSON(raw), &doc); err != nil {
			return Decision{}, false
		}
	}

	if v, ok := doc["tool_call"]; ok {
		return Decision{Kind: DecisionToolCall, Instruction: toolCallInstruction(v)}, true
	}
	if v, ok := doc["rag_query"]; ok {
		return Decision{Kind: DecisionRagQuery, Instruction: ports.Instruction{
			Kind:  ports.InstructionRagQuery,
			Query: ragQueryText(v),
		}}, true
	}
	return Decision{}, false
}

type toolCallPayload struct {
	Name      string         `json:"name"`
	Method    string         `json:"method"`
	URL       string         `json:"url"`
	Params    map[string]any `json:"params"`
	Arguments map[string]any `json:"arguments"`
}

// toolCallInstruction never fails: a payload it cannot read yields an
// instruction without a name, which the executor reports back as an error.
func toolCallInstruction(raw jsoniter.RawMessage) ports.Instruction {
	instr := ports.Instruction{Kind: ports.InstructionToolCall}

	var line string
	if err := json.Unmarshal(raw, &line); err == nil {
		line = strings.TrimSpace(line)
		if loc := legacyPattern.FindStringIndex(line); loc != nil && loc[0] == 0 {
			instr.Raw = line
		} else {
			instr.Name = line
		}
		return instr
	}

	var p toolCallPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return instr
	}
	instr.Name = strings.TrimSpace(p.Name)
	instr.Method = p.Method
	instr.URL = p.URL
	instr.Params = p.Params
	if instr.Params == nil {
		instr.Params = p.Arguments
	}
	return instr
}

func ragQueryText(raw jsoniter.RawMessage) string {
	var q string
	if err := json.Unmarshal(raw, &q); err == nil {
		return strings.TrimSpace(q)
	}
	var obj struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Query)
	}
	return ""
}

// firstBalancedObject returns the first {...} span whose braces balance,
// ignoring braces inside string literals.
func firstBalancedObject(s string) (string, bool) {
	start, end, ok := balancedObjectBounds(s)
	if !ok {
		return "", false
	}
	return s[start:end], true
}

// balancedObjectBounds locates the span returned by firstBalancedObject.
func balancedObjectBounds(s string) (start, end int, ok bool) {
	start = strings.IndexByte(s, '{')
	if start < 0 {
		return 0, 0, false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, i + 1, true
			}
		}
	}
	return 0, 0, false
}

// fixJSON attempts to fix common JSON formatting issues.
func fixJSON(jsonStr string) string {
	// Remove trailing commas before closing braces/brackets
	jsonStr = trailingComma.ReplaceAllString(jsonStr, "$1")

	// Single quotes to double quotes, then quote bare keys
	jsonStr = strings.ReplaceAll(jsonStr, "'", "\"")
	jsonStr = unquotedKey.ReplaceAllString(jsonStr, `$1"$2":`)

	return jsonStr
}
