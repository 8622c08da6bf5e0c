package harnessports

// InstructionKind discriminates what the model asked for.
type InstructionKind string

const (
	InstructionToolCall InstructionKind = "tool_call"
	InstructionRagQuery InstructionKind = "rag_query"
)

// Instruction is a parsed, executable request from the model.
//
// A structured tool call carries Name and Params (Method/URL optional
// overrides). A legacy call carries only Raw, the literal "METHOD url [body]"
// line. A rag query carries Query.
type Instruction struct {
	Kind   InstructionKind `json:"kind"`
	Name   string          `json:"name,omitempty"`
	Method string          `json:"method,omitempty"`
	URL    string          `json:"url,omitempty"`
	Params map[string]any  `json:"params,omitempty"`
	Raw    string          `json:"raw,omitempty"`
	Query  string          `json:"query,omitempty"`
}

// Legacy reports whether the instruction is a plain-text "METHOD url" call.
func (i Instruction) Legacy() bool {
	return i.Kind == InstructionToolCall && i.Name == "" && i.Raw != ""
}
