package core

import "encoding/json"

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks the caller's query.
	RoleUser Role = "user"
	// RoleAssistant marks model output, either reasoning text or tool-call
	// requests.
	RoleAssistant Role = "assistant"
	// RoleTool marks a tool result (or tool failure) observation.
	RoleTool Role = "tool"
)

// ToolCall is a single tool invocation requested by the model. Arguments are
// kept as raw JSON; the runtime never interprets them beyond routing.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition declaratively exposes one callable tool to the model.
// Parameters is a JSON Schema object (minimal subset expected). The
// description is prompt content, opaque to the runtime.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Turn is one entry of the conversation history.
//
// A user turn carries Text only. An assistant turn carries Text and/or
// ToolCalls. A tool turn carries the observation Text plus the ToolCallID and
// ToolName of the call it answers.
type Turn struct {
	Role       Role       `json:"role"`
	Text       string     `json:"text,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// History is the append-only ordered sequence of turns accumulated during
// query processing. It is not safe for concurrent mutation; the reasoning
// loop is the only writer.
type History struct {
	turns []Turn
}

// NewHistory returns an empty history.
func NewHistory() *History { return &History{} }

// AppendUser appends the caller's query.
func (h *History) AppendUser(text string) {
	h.turns = append(h.turns, Turn{Role: RoleUser, Text: text})
}

// AppendAssistant appends model output together with any tool calls it
// requested.
func (h *History) AppendAssistant(text string, calls []ToolCall) {
	h.turns = append(h.turns, Turn{Role: RoleAssistant, Text: text, ToolCalls: calls})
}

// AppendToolResult appends one observation answering the identified call.
func (h *History) AppendToolResult(call ToolCall, result string) {
	h.turns = append(h.turns, Turn{
		Role:       RoleTool,
		Text:       result,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	})
}

// Turns returns a copy of the accumulated turns for safe iteration.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of turns.
func (h *History) Len() int { return len(h.turns) }

// LastAssistantText returns the text of the most recent assistant turn, or
// an empty string if none exists. The reasoning loop uses it as the best
// partial answer when the iteration budget runs out.
func (h *History) LastAssistantText() string {
	for i := len(h.turns) - 1; i >= 0; i-- {
		if h.turns[i].Role == RoleAssistant && h.turns[i].Text != "" {
			return h.turns[i].Text
		}
	}
	return ""
}

// Reset discards all turns. Used between queries when history retention is
// disabled.
func (h *History) Reset() { h.turns = nil }
