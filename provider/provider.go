package provider

import (
	"context"

	"github.com/hupe1980/fractal/core"
)

// Request captures the normalized model input produced by the reasoning
// loop: the system prompt, the conversation so far and the tool surface.
type Request struct {
	// System is the composed system prompt.
	System string
	// Turns is the conversation history in order.
	Turns []core.Turn
	// Tools declares the callable tools, in registry order.
	Tools []core.ToolDefinition
}

// Completion is one model response: either a final answer (Text, no tool
// calls) or a set of requested tool calls, possibly with accompanying
// reasoning text.
type Completion struct {
	Text      string
	ToolCalls []core.ToolCall
}

// Info contains metadata about a backend implementation.
type Info struct {
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	SupportsTools bool   `json:"supports_tools"`
}

// Backend is the minimal interface the reasoning loop requires from a model
// provider. Backend failures must be typed PROVIDER_ERROR so the loop can
// distinguish them from tool failures.
type Backend interface {
	// Complete sends the request and returns the model's next step.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Info returns metadata about the backend implementation.
	Info() Info
}
