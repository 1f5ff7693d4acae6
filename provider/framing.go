package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hupe1980/fractal/core"
)

// Framing selects how tool-call payloads are framed to the model. It is a
// pluggable strategy rather than a wire constant: stable relies on the
// provider's native tool-calling support, turbo folds the tool surface into
// the prompt and parses calls out of plain completions.
type Framing interface {
	// EncodeRequest rewrites the request before it reaches the backend.
	EncodeRequest(req Request) Request

	// DecodeCompletion rewrites the backend's completion before the
	// reasoning loop sees it.
	DecodeCompletion(c *Completion) (*Completion, error)

	// Name identifies the framing for diagnostics.
	Name() string
}

// FramingFor returns the framing strategy for a configured tool-calling
// version.
func FramingFor(v core.ToolCallingVersion) Framing {
	if v == core.ToolCallingTurbo {
		return TurboFraming{}
	}
	return StableFraming{}
}

// WithFraming wraps a backend so every exchange passes through the framing
// strategy.
func WithFraming(inner Backend, f Framing) Backend {
	if _, ok := f.(StableFraming); ok {
		return inner
	}
	return &framedBackend{inner: inner, framing: f}
}

type framedBackend struct {
	inner   Backend
	framing Framing
}

func (b *framedBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	completion, err := b.inner.Complete(ctx, b.framing.EncodeRequest(req))
	if err != nil {
		return nil, err
	}
	return b.framing.DecodeCompletion(completion)
}

func (b *framedBackend) Info() Info { return b.inner.Info() }

// StableFraming passes requests through unchanged, relying on the backend's
// native tool-calling wire format.
type StableFraming struct{}

// EncodeRequest implements Framing.
func (StableFraming) EncodeRequest(req Request) Request { return req }

// DecodeCompletion implements Framing.
func (StableFraming) DecodeCompletion(c *Completion) (*Completion, error) { return c, nil }

// Name implements Framing.
func (StableFraming) Name() string { return string(core.ToolCallingStable) }

// turboEnvelope is the JSON shape turbo-framed models are instructed to emit
// when they want tools invoked.
type turboEnvelope struct {
	ToolCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"tool_calls"`
}

// TurboFraming embeds the tool surface into the system prompt and parses a
// fenced JSON tool_calls block out of plain text completions. It trades the
// provider's native tool-calling round trip for prompt-level framing, which
// is faster on providers whose native path adds latency.
type TurboFraming struct{}

// EncodeRequest implements Framing: the declared tools move from the request
// into a prompt section and the native tool list is cleared.
func (TurboFraming) EncodeRequest(req Request) Request {
	if len(req.Tools) == 0 {
		return req
	}

	var b strings.Builder
	b.WriteString(req.System)
	b.WriteString("\n\n## Available tools\n")
	for _, t := range req.Tools {
		schema, _ := json.Marshal(t.Parameters)
		fmt.Fprintf(&b, "- %s: %s\n  parameters: %s\n", t.Name, t.Description, schema)
	}
	b.WriteString("\nTo invoke tools, respond with ONLY a fenced JSON block of the form:\n")
	b.WriteString("```json\n{\"tool_calls\": [{\"name\": \"<tool>\", \"arguments\": {}}]}\n```\n")
	b.WriteString("To give your final answer, respond with plain text and no JSON block.\n")

	req.System = b.String()
	req.Tools = nil
	return req
}

// DecodeCompletion implements Framing: a well-formed fenced tool_calls block
// becomes tool calls; anything else is treated as a final answer, letting
// the model recover from its own formatting mistakes on the next iteration.
func (TurboFraming) DecodeCompletion(c *Completion) (*Completion, error) {
	if len(c.ToolCalls) > 0 {
		return c, nil
	}

	block, rest, ok := extractFencedJSON(c.Text)
	if !ok {
		return c, nil
	}

	var env turboEnvelope
	if err := json.Unmarshal([]byte(block), &env); err != nil || len(env.ToolCalls) == 0 {
		return c, nil
	}

	calls := make([]core.ToolCall, 0, len(env.ToolCalls))
	for _, tc := range env.ToolCalls {
		calls = append(calls, core.ToolCall{
			ID:        uuid.NewString(),
			Name:      tc.Name,
			Arguments: tc.Arguments,
		})
	}

	return &Completion{Text: strings.TrimSpace(rest), ToolCalls: calls}, nil
}

// Name implements Framing.
func (TurboFraming) Name() string { return string(core.ToolCallingTurbo) }

// extractFencedJSON pulls the first ```json fenced block out of text,
// returning the block body and the remaining text.
func extractFencedJSON(text string) (block, rest string, ok bool) {
	const open = "```json"
	start := strings.Index(text, open)
	if start < 0 {
		return "", text, false
	}
	bodyStart := start + len(open)
	end := strings.Index(text[bodyStart:], "```")
	if end < 0 {
		return "", text, false
	}
	block = strings.TrimSpace(text[bodyStart : bodyStart+end])
	rest = text[:start] + text[bodyStart+end+3:]
	return block, rest, true
}
