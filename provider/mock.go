package provider

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/fractal/core"
)

// MockBackend is a scripted in-memory Backend for tests and examples. Each
// Complete call consumes the next scripted step; when the script is
// exhausted the last step repeats, which makes "model keeps asking for
// tools" budget scenarios trivial to express.
type MockBackend struct {
	mu       sync.Mutex
	script   []mockStep
	pos      int
	requests []Request
}

type mockStep struct {
	completion *Completion
	err        error
}

// NewMockBackend constructs an empty mock. Script steps with EnqueueAnswer,
// EnqueueToolCall and EnqueueError.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// EnqueueAnswer scripts a final-answer step.
func (m *MockBackend) EnqueueAnswer(text string) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{completion: &Completion{Text: text}})
	return m
}

// EnqueueToolCall scripts a step requesting a single tool call with the
// given JSON arguments.
func (m *MockBackend) EnqueueToolCall(tool string, args string) *MockBackend {
	return m.EnqueueToolCalls(core.ToolCall{Name: tool, Arguments: json.RawMessage(args)})
}

// EnqueueToolCalls scripts a step requesting several tool calls at once.
// Missing call ids are filled in.
func (m *MockBackend) EnqueueToolCalls(calls ...core.ToolCall) *MockBackend {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = uuid.NewString()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{completion: &Completion{ToolCalls: calls}})
	return m
}

// EnqueueError scripts a backend failure step.
func (m *MockBackend) EnqueueError(err error) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockStep{err: err})
	return m
}

// Complete implements Backend by replaying the script.
func (m *MockBackend) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if len(m.script) == 0 {
		return nil, core.NewError(core.CodeProviderError, "mock backend has no scripted steps")
	}

	step := m.script[m.pos]
	if m.pos < len(m.script)-1 {
		m.pos++
	}

	if step.err != nil {
		return nil, step.err
	}

	// Copy so callers cannot mutate the script through the result.
	c := &Completion{Text: step.completion.Text}
	c.ToolCalls = append(c.ToolCalls, step.completion.ToolCalls...)
	return c, nil
}

// Info implements Backend.
func (m *MockBackend) Info() Info {
	return Info{Provider: "mock", Model: "scripted", SupportsTools: true}
}

// Requests returns a copy of every request the mock has seen, for
// assertions on prompt composition and tool surfaces.
func (m *MockBackend) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns how many Complete calls the mock has served.
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

var _ Backend = (*MockBackend)(nil)
