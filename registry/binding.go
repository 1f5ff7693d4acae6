package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hupe1980/fractal/core"
	"github.com/hupe1980/fractal/internal/util"
	"github.com/hupe1980/fractal/supervisor"
)

// Binding is the invoke-shaped surface the reasoning loop sees for every
// registered tool, regardless of what stands behind it. The runtime ships
// exactly two implementations: ProcessBinding for supervised tool processes
// and AgentBinding for nested agents. A binding is set once at registration
// and never reassigned.
type Binding interface {
	// Invoke executes one call with the given raw arguments, bounded by
	// timeout.
	Invoke(ctx context.Context, args json.RawMessage, timeout time.Duration) (string, error)

	// Description returns the free-text capability description consumed by
	// the model backend.
	Description() string

	// Parameters returns the JSON Schema for the tool's arguments.
	Parameters() map[string]any

	// Shutdown releases whatever the binding owns. Called exactly once per
	// registered name during registry teardown; implementations must
	// tolerate shared backends being shut down more than once.
	Shutdown(ctx context.Context) error
}

// ProcessBinding routes calls for one advertised tool to its supervisor.
// Several bindings may share a supervisor when the process exposes more than
// one tool; the supervisor's Stop is idempotent, so shared teardown is safe.
type ProcessBinding struct {
	sup        *supervisor.Supervisor
	tool       string
	desc       string
	parameters map[string]any
}

// ProcessBindings derives one binding per capability the started supervisor
// advertised during its handshake.
func ProcessBindings(sup *supervisor.Supervisor) []*ProcessBinding {
	caps := sup.Capabilities()
	out := make([]*ProcessBinding, 0, len(caps))
	for _, c := range caps {
		out = append(out, &ProcessBinding{
			sup:        sup,
			tool:       c.Name,
			desc:       c.Description,
			parameters: c.ParameterSchema,
		})
	}
	return out
}

// Tool returns the advertised tool name this binding routes to.
func (b *ProcessBinding) Tool() string { return b.tool }

// Supervisor returns the owning supervisor.
func (b *ProcessBinding) Supervisor() *supervisor.Supervisor { return b.sup }

// Invoke dispatches the call through the supervisor.
func (b *ProcessBinding) Invoke(ctx context.Context, args json.RawMessage, timeout time.Duration) (string, error) {
	return b.sup.Invoke(ctx, b.tool, args, timeout)
}

// Description returns the handshake-provided capability description.
func (b *ProcessBinding) Description() string { return b.desc }

// Parameters returns the handshake-provided argument schema.
func (b *ProcessBinding) Parameters() map[string]any { return b.parameters }

// Shutdown stops the underlying process. No-op if another binding sharing
// the supervisor already stopped it.
func (b *ProcessBinding) Shutdown(ctx context.Context) error {
	return b.sup.Stop(ctx)
}

// agentQueryArgs is the argument shape a parent's model uses to call a
// nested agent.
type agentQueryArgs struct {
	Query string `json:"query" description:"The natural-language request for this agent"`
}

// AgentBinding adapts a nested agent to the Binding surface: invoking it
// runs the child's own reasoning loop against the supplied query. Ownership
// is shared; the parent holds a reference while the child manages its own
// subordinate tools.
type AgentBinding struct {
	child core.Agent
}

// NewAgentBinding wraps a nested agent.
func NewAgentBinding(child core.Agent) *AgentBinding {
	return &AgentBinding{child: child}
}

// Agent returns the nested agent.
func (b *AgentBinding) Agent() core.Agent { return b.child }

// Invoke parses the query argument and delegates to the child's
// ProcessQuery. The per-call timeout becomes the child's overall query
// deadline, so cancellation propagates through every recursive level. A
// budget-exceeded child answer is still returned: partial progress is an
// observation, not a failure.
func (b *AgentBinding) Invoke(ctx context.Context, args json.RawMessage, timeout time.Duration) (string, error) {
	var qa agentQueryArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &qa); err != nil {
			// Tolerate a bare JSON string as the query.
			var plain string
			if err2 := json.Unmarshal(args, &plain); err2 != nil {
				return "", core.WrapError(core.CodeProtocolError, "malformed agent arguments", err)
			}
			qa.Query = plain
		}
	}
	if qa.Query == "" {
		return "", core.NewError(core.CodeRemoteError, "agent call is missing the query argument")
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := b.child.ProcessQuery(cctx, qa.Query)
	if err != nil {
		return "", err
	}
	return result.Answer, nil
}

// Description returns the child agent's capability description.
func (b *AgentBinding) Description() string { return b.child.Description() }

// Parameters returns the single query-string schema every agent tool shares.
func (b *AgentBinding) Parameters() map[string]any {
	return util.CreateSchema(agentQueryArgs{})
}

// Shutdown recursively shuts down the nested agent and its own registry.
func (b *AgentBinding) Shutdown(ctx context.Context) error {
	return b.child.Shutdown(ctx)
}
