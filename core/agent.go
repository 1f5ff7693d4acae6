package core

import "context"

// Outcome classifies how a query terminated.
type Outcome string

const (
	// OutcomeCompleted means the model produced a final answer within the
	// iteration budget.
	OutcomeCompleted Outcome = "completed"
	// OutcomeBudgetExceeded means the iteration budget ran out; the result
	// carries the best partial answer available.
	OutcomeBudgetExceeded Outcome = "budget_exceeded"
)

// Result is the caller-visible outcome of one ProcessQuery invocation.
// BudgetExceeded is not an error: the answer is returned with the outcome
// flagged so callers can decide what to do with partial progress.
type Result struct {
	// Answer is the final answer, or the best partial answer when the
	// outcome is OutcomeBudgetExceeded.
	Answer string
	// Outcome flags whether the answer is complete or partial.
	Outcome Outcome
	// Iterations is the number of Think/Act cycles actually performed.
	Iterations int
}

// Partial reports whether the answer represents incomplete progress.
func (r Result) Partial() bool { return r.Outcome == OutcomeBudgetExceeded }

// Agent is the externally visible reasoning unit. An agent owns its tool
// registry and reasoning loop and may itself be registered as a tool inside
// a parent agent, which is the recursion point of the system.
//
// Implementations must:
//   - Enforce the lifecycle Created → Initializing → Ready ⇄ Processing →
//     ShuttingDown → Terminated
//   - Reject concurrent ProcessQuery calls with a BUSY error
//   - Respect context cancellation on every blocking operation
//   - Guarantee no tool process outlives Shutdown
type Agent interface {
	// Name returns the agent's identity, unique within its parent's
	// registry.
	Name() string

	// Description returns the capability description exposed to a parent
	// agent's model backend when this agent is registered as a tool.
	Description() string

	// Initialize starts every registered tool process and recursively
	// initializes nested agents, rolling back whatever did start if any
	// of them fail.
	Initialize(ctx context.Context) error

	// ProcessQuery runs the reasoning loop for one query. Requires the
	// agent to be Ready.
	ProcessQuery(ctx context.Context, query string) (Result, error)

	// Shutdown tears down all owned tools and nested agents. Idempotent.
	Shutdown(ctx context.Context) error

	// Parent returns the agent this one is registered under, or nil for a
	// root agent.
	Parent() Agent

	// SubAgents returns the nested agents registered as tools of this
	// agent, in registration order.
	SubAgents() []Agent
}
