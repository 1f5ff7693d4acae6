package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/fractal/core"
	"github.com/hupe1980/fractal/logging"
	"github.com/hupe1980/fractal/provider"
	"github.com/hupe1980/fractal/registry"
	"github.com/hupe1980/fractal/supervisor"
)

// State is the agent lifecycle state. Transitions are monotonic except for
// the Ready ⇄ Processing cycle between queries.
type State int

const (
	// StateCreated is the initial state after construction.
	StateCreated State = iota
	// StateInitializing is held while tools and nested agents start.
	StateInitializing
	// StateReady accepts queries.
	StateReady
	// StateProcessing is held while one query runs.
	StateProcessing
	// StateShuttingDown is held while owned tools terminate.
	StateShuttingDown
	// StateTerminated is final.
	StateTerminated
)

// String returns the lifecycle state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateInitializing:
		return "Initializing"
	case StateReady:
		return "Ready"
	case StateProcessing:
		return "Processing"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Options configures an Agent.
type Options struct {
	// Description is the capability description a parent agent's model
	// sees when this agent is registered as a tool.
	Description string
	// Config holds the immutable runtime settings. Defaults to
	// core.DefaultConfig.
	Config core.Config
	// Backend is the model backend. Required for ProcessQuery; the
	// configured framing and retry wrappers are applied on top of it.
	Backend provider.Backend
	// Logger receives structured diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Agent is the concrete core.Agent implementation. One agent processes one
// query at a time; a second ProcessQuery while Processing fails fast with a
// BUSY error rather than queueing silently.
type Agent struct {
	name    string
	desc    string
	cfg     core.Config
	logger  logging.Logger
	backend provider.Backend

	registry *registry.Registry
	loop     *loop

	mu      sync.Mutex
	state   State
	parent  core.Agent
	pending []supervisor.Spec
	sups    []*supervisor.Supervisor
}

var _ core.Agent = (*Agent)(nil)

// New constructs an agent. The configuration is validated once here and
// never mutated afterwards.
func New(name string, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{
		Description: "Agent " + name,
		Config:      core.DefaultConfig(),
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := opts.Config.Validate(); err != nil {
		return nil, core.WrapError(core.CodeInitializationFailure, "invalid configuration", err)
	}

	a := &Agent{
		name:   name,
		desc:   opts.Description,
		cfg:    opts.Config,
		logger: componentLogger(opts.Logger, name),
		state:  StateCreated,
	}

	a.registry = registry.New(func(o *registry.Options) {
		o.Owner = a
		o.Logger = componentLogger(a.logger, "registry")
	})

	if opts.Backend != nil {
		framed := provider.WithFraming(opts.Backend, provider.FramingFor(opts.Config.ToolCallingVersion))
		a.backend = provider.WithRetry(framed, opts.Config.MaxRetries, func(o *provider.RetryOptions) {
			o.Logger = a.logger
		})
	}

	a.loop = newLoop(a.name, a.backend, a.registry, a.cfg, componentLogger(a.logger, "loop"))

	return a, nil
}

// Name returns the agent's identity.
func (a *Agent) Name() string { return a.name }

// Description returns the capability description exposed to parent agents.
func (a *Agent) Description() string { return a.desc }

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Parent returns the agent this one is registered under, or nil.
func (a *Agent) Parent() core.Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.parent
}

// AttachParent records the parent when this agent is registered as a tool.
// Called by the parent's registry during registration.
func (a *Agent) AttachParent(p core.Agent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.parent = p
}

// SubAgents returns nested agents in registration order.
func (a *Agent) SubAgents() []core.Agent { return a.registry.Agents() }

// Registry exposes the tool registry, mainly for inspection in tests and
// tooling. The registry is mutated only through the registration methods
// below and during Initialize/Shutdown.
func (a *Agent) Registry() *registry.Registry { return a.registry }

// AddToolProcess queues a tool process for launch during Initialize. Only
// valid before initialization: the process set is part of the agent's
// immutable composition.
func (a *Agent) AddToolProcess(spec supervisor.Spec) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateCreated {
		return core.Errorf(core.CodeInitializationFailure,
			"cannot add tool process in state %s", a.state)
	}
	a.pending = append(a.pending, spec)
	return nil
}

// RegisterAgent registers a nested agent as a tool of this one. Fails with
// CYCLIC_COMPOSITION if the registration would make this agent a tool of
// itself, directly or transitively.
func (a *Agent) RegisterAgent(child core.Agent) error {
	a.mu.Lock()
	if a.state != StateCreated {
		a.mu.Unlock()
		return core.Errorf(core.CodeInitializationFailure,
			"cannot register agent in state %s", a.state)
	}
	a.mu.Unlock()

	// Cycle detection walks this agent's parent chain through Parent(),
	// which takes a.mu, so the lock must not be held across the call.
	return a.registry.RegisterAgent(child)
}

// RegisterBinding registers a custom tool binding under the given name.
// Used by tests and embedders that provide in-process tools.
func (a *Agent) RegisterBinding(name string, b registry.Binding) error {
	a.mu.Lock()
	if a.state != StateCreated {
		a.mu.Unlock()
		return core.Errorf(core.CodeInitializationFailure,
			"cannot register binding in state %s", a.state)
	}
	a.mu.Unlock()

	// Agent bindings trigger the same parent-chain walk as RegisterAgent,
	// so the lock is released before delegating here too.
	return a.registry.Register(name, b)
}

// Initialize starts every queued tool process and recursively initializes
// nested agents. On any sub-failure everything that did start is stopped
// again before the aggregated INITIALIZATION_FAILURE is returned, so a
// failed Initialize never leaks processes.
func (a *Agent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateCreated {
		a.mu.Unlock()
		return core.Errorf(core.CodeInitializationFailure,
			"initialize requires state Created, agent is %s", a.state)
	}
	a.state = StateInitializing
	specs := a.pending
	a.mu.Unlock()

	a.logger.Info("agent.initializing", "tool_processes", len(specs), "sub_agents", len(a.registry.Agents()))

	var started []*supervisor.Supervisor
	var initialized []core.Agent
	var errs []error

	for _, spec := range specs {
		sup := supervisor.New(spec, func(o *supervisor.Options) {
			o.HandshakeTimeout = a.cfg.HandshakeTimeout
			o.StopGracePeriod = a.cfg.StopGracePeriod
			o.Logger = componentLogger(a.logger, spec.Name)
		})
		if err := sup.Start(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := a.registry.RegisterSupervisor(sup); err != nil {
			errs = append(errs, err)
			_ = sup.Stop(ctx)
			continue
		}
		started = append(started, sup)
	}

	if len(errs) == 0 {
		for _, child := range a.registry.Agents() {
			if err := child.Initialize(ctx); err != nil {
				errs = append(errs, err)
				break
			}
			initialized = append(initialized, child)
		}
	}

	if len(errs) > 0 {
		for _, sup := range started {
			_ = sup.Stop(ctx)
			a.registry.UnregisterSupervisor(sup)
		}
		for _, child := range initialized {
			_ = child.Shutdown(ctx)
		}

		a.mu.Lock()
		a.state = StateCreated
		a.mu.Unlock()

		return core.WrapError(core.CodeInitializationFailure,
			"agent initialization failed", errors.Join(errs...))
	}

	a.mu.Lock()
	a.sups = started
	a.state = StateReady
	a.mu.Unlock()

	a.logger.Info("agent.ready", "tools", a.registry.Len())

	return nil
}

// ProcessQuery runs the reasoning loop for one query. It requires the agent
// to be Ready, holds Processing for the duration, and returns to Ready.
func (a *Agent) ProcessQuery(ctx context.Context, query string) (core.Result, error) {
	a.mu.Lock()
	switch a.state {
	case StateProcessing:
		a.mu.Unlock()
		return core.Result{}, core.Errorf(core.CodeBusy,
			"agent %q is already processing a query", a.name)
	case StateReady:
		a.state = StateProcessing
	default:
		st := a.state
		a.mu.Unlock()
		return core.Result{}, core.Errorf(core.CodeNotInitialized,
			"agent %q cannot process queries in state %s", a.name, st)
	}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		if a.state == StateProcessing {
			a.state = StateReady
		}
		a.mu.Unlock()
	}()

	if a.backend == nil {
		return core.Result{}, core.NewError(core.CodeNotInitialized,
			"agent has no model backend configured")
	}

	a.logger.Info("agent.query", "query", query)

	result, err := a.loop.run(ctx, query)
	if err != nil {
		a.logger.Error("agent.query_failed", "error", err.Error())
		return core.Result{}, err
	}

	a.logger.Info("agent.query_complete",
		"outcome", string(result.Outcome), "iterations", result.Iterations)

	return result, nil
}

// Shutdown tears down every owned tool process and nested agent. Calling
// Shutdown more than once is a no-op.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if a.state == StateTerminated || a.state == StateShuttingDown {
		a.mu.Unlock()
		return nil
	}
	a.state = StateShuttingDown
	a.mu.Unlock()

	a.logger.Info("agent.shutting_down")

	err := a.registry.ShutdownAll(ctx)

	a.mu.Lock()
	a.state = StateTerminated
	a.mu.Unlock()

	a.logger.Info("agent.terminated")

	return err
}

// componentLogger appends a component to the call path when the logger
// supports it, so nested composition stays attributable in the output.
func componentLogger(l logging.Logger, name string) logging.Logger {
	if fl, ok := l.(*logging.FractalLogger); ok {
		return fl.WithComponent(name)
	}
	return l
}
