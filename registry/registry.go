package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/fractal/core"
	"github.com/hupe1980/fractal/logging"
	"github.com/hupe1980/fractal/supervisor"
)

// Descriptor pairs a registered tool name with its capability description
// and binding. The binding is set exactly once at registration.
type Descriptor struct {
	Name    string
	Binding Binding
}

// Options configures a Registry.
type Options struct {
	// Owner is the agent this registry belongs to. Required for cycle
	// detection when nested agents are registered; a registry without an
	// owner accepts agent bindings unchecked.
	Owner core.Agent
	// Logger receives registration and teardown diagnostics.
	Logger logging.Logger
}

// Registry maps tool names to bindings. It is read-mostly after agent
// initialization: Resolve and DescribeAll take a read lock and are safe for
// concurrent use across reasoning steps, while Register and ShutdownAll
// mutate under the write lock during initialize/shutdown.
type Registry struct {
	opts Options

	mu       sync.RWMutex
	order    []string
	entries  map[string]*Descriptor
	aliases  []string
	aliasMap map[string][]string
	shutdown bool
}

// New constructs an empty registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		opts:     opts,
		entries:  make(map[string]*Descriptor),
		aliasMap: make(map[string][]string),
	}
}

// Register adds a binding under the given name. It fails with
// DUPLICATE_TOOL_NAME if the name is taken, and with CYCLIC_COMPOSITION if
// binding is an agent whose registration would make the owning agent a tool
// of itself, directly or transitively.
func (r *Registry) Register(name string, b Binding) error {
	if ab, ok := b.(*AgentBinding); ok {
		if err := r.checkCycle(ab.Agent()); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return core.Errorf(core.CodeDuplicateToolName, "tool %q is already registered", name)
	}

	r.entries[name] = &Descriptor{Name: name, Binding: b}
	r.order = append(r.order, name)

	if ab, ok := b.(*AgentBinding); ok {
		if attacher, ok := ab.Agent().(interface{ AttachParent(core.Agent) }); ok && r.opts.Owner != nil {
			attacher.AttachParent(r.opts.Owner)
		}
	}

	r.opts.Logger.Debug("registry.registered", "tool", name)

	return nil
}

// RegisterSupervisor registers every tool a started supervisor advertised,
// under the advertised names, and records the configured alias → advertised
// names mapping used for prompt context.
func (r *Registry) RegisterSupervisor(sup *supervisor.Supervisor) error {
	bindings := ProcessBindings(sup)

	names := make([]string, 0, len(bindings))
	for _, b := range bindings {
		if err := r.Register(b.Tool(), b); err != nil {
			// Leave no half-registered supervisor behind.
			r.UnregisterSupervisor(sup)
			return err
		}
		names = append(names, b.Tool())
	}

	if alias := sup.Name(); alias != "" {
		r.mu.Lock()
		if _, seen := r.aliasMap[alias]; !seen {
			r.aliases = append(r.aliases, alias)
		}
		r.aliasMap[alias] = append(r.aliasMap[alias], names...)
		r.mu.Unlock()
	}

	return nil
}

// UnregisterSupervisor removes every binding routed through sup, together
// with its alias mapping. Used to roll back a failed initialization attempt
// so the same composition can be registered again on a retry.
func (r *Registry) UnregisterSupervisor(sup *supervisor.Supervisor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var order []string
	for _, name := range r.order {
		if pb, ok := r.entries[name].Binding.(*ProcessBinding); ok && pb.Supervisor() == sup {
			delete(r.entries, name)
			continue
		}
		order = append(order, name)
	}
	r.order = order

	alias := sup.Name()
	if _, seen := r.aliasMap[alias]; seen {
		delete(r.aliasMap, alias)
		aliases := make([]string, 0, len(r.aliases))
		for _, a := range r.aliases {
			if a != alias {
				aliases = append(aliases, a)
			}
		}
		r.aliases = aliases
	}

	r.opts.Logger.Debug("registry.unregistered_supervisor", "name", alias)
}

// RegisterAgent registers a nested agent as a tool under the agent's own
// name.
func (r *Registry) RegisterAgent(child core.Agent) error {
	return r.Register(child.Name(), NewAgentBinding(child))
}

// checkCycle rejects a child whose registration would close a loop in the
// composition graph: the child must not be the owner itself, an ancestor of
// the owner, or contain the owner anywhere in its own subtree.
func (r *Registry) checkCycle(child core.Agent) error {
	owner := r.opts.Owner
	if owner == nil {
		return nil
	}

	if child == owner {
		return core.Errorf(core.CodeCyclicComposition,
			"agent %q cannot register itself as its own tool", owner.Name())
	}

	for ancestor := owner.Parent(); ancestor != nil; ancestor = ancestor.Parent() {
		if ancestor == child {
			return core.Errorf(core.CodeCyclicComposition,
				"registering agent %q under %q would create a cycle", child.Name(), owner.Name())
		}
	}

	if subtreeContains(child, owner) {
		return core.Errorf(core.CodeCyclicComposition,
			"agent %q already contains %q in its composition", child.Name(), owner.Name())
	}

	return nil
}

func subtreeContains(root, target core.Agent) bool {
	for _, sub := range root.SubAgents() {
		if sub == target || subtreeContains(sub, target) {
			return true
		}
	}
	return false
}

// Resolve returns the descriptor registered under name, or an UNKNOWN_TOOL
// error.
func (r *Registry) Resolve(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.entries[name]
	if !ok {
		return nil, core.Errorf(core.CodeUnknownTool, "unknown tool %q", name)
	}
	return d, nil
}

// DescribeAll returns the tool definitions in registration order. Ordering
// is stable because some backends are sensitive to prompt ordering.
func (r *Registry) DescribeAll() []core.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		d := r.entries[name]
		out = append(out, core.ToolDefinition{
			Name:        name,
			Description: d.Binding.Description(),
			Parameters:  d.Binding.Parameters(),
		})
	}
	return out
}

// AliasMapping returns the configured alias → advertised tool names mapping
// in alias registration order. Used to build the prompt paragraph that lets
// the model translate configured tool aliases into callable function names.
func (r *Registry) AliasMapping() (aliases []string, mapping map[string][]string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	aliases = append([]string(nil), r.aliases...)
	mapping = make(map[string][]string, len(r.aliasMap))
	for k, v := range r.aliasMap {
		mapping[k] = append([]string(nil), v...)
	}
	return aliases, mapping
}

// Agents returns the nested agents among the registered bindings, in
// registration order.
func (r *Registry) Agents() []core.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []core.Agent
	for _, name := range r.order {
		if ab, ok := r.entries[name].Binding.(*AgentBinding); ok {
			out = append(out, ab.Agent())
		}
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ShutdownAll tears down every binding in registration order without
// short-circuiting on failures: each binding gets its shutdown attempt and
// all errors are aggregated. Subsequent calls are no-ops.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return nil
	}
	r.shutdown = true
	order := append([]string(nil), r.order...)
	entries := r.entries
	r.mu.Unlock()

	var errs []error
	for _, name := range order {
		if err := entries[name].Binding.Shutdown(ctx); err != nil {
			r.opts.Logger.Warn("registry.shutdown_failed", "tool", name, "error", err.Error())
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
