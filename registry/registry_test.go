package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/fractal/core"
)

// stubBinding is a minimal binding for registry tests.
type stubBinding struct {
	result      string
	invokeErr   error
	shutdownErr error
	shutdowns   int
}

func (b *stubBinding) Invoke(ctx context.Context, args json.RawMessage, timeout time.Duration) (string, error) {
	return b.result, b.invokeErr
}

func (b *stubBinding) Description() string { return "stub" }

func (b *stubBinding) Parameters() map[string]any {
	return map[string]any{"type": "object"}
}

func (b *stubBinding) Shutdown(ctx context.Context) error {
	b.shutdowns++
	return b.shutdownErr
}

// stubAgent is an in-memory core.Agent for composition tests.
type stubAgent struct {
	name      string
	parent    core.Agent
	subAgents []core.Agent
	shutdowns int
}

func newStubAgent(name string) *stubAgent { return &stubAgent{name: name} }

func (a *stubAgent) Name() string                     { return a.name }
func (a *stubAgent) Description() string              { return "stub agent " + a.name }
func (a *stubAgent) Initialize(context.Context) error { return nil }
func (a *stubAgent) Shutdown(context.Context) error   { a.shutdowns++; return nil }
func (a *stubAgent) Parent() core.Agent               { return a.parent }
func (a *stubAgent) SubAgents() []core.Agent          { return a.subAgents }
func (a *stubAgent) AttachParent(p core.Agent)        { a.parent = p }

func (a *stubAgent) ProcessQuery(ctx context.Context, query string) (core.Result, error) {
	return core.Result{Answer: "answer to " + query, Outcome: core.OutcomeCompleted, Iterations: 1}, nil
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := New()
	b := &stubBinding{result: "ok"}

	require.NoError(t, r.Register("echo", b))

	d, err := r.Resolve("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", d.Name)
	assert.Same(t, Binding(b), d.Binding)
}

func TestRegistry_Resolve_UnknownTool(t *testing.T) {
	r := New()

	_, err := r.Resolve("ghost")
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.CodeUnknownTool))
}

func TestRegistry_Register_DuplicateName(t *testing.T) {
	r := New()

	require.NoError(t, r.Register("echo", &stubBinding{}))

	err := r.Register("echo", &stubBinding{})
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.CodeDuplicateToolName))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_DescribeAll_PreservesRegistrationOrder(t *testing.T) {
	r := New()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(name, &stubBinding{}))
	}

	defs := r.DescribeAll()
	require.Len(t, defs, 3)
	assert.Equal(t, "zeta", defs[0].Name)
	assert.Equal(t, "alpha", defs[1].Name)
	assert.Equal(t, "mid", defs[2].Name)
}

func TestRegistry_RegisterAgent_AttachesParent(t *testing.T) {
	owner := newStubAgent("parent")
	r := New(func(o *Options) { o.Owner = owner })

	child := newStubAgent("child")
	require.NoError(t, r.RegisterAgent(child))

	assert.Same(t, core.Agent(owner), child.Parent())

	d, err := r.Resolve("child")
	require.NoError(t, err)

	out, err := d.Binding.Invoke(context.Background(), json.RawMessage(`{"query":"hi"}`), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "answer to hi", out)
}

func TestRegistry_CycleDetection_SelfRegistration(t *testing.T) {
	owner := newStubAgent("loner")
	r := New(func(o *Options) { o.Owner = owner })

	err := r.RegisterAgent(owner)
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.CodeCyclicComposition))
}

func TestRegistry_CycleDetection_MutualRegistration(t *testing.T) {
	a := newStubAgent("a")
	b := newStubAgent("b")

	ra := New(func(o *Options) { o.Owner = a })
	rb := New(func(o *Options) { o.Owner = b })

	// A under B succeeds and links the parent chain.
	require.NoError(t, rb.RegisterAgent(a))
	b.subAgents = append(b.subAgents, a)

	// B under A must now be rejected.
	err := ra.RegisterAgent(b)
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.CodeCyclicComposition))
}

func TestRegistry_CycleDetection_DeepAncestor(t *testing.T) {
	root := newStubAgent("root")
	mid := newStubAgent("mid")
	leaf := newStubAgent("leaf")

	rRoot := New(func(o *Options) { o.Owner = root })
	require.NoError(t, rRoot.RegisterAgent(mid))
	root.subAgents = append(root.subAgents, mid)

	rMid := New(func(o *Options) { o.Owner = mid })
	require.NoError(t, rMid.RegisterAgent(leaf))
	mid.subAgents = append(mid.subAgents, leaf)

	rLeaf := New(func(o *Options) { o.Owner = leaf })
	err := rLeaf.RegisterAgent(root)
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.CodeCyclicComposition))
}

func TestRegistry_Agents_ReturnsNestedAgentsInOrder(t *testing.T) {
	owner := newStubAgent("parent")
	r := New(func(o *Options) { o.Owner = owner })

	require.NoError(t, r.Register("tool", &stubBinding{}))
	require.NoError(t, r.RegisterAgent(newStubAgent("first")))
	require.NoError(t, r.RegisterAgent(newStubAgent("second")))

	agents := r.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, "first", agents[0].Name())
	assert.Equal(t, "second", agents[1].Name())
}

func TestRegistry_AliasMapping(t *testing.T) {
	r := New()

	r.mu.Lock()
	r.aliases = append(r.aliases, "weather")
	r.aliasMap["weather"] = []string{"get_forecast", "get_temperature"}
	r.mu.Unlock()

	aliases, mapping := r.AliasMapping()
	require.Equal(t, []string{"weather"}, aliases)
	assert.Equal(t, []string{"get_forecast", "get_temperature"}, mapping["weather"])

	// Mutating the returned mapping must not affect the registry.
	mapping["weather"][0] = "mutated"
	_, fresh := r.AliasMapping()
	assert.Equal(t, "get_forecast", fresh["weather"][0])
}

func TestRegistry_ShutdownAll_BestEffort(t *testing.T) {
	r := New()

	ok1 := &stubBinding{}
	bad := &stubBinding{shutdownErr: errors.New("teardown failed")}
	ok2 := &stubBinding{}

	require.NoError(t, r.Register("ok1", ok1))
	require.NoError(t, r.Register("bad", bad))
	require.NoError(t, r.Register("ok2", ok2))

	err := r.ShutdownAll(context.Background())
	require.Error(t, err)

	// Every binding got its shutdown attempt despite the failure in between.
	assert.Equal(t, 1, ok1.shutdowns)
	assert.Equal(t, 1, bad.shutdowns)
	assert.Equal(t, 1, ok2.shutdowns)
}

func TestRegistry_ShutdownAll_Idempotent(t *testing.T) {
	r := New()
	b := &stubBinding{}

	require.NoError(t, r.Register("tool", b))
	require.NoError(t, r.ShutdownAll(context.Background()))
	require.NoError(t, r.ShutdownAll(context.Background()))

	assert.Equal(t, 1, b.shutdowns)
}

func TestAgentBinding_Invoke_BareStringQuery(t *testing.T) {
	child := newStubAgent("child")
	b := NewAgentBinding(child)

	out, err := b.Invoke(context.Background(), json.RawMessage(`"plain query"`), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "answer to plain query", out)
}

func TestAgentBinding_Invoke_MissingQuery(t *testing.T) {
	child := newStubAgent("child")
	b := NewAgentBinding(child)

	_, err := b.Invoke(context.Background(), json.RawMessage(`{}`), time.Second)
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.CodeRemoteError))
}

func TestAgentBinding_Shutdown_PropagatesToChild(t *testing.T) {
	child := newStubAgent("child")
	b := NewAgentBinding(child)

	require.NoError(t, b.Shutdown(context.Background()))
	assert.Equal(t, 1, child.shutdowns)
}
