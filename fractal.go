// Package fractal provides a high-level façade for building recursively
// composable reasoning agents. Each agent owns a model backend, a registry of
// tools and a bounded reasoning loop; because an agent can itself be
// registered as a tool of another agent, arbitrarily deep compositions emerge
// from one uniform building block. Most applications interact with this
// package by:
//  1. Creating an agent via New() with a model backend and configuration
//  2. Attaching tool processes (AddToolProcess) and nested agents (o.SubAgents)
//  3. Initializing, issuing queries with ProcessQuery, and shutting down
//
// The façade delegates to agent.Agent while keeping common setups concise.
// Defaults are safe for local development; production deployments typically
// supply a structured logger and a tuned core.Config.
package fractal

import (
	"github.com/hupe1980/fractal/agent"
	"github.com/hupe1980/fractal/core"
	"github.com/hupe1980/fractal/logging"
	"github.com/hupe1980/fractal/provider"
	"github.com/hupe1980/fractal/supervisor"
)

// Options configures a top-level agent built through the façade.
type Options struct {
	// Description is the capability description a parent agent's model sees
	// when this agent is nested as a tool.
	Description string

	// Config holds the runtime settings (iteration budget, per-call timeout,
	// tool-calling framing, retries). Defaults to core.DefaultConfig.
	Config core.Config

	// Backend is the model backend driving the reasoning loop.
	Backend provider.Backend

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger

	// ToolProcesses are launched and handshaken during Initialize.
	ToolProcesses []supervisor.Spec

	// SubAgents are registered as tools of this agent. Registration fails
	// with CYCLIC_COMPOSITION if it would close a loop.
	SubAgents []core.Agent
}

// New creates an agent with optional overrides and registers its declared
// tool processes and sub-agents. The agent is returned in the Created state;
// call Initialize before issuing queries.
func New(name string, optFns ...func(o *Options)) (*agent.Agent, error) {
	opts := Options{
		Config: core.DefaultConfig(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a, err := agent.New(name, func(o *agent.Options) {
		if opts.Description != "" {
			o.Description = opts.Description
		}
		o.Config = opts.Config
		o.Backend = opts.Backend
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	for _, spec := range opts.ToolProcesses {
		if err := a.AddToolProcess(spec); err != nil {
			return nil, err
		}
	}

	for _, sub := range opts.SubAgents {
		if err := a.RegisterAgent(sub); err != nil {
			return nil, err
		}
	}

	return a, nil
}
