package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/fractal/core"
	"github.com/hupe1980/fractal/logging"
	"github.com/hupe1980/fractal/provider"
	"github.com/hupe1980/fractal/registry"
)

// soleToolFailureLimit is how many consecutive failures of an agent's only
// tool are tolerated before the query is abandoned. With a single tool there
// is no alternative action the model could take, so retrying past this point
// only burns iterations.
const soleToolFailureLimit = 2

const defaultSystemPrompt = `You are a capable assistant that solves tasks by reasoning step by step.
When a tool can help, call it with well-formed arguments and use its result.
When you have enough information, answer the user directly and stop calling tools.`

const budgetExceededPreamble = "I spent too much time processing your request. Here's what I've gathered so far: "

// loop drives Think/Act/Observe cycles for one agent. It is created once per
// agent and reused across queries; the history it owns is reset between
// queries unless retention is enabled.
type loop struct {
	agentName string
	backend   provider.Backend
	registry  *registry.Registry
	cfg       core.Config
	logger    logging.Logger
	history   *core.History
}

func newLoop(agentName string, backend provider.Backend, reg *registry.Registry, cfg core.Config, logger logging.Logger) *loop {
	return &loop{
		agentName: agentName,
		backend:   backend,
		registry:  reg,
		cfg:       cfg,
		logger:    logger,
		history:   core.NewHistory(),
	}
}

// observation is one tool result (or folded failure) keyed to the call that
// produced it.
type observation struct {
	call   core.ToolCall
	text   string
	failed bool
}

// run processes one query to completion, budget exhaustion, or failure.
func (l *loop) run(ctx context.Context, query string) (core.Result, error) {
	if !l.cfg.RetainHistory {
		l.history.Reset()
	}
	l.history.AppendUser(query)

	system := l.systemPrompt()
	tools := l.registry.DescribeAll()

	soleTool := len(tools) == 1
	consecutiveFailures := 0

	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return core.Result{}, core.WrapError(core.CodeCancelled, "query cancelled", err)
		}

		l.logger.Debug("loop.think", "iteration", iteration, "max", l.cfg.MaxIterations)

		completion, err := l.backend.Complete(ctx, provider.Request{
			System: system,
			Turns:  l.history.Turns(),
			Tools:  tools,
		})
		if err != nil {
			if core.HasCode(err, core.CodeCancelled) ||
				errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return core.Result{}, core.WrapError(core.CodeCancelled, "query cancelled", err)
			}
			// A backend failure that survived the retry layer is terminal
			// for the query.
			return core.Result{}, core.WrapError(core.CodeFailed, "model backend failed", err)
		}

		l.history.AppendAssistant(completion.Text, completion.ToolCalls)

		if len(completion.ToolCalls) == 0 {
			return core.Result{
				Answer:     completion.Text,
				Outcome:    core.OutcomeCompleted,
				Iterations: iteration,
			}, nil
		}

		observations, failures, err := l.act(ctx, completion.ToolCalls)
		if err != nil {
			return core.Result{}, err
		}

		for _, obs := range observations {
			l.history.AppendToolResult(obs.call, obs.text)
		}

		if soleTool {
			if failures == len(completion.ToolCalls) {
				consecutiveFailures++
			} else {
				consecutiveFailures = 0
			}
			if consecutiveFailures >= soleToolFailureLimit {
				return core.Result{}, core.Errorf(core.CodeFailed,
					"sole tool %q failed %d consecutive times", tools[0].Name, consecutiveFailures)
			}
		}
	}

	answer := budgetExceededPreamble + l.history.LastAssistantText()

	l.logger.Warn("loop.budget_exceeded", "iterations", l.cfg.MaxIterations)

	return core.Result{
		Answer:     answer,
		Outcome:    core.OutcomeBudgetExceeded,
		Iterations: l.cfg.MaxIterations,
	}, nil
}

// act dispatches the requested tool calls concurrently and returns their
// observations in dispatch order, which keeps the conversation history
// deterministic regardless of completion timing. Failures are folded into
// observations rather than aborting the step; only cancellation aborts.
func (l *loop) act(ctx context.Context, calls []core.ToolCall) ([]observation, int, error) {
	results := make([]observation, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call core.ToolCall) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = observation{
						call:   call,
						text:   fmt.Sprintf("Error calling tool %s: internal panic: %v", call.Name, r),
						failed: true,
					}
				}
			}()
			results[i] = l.invoke(ctx, call)
		}(i, call)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, core.WrapError(core.CodeCancelled, "tool dispatch cancelled", err)
	}

	failures := 0
	for _, obs := range results {
		if obs.failed {
			failures++
		}
	}

	return results, failures, nil
}

// invoke resolves and executes one call, converting every failure into an
// observation the model can react to on the next iteration.
func (l *loop) invoke(ctx context.Context, call core.ToolCall) observation {
	timer := startTimer(l.logger, call.Name)

	d, err := l.registry.Resolve(call.Name)
	if err != nil {
		l.logger.Warn("loop.unknown_tool", "tool", call.Name)
		return observation{
			call: call,
			text: fmt.Sprintf("Error calling tool %s: unknown tool. Available tools: %s",
				call.Name, strings.Join(l.toolNames(), ", ")),
			failed: true,
		}
	}

	result, err := d.Binding.Invoke(ctx, call.Arguments, l.cfg.Timeout)
	timer()
	if err != nil {
		l.logger.Warn("loop.tool_failed", "tool", call.Name, "error", err.Error())
		return observation{
			call:   call,
			text:   fmt.Sprintf("Error calling tool %s: %s", call.Name, err.Error()),
			failed: true,
		}
	}

	return observation{call: call, text: result}
}

// systemPrompt composes the prompt sent on every iteration: the custom
// prompt when configured, the default guidance otherwise, plus the alias
// mapping paragraph so the model can translate configured tool names into
// the advertised function names.
func (l *loop) systemPrompt() string {
	var b strings.Builder

	if l.cfg.CustomSystemPrompt != "" {
		b.WriteString(l.cfg.CustomSystemPrompt)
	} else {
		b.WriteString(defaultSystemPrompt)
	}

	aliases, mapping := l.registry.AliasMapping()
	if len(aliases) > 0 {
		b.WriteString("\n\n## Tool name mapping\n")
		b.WriteString("Configured tool names map to these callable functions:\n")
		for _, alias := range aliases {
			names := append([]string(nil), mapping[alias]...)
			sort.Strings(names)
			fmt.Fprintf(&b, "- %s: %s\n", alias, strings.Join(names, ", "))
		}
	}

	return b.String()
}

func (l *loop) toolNames() []string {
	defs := l.registry.DescribeAll()
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return names
}

// startTimer logs the elapsed duration of one tool call when the logger
// supports timing, and is a no-op otherwise.
func startTimer(l logging.Logger, tool string) func() {
	if fl, ok := l.(*logging.FractalLogger); ok {
		return fl.StartTimer("tool_call", "tool", tool)
	}
	return func() {}
}
