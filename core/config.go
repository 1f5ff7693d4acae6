package core

import (
	"fmt"
	"time"
)

// ToolCallingVersion selects how tool-call payloads are framed to the model.
type ToolCallingVersion string

const (
	// ToolCallingStable uses the provider's native tool-calling wire format.
	ToolCallingStable ToolCallingVersion = "stable"
	// ToolCallingTurbo folds tool schemas into the system prompt and parses
	// tool calls from plain completions. Faster on providers whose native
	// tool calling adds latency, at the cost of stricter output parsing.
	ToolCallingTurbo ToolCallingVersion = "turbo"
)

// Config holds the immutable settings resolved once per agent. It is
// validated at agent construction and never mutated afterwards; components
// receive it by value.
type Config struct {
	// Provider identifies the model backend ("openai", "anthropic", "mock").
	Provider string
	// Model is the provider-specific model identifier.
	Model string
	// MaxIterations bounds the Think/Act/Observe cycles per query. Must be
	// at least 1.
	MaxIterations int
	// Timeout is the deadline applied to each individual tool call.
	Timeout time.Duration
	// ToolCallingVersion selects the framing strategy for tool calls.
	ToolCallingVersion ToolCallingVersion
	// CustomSystemPrompt is prepended to the generated system prompt when
	// set. Opaque to the runtime.
	CustomSystemPrompt string
	// RetainHistory keeps conversation history across ProcessQuery calls
	// (multi-turn). When false every query starts from a fresh history.
	RetainHistory bool
	// MaxRetries bounds provider-layer retries on transient backend
	// failures before a query fails.
	MaxRetries int
	// HandshakeTimeout bounds the capability exchange when starting a tool
	// process.
	HandshakeTimeout time.Duration
	// StopGracePeriod is how long Stop waits for a tool process to exit
	// after a graceful shutdown request before force-terminating it.
	StopGracePeriod time.Duration
}

// DefaultConfig returns the baseline configuration. Callers typically adjust
// Provider and Model and leave the rest alone.
func DefaultConfig() Config {
	return Config{
		Provider:           "openai",
		Model:              "gpt-4o-mini",
		MaxIterations:      5,
		Timeout:            60 * time.Second,
		ToolCallingVersion: ToolCallingStable,
		RetainHistory:      false,
		MaxRetries:         3,
		HandshakeTimeout:   15 * time.Second,
		StopGracePeriod:    5 * time.Second,
	}
}

// Validate checks invariants that the rest of the runtime relies on.
func (c Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	switch c.ToolCallingVersion {
	case ToolCallingStable, ToolCallingTurbo:
	default:
		return fmt.Errorf("unknown tool calling version %q", c.ToolCallingVersion)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries)
	}
	return nil
}
