// Package core provides the foundational domain types shared across Fractal.
// It defines the core abstractions for:
//
//   - Agents (composable reasoning units that may nest recursively)
//   - Configuration (immutable per-agent settings resolved once at startup)
//   - Conversation history (ordered turns fed to the model backend)
//   - Tool calls and tool definitions (the model-facing capability surface)
//   - The error taxonomy used across the runtime
//
// The package intentionally keeps implementation concerns (process
// supervision, protocol transport, provider adapters, the reasoning loop)
// out of scope, exposing small types so that packages can depend on core
// without depending on each other.
package core
