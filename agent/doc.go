// Package agent implements the externally visible reasoning unit: an Agent
// owns a tool registry, a reasoning loop and lifecycle state, and may itself
// be registered as a tool inside a parent agent, which makes the whole
// system self-similar.
//
// The reasoning loop is the Think/Act/Observe cycle: the conversation plus
// the tool surface go to the model backend, the backend answers with either
// a final answer or tool-call requests, requested calls are dispatched
// (concurrently across distinct tools, serialized per tool process) and the
// observations fold back into the conversation, bounded by the configured
// iteration budget.
package agent
