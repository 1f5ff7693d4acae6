// Package registry maps tool names to their bindings: either a supervised
// tool process or a nested agent. It preserves registration order for prompt
// stability, rejects duplicate names and cyclic agent composition, and tears
// everything down best-effort on shutdown.
package registry
