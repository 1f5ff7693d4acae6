// Package logging provides a minimal logging interface and adapters for
// Fractal.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the runtime uses for observability. This package
// includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - FractalLogger carrying the agent call path through nested agents
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "text", false)
//	a := fractal.New("assistant", func(o *fractal.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor
// lock-in while supporting structured logging where available.
package logging
