// Package provider defines the model backend abstraction the reasoning loop
// drives, together with the pluggable tool-call framing strategies, a
// bounded-retry wrapper for transient backend failures, and a scripted mock
// backend for tests and examples. Concrete adapters live in the openai and
// anthropic subpackages.
package provider
