package core

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes runtime failures so callers can branch on the class
// of a failure without parsing messages. Codes are stable API.
type ErrorCode string

const (
	// CodeStartupFailure indicates a tool process exited or failed its
	// capability handshake during Start.
	CodeStartupFailure ErrorCode = "STARTUP_FAILURE"
	// CodeInitializationFailure aggregates sub-failures raised while an
	// agent was bringing up its tools and nested agents.
	CodeInitializationFailure ErrorCode = "INITIALIZATION_FAILURE"
	// CodeDuplicateToolName indicates a registration under a name that is
	// already taken in the registry.
	CodeDuplicateToolName ErrorCode = "DUPLICATE_TOOL_NAME"
	// CodeUnknownTool indicates a lookup of a name with no registration.
	CodeUnknownTool ErrorCode = "UNKNOWN_TOOL"
	// CodeCyclicComposition indicates an agent registration that would make
	// an agent (transitively) a tool of itself.
	CodeCyclicComposition ErrorCode = "CYCLIC_COMPOSITION"
	// CodeCallTimeout indicates a tool call that missed its deadline.
	CodeCallTimeout ErrorCode = "CALL_TIMEOUT"
	// CodeConnectionLost indicates the transport to a tool process closed
	// while calls were outstanding.
	CodeConnectionLost ErrorCode = "CONNECTION_LOST"
	// CodeProtocolError indicates a malformed frame or payload on the wire.
	CodeProtocolError ErrorCode = "PROTOCOL_ERROR"
	// CodeRemoteError indicates the tool reported an application-level
	// failure for an otherwise well-formed call.
	CodeRemoteError ErrorCode = "REMOTE_ERROR"
	// CodeProviderError indicates a model backend failure (network, auth,
	// rate limit) that survived the provider-layer retries.
	CodeProviderError ErrorCode = "PROVIDER_ERROR"
	// CodeBusy indicates ProcessQuery was called while another query was
	// already in flight on the same agent.
	CodeBusy ErrorCode = "BUSY"
	// CodeNotInitialized indicates ProcessQuery was called before
	// Initialize or after Shutdown.
	CodeNotInitialized ErrorCode = "NOT_INITIALIZED"
	// CodeCancelled indicates the query context was cancelled while work
	// was outstanding.
	CodeCancelled ErrorCode = "CANCELLED"
	// CodeFailed indicates an unrecoverable reasoning loop condition, such
	// as losing the only registered tool with no way to make progress.
	CodeFailed ErrorCode = "FAILED"
)

// Error is the typed error used throughout Fractal. It carries a stable code,
// a human-readable message and an optional wrapped cause.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a typed error without a cause.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf constructs a typed error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError constructs a typed error wrapping a cause.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain is a *Error carrying code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if errors.As(err, &e) {
			if e.Code == code {
				return true
			}
			err = e.Err
			continue
		}
		return false
	}
	return false
}

// CodeOf returns the code of the outermost *Error in the chain, or an empty
// code if the error is untyped.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
