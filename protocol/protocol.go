package protocol

import "encoding/json"

// Method names understood by tool processes.
const (
	// MethodHandshake performs the capability exchange. It must be the
	// first request on a fresh connection.
	MethodHandshake = "handshake"
	// MethodCall invokes one tool. The request scope selects the tool when
	// the process exposes more than one.
	MethodCall = "call"
	// MethodShutdown asks the process to exit gracefully after answering.
	MethodShutdown = "shutdown"
)

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is one wire envelope sent to a tool process.
type Request struct {
	// CorrelationID pairs this request to its eventual response. Unique
	// within the lifetime of one session.
	CorrelationID string `json:"id"`
	// Scope is the tool name the request targets, for processes exposing
	// more than one tool. Empty for session-level methods.
	Scope string `json:"scope,omitempty"`
	// Method selects the operation: handshake, call or shutdown.
	Method string `json:"method"`
	// Arguments is the raw JSON argument payload, opaque to the session.
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Response is one wire envelope received from a tool process.
type Response struct {
	CorrelationID string          `json:"id"`
	Status        string          `json:"status"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	// Error carries details when Status is StatusError.
	Error *WireError `json:"error,omitempty"`
}

// WireError is the application-level failure a tool reports for a call.
type WireError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Capability describes one tool exposed by a process, exchanged during the
// handshake. ParameterSchema is a JSON Schema object; the description is
// free text consumed by the model backend, never parsed by the runtime.
type Capability struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	ParameterSchema map[string]any `json:"parameter_schema,omitempty"`
}

// HandshakeRequest identifies the connecting client.
type HandshakeRequest struct {
	ClientName    string `json:"client_name"`
	ClientVersion string `json:"client_version,omitempty"`
}

// HandshakeResponse is the payload answering a handshake: the server's name
// and every tool it exposes.
type HandshakeResponse struct {
	Name  string       `json:"name"`
	Tools []Capability `json:"tools"`
}

// CallArguments is the payload of a MethodCall request as produced by the
// supervisor: the raw arguments the model supplied for the scoped tool.
type CallArguments struct {
	Arguments json.RawMessage `json:"arguments"`
}

// CallResult is the payload of a successful MethodCall response.
type CallResult struct {
	Content string `json:"content"`
}
