// Package protocol implements the tool wire protocol: newline-delimited JSON
// request/response envelopes plus the Session correlation layer that
// multiplexes concurrent calls over a single connection.
//
// A request carries a correlation id, a tool name scope, a method and raw
// arguments. A response carries the correlation id it answers, a status and
// a payload. The handshake method exchanges a capability descriptor per tool
// exposed by the remote process; a single process may expose several tools.
//
// Session guarantees that each response is routed to exactly one waiting
// caller, tolerates out-of-order responses, never delivers a response twice,
// and fails every pending correlation with a CONNECTION_LOST error when the
// underlying connection closes unexpectedly.
package protocol
