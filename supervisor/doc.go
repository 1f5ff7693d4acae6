// Package supervisor owns the lifecycle of externally-running tool
// processes. Each Supervisor launches one child process, performs the
// capability-exchange handshake over a protocol.Session, dispatches calls
// with per-process serialization, and terminates the process on Stop
// (gracefully first, forcefully after a grace period).
//
// No other component addresses the child process directly: the supervisor is
// the only holder of the process handle and its connection, which is what
// makes "no leaked processes" enforceable at shutdown.
package supervisor
