// Package toolserver implements the server side of the tool wire protocol:
// newline-delimited JSON frames over stdio. A process built on it answers the
// handshake with its advertised tools, executes calls, and exits cleanly on a
// shutdown request.
//
// Two kinds of servers are common. Plain tool processes register handler
// functions with RegisterTool. An agent can also expose itself as a tool
// process via ServeAgent, which is the recursion point that lets a whole
// reasoning agent appear as a single callable tool inside a parent running in
// another process.
package toolserver
