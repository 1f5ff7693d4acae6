package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hupe1980/fractal/core"
	"github.com/hupe1980/fractal/internal/util"
	"github.com/hupe1980/fractal/logging"
	"github.com/hupe1980/fractal/protocol"
)

// maxFrameSize bounds one inbound request frame.
const maxFrameSize = 16 * 1024 * 1024

// Handler executes one tool call. The raw arguments have already been
// validated against the tool's schema when one was registered.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// tool is one registered capability with its handler.
type tool struct {
	cap     protocol.Capability
	handler Handler
}

// Options configures a Server.
type Options struct {
	// Logger receives diagnostics. Stdout carries protocol frames, so the
	// default logger writes to stderr.
	Logger logging.Logger
}

// Server answers handshake, call and shutdown requests over a frame stream.
// Calls run concurrently; responses are serialized through a write mutex and
// may arrive out of request order, which is why every frame carries its
// correlation ID.
type Server struct {
	name  string
	opts  Options
	tools map[string]*tool
	order []string

	writeMu sync.Mutex
}

// New constructs a server identifying itself by name during the handshake.
func New(name string, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Server{
		name:  name,
		opts:  opts,
		tools: make(map[string]*tool),
	}
}

// RegisterTool exposes one tool under the given name. The schema is a JSON
// Schema object advertised during the handshake; when non-nil, inbound
// arguments are validated against it before the handler runs.
func (s *Server) RegisterTool(name, description string, schema map[string]any, h Handler) error {
	if _, exists := s.tools[name]; exists {
		return core.Errorf(core.CodeDuplicateToolName, "tool %q is already registered", name)
	}

	s.tools[name] = &tool{
		cap: protocol.Capability{
			Name:            name,
			Description:     description,
			ParameterSchema: schema,
		},
		handler: h,
	}
	s.order = append(s.order, name)

	return nil
}

// agentQueryArgs is the argument shape an agent tool accepts.
type agentQueryArgs struct {
	Query string `json:"query" description:"The natural-language request for this agent"`
}

// RegisterAgent exposes a reasoning agent as a single tool taking a query
// string. The agent must already be initialized; shutdown of the agent
// remains the caller's responsibility.
func (s *Server) RegisterAgent(a core.Agent) error {
	schema := util.CreateSchema(agentQueryArgs{})

	return s.RegisterTool(a.Name(), a.Description(), schema, func(ctx context.Context, args json.RawMessage) (string, error) {
		var qa agentQueryArgs
		if err := json.Unmarshal(args, &qa); err != nil {
			return "", core.WrapError(core.CodeProtocolError, "malformed agent arguments", err)
		}
		result, err := a.ProcessQuery(ctx, qa.Query)
		if err != nil {
			return "", err
		}
		return result.Answer, nil
	})
}

// Serve reads frames from r and writes responses to w until a shutdown
// request, EOF, or context cancellation. It returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	var calls sync.WaitGroup
	defer calls.Wait()

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req protocol.Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.opts.Logger.Warn("toolserver.malformed_frame", "error", err.Error())
			continue
		}

		switch req.Method {
		case protocol.MethodHandshake:
			s.reply(w, req.CorrelationID, protocol.HandshakeResponse{
				Name:  s.name,
				Tools: s.capabilities(),
			}, nil)

		case protocol.MethodCall:
			calls.Add(1)
			go func(req protocol.Request) {
				defer calls.Done()
				payload, werr := s.dispatch(ctx, req)
				s.reply(w, req.CorrelationID, payload, werr)
			}(req)

		case protocol.MethodShutdown:
			s.reply(w, req.CorrelationID, struct{}{}, nil)
			cancel()
			calls.Wait()
			return nil

		default:
			s.reply(w, req.CorrelationID, nil, &protocol.WireError{
				Code:    string(core.CodeProtocolError),
				Message: fmt.Sprintf("unknown method %q", req.Method),
			})
		}
	}

	if err := scanner.Err(); err != nil {
		return core.WrapError(core.CodeConnectionLost, "frame stream failed", err)
	}
	return nil
}

// ServeStdio runs Serve over the process's standard streams. Intended as the
// body of a tool process's main function.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// dispatch resolves the scoped tool, validates its arguments and runs the
// handler. Failures come back as wire errors, never dropped frames: the
// client's correlation table depends on every request being answered.
func (s *Server) dispatch(ctx context.Context, req protocol.Request) (any, *protocol.WireError) {
	t, ok := s.tools[req.Scope]
	if !ok {
		return nil, &protocol.WireError{
			Code:    string(core.CodeUnknownTool),
			Message: fmt.Sprintf("unknown tool %q", req.Scope),
		}
	}

	var ca protocol.CallArguments
	if len(req.Arguments) > 0 {
		if err := json.Unmarshal(req.Arguments, &ca); err != nil {
			return nil, &protocol.WireError{
				Code:    string(core.CodeProtocolError),
				Message: "malformed call arguments: " + err.Error(),
			}
		}
	}

	if t.cap.ParameterSchema != nil && len(ca.Arguments) > 0 {
		var params map[string]any
		if err := json.Unmarshal(ca.Arguments, &params); err == nil {
			if err := util.ValidateParameters(params, t.cap.ParameterSchema); err != nil {
				return nil, &protocol.WireError{
					Code:    string(core.CodeRemoteError),
					Message: "invalid arguments: " + err.Error(),
				}
			}
		}
	}

	content, err := t.handler(ctx, ca.Arguments)
	if err != nil {
		s.opts.Logger.Warn("toolserver.call_failed", "tool", req.Scope, "error", err.Error())
		return nil, &protocol.WireError{
			Code:    string(core.CodeOf(err)),
			Message: err.Error(),
		}
	}

	return protocol.CallResult{Content: content}, nil
}

// reply writes one response frame under the write mutex. Concurrent calls
// finish in arbitrary order, so interleaving control lives here.
func (s *Server) reply(w io.Writer, correlationID string, payload any, werr *protocol.WireError) {
	resp := protocol.Response{
		CorrelationID: correlationID,
		Status:        protocol.StatusSuccess,
	}

	if werr != nil {
		resp.Status = protocol.StatusError
		resp.Error = werr
	} else if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			resp.Status = protocol.StatusError
			resp.Error = &protocol.WireError{
				Code:    string(core.CodeProtocolError),
				Message: "payload marshal failed: " + err.Error(),
			}
		} else {
			resp.Payload = raw
		}
	}

	frame, err := json.Marshal(resp)
	if err != nil {
		s.opts.Logger.Error("toolserver.marshal_failed", "error", err.Error())
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := w.Write(append(frame, '\n')); err != nil {
		s.opts.Logger.Error("toolserver.write_failed", "error", err.Error())
	}
}

func (s *Server) capabilities() []protocol.Capability {
	out := make([]protocol.Capability, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name].cap)
	}
	return out
}
