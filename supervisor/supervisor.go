package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/fractal/core"
	"github.com/hupe1980/fractal/logging"
	"github.com/hupe1980/fractal/protocol"
)

// Spec describes how to launch one tool process.
type Spec struct {
	// Name is the configured alias for the process. Advertised tool names
	// come from the handshake; the alias groups them for prompt context.
	Name string
	// Command is the executable to launch.
	Command string
	// Args are the command-line arguments.
	Args []string
	// Env is extra environment for the child, in KEY=VALUE form. The child
	// inherits the parent environment when empty.
	Env []string
	// Dir is the working directory for the child. Empty means inherit.
	Dir string
}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

// Options configures a Supervisor.
type Options struct {
	// HandshakeTimeout bounds the capability exchange after launch.
	HandshakeTimeout time.Duration
	// StopGracePeriod is how long Stop waits for a voluntary exit before
	// killing the process.
	StopGracePeriod time.Duration
	// Logger receives lifecycle and dispatch diagnostics.
	Logger logging.Logger
}

// Supervisor owns one tool process: launch, handshake, call dispatch and
// termination. Calls against the same process are serialized by the dispatch
// mutex so tools that are not thread-safe never observe interleaved requests;
// concurrency across distinct processes is the reasoning loop's job.
type Supervisor struct {
	spec Spec
	opts Options

	mu      sync.Mutex // guards state transitions
	callMu  sync.Mutex // serializes Invoke against this process
	st      state
	cmd     *exec.Cmd
	session *protocol.Session
	caps    []protocol.Capability
	exited  chan struct{}
	stopped sync.Once
}

// New creates a supervisor for the given process spec. The process is not
// launched until Start.
func New(spec Spec, optFns ...func(o *Options)) *Supervisor {
	opts := Options{
		HandshakeTimeout: 15 * time.Second,
		StopGracePeriod:  5 * time.Second,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Supervisor{spec: spec, opts: opts}
}

// Name returns the configured process alias.
func (s *Supervisor) Name() string { return s.spec.Name }

// Capabilities returns the tools the process advertised during the
// handshake. Only valid after a successful Start.
func (s *Supervisor) Capabilities() []protocol.Capability {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Capability, len(s.caps))
	copy(out, s.caps)
	return out
}

// Start launches the tool process and performs the capability-exchange
// handshake. It fails with a STARTUP_FAILURE error if the process cannot be
// launched, exits early, or does not answer the handshake in time; in every
// failure case the child is reaped before Start returns.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.st != stateIdle {
		s.mu.Unlock()
		return core.Errorf(core.CodeStartupFailure, "tool process %q already started", s.spec.Name)
	}

	cmd := exec.Command(s.spec.Command, s.spec.Args...)
	if len(s.spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), s.spec.Env...)
	}
	cmd.Dir = s.spec.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.mu.Unlock()
		return core.WrapError(core.CodeStartupFailure, "stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return core.WrapError(core.CodeStartupFailure, "stdout pipe", err)
	}
	cmd.Stderr = &stderrLogger{name: s.spec.Name, logger: s.opts.Logger}

	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return core.WrapError(core.CodeStartupFailure,
			fmt.Sprintf("launching %q", s.spec.Command), err)
	}

	session := protocol.NewSession(stdout, stdin, func(o *protocol.SessionOptions) {
		o.Logger = s.opts.Logger
	})

	s.cmd = cmd
	s.session = session
	s.st = stateRunning
	s.exited = make(chan struct{})
	s.mu.Unlock()

	// Reap the child as soon as it exits; closing the session fails any
	// in-flight calls with CONNECTION_LOST instead of letting them hang.
	go func() {
		err := cmd.Wait()
		if err != nil {
			s.opts.Logger.Debug("supervisor.process_exited", "process", s.spec.Name, "error", err.Error())
		}
		session.Close()
		close(s.exited)
	}()

	s.opts.Logger.Info("supervisor.started", "process", s.spec.Name, "pid", cmd.Process.Pid)

	if err := s.handshake(ctx); err != nil {
		s.Stop(context.Background())
		return err
	}

	return nil
}

func (s *Supervisor) handshake(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, s.opts.HandshakeTimeout)
	defer cancel()

	args, _ := json.Marshal(protocol.HandshakeRequest{ClientName: "fractal"})

	resp, err := s.session.Call(hctx, protocol.Request{
		Method:    protocol.MethodHandshake,
		Arguments: args,
	})
	if err != nil {
		return core.WrapError(core.CodeStartupFailure,
			fmt.Sprintf("handshake with %q", s.spec.Name), err)
	}
	if resp.Status != protocol.StatusSuccess {
		return core.Errorf(core.CodeStartupFailure,
			"handshake with %q rejected: %s", s.spec.Name, wireErrorMessage(resp.Error))
	}

	var hs protocol.HandshakeResponse
	if err := json.Unmarshal(resp.Payload, &hs); err != nil {
		return core.WrapError(core.CodeStartupFailure, "malformed handshake payload", err)
	}
	if len(hs.Tools) == 0 {
		return core.Errorf(core.CodeStartupFailure, "process %q exposes no tools", s.spec.Name)
	}

	s.mu.Lock()
	s.caps = hs.Tools
	s.mu.Unlock()

	names := make([]string, len(hs.Tools))
	for i, c := range hs.Tools {
		names[i] = c.Name
	}
	s.opts.Logger.Info("supervisor.handshake_complete",
		"process", s.spec.Name, "tools", strings.Join(names, ","))

	return nil
}

// Invoke sends one call for the named tool and waits for its result within
// the given timeout. Calls on the same supervisor are serialized. Failures
// are typed: CALL_TIMEOUT, CANCELLED, CONNECTION_LOST, PROTOCOL_ERROR or
// REMOTE_ERROR.
func (s *Supervisor) Invoke(ctx context.Context, tool string, args json.RawMessage, timeout time.Duration) (string, error) {
	s.mu.Lock()
	if s.st != stateRunning {
		s.mu.Unlock()
		return "", core.Errorf(core.CodeConnectionLost, "tool process %q is not running", s.spec.Name)
	}
	session := s.session
	s.mu.Unlock()

	s.callMu.Lock()
	defer s.callMu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(protocol.CallArguments{Arguments: args})
	if err != nil {
		return "", core.WrapError(core.CodeProtocolError, "encoding call arguments", err)
	}

	start := time.Now()
	resp, err := session.Call(cctx, protocol.Request{
		Scope:     tool,
		Method:    protocol.MethodCall,
		Arguments: payload,
	})
	if err != nil {
		s.opts.Logger.Warn("supervisor.call_failed",
			"process", s.spec.Name, "tool", tool, "error", err.Error())
		return "", err
	}

	if resp.Status != protocol.StatusSuccess {
		return "", core.Errorf(core.CodeRemoteError,
			"tool %q reported failure: %s", tool, wireErrorMessage(resp.Error))
	}

	var result protocol.CallResult
	if err := json.Unmarshal(resp.Payload, &result); err != nil {
		return "", core.WrapError(core.CodeProtocolError,
			fmt.Sprintf("malformed result payload from %q", tool), err)
	}

	s.opts.Logger.Debug("supervisor.call_complete",
		"process", s.spec.Name, "tool", tool, "duration_ms", time.Since(start).Milliseconds())

	return result.Content, nil
}

// Stop requests a graceful shutdown, waits up to the grace period for the
// process to exit, then force-terminates it. Calling Stop on an already
// stopped supervisor is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.stopped.Do(func() { s.stop(ctx) })
	return nil
}

func (s *Supervisor) stop(ctx context.Context) {
	s.mu.Lock()
	if s.st != stateRunning {
		s.st = stateStopped
		s.mu.Unlock()
		return
	}
	s.st = stateStopped
	session := s.session
	cmd := s.cmd
	exited := s.exited
	s.mu.Unlock()

	// Best-effort graceful shutdown request. The process may already be
	// gone, so errors here are expected and only logged.
	gctx, cancel := context.WithTimeout(ctx, s.opts.StopGracePeriod)
	if _, err := session.Call(gctx, protocol.Request{Method: protocol.MethodShutdown}); err != nil {
		s.opts.Logger.Debug("supervisor.graceful_shutdown_failed",
			"process", s.spec.Name, "error", err.Error())
	}
	cancel()

	session.Close()

	select {
	case <-exited:
	case <-time.After(s.opts.StopGracePeriod):
		s.opts.Logger.Warn("supervisor.force_kill", "process", s.spec.Name)
		_ = cmd.Process.Kill()
		<-exited
	}

	s.opts.Logger.Info("supervisor.stopped", "process", s.spec.Name)
}

func wireErrorMessage(we *protocol.WireError) string {
	if we == nil {
		return "unknown error"
	}
	if we.Code != "" {
		return fmt.Sprintf("[%s] %s", we.Code, we.Message)
	}
	return we.Message
}

// stderrLogger forwards the child's stderr to the structured logger line by
// line, so tool diagnostics stay attributable in interleaved output.
type stderrLogger struct {
	name   string
	logger logging.Logger
	buf    []byte
}

func (w *stderrLogger) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := -1
		for i, b := range w.buf {
			if b == '\n' {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(w.buf[:idx]), "\r")
		w.buf = w.buf[idx+1:]
		if line != "" {
			w.logger.Debug("tool.stderr", "process", w.name, "line", line)
		}
	}
	return len(p), nil
}
