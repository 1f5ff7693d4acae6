package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/fractal/core"
	"github.com/hupe1980/fractal/logging"
)

// maxFrameSize bounds a single wire frame. Tool results larger than this are
// rejected as protocol errors rather than silently truncated.
const maxFrameSize = 16 * 1024 * 1024

// SessionOptions configures a Session.
type SessionOptions struct {
	// Logger receives per-frame diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Session multiplexes concurrent request/response exchanges over one
// underlying connection using correlation ids.
//
// Concurrency: Send and Await are safe for concurrent use by multiple
// goroutines. A single reader goroutine owns the receive side and routes
// each response to exactly one waiter. A pending correlation stays
// registered until its waiter consumes the response, so a response that
// arrives between Send and Await is held, not lost; responses with unknown
// or already-served correlation ids (late answers after a timeout,
// duplicate frames) are dropped, which is what guarantees no response is
// delivered twice.
type Session struct {
	w       io.Writer
	writeMu sync.Mutex

	logger logging.Logger

	mu       sync.Mutex
	pending  map[string]*pendingCall
	closed   bool
	closeErr error

	done chan struct{}
}

// pendingCall is one registered correlation. The channel is buffered so the
// reader never blocks on delivery; delivered suppresses duplicate frames.
type pendingCall struct {
	ch        chan Response
	delivered bool
}

// NewSession wraps the given transport and starts the reader goroutine.
// The caller keeps ownership of closing the underlying transport; Close only
// tears down session state and fails outstanding waiters.
func NewSession(r io.Reader, w io.Writer, optFns ...func(o *SessionOptions)) *Session {
	opts := SessionOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Session{
		w:       w,
		logger:  opts.Logger,
		pending: make(map[string]*pendingCall),
		done:    make(chan struct{}),
	}

	go s.readLoop(r)

	return s
}

// Send writes one request frame and registers a pending correlation for it.
// If the request carries no correlation id a fresh one is generated. The
// returned id is the handle for Await.
func (s *Session) Send(req Request) (string, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	pc := &pendingCall{ch: make(chan Response, 1)}

	s.mu.Lock()
	if s.closed {
		err := s.closeErr
		s.mu.Unlock()
		return "", core.WrapError(core.CodeConnectionLost, "session closed", err)
	}
	if _, exists := s.pending[req.CorrelationID]; exists {
		s.mu.Unlock()
		return "", core.Errorf(core.CodeProtocolError, "correlation id %q already in flight", req.CorrelationID)
	}
	s.pending[req.CorrelationID] = pc
	s.mu.Unlock()

	if err := s.write(req); err != nil {
		s.forget(req.CorrelationID)
		// A failed write means the transport is gone. Fail everyone now
		// instead of letting them ride out their deadlines.
		s.closeWithError(err)
		return "", core.WrapError(core.CodeConnectionLost, "write failed", err)
	}

	s.logger.Debug("protocol.send", "correlation_id", req.CorrelationID, "method", req.Method, "scope", req.Scope)

	return req.CorrelationID, nil
}

// Await blocks until the response for the given correlation id arrives, the
// context expires, or the connection is lost. A response that arrived before
// Await was called is delivered immediately. On context expiry the pending
// correlation is forgotten, so a late response is dropped by the reader
// rather than delivered to a caller that gave up.
func (s *Session) Await(ctx context.Context, correlationID string) (Response, error) {
	s.mu.Lock()
	pc, ok := s.pending[correlationID]
	closeErr := s.closeErr
	closed := s.closed
	s.mu.Unlock()

	if !ok {
		if closed {
			return Response{}, core.WrapError(core.CodeConnectionLost, "connection lost", closeErr)
		}
		return Response{}, core.Errorf(core.CodeProtocolError, "no pending call for correlation id %q", correlationID)
	}

	select {
	case resp, ok := <-pc.ch:
		if !ok {
			s.mu.Lock()
			closeErr = s.closeErr
			s.mu.Unlock()
			return Response{}, core.WrapError(core.CodeConnectionLost, "connection lost", closeErr)
		}
		s.forget(correlationID)
		return resp, nil
	case <-ctx.Done():
		s.forget(correlationID)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Response{}, core.WrapError(core.CodeCallTimeout, "call deadline exceeded", ctx.Err())
		}
		return Response{}, core.WrapError(core.CodeCancelled, "call cancelled", ctx.Err())
	}
}

// Call is the Send + Await convenience for a single exchange.
func (s *Session) Call(ctx context.Context, req Request) (Response, error) {
	id, err := s.Send(req)
	if err != nil {
		return Response{}, err
	}
	return s.Await(ctx, id)
}

// Close tears down the session, failing every pending correlation with a
// CONNECTION_LOST error. Idempotent.
func (s *Session) Close() error {
	s.closeWithError(nil)
	return nil
}

// Done is closed once the session has shut down (either by Close or because
// the transport failed).
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) write(req Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.w.Write(data)
	return err
}

func (s *Session) forget(correlationID string) {
	s.mu.Lock()
	delete(s.pending, correlationID)
	s.mu.Unlock()
}

// closeWithError marks the session closed and fails all waiters. Safe to
// call multiple times; only the first call records the cause. Pending
// entries stay in the map so a waiter arriving after the close still drains
// an already-delivered response instead of losing it.
func (s *Session) closeWithError(cause error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeErr = cause
	// Delivered entries keep their buffered response for the waiter to
	// drain; only undelivered ones are failed by closing their channel.
	waiters := make([]*pendingCall, 0, len(s.pending))
	for id, pc := range s.pending {
		if pc.delivered {
			continue
		}
		waiters = append(waiters, pc)
		s.logger.Debug("protocol.pending_failed", "correlation_id", id)
	}
	s.mu.Unlock()

	for _, pc := range waiters {
		close(pc.ch)
	}
	close(s.done)
}

// readLoop owns the receive side: it decodes frames and routes each response
// to its single registered waiter. Any transport or framing error is fatal
// for the whole session.
func (s *Session) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			s.logger.Error("protocol.malformed_frame", "error", err.Error())
			s.closeWithError(core.WrapError(core.CodeProtocolError, "malformed response frame", err))
			return
		}

		s.mu.Lock()
		pc, ok := s.pending[resp.CorrelationID]
		// A closed session already failed this waiter; marking delivery
		// here and sending would race the channel close.
		if ok && (pc.delivered || s.closed) {
			ok = false
		}
		if ok {
			pc.delivered = true
		}
		s.mu.Unlock()

		if !ok {
			// Late or duplicate response; the waiter is gone or was served.
			s.logger.Debug("protocol.orphan_response", "correlation_id", resp.CorrelationID)
			continue
		}

		// Buffered, and delivered guards a single send, so this never blocks.
		// The entry stays registered until its waiter consumes the response.
		pc.ch <- resp
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.closeWithError(err)
}
