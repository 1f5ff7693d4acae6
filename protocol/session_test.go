package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/fractal/core"
)

// fakePeer is the remote end of a session under test: it reads request
// frames from the session's write pipe and lets the test script responses.
type fakePeer struct {
	t       *testing.T
	reader  *bufio.Scanner
	writer  io.Writer
	session *Session
}

func newFakePeer(t *testing.T) *fakePeer {
	t.Helper()

	toPeerR, toPeerW := io.Pipe()
	fromPeerR, fromPeerW := io.Pipe()

	s := NewSession(fromPeerR, toPeerW)
	t.Cleanup(func() {
		_ = s.Close()
		_ = toPeerW.Close()
		_ = fromPeerW.Close()
	})

	return &fakePeer{
		t:       t,
		reader:  bufio.NewScanner(toPeerR),
		writer:  fromPeerW,
		session: s,
	}
}

func (p *fakePeer) readRequest() Request {
	p.t.Helper()
	require.True(p.t, p.reader.Scan(), "expected a request frame")

	var req Request
	require.NoError(p.t, json.Unmarshal(p.reader.Bytes(), &req))
	return req
}

func (p *fakePeer) writeResponse(resp Response) {
	p.t.Helper()
	data, err := json.Marshal(resp)
	require.NoError(p.t, err)
	_, err = p.writer.Write(append(data, '\n'))
	require.NoError(p.t, err)
}

func TestSession_Call_RoundTrip(t *testing.T) {
	peer := newFakePeer(t)

	go func() {
		req := peer.readRequest()
		peer.writeResponse(Response{
			CorrelationID: req.CorrelationID,
			Status:        StatusSuccess,
			Payload:       json.RawMessage(`{"content":"pong"}`),
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := peer.session.Call(ctx, Request{Method: MethodCall, Scope: "ping"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, resp.Status)

	var result CallResult
	require.NoError(t, json.Unmarshal(resp.Payload, &result))
	assert.Equal(t, "pong", result.Content)
}

func TestSession_Send_GeneratesUniqueCorrelationIDs(t *testing.T) {
	peer := newFakePeer(t)

	go func() {
		for i := 0; i < 2; i++ {
			req := peer.readRequest()
			peer.writeResponse(Response{CorrelationID: req.CorrelationID, Status: StatusSuccess})
		}
	}()

	id1, err := peer.session.Send(Request{Method: MethodCall})
	require.NoError(t, err)
	id2, err := peer.session.Send(Request{Method: MethodCall})
	require.NoError(t, err)

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = peer.session.Await(ctx, id1)
	require.NoError(t, err)
	_, err = peer.session.Await(ctx, id2)
	require.NoError(t, err)
}

func TestSession_OutOfOrderResponses(t *testing.T) {
	peer := newFakePeer(t)

	// Answer the two requests in reverse order.
	go func() {
		first := peer.readRequest()
		second := peer.readRequest()

		peer.writeResponse(Response{
			CorrelationID: second.CorrelationID,
			Status:        StatusSuccess,
			Payload:       json.RawMessage(`{"content":"second"}`),
		})
		peer.writeResponse(Response{
			CorrelationID: first.CorrelationID,
			Status:        StatusSuccess,
			Payload:       json.RawMessage(`{"content":"first"}`),
		})
	}()

	id1, err := peer.session.Send(Request{Method: MethodCall, Scope: "a"})
	require.NoError(t, err)
	id2, err := peer.session.Send(Request{Method: MethodCall, Scope: "b"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp1, err := peer.session.Await(ctx, id1)
	require.NoError(t, err)
	resp2, err := peer.session.Await(ctx, id2)
	require.NoError(t, err)

	// Each waiter got the answer for its own call despite reordering.
	assert.Contains(t, string(resp1.Payload), "first")
	assert.Contains(t, string(resp2.Payload), "second")
}

func TestSession_ResponseBeforeAwait_IsDelivered(t *testing.T) {
	peer := newFakePeer(t)

	responded := make(chan struct{})
	go func() {
		req := peer.readRequest()
		peer.writeResponse(Response{
			CorrelationID: req.CorrelationID,
			Status:        StatusSuccess,
			Payload:       json.RawMessage(`{"content":"early"}`),
		})
		close(responded)
	}()

	id, err := peer.session.Send(Request{Method: MethodCall, Scope: "fast"})
	require.NoError(t, err)

	// Let the response land before anyone awaits it.
	<-responded
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := peer.session.Await(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Contains(t, string(resp.Payload), "early")

	// The correlation was consumed; asking again is a protocol error, not a
	// second delivery.
	_, err = peer.session.Await(ctx, id)
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.CodeProtocolError))
}

func TestSession_Await_Timeout(t *testing.T) {
	peer := newFakePeer(t)

	// Drain the request frame so Send's blocking pipe write can complete;
	// the peer deliberately never responds in time.
	go func() { peer.readRequest() }()

	id, err := peer.session.Send(Request{Method: MethodCall, Scope: "slow"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = peer.session.Await(ctx, id)
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.CodeCallTimeout))

	// The late response must be silently dropped, not delivered anywhere.
	peer.writeResponse(Response{CorrelationID: id, Status: StatusSuccess})

	_, err = peer.session.Await(context.Background(), id)
	assert.Error(t, err, "correlation is forgotten after expiry")
}

func TestSession_Await_Cancelled(t *testing.T) {
	peer := newFakePeer(t)

	// Drain the request frame so Send's blocking pipe write can complete.
	go func() { peer.readRequest() }()

	id, err := peer.session.Send(Request{Method: MethodCall})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = peer.session.Await(ctx, id)
	assert.True(t, core.HasCode(err, core.CodeCancelled))
}

func TestSession_ConnectionLost_FailsAllPending(t *testing.T) {
	toPeerR, toPeerW := io.Pipe()
	fromPeerR, fromPeerW := io.Pipe()

	s := NewSession(fromPeerR, toPeerW)
	defer s.Close() //nolint:errcheck

	go func() {
		scanner := bufio.NewScanner(toPeerR)
		scanner.Scan()
		scanner.Scan()
		// Simulate the process dying with calls in flight.
		_ = fromPeerW.Close()
	}()

	id1, err := s.Send(Request{Method: MethodCall, Scope: "a"})
	require.NoError(t, err)
	id2, err := s.Send(Request{Method: MethodCall, Scope: "b"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err1 := s.Await(ctx, id1)
	_, err2 := s.Await(ctx, id2)

	assert.True(t, core.HasCode(err1, core.CodeConnectionLost))
	assert.True(t, core.HasCode(err2, core.CodeConnectionLost))

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not signal Done after transport loss")
	}
}

func TestSession_MalformedFrame_IsFatal(t *testing.T) {
	toPeerR, toPeerW := io.Pipe()
	fromPeerR, fromPeerW := io.Pipe()

	s := NewSession(fromPeerR, toPeerW)
	defer s.Close() //nolint:errcheck

	go func() {
		scanner := bufio.NewScanner(toPeerR)
		scanner.Scan()
		_, _ = fromPeerW.Write([]byte("this is not json\n"))
	}()

	id, err := s.Send(Request{Method: MethodCall})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = s.Await(ctx, id)
	assert.True(t, core.HasCode(err, core.CodeConnectionLost))
}

func TestSession_SendAfterClose(t *testing.T) {
	_, toPeerW := io.Pipe()
	fromPeerR, fromPeerW := io.Pipe()
	// Close only tears down session state, not the transport; EOF the read
	// side so the reader goroutine exits and doesn't leak into later tests.
	t.Cleanup(func() { _ = fromPeerW.Close() })

	s := NewSession(fromPeerR, toPeerW)
	require.NoError(t, s.Close())

	_, err := s.Send(Request{Method: MethodCall})
	assert.True(t, core.HasCode(err, core.CodeConnectionLost))
}

func TestSession_ReaderGoroutineExitsOnEOF(t *testing.T) {
	defer goleak.VerifyNone(t)

	toPeerR, toPeerW := io.Pipe()
	fromPeerR, fromPeerW := io.Pipe()

	s := NewSession(fromPeerR, toPeerW)

	// Closing the peer's write side is how a dying process looks to us.
	require.NoError(t, fromPeerW.Close())

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not shut down on EOF")
	}

	_ = s.Close()
	_ = toPeerR.Close()
	_ = toPeerW.Close()
}
