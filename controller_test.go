package agentwire

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStream replays a fixed set of transport lines.
type scriptedStream struct {
	lines []string
	i     int
	err   error
}

func (s *scriptedStream) Next() bool {
	if s.i < len(s.lines) {
		s.i++
		return true
	}
	return false
}

func (s *scriptedStream) Current() string { return s.lines[s.i-1] }
func (s *scriptedStream) Err() error      { return s.err }
func (s *scriptedStream) Close() error    { return nil }

// scriptedTransport serves one scripted stream per Open call and records the
// requests it saw.
type scriptedTransport struct {
	scripts   [][]string
	streamErr error
	openErr   error
	requests  []*TurnRequest
}

func (t *scriptedTransport) Open(ctx context.Context, req *TurnRequest) (EventStream, error) {
	t.requests = append(t.requests, req)
	if t.openErr != nil {
		return nil, t.openErr
	}
	call := len(t.requests) - 1
	if call >= len(t.scripts) {
		return &scriptedStream{}, nil
	}
	return &scriptedStream{lines: t.scripts[call], err: t.streamErr}, nil
}

func TestRunTurnEndToEnd(t *testing.T) {
	transport := &scriptedTransport{scripts: [][]string{{
		`data: {"eventType":"text_content","eventData":{"content":"Hi"}}`,
		`data: {"eventType":"text_end","eventData":{}}`,
		`data: [DONE]`,
	}}}
	c := NewController(transport, NewActionRegistry())

	final, err := c.RunTurn(context.Background(), "s1", TurnHandlers{})
	require.NoError(t, err)
	require.Len(t, final, 1)

	text := final[0].(*TextMessage)
	assert.Equal(t, "Hi", text.Content)
	assert.Equal(t, RoleAssistant, text.Role)
	assert.Equal(t, StatusSuccess, text.Status)
	assert.Equal(t, StateIdle, c.State())
}

func TestRunTurnBoundedFollowUp(t *testing.T) {
	actionScript := func(id string) []string {
		return []string{
			`data: {"eventType":"action_start","eventData":{"id":"` + id + `","name":"foo"}}`,
			`data: {"eventType":"action_args","eventData":{"id":"` + id + `","fragment":"{\"x\":1}"}}`,
			`data: {"eventType":"action_end","eventData":{"id":"` + id + `"}}`,
			`data: [DONE]`,
		}
	}
	// Both hops produce a local action; the loop must still stop after one
	// follow-up.
	transport := &scriptedTransport{scripts: [][]string{
		actionScript("a1"),
		actionScript("a2"),
		actionScript("a3"),
	}}

	registry := NewActionRegistry()
	executions := 0
	registry.Register("foo", "", nil, func(ctx context.Context, args map[string]any) (string, error) {
		executions++
		return "ok", nil
	})

	c := NewController(transport, registry)
	final, err := c.RunTurn(context.Background(), "s1", TurnHandlers{})
	require.NoError(t, err)

	assert.Len(t, transport.requests, 2)
	assert.False(t, transport.requests[0].FollowUp)
	assert.True(t, transport.requests[1].FollowUp)
	assert.Equal(t, 2, executions)
	// Two invocations and their two results.
	assert.Len(t, final, 4)
}

func TestRunTurnNoFollowUpWithoutLocalAction(t *testing.T) {
	transport := &scriptedTransport{scripts: [][]string{{
		`data: {"eventType":"action_start","eventData":{"id":"a1","name":"remote_action"}}`,
		`data: {"eventType":"action_end","eventData":{"id":"a1"}}`,
		`data: [DONE]`,
	}}}
	c := NewController(transport, NewActionRegistry())

	_, err := c.RunTurn(context.Background(), "s1", TurnHandlers{})
	require.NoError(t, err)
	assert.Len(t, transport.requests, 1)
}

func TestRunTurnFollowUpCarriesResults(t *testing.T) {
	transport := &scriptedTransport{scripts: [][]string{
		{
			`data: {"eventType":"action_start","eventData":{"id":"a1","name":"foo"}}`,
			`data: {"eventType":"action_end","eventData":{"id":"a1"}}`,
			`data: [DONE]`,
		},
		{
			`data: {"eventType":"text_content","eventData":{"content":"Done"}}`,
			`data: {"eventType":"text_end","eventData":{}}`,
			`data: [DONE]`,
		},
	}}
	registry := NewActionRegistry()
	registry.Register("foo", "", nil, func(ctx context.Context, args map[string]any) (string, error) {
		return "42", nil
	})

	c := NewController(transport, registry)
	final, err := c.RunTurn(context.Background(), "s1", TurnHandlers{})
	require.NoError(t, err)

	// The follow-up request's baseline includes the synthesized result.
	require.Len(t, transport.requests, 2)
	followUpBaseline := transport.requests[1].Messages
	require.Len(t, followUpBaseline, 2)
	res := followUpBaseline[1].(*ResultMessage)
	assert.Equal(t, "42", res.Result)

	require.Len(t, final, 3)
	assert.Equal(t, "Done", final[2].(*TextMessage).Content)
}

func TestRunTurnTransportErrorRollsBack(t *testing.T) {
	transport := &scriptedTransport{
		scripts: [][]string{{
			`data: {"eventType":"text_content","eventData":{"content":"partial"}}`,
		}},
		streamErr: errors.New("connection reset"),
	}
	c := NewController(transport, NewActionRegistry())
	c.AddUserMessage("hello")
	before := c.Messages()

	var reported error
	_, err := c.RunTurn(context.Background(), "s1", TurnHandlers{
		OnError: func(e error) { reported = e },
	})
	require.Error(t, err)
	require.Error(t, reported)
	assert.ErrorContains(t, reported, "connection reset")
	assert.Equal(t, before, c.Messages())
	assert.Equal(t, StateIdle, c.State())
}

func TestRunTurnAbortRollsBackSilently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	transport := &cancelingTransport{cancel: cancel, lines: []string{
		`data: {"eventType":"text_content","eventData":{"content":"partial"}}`,
	}}
	c := NewController(transport, NewActionRegistry())
	c.AddUserMessage("hello")
	before := c.Messages()

	errorCalled := false
	_, err := c.RunTurn(ctx, "s1", TurnHandlers{
		OnError: func(error) { errorCalled = true },
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errorCalled)
	assert.Equal(t, before, c.Messages())
	assert.Equal(t, StateIdle, c.State())
}

func TestRunTurnDeadlineErrorPreserved(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	transport := &scriptedTransport{scripts: [][]string{{
		`data: {"eventType":"text_content","eventData":{"content":"partial"}}`,
	}}}
	c := NewController(transport, NewActionRegistry())

	errorCalled := false
	_, err := c.RunTurn(ctx, "s1", TurnHandlers{
		OnError: func(error) { errorCalled = true },
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, context.Canceled)
	assert.False(t, errorCalled)
	assert.Equal(t, StateIdle, c.State())
}

func TestRunTurnPublishesSnapshots(t *testing.T) {
	transport := &scriptedTransport{scripts: [][]string{{
		`data: {"eventType":"text_content","eventData":{"content":"He"}}`,
		`data: {"eventType":"text_content","eventData":{"content":"Hello"}}`,
		`data: {"eventType":"text_end","eventData":{}}`,
		`data: [DONE]`,
	}}}
	c := NewController(transport, NewActionRegistry())

	var contents []string
	_, err := c.RunTurn(context.Background(), "s1", TurnHandlers{
		OnMessage: func(msgs []Message) {
			require.Len(t, msgs, 1)
			contents = append(contents, msgs[0].(*TextMessage).Content)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"He", "Hello", "Hello"}, contents)
}

func TestRunTurnBackendErrorSurfacedWithoutAborting(t *testing.T) {
	transport := &scriptedTransport{scripts: [][]string{{
		`data: {"eventType":"error","eventData":{"detail":"model overloaded"}}`,
		`data: {"eventType":"text_content","eventData":{"content":"Hi"}}`,
		`data: {"eventType":"text_end","eventData":{}}`,
		`data: [DONE]`,
	}}}
	c := NewController(transport, NewActionRegistry())

	var reported error
	final, err := c.RunTurn(context.Background(), "s1", TurnHandlers{
		OnError: func(e error) { reported = e },
	})
	require.NoError(t, err)

	var backendErr *BackendError
	require.ErrorAs(t, reported, &backendErr)
	assert.Equal(t, "model overloaded", backendErr.Detail)
	require.Len(t, final, 1)
	assert.Equal(t, "Hi", final[0].(*TextMessage).Content)
}

func TestRunTurnNotifiesMetadataSink(t *testing.T) {
	transport := &scriptedTransport{scripts: [][]string{{
		`data: {"eventType":"session_start","eventData":{"threadId":"t1","runId":"r1"}}`,
		`data: {"eventType":"text_content","eventData":{"content":"Hi"}}`,
		`data: {"eventType":"text_end","eventData":{}}`,
		`data: [DONE]`,
	}}}
	c := NewController(transport, NewActionRegistry())
	sink := &recordingSink{}
	c.SetMetadataSink(sink)

	_, err := c.RunTurn(context.Background(), "s1", TurnHandlers{})
	require.NoError(t, err)
	require.Len(t, sink.records, 1)
	assert.Equal(t, SessionMetadata{SessionID: "s1", ThreadID: "t1", RunID: "r1"}, sink.records[0])
}

type recordingSink struct {
	records []SessionMetadata
}

func (s *recordingSink) SessionStarted(sessionID, threadID, runID string) error {
	s.records = append(s.records, SessionMetadata{SessionID: sessionID, ThreadID: threadID, RunID: runID})
	return nil
}

// cancelingTransport yields its lines and then cancels the turn context,
// simulating an abort that lands mid-stream.
type cancelingTransport struct {
	cancel context.CancelFunc
	lines  []string
}

func (t *cancelingTransport) Open(ctx context.Context, req *TurnRequest) (EventStream, error) {
	return &cancelingStream{cancel: t.cancel, lines: t.lines}, nil
}

type cancelingStream struct {
	cancel context.CancelFunc
	lines  []string
	i      int
}

func (s *cancelingStream) Next() bool {
	if s.i == len(s.lines) {
		s.cancel()
	}
	s.i++
	return s.i <= len(s.lines)+1
}

func (s *cancelingStream) Current() string {
	if s.i <= len(s.lines) {
		return s.lines[s.i-1]
	}
	return `data: {"eventType":"heartbeat","eventData":{}}`
}

func (s *cancelingStream) Err() error   { return nil }
func (s *cancelingStream) Close() error { return nil }
