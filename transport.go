package agentwire

import "context"

// TurnRequest is everything the backend needs to produce one response stream:
// the conversation so far, the local actions the client can execute, and the
// session coordinates. FollowUp marks the single automatic re-invocation after
// local action execution.
type TurnRequest struct {
	SessionID string             `json:"sessionId,omitempty"`
	ThreadID  string             `json:"threadId,omitempty"`
	RunID     string             `json:"runId,omitempty"`
	Messages  []Message          `json:"messages"`
	Actions   []ActionDescriptor `json:"actions,omitempty"`
	FollowUp  bool               `json:"followUp,omitempty"`
}

// EventStream yields payload lines from one open response stream. Lines may
// carry the "data:" framing or be bare payloads; the decoder accepts both.
type EventStream interface {
	// Next advances to the next line, blocking until one is available. It
	// returns false on stream end or failure; Err distinguishes the two.
	Next() bool
	Current() string
	Err() error
	Close() error
}

// Transport opens a response stream for a turn request. Connection setup,
// headers and retries are the transport's concern; the core only consumes the
// resulting stream of lines and cancels through ctx.
type Transport interface {
	Open(ctx context.Context, req *TurnRequest) (EventStream, error)
}
