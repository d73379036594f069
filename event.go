package agentwire

import "encoding/json"

// EventType discriminates the wire events emitted by the backend stream.
type EventType string

const (
	EventSessionStart EventType = "session_start"
	EventSessionEnd   EventType = "session_end"
	EventTextContent  EventType = "text_content"
	EventTextEnd      EventType = "text_end"
	EventActionStart  EventType = "action_start"
	EventActionArgs   EventType = "action_args"
	EventActionEnd    EventType = "action_end"
	EventActionResult EventType = "action_result"
	EventAgentState   EventType = "agent_state"
	EventError        EventType = "error"
	EventHeartbeat    EventType = "heartbeat"
)

// StreamEvent is one decoded event from the backend stream.
type StreamEvent interface {
	Type() EventType
}

// SessionStartEvent announces the thread and run coordinates of the stream.
type SessionStartEvent struct {
	ThreadID string `json:"threadId"`
	RunID    string `json:"runId"`
}

func (*SessionStartEvent) Type() EventType { return EventSessionStart }

type SessionEndEvent struct{}

func (*SessionEndEvent) Type() EventType { return EventSessionEnd }

// TextContentEvent carries the full cumulative text produced so far, not a
// delta. Applying it is an upsert, never an append.
type TextContentEvent struct {
	Content string `json:"content"`
}

func (*TextContentEvent) Type() EventType { return EventTextContent }

type TextEndEvent struct{}

func (*TextEndEvent) Type() EventType { return EventTextEnd }

// ActionStartEvent opens an action invocation; argument fragments for the
// same id follow.
type ActionStartEvent struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
}

func (*ActionStartEvent) Type() EventType { return EventActionStart }

// ActionArgsEvent carries one raw argument fragment. Fragments concatenate in
// arrival order per id.
type ActionArgsEvent struct {
	ID       string `json:"id"`
	Fragment string `json:"fragment"`
}

func (*ActionArgsEvent) Type() EventType { return EventActionArgs }

type ActionEndEvent struct {
	ID string `json:"id"`
}

func (*ActionEndEvent) Type() EventType { return EventActionEnd }

// ActionResultEvent reports the outcome of a server-side action execution.
type ActionResultEvent struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (*ActionResultEvent) Type() EventType { return EventActionResult }

// AgentStateEvent is a snapshot of a named agent's state, upserted by name.
type AgentStateEvent struct {
	AgentName string          `json:"agentName"`
	State     json.RawMessage `json:"state,omitempty"`
	Running   bool            `json:"running"`
	ThreadID  string          `json:"threadId,omitempty"`
	NodeName  string          `json:"nodeName,omitempty"`
	RunID     string          `json:"runId,omitempty"`
	Active    bool            `json:"active"`
}

func (*AgentStateEvent) Type() EventType { return EventAgentState }

// ErrorEvent is a backend-reported error. It is surfaced to the caller but
// does not terminate the stream.
type ErrorEvent struct {
	Detail string `json:"detail"`
}

func (*ErrorEvent) Type() EventType { return EventError }

type HeartbeatEvent struct{}

func (*HeartbeatEvent) Type() EventType { return EventHeartbeat }
