// Package agentwire reconstructs a replayable conversation state from an
// incremental event stream produced by an AI backend, executes locally
// registered actions, and drives the bounded follow-up round-trip.
package agentwire

import (
	"encoding/json"
	"fmt"
)

// Status tracks the lifecycle of a single message within a turn.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Roles for text messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is the closed set of message variants that make up a conversation.
// Every variant has a stable id that is unique for the lifetime of a turn;
// applying an event for an id already present replaces that message in place,
// it never duplicates it.
type Message interface {
	MessageID() string
	MessageStatus() Status
	isMessage()
}

// TextMessage is a plain text turn from the user or the assistant. Content
// holds the full text produced so far, not a delta.
type TextMessage struct {
	ID       string
	Role     string
	Content  string
	ParentID string
	Status   Status
}

func (m *TextMessage) MessageID() string     { return m.ID }
func (m *TextMessage) MessageStatus() Status { return m.Status }
func (m *TextMessage) isMessage()            {}

// ActionInvocationMessage is a request from the backend to run a named action.
// Arguments holds the last successfully parsed argument object; while the
// stream is still delivering fragments it may lag behind the raw buffer, which
// is private reconciler state and never exposed here.
type ActionInvocationMessage struct {
	ID        string
	Name      string
	Arguments map[string]any
	ParentID  string
	Status    Status
}

func (m *ActionInvocationMessage) MessageID() string     { return m.ID }
func (m *ActionInvocationMessage) MessageStatus() Status { return m.Status }
func (m *ActionInvocationMessage) isMessage()            {}

// ResultMessage carries the outcome of an action invocation, either reported
// by the backend or synthesized locally by the dispatcher.
type ResultMessage struct {
	ID                 string
	ActionInvocationID string
	ActionName         string
	Result             string
	Status             Status
}

func (m *ResultMessage) MessageID() string     { return m.ID }
func (m *ResultMessage) MessageStatus() Status { return m.Status }
func (m *ResultMessage) isMessage()            {}

// AgentStateMessage is a snapshot of a named agent's internal state. It is
// upserted by agent name, so a conversation holds at most one per agent.
type AgentStateMessage struct {
	ID        string
	AgentName string
	State     json.RawMessage
	Running   bool
	ThreadID  string
	NodeName  string
	RunID     string
	Active    bool
	Status    Status
}

func (m *AgentStateMessage) MessageID() string     { return m.ID }
func (m *AgentStateMessage) MessageStatus() Status { return m.Status }
func (m *AgentStateMessage) isMessage()            {}

// MarshalJSON tags each variant with a type discriminator so a message list
// can be sent back to the backend as conversation history.
func (m *TextMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Role     string `json:"role"`
		Content  string `json:"content"`
		ParentID string `json:"parentId,omitempty"`
		Status   Status `json:"status"`
	}{m.ID, "text", m.Role, m.Content, m.ParentID, m.Status})
}

func (m *ActionInvocationMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        string         `json:"id"`
		Type      string         `json:"type"`
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
		ParentID  string         `json:"parentId,omitempty"`
		Status    Status         `json:"status"`
	}{m.ID, "action", m.Name, m.Arguments, m.ParentID, m.Status})
}

func (m *ResultMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID                 string `json:"id"`
		Type               string `json:"type"`
		ActionInvocationID string `json:"actionInvocationId"`
		ActionName         string `json:"actionName"`
		Result             string `json:"result"`
		Status             Status `json:"status"`
	}{m.ID, "result", m.ActionInvocationID, m.ActionName, m.Result, m.Status})
}

func (m *AgentStateMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        string          `json:"id"`
		Type      string          `json:"type"`
		AgentName string          `json:"agentName"`
		State     json.RawMessage `json:"state,omitempty"`
		Running   bool            `json:"running"`
		ThreadID  string          `json:"threadId,omitempty"`
		NodeName  string          `json:"nodeName,omitempty"`
		RunID     string          `json:"runId,omitempty"`
		Active    bool            `json:"active"`
		Status    Status          `json:"status"`
	}{m.ID, "agentState", m.AgentName, m.State, m.Running, m.ThreadID, m.NodeName, m.RunID, m.Active, m.Status})
}

// MessageList holds an ordered collection of messages and preserves arrival
// order. Lookups go through an id index so event application stays an upsert.
type MessageList struct {
	messages []Message
	index    map[string]int
}

func NewMessageList() *MessageList {
	return &MessageList{
		messages: []Message{},
		index:    map[string]int{},
	}
}

func (ml *MessageList) Len() int {
	return len(ml.messages)
}

// Add appends one or more messages in FIFO order.
func (ml *MessageList) Add(msgs ...Message) {
	for _, msg := range msgs {
		ml.index[msg.MessageID()] = len(ml.messages)
		ml.messages = append(ml.messages, msg)
	}
}

// Upsert replaces the message with the same id in place, or appends when the
// id is new. Position in the list never changes on replace.
func (ml *MessageList) Upsert(msg Message) {
	if i, ok := ml.index[msg.MessageID()]; ok {
		ml.messages[i] = msg
		return
	}
	ml.Add(msg)
}

func (ml *MessageList) Get(id string) (Message, bool) {
	i, ok := ml.index[id]
	if !ok {
		return nil, false
	}
	return ml.messages[i], true
}

func (ml *MessageList) At(i int) Message {
	return ml.messages[i]
}

// All returns the underlying slice. Callers that need an isolated copy should
// use Snapshot.
func (ml *MessageList) All() []Message {
	return ml.messages
}

// Snapshot returns a deep copy of the list. Published snapshots stay valid
// while the reconciler keeps mutating messages in place.
func (ml *MessageList) Snapshot() []Message {
	out := make([]Message, len(ml.messages))
	for i, msg := range ml.messages {
		out[i] = cloneMessage(msg)
	}
	return out
}

// Clone returns an independent MessageList with deep-copied messages, used as
// the rollback point at the start of a turn.
func (ml *MessageList) Clone() *MessageList {
	out := NewMessageList()
	out.Add(ml.Snapshot()...)
	return out
}

// Restore replaces the list contents with the given snapshot.
func (ml *MessageList) Restore(msgs []Message) {
	ml.messages = ml.messages[:0]
	ml.index = map[string]int{}
	ml.Add(msgs...)
}

func cloneMessage(msg Message) Message {
	switch m := msg.(type) {
	case *TextMessage:
		c := *m
		return &c
	case *ActionInvocationMessage:
		c := *m
		if m.Arguments != nil {
			c.Arguments = make(map[string]any, len(m.Arguments))
			for k, v := range m.Arguments {
				c.Arguments[k] = v
			}
		}
		return &c
	case *ResultMessage:
		c := *m
		return &c
	case *AgentStateMessage:
		c := *m
		if m.State != nil {
			c.State = append(json.RawMessage(nil), m.State...)
		}
		return &c
	default:
		panic(fmt.Sprintf("unknown message variant %T", msg))
	}
}
