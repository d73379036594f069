package agentwire

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Reconciler owns the canonical ordered message list for a turn and applies
// stream events to it. Application is idempotent: every mutation is an
// id-based upsert, so replaying an event leaves the list unchanged.
//
// The raw argument buffers accumulated from ActionArgs fragments live in a
// private side table and are never exposed through a message's Arguments
// field.
type Reconciler struct {
	list          *MessageList
	rawArgs       map[string]string
	currentTextID string
	threadID      string
	runID         string
	logger        *slog.Logger
}

// NewReconciler wraps the given list; events are applied to it in place.
func NewReconciler(list *MessageList, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		list:    list,
		rawArgs: map[string]string{},
		logger:  logger,
	}
}

func (r *Reconciler) List() *MessageList {
	return r.list
}

// ThreadID returns the thread id announced by SessionStart, if any.
func (r *Reconciler) ThreadID() string { return r.threadID }

// RunID returns the run id announced by SessionStart, if any.
func (r *Reconciler) RunID() string { return r.runID }

// Apply folds one event into the message list. It never fails; events that
// violate the protocol (results or fragments for unknown invocation ids) are
// dropped with a warning.
func (r *Reconciler) Apply(ev StreamEvent) {
	switch e := ev.(type) {
	case *SessionStartEvent:
		r.threadID = e.ThreadID
		r.runID = e.RunID
	case *TextContentEvent:
		r.applyTextContent(e)
	case *TextEndEvent:
		r.applyTextEnd()
	case *ActionStartEvent:
		r.applyActionStart(e)
	case *ActionArgsEvent:
		r.applyActionArgs(e)
	case *ActionEndEvent:
		r.applyActionEnd(e)
	case *ActionResultEvent:
		r.applyActionResult(e)
	case *AgentStateEvent:
		r.applyAgentState(e)
	case *SessionEndEvent, *HeartbeatEvent, *ErrorEvent:
		// No message-list mutation. Error events are surfaced by the
		// controller, not here.
	}
}

func (r *Reconciler) applyTextContent(e *TextContentEvent) {
	if r.currentTextID == "" {
		r.currentTextID = uuid.NewString()
	}
	r.list.Upsert(&TextMessage{
		ID:      r.currentTextID,
		Role:    RoleAssistant,
		Content: e.Content,
		Status:  StatusPending,
	})
}

func (r *Reconciler) applyTextEnd() {
	if r.currentTextID == "" {
		return
	}
	if msg, ok := r.list.Get(r.currentTextID); ok {
		if text, ok := msg.(*TextMessage); ok {
			text.Status = StatusSuccess
		}
	}
	r.currentTextID = ""
}

func (r *Reconciler) applyActionStart(e *ActionStartEvent) {
	if _, ok := r.list.Get(e.ID); ok {
		return
	}
	r.list.Add(&ActionInvocationMessage{
		ID:       e.ID,
		Name:     e.Name,
		ParentID: e.ParentID,
		Status:   StatusPending,
	})
	r.rawArgs[e.ID] = ""
}

func (r *Reconciler) applyActionArgs(e *ActionArgsEvent) {
	inv, ok := r.invocation(e.ID)
	if !ok {
		r.logger.Warn("argument fragment for unknown invocation", "id", e.ID)
		return
	}
	r.rawArgs[e.ID] += e.Fragment
	if args, ok := r.parseArgs(e.ID); ok {
		inv.Arguments = args
	}
}

func (r *Reconciler) applyActionEnd(e *ActionEndEvent) {
	inv, ok := r.invocation(e.ID)
	if !ok {
		r.logger.Warn("end event for unknown invocation", "id", e.ID)
		return
	}
	if args, ok := r.parseArgs(e.ID); ok {
		inv.Arguments = args
		inv.Status = StatusSuccess
		return
	}
	// The final buffer never became valid JSON. Arguments keeps its last
	// successfully parsed value; the raw buffer stays private.
	inv.Status = StatusError
	r.logger.Warn("action arguments unparseable at end", "id", e.ID, "name", inv.Name)
}

func (r *Reconciler) applyActionResult(e *ActionResultEvent) {
	inv, ok := r.invocation(e.ID)
	if !ok {
		r.logger.Warn("result for unknown invocation", "id", e.ID, "name", e.Name)
		return
	}
	status := StatusSuccess
	result := e.Result
	if !e.Success {
		status = StatusError
		result = e.Error
	}
	r.list.Upsert(&ResultMessage{
		ID:                 "result-" + e.ID,
		ActionInvocationID: e.ID,
		ActionName:         inv.Name,
		Result:             result,
		Status:             status,
	})
}

func (r *Reconciler) applyAgentState(e *AgentStateEvent) {
	status := StatusSuccess
	if e.Running {
		status = StatusPending
	}
	r.list.Upsert(&AgentStateMessage{
		ID:        "agent-" + e.AgentName,
		AgentName: e.AgentName,
		State:     e.State,
		Running:   e.Running,
		ThreadID:  e.ThreadID,
		NodeName:  e.NodeName,
		RunID:     e.RunID,
		Active:    e.Active,
		Status:    status,
	})
}

func (r *Reconciler) invocation(id string) (*ActionInvocationMessage, bool) {
	msg, ok := r.list.Get(id)
	if !ok {
		return nil, false
	}
	inv, ok := msg.(*ActionInvocationMessage)
	return inv, ok
}

// parseArgs runs the repairer over the accumulated buffer for id and strips
// any "__"-prefixed bookkeeping keys a backend may have smuggled into the
// payload. ok is false while the buffer is not yet parseable as an object.
func (r *Reconciler) parseArgs(id string) (map[string]any, bool) {
	buf, ok := r.rawArgs[id]
	if !ok {
		return nil, false
	}
	repaired, ok := repairJSONString(buf)
	if !ok {
		return nil, false
	}
	repaired = stripBookkeepingKeys(repaired)
	var args map[string]any
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, false
	}
	return args, true
}

func stripBookkeepingKeys(jsonText string) string {
	gjson.Parse(jsonText).ForEach(func(key, _ gjson.Result) bool {
		if strings.HasPrefix(key.String(), "__") {
			path := strings.ReplaceAll(key.String(), ".", `\.`)
			if cleaned, err := sjson.Delete(jsonText, path); err == nil {
				jsonText = cleaned
			}
		}
		return true
	})
	return jsonText
}
