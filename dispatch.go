package agentwire

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
)

// Handler executes a locally registered action. The returned string becomes
// the result message content sent back to the backend.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// ActionDescriptor advertises a local action to the backend as part of a turn
// request.
type ActionDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type registeredAction struct {
	descriptor ActionDescriptor
	handler    Handler
}

// ActionRegistry maps action names to locally supplied handlers. Invocations
// whose name is not registered are treated as server-side actions and left
// untouched by the dispatcher.
type ActionRegistry struct {
	actions map[string]registeredAction
	order   []string
}

func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{actions: map[string]registeredAction{}}
}

// Register adds a handler under name. schema describes the argument object;
// use GenerateSchema to derive it from a struct type.
func (r *ActionRegistry) Register(name, description string, schema any, h Handler) {
	if _, ok := r.actions[name]; !ok {
		r.order = append(r.order, name)
	}
	r.actions[name] = registeredAction{
		descriptor: ActionDescriptor{Name: name, Description: description, Parameters: schema},
		handler:    h,
	}
}

func (r *ActionRegistry) Lookup(name string) (Handler, bool) {
	a, ok := r.actions[name]
	if !ok {
		return nil, false
	}
	return a.handler, true
}

// Descriptors returns the registered actions in registration order.
func (r *ActionRegistry) Descriptors() []ActionDescriptor {
	out := make([]ActionDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.actions[name].descriptor)
	}
	return out
}

// GenerateSchema derives a JSON schema for an action's argument struct.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// Dispatcher executes pending local action invocations after a stream ends
// and synthesizes their result messages.
type Dispatcher struct {
	registry *ActionRegistry
	logger   *slog.Logger
}

func NewDispatcher(registry *ActionRegistry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch scans the trailing run of finalized action, result and agent-state
// messages, executes the invocations with a registered handler sequentially in
// forward order, and appends a result message per execution. Handler errors
// are swallowed into error results; the only error returned is context
// cancellation. The boolean reports whether any local handler ran.
func (d *Dispatcher) Dispatch(ctx context.Context, list *MessageList) (bool, error) {
	start := list.Len()
	for i := list.Len() - 1; i >= 0; i-- {
		if !inTrailingRun(list.At(i)) {
			break
		}
		start = i
	}

	executed := false
	end := list.Len()
	for i := start; i < end; i++ {
		inv, ok := list.At(i).(*ActionInvocationMessage)
		if !ok {
			continue
		}
		if hasResultFor(list, inv.ID) {
			continue
		}
		handler, ok := d.registry.Lookup(inv.Name)
		if !ok {
			// Not an error: the backend owns this action.
			continue
		}
		if err := ctx.Err(); err != nil {
			return executed, err
		}

		result := &ResultMessage{
			ID:                 uuid.NewString(),
			ActionInvocationID: inv.ID,
			ActionName:         inv.Name,
			Status:             StatusSuccess,
		}
		out, err := handler(ctx, inv.Arguments)
		if err != nil {
			d.logger.Error("action handler failed", "action", inv.Name, "error", err)
			result.Result = fmt.Sprintf("Error: %s", err.Error())
			result.Status = StatusError
		} else {
			result.Result = out
		}
		list.Add(result)
		executed = true
	}
	return executed, nil
}

// inTrailingRun reports whether the message belongs to the maximal suffix the
// dispatcher is allowed to act on: finalized action, result and agent-state
// messages. Text or anything still pending ends the run.
func inTrailingRun(msg Message) bool {
	switch msg.(type) {
	case *ActionInvocationMessage, *ResultMessage, *AgentStateMessage:
		return msg.MessageStatus() != StatusPending
	default:
		return false
	}
}

func hasResultFor(list *MessageList, invocationID string) bool {
	for _, msg := range list.All() {
		if res, ok := msg.(*ResultMessage); ok && res.ActionInvocationID == invocationID {
			return true
		}
	}
	return false
}
