package agentwire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ControllerState tracks where the controller is within a turn.
type ControllerState string

const (
	StateIdle        ControllerState = "idle"
	StateStreaming   ControllerState = "streaming"
	StateDispatching ControllerState = "dispatching"
)

// TurnHandlers receive the observable output of a turn. OnMessage gets an
// immutable snapshot after each fully applied event; OnComplete gets the final
// list; OnError gets transport failures and backend-reported errors.
// Cancellation is silent: OnError is never called for an aborted turn.
type TurnHandlers struct {
	OnMessage  func(msgs []Message)
	OnComplete func(msgs []Message)
	OnError    func(err error)
}

// Controller owns the canonical message list and drives a turn through its
// phases: Idle -> Streaming -> Dispatching -> (one FollowUp) -> Idle. The list
// is exclusively the controller's for the duration of a turn; observers only
// ever see snapshots.
type Controller struct {
	transport  Transport
	dispatcher *Dispatcher
	decoder    *Decoder
	sink       MetadataSink
	list       *MessageList
	state      ControllerState
	threadID   string
	runID      string
	logger     *slog.Logger

	// published is the snapshot visible to other goroutines while the turn
	// goroutine keeps mutating list. Only the snapshot is shared, never the
	// list itself.
	snapMu    sync.RWMutex
	published []Message
}

func NewController(transport Transport, registry *ActionRegistry) *Controller {
	logger := slog.Default()
	return &Controller{
		transport:  transport,
		dispatcher: NewDispatcher(registry, logger),
		decoder:    NewDecoder(logger),
		list:       NewMessageList(),
		state:      StateIdle,
		logger:     logger,
		published:  []Message{},
	}
}

func (c *Controller) SetLogger(logger *slog.Logger) {
	c.logger = logger
	c.decoder = NewDecoder(logger)
	c.dispatcher.logger = logger
}

// SetMetadataSink registers a sink for threadId/runId updates extracted from
// SessionStart events.
func (c *Controller) SetMetadataSink(sink MetadataSink) {
	c.sink = sink
}

func (c *Controller) State() ControllerState {
	return c.state
}

// Messages returns the latest published snapshot of the message list. The
// returned messages are copies; treat them as immutable.
func (c *Controller) Messages() []Message {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.published
}

// publish refreshes the shared snapshot from the list. Called only from the
// turn goroutine.
func (c *Controller) publish() []Message {
	snap := c.list.Snapshot()
	c.snapMu.Lock()
	c.published = snap
	c.snapMu.Unlock()
	return snap
}

// AddUserMessage appends a user text message to the conversation, returning
// its id. Call before RunTurn.
func (c *Controller) AddUserMessage(content string) string {
	id := uuid.NewString()
	c.list.Add(&TextMessage{
		ID:      id,
		Role:    RoleUser,
		Content: content,
		Status:  StatusSuccess,
	})
	c.publish()
	return id
}

// RunTurn executes one full turn: stream the backend response, reconcile it
// into the message list, dispatch pending local actions, and re-invoke the
// pipeline at most once when a local action ran. The loop structure itself
// caps the follow-up depth at one; there is no recursion and no counter to
// mis-thread.
//
// On cancellation or transport failure the list is rolled back to the
// snapshot taken at turn start. Cancellation returns the context's error
// without calling OnError.
func (c *Controller) RunTurn(ctx context.Context, sessionID string, handlers TurnHandlers) ([]Message, error) {
	if c.state != StateIdle {
		return nil, ErrTurnActive
	}
	snapshot := c.list.Snapshot()

	for hop := 0; hop < 2; hop++ {
		followUp := hop == 1
		req := &TurnRequest{
			SessionID: sessionID,
			ThreadID:  c.threadID,
			RunID:     c.runID,
			Messages:  c.list.Snapshot(),
			Actions:   c.dispatcher.registry.Descriptors(),
			FollowUp:  followUp,
		}

		if err := c.streamOnce(ctx, req, handlers); err != nil {
			return nil, c.fail(snapshot, handlers, err)
		}

		c.state = StateDispatching
		executed, err := c.dispatcher.Dispatch(ctx, c.list)
		if err != nil {
			return nil, c.fail(snapshot, handlers, err)
		}
		if executed {
			snap := c.publish()
			if handlers.OnMessage != nil {
				handlers.OnMessage(snap)
			}
		}
		if !executed {
			break
		}
	}

	c.state = StateIdle
	final := c.publish()
	if handlers.OnComplete != nil {
		handlers.OnComplete(final)
	}
	return final, nil
}

// fail rolls the list back to the pre-turn snapshot and routes the error.
// Cancellation stays silent: the original context error comes back unwrapped
// and OnError is not called.
func (c *Controller) fail(snapshot []Message, handlers TurnHandlers, err error) error {
	c.list.Restore(snapshot)
	c.publish()
	c.state = StateIdle
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if handlers.OnError != nil {
		handlers.OnError(err)
	}
	return err
}

// streamOnce consumes one response stream to completion, applying every
// decoded event to the list and publishing a snapshot after each one.
func (c *Controller) streamOnce(ctx context.Context, req *TurnRequest, handlers TurnHandlers) error {
	stream, err := c.transport.Open(ctx, req)
	if err != nil {
		return fmt.Errorf("transport open: %w", err)
	}
	defer stream.Close()

	c.state = StateStreaming
	rec := NewReconciler(c.list, c.logger)

	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := stream.Current()
		if isDoneLine(line) {
			break
		}
		ev, ok := c.decoder.Decode(line)
		if !ok {
			continue
		}

		switch e := ev.(type) {
		case *SessionStartEvent:
			c.sessionStarted(req.SessionID, e)
		case *ErrorEvent:
			if handlers.OnError != nil {
				handlers.OnError(&BackendError{Detail: e.Detail})
			}
			continue
		}

		rec.Apply(ev)
		snap := c.publish()
		if handlers.OnMessage != nil {
			handlers.OnMessage(snap)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("transport stream: %w", err)
	}
	return nil
}

func (c *Controller) sessionStarted(sessionID string, e *SessionStartEvent) {
	c.threadID = e.ThreadID
	c.runID = e.RunID
	if c.sink == nil {
		return
	}
	if err := c.sink.SessionStarted(sessionID, e.ThreadID, e.RunID); err != nil {
		c.logger.Error("metadata sink update failed", "error", err)
	}
}
