// Session provides per-conversation state, along with methods for submitting
// user messages and observing the reconstructed message list.
package agentwire

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// UpdateType classifies a communication unit from the Session to the caller/UI.
type UpdateType string

const (
	UpdateTypeMessages UpdateType = "messages"
	UpdateTypeEnd      UpdateType = "end"
	UpdateTypeError    UpdateType = "error"
)

// Update is one unit on the session's output channel. Messages is an
// immutable snapshot; the session keeps mutating its own copy as the stream
// progresses.
type Update struct {
	Type     UpdateType
	Messages []Message
	Err      error
}

// Session holds ephemeral conversation data & a controller bound to shared
// transport and registry resources. One session is one conversation; each
// user message submitted through In runs one turn.
type Session struct {
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu        sync.Mutex
	abortTurn context.CancelFunc

	inUserChannel  chan string
	outUserChannel chan Update

	controller *Controller
	sessionID  string

	logger *slog.Logger
}

// NewSession constructs a session over the given transport and action
// registry with isolated conversation state.
func NewSession(ctx context.Context, transport Transport, registry *ActionRegistry) *Session {
	sessionID, err := gonanoid.New()
	if err != nil {
		panic(err)
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ctx:       ctx,
		cancel:    cancel,
		closeOnce: sync.Once{},

		inUserChannel:  make(chan string),
		outUserChannel: make(chan Update),

		controller: NewController(transport, registry),
		sessionID:  sessionID,

		logger: slog.Default(),
	}
	go s.run()
	return s
}

func (s *Session) ID() string {
	return s.sessionID
}

// SetMetadataSink forwards threadId/runId updates from the stream to sink.
func (s *Session) SetMetadataSink(sink MetadataSink) {
	s.controller.SetMetadataSink(sink)
}

// Messages returns a snapshot of the conversation so far.
func (s *Session) Messages() []Message {
	return s.controller.Messages()
}

// In submits a user message. The resulting turn's updates arrive on Out.
// Messages submitted after Close are dropped.
func (s *Session) In(userMessage string) {
	select {
	case <-s.ctx.Done():
		s.logger.Warn("message dropped, session closed", "sessionID", s.sessionID)
	case s.inUserChannel <- userMessage:
	}
}

// Out retrieves the next update, blocking until one is available.
func (s *Session) Out() Update {
	return <-s.outUserChannel
}

// Abort cancels the in-flight turn, including its follow-up hop. The message
// list rolls back to the snapshot taken when the turn started. The session
// stays usable: a no-op when no turn is running, and the next In starts a
// fresh turn.
func (s *Session) Abort() {
	s.mu.Lock()
	cancel := s.abortTurn
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close ends the session lifecycle and releases any resources if needed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
	})
}

// run is the session's main loop: it takes one user message at a time and
// drives a full turn through the controller, forwarding snapshots to the
// output channel.
func (s *Session) run() {
	s.logger.Info("session started", "sessionID", s.sessionID)
	for {
		select {
		case <-s.ctx.Done():
			return
		case userMessage := <-s.inUserChannel:
			s.runTurn(userMessage)
		}
	}
}

func (s *Session) runTurn(userMessage string) {
	// The turn gets its own context so Abort only kills the turn, not the
	// session loop.
	turnCtx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.abortTurn = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.abortTurn = nil
		s.mu.Unlock()
		cancel()
	}()

	s.controller.AddUserMessage(userMessage)

	handlers := TurnHandlers{
		OnMessage: func(msgs []Message) {
			s.outUserChannel <- Update{Type: UpdateTypeMessages, Messages: msgs}
		},
		OnError: func(err error) {
			s.outUserChannel <- Update{Type: UpdateTypeError, Err: err}
		},
	}

	final, err := s.controller.RunTurn(turnCtx, s.sessionID, handlers)
	switch {
	case errors.Is(err, context.Canceled):
		s.logger.Info("turn aborted", "sessionID", s.sessionID)
	case err != nil:
		s.logger.Error("turn failed", "sessionID", s.sessionID, "error", err)
	}
	s.outUserChannel <- Update{Type: UpdateTypeEnd, Messages: final}
}
