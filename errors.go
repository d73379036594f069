// Package agentwire - errors.go
// Defines session- and turn-level errors.

package agentwire

import "errors"

var (
	ErrSessionClosed = errors.New("session has been closed")
	ErrTurnActive    = errors.New("a turn is already in progress")
)

// BackendError is a failure reported by the backend inside the stream itself.
// It is surfaced through OnError while the stream keeps running.
type BackendError struct {
	Detail string
}

func (e *BackendError) Error() string {
	return "backend error: " + e.Detail
}
