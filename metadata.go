package agentwire

import "time"

// MetadataSink receives the session coordinates announced by the backend at
// stream start. Implementations must tolerate repeated updates for the same
// session: a follow-up hop announces a fresh run id under the same thread.
type MetadataSink interface {
	SessionStarted(sessionID, threadID, runID string) error
}

// SessionMetadata is one recorded session coordinate set.
type SessionMetadata struct {
	SessionID string
	ThreadID  string
	RunID     string
	UpdatedAt time.Time
}
