package agentwire

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var _ MetadataSink = &SQLiteMetadataStore{}

// SQLiteMetadataStore implements MetadataSink using SQLite. It keeps the
// latest thread/run coordinates per session so a client can resume a thread
// after a restart.
type SQLiteMetadataStore struct {
	db *sql.DB
}

// NewSQLiteMetadataStore creates a store backed by the given database file.
// It initializes the schema if it doesn't exist.
func NewSQLiteMetadataStore(dbPath string) (*SQLiteMetadataStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteMetadataStore{db: db}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initDB creates the necessary tables if they don't exist.
func (s *SQLiteMetadataStore) initDB() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS session_metadata (
		session_id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	_, err := s.db.Exec(createTableSQL)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteMetadataStore) Close() error {
	return s.db.Close()
}

// SessionStarted upserts the coordinates for a session. Repeated calls for
// the same session overwrite the previous run id.
func (s *SQLiteMetadataStore) SessionStarted(sessionID, threadID, runID string) error {
	query := `
	INSERT INTO session_metadata (session_id, thread_id, run_id, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET thread_id = excluded.thread_id, run_id = excluded.run_id, updated_at = excluded.updated_at
	`

	_, err := s.db.Exec(query, sessionID, threadID, runID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record session metadata: %w", err)
	}

	return nil
}

// Lookup returns the recorded coordinates for a session.
func (s *SQLiteMetadataStore) Lookup(sessionID string) (SessionMetadata, error) {
	var meta SessionMetadata
	err := s.db.QueryRow(
		"SELECT session_id, thread_id, run_id, updated_at FROM session_metadata WHERE session_id = ?",
		sessionID,
	).Scan(&meta.SessionID, &meta.ThreadID, &meta.RunID, &meta.UpdatedAt)
	if err != nil {
		return SessionMetadata{}, fmt.Errorf("failed to look up session metadata: %w", err)
	}
	return meta, nil
}
