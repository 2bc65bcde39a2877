// ABOUTME: SQLite implementation of SessionStore using modernc.org/sqlite
// ABOUTME: Active transcripts live in memory; closing flushes one durable blob

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements SessionStore using SQLite.
//
// Active sessions are tracked in memory so appends never touch the database.
// The sessions row is inserted at open and receives the full transcript in a
// single UPDATE when the session closes.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*Session
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		active: make(map[string]*Session),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id            TEXT PRIMARY KEY,
			status        TEXT NOT NULL,
			started_at    DATETIME NOT NULL,
			ended_at      DATETIME,
			voice_enabled INTEGER NOT NULL DEFAULT 0,
			video_enabled INTEGER NOT NULL DEFAULT 0,
			turn_count    INTEGER NOT NULL DEFAULT 0,
			transcript    TEXT,

			CHECK (status IN ('active', 'closed'))
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// OpenSession allocates a new active session and inserts its durable row.
func (s *SQLiteStore) OpenSession(ctx context.Context, voiceEnabled, videoEnabled bool) (*Session, error) {
	session := &Session{
		ID:           uuid.New().String(),
		StartedAt:    time.Now().UTC(),
		Status:       StatusActive,
		VoiceEnabled: voiceEnabled,
		VideoEnabled: videoEnabled,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, status, started_at, voice_enabled, video_enabled) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.Status, session.StartedAt, session.VoiceEnabled, session.VideoEnabled)
	if err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}

	s.mu.Lock()
	s.active[session.ID] = session
	s.mu.Unlock()

	s.logger.Debug("session opened", "session_id", session.ID, "voice", voiceEnabled)
	return session, nil
}

// AppendTurn appends one turn to an active session's transcript.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID, role, content, source string) error {
	s.mu.Lock()
	session, ok := s.active[sessionID]
	if ok {
		session.Turns = append(session.Turns, Turn{
			Role:      role,
			Content:   content,
			Source:    source,
			Timestamp: time.Now().UTC(),
		})
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	// Not in memory: distinguish closed from unknown via the durable row.
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, sessionID).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up session: %w", err)
	}
	if status == StatusClosed {
		return ErrSessionClosed
	}
	// Row exists but the in-memory transcript is gone (process restart).
	return ErrSessionNotFound
}

// GetSession returns a session with its full transcript.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	if session, ok := s.active[sessionID]; ok {
		copied := *session
		copied.Turns = append([]Turn(nil), session.Turns...)
		s.mu.Unlock()
		return &copied, nil
	}
	s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, started_at, ended_at, voice_enabled, video_enabled, transcript
		 FROM sessions WHERE id = ?`, sessionID)

	var session Session
	var transcript sql.NullString
	var endedAt sql.NullTime
	err := row.Scan(&session.ID, &session.Status, &session.StartedAt, &endedAt,
		&session.VoiceEnabled, &session.VideoEnabled, &transcript)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	if endedAt.Valid {
		t := endedAt.Time
		session.EndedAt = &t
	}
	if transcript.Valid && transcript.String != "" {
		if err := json.Unmarshal([]byte(transcript.String), &session.Turns); err != nil {
			return nil, fmt.Errorf("decoding transcript: %w", err)
		}
	}
	return &session, nil
}

// CloseSession marks the session closed and flushes the transcript atomically.
// Idempotent: closing an already-closed session is a no-op.
func (s *SQLiteStore) CloseSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	session, ok := s.active[sessionID]
	if !ok {
		s.mu.Unlock()
		// Already closed (idempotent) or never existed.
		var status string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, sessionID).Scan(&status)
		if err == sql.ErrNoRows {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("looking up session: %w", err)
		}
		return nil
	}

	endedAt := time.Now().UTC()
	session.Status = StatusClosed
	session.EndedAt = &endedAt
	transcript, err := json.Marshal(session.Turns)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("encoding transcript: %w", err)
	}
	turnCount := len(session.Turns)
	delete(s.active, sessionID)
	s.mu.Unlock()

	// The whole transcript lands in one UPDATE: the row is the single
	// source of truth once status flips to closed.
	_, err = s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, ended_at = ?, turn_count = ?, transcript = ? WHERE id = ?`,
		StatusClosed, endedAt, turnCount, string(transcript), sessionID)
	if err != nil {
		return fmt.Errorf("flushing transcript: %w", err)
	}

	s.logger.Info("session closed", "session_id", sessionID, "turns", turnCount)
	return nil
}

// ListSessions returns summaries matching the filter, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*SessionSummary, error) {
	query := `SELECT id, status, started_at, ended_at, voice_enabled, video_enabled, turn_count
		FROM sessions`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var summaries []*SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var endedAt sql.NullTime
		if err := rows.Scan(&sum.ID, &sum.Status, &sum.StartedAt, &endedAt,
			&sum.VoiceEnabled, &sum.VideoEnabled, &sum.TurnCount); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		if endedAt.Valid {
			t := endedAt.Time
			sum.EndedAt = &t
		}
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}

	// Active sessions keep their turn count in memory until close.
	s.mu.Lock()
	for _, sum := range summaries {
		if session, ok := s.active[sum.ID]; ok {
			sum.TurnCount = len(session.Turns)
		}
	}
	s.mu.Unlock()

	return summaries, nil
}

// DeleteSession removes a session and its transcript.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.active, sessionID)
	s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}

	s.logger.Debug("session deleted", "session_id", sessionID)
	return nil
}
