// ABOUTME: SessionStore interface and data types for call-gateway persistence
// ABOUTME: Defines Session, Turn structs and the durable transcript lifecycle

package store

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a requested session does not exist
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionClosed is returned when appending a turn to a closed session
var ErrSessionClosed = errors.New("session closed")

// Session status values
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Role constants for turn attribution
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Turn is a single utterance/response unit in a session transcript.
// Turns are immutable once appended.
type Turn struct {
	Role      string    `json:"sender"`
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"` // resolution tier, agent turns only
	Timestamp time.Time `json:"timestamp"`
}

// Session is a bounded conversation with an ordered, append-only transcript.
type Session struct {
	ID           string
	StartedAt    time.Time
	EndedAt      *time.Time
	Status       string
	VoiceEnabled bool
	VideoEnabled bool
	Turns        []Turn
}

// SessionSummary is the read-only listing view of a session, without turn bodies.
type SessionSummary struct {
	ID           string
	StartedAt    time.Time
	EndedAt      *time.Time
	Status       string
	VoiceEnabled bool
	VideoEnabled bool
	TurnCount    int
}

// SessionFilter narrows ListSessions results. Zero value matches everything.
type SessionFilter struct {
	Status string // "active", "closed", or "" for all
	Limit  int    // 0 means no limit
}

// SessionStore owns session records and the transcript persistence lifecycle.
//
// Transcripts are held in memory while a session is active and flushed as a
// single serialized blob when the session closes. The closed row is the
// source of truth afterwards.
type SessionStore interface {
	// OpenSession allocates a new active session and inserts its durable row.
	OpenSession(ctx context.Context, voiceEnabled, videoEnabled bool) (*Session, error)

	// AppendTurn appends one turn to an active session's transcript.
	// Returns ErrSessionNotFound for unknown ids, ErrSessionClosed once closed.
	AppendTurn(ctx context.Context, sessionID, role, content, source string) error

	// GetSession returns a session with its full transcript. Closed sessions
	// are read back from the durable row.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// CloseSession marks the session closed and flushes the full transcript
	// in one atomic write. Idempotent: closing a closed session is a no-op.
	CloseSession(ctx context.Context, sessionID string) error

	// ListSessions returns summaries matching the filter, newest first.
	ListSessions(ctx context.Context, filter SessionFilter) ([]*SessionSummary, error)

	// DeleteSession removes a session and its transcript.
	// Returns ErrSessionNotFound if absent.
	DeleteSession(ctx context.Context, sessionID string) error
}
