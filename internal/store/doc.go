// Package store provides session and transcript persistence for call-gateway
// using SQLite.
//
// # Architecture
//
// The package exposes a single SessionStore interface implemented by
// SQLiteStore. Active sessions are held in memory so that per-turn appends
// are cheap and never block on the database; the durable row is written at
// open (metadata only) and completed at close, when the entire transcript is
// flushed in one atomic UPDATE. Once a session is closed, the row is the
// single source of truth.
//
// # Data Models
//
//   - Session: a bounded conversation with an ordered, append-only transcript
//   - Turn: one utterance/response unit, attributed to user or agent, with an
//     optional source tag recording which resolution tier produced it
//   - SessionSummary: listing view without turn bodies
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//
// Use NewSQLiteStore(":memory:") for tests that want a real database without
// touching disk.
//
// # Error Handling
//
// Common errors:
//
//   - ErrSessionNotFound: session does not exist
//   - ErrSessionClosed: appending to a session after close
//
// All methods accept context.Context for cancellation support.
package store
