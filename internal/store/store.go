// Package store provides a SQLite-backed conversation log for the farming
// assistant. Every answered question is recorded as a full exchange keyed by
// its owner, persisted across restarts, and usable both for recent-history
// prompt injection and as the source for semantic memory migration.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Exchange is a single answered question in the conversation log.
type Exchange struct {
	// ID is the log row identifier, usable as a migration source reference.
	ID int64
	// Owner identifies whose conversation this exchange belongs to.
	Owner string
	// Question is the text the owner asked.
	Question string
	// Answer is the assistant's reply.
	Answer string
	// CreatedAt is when the exchange was persisted.
	CreatedAt time.Time
}

// ConversationLog persists and retrieves answered exchanges keyed by owner.
// Implementations must be safe for concurrent use.
type ConversationLog interface {
	// Append persists one exchange and returns its row ID.
	Append(ctx context.Context, owner, question, answer string) (int64, error)
	// RecentByOwner returns the owner's most recent n exchanges, ordered
	// oldest-first so they can be prepended to the LLM message slice directly.
	// If fewer than n exchanges exist, all are returned.
	RecentByOwner(ctx context.Context, owner string, n int) ([]Exchange, error)
	// All returns every exchange in insertion order. Used by memory migration.
	All(ctx context.Context) ([]Exchange, error)
	// Close releases any resources held by the log.
	Close() error
}

// SQLiteStore is a ConversationLog backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the conversation log database.
// It resolves to ~/.agrai/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".agrai")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    owner        TEXT    NOT NULL,
    question     TEXT    NOT NULL,
    answer       TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_conversations_owner_created
    ON conversations (owner, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists one exchange and returns its row ID.
func (s *SQLiteStore) Append(ctx context.Context, owner, question, answer string) (int64, error) {
	const q = `INSERT INTO conversations (owner, question, answer, created_at) VALUES (?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, owner, question, answer, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("store: append: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: append id: %w", err)
	}
	return id, nil
}

// RecentByOwner returns the owner's most recent n exchanges, ordered
// oldest-first. Uses a subquery to select the tail then re-order for injection.
func (s *SQLiteStore) RecentByOwner(ctx context.Context, owner string, n int) ([]Exchange, error) {
	const q = `
SELECT id, owner, question, answer, created_at FROM (
    SELECT id, owner, question, answer, created_at
    FROM   conversations
    WHERE  owner = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, owner, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	return scanExchanges(rows, "recent")
}

// All returns every exchange in insertion order. Used by the migrate command
// to rebuild semantic memory from the relational log.
func (s *SQLiteStore) All(ctx context.Context) ([]Exchange, error) {
	const q = `SELECT id, owner, question, answer, created_at FROM conversations ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: all: %w", err)
	}
	defer rows.Close()

	return scanExchanges(rows, "all")
}

// scanExchanges reads the standard exchange column set from rows.
func scanExchanges(rows *sql.Rows, op string) ([]Exchange, error) {
	var out []Exchange
	for rows.Next() {
		var e Exchange
		var ts int64
		if err := rows.Scan(&e.ID, &e.Owner, &e.Question, &e.Answer, &ts); err != nil {
			return nil, fmt.Errorf("store: %s scan: %w", op, err)
		}
		e.CreatedAt = time.Unix(ts, 0)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: %s rows: %w", op, err)
	}
	return out, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
