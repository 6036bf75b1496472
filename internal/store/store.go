// Package store persists users, meetings, participants and preparation
// conversations in SQLite.
//
// Two drivers are supported: "sqlite3" (mattn/go-sqlite3, CGO) for
// production and "sqlite" (modernc.org/sqlite, pure Go) for CGO-less
// builds and tests. The schema is identical for both.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Sentinel errors. Callers test with errors.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Supported driver names.
const (
	DriverCGO  = "sqlite3"
	DriverPure = "sqlite"
)

// Store is the SQLite-backed record store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(driver, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn, err := dataSourceName(driver, path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, logger: logger.With("component", "store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.logger.Debug("database ready", "driver", driver, "path", path)
	return s, nil
}

// dataSourceName enables WAL, a busy timeout and foreign keys using
// each driver's own DSN syntax.
func dataSourceName(driver, path string) (string, error) {
	switch driver {
	case DriverCGO:
		return path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", nil
	case DriverPure:
		return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meetings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		date TIMESTAMP,
		meeting_type TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_meetings_date ON meetings(date);

	CREATE TABLE IF NOT EXISTS meeting_participants (
		meeting_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		added_at TIMESTAMP NOT NULL,
		PRIMARY KEY (meeting_id, user_id),
		FOREIGN KEY (meeting_id) REFERENCES meetings(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_participants_user ON meeting_participants(user_id);

	-- One preparation conversation per (meeting, user)
	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		meeting_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		system_prompt TEXT NOT NULL,
		finished BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (meeting_id, user_id),
		FOREIGN KEY (meeting_id) REFERENCES meetings(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	-- Append-only message log; seq is the position in the conversation
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		author TEXT NOT NULL,
		text TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		UNIQUE (conversation_id, seq),
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);

	-- Current agenda snapshot, replaced as a whole
	CREATE TABLE IF NOT EXISTS agenda_items (
		conversation_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		text TEXT NOT NULL,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (conversation_id, position),
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn in a transaction, committing if it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// isUniqueViolation matches the constraint error text both drivers
// report.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// page normalizes skip/limit the way the list endpoints expect.
func page(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return skip, limit
}
