// Package store persists the relational model (users, contacts, groups,
// group members, messages) in an embedded SQLite database. It owns the
// database lifecycle and exposes the typed, transactional repository
// operations the rest of the server uses.
//
// Migration design: SQL statements live in the [migrations] slice as
// ordered strings. Each is applied exactly once; the applied version is
// tracked in schema_migrations. To add a migration, append a new string —
// never edit or reorder existing entries.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// ErrUsernameTaken is returned by CreateUser when username already exists.
var ErrUsernameTaken = errors.New("username taken")

// ErrEmailTaken is returned by CreateUser when email already exists.
var ErrEmailTaken = errors.New("email taken")

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("not found")

// migrations holds the ordered list of DDL statements that bring the schema
// up to date. Index i corresponds to version i+1.
var migrations = []string{
	// v1 — users
	`CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT NOT NULL UNIQUE,
		nickname      TEXT NOT NULL DEFAULT '',
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		salt          TEXT NOT NULL,
		created_at    INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v2 — user contacts
	`CREATE TABLE IF NOT EXISTS user_contacts (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id          INTEGER NOT NULL REFERENCES users(id),
		contact_id       INTEGER NOT NULL REFERENCES users(id),
		custom_nickname  TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL DEFAULT 'PENDING',
		created_at       INTEGER NOT NULL DEFAULT (unixepoch()),
		updated_at       INTEGER NOT NULL DEFAULT (unixepoch()),
		UNIQUE(user_id, contact_id)
	)`,
	// v3 — groups
	`CREATE TABLE IF NOT EXISTS groups (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL,
		creator_id INTEGER NOT NULL REFERENCES users(id),
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v4 — group members
	`CREATE TABLE IF NOT EXISTS group_members (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id  INTEGER NOT NULL REFERENCES groups(id),
		user_id   INTEGER NOT NULL REFERENCES users(id),
		joined_at INTEGER NOT NULL DEFAULT (unixepoch()),
		UNIQUE(group_id, user_id)
	)`,
	// v5 — messages
	`CREATE TABLE IF NOT EXISTS messages (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		content       TEXT NOT NULL,
		sender_id     INTEGER NOT NULL REFERENCES users(id),
		receiver_id   INTEGER,
		group_id      INTEGER,
		is_group      INTEGER NOT NULL DEFAULT 0,
		is_delivered  INTEGER NOT NULL DEFAULT 0,
		delivered_at  INTEGER,
		created_at    INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v6–v10 — indexes for the lookup paths the handlers actually use
	`CREATE INDEX IF NOT EXISTS idx_user_contacts_user ON user_contacts(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_group_members_group ON group_members(group_id)`,
	`CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_group ON messages(group_id)`,
}

// Store wraps a SQLite database and exposes the repository operations.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage
// (tests).
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		slog.Warn("store: enable WAL mode failed (non-fatal)", "err", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		slog.Warn("store: set busy_timeout failed (non-fatal)", "err", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		slog.Warn("store: enable foreign_keys failed (non-fatal)", "err", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		slog.Debug("store: applied migration", "version", v)
	}
	return nil
}

// isUniqueViolation reports whether err looks like a SQLite uniqueness
// constraint failure. modernc.org/sqlite surfaces these as plain errors
// whose text names the constraint, so we match on substring rather than a
// typed sentinel.
func isUniqueViolation(err error, substr string) bool {
	if err == nil {
		return false
	}
	return containsFold(err.Error(), substr) && containsFold(err.Error(), "unique")
}

func containsFold(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if equalFold(s[i:i+len(substr)], substr) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
