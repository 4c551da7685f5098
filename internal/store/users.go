package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// User mirrors the users table, including the secrets that must never
// leave the store layer.
type User struct {
	ID           int64
	Username     string
	Nickname     string
	Email        string
	PasswordHash string
	Salt         string
	CreatedAt    time.Time
}

// CreateUser inserts a new user row. Returns ErrUsernameTaken or
// ErrEmailTaken if either is already in use.
func (s *Store) CreateUser(ctx context.Context, username, email, salt, passwordHash string) (User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(username, email, salt, password_hash) VALUES(?, ?, ?, ?)`,
		username, email, salt, passwordHash,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, "users.username"):
			return User{}, ErrUsernameTaken
		case isUniqueViolation(err, "users.email"):
			return User{}, ErrEmailTaken
		default:
			return User{}, fmt.Errorf("insert user: %w", err)
		}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

const userColumns = `id, username, nickname, email, password_hash, salt, created_at`

func scanUser(row *sql.Row) (User, error) {
	var u User
	var createdAt int64
	err := row.Scan(&u.ID, &u.Username, &u.Nickname, &u.Email, &u.PasswordHash, &u.Salt, &createdAt)
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return u, nil
}

// GetUserByID returns the user with the given id, or ErrNotFound.
func (s *Store) GetUserByID(ctx context.Context, id int64) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByUsername returns the user with the given username, or
// ErrNotFound.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// ListAllUsers returns every user ordered by id, for the `server users` CLI
// subcommand.
func (s *Store) ListAllUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var createdAt int64
		if err := rows.Scan(&u.ID, &u.Username, &u.Nickname, &u.Email, &u.PasswordHash, &u.Salt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}
