package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User is a participant who can prepare meetings.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// CreateUser adds a user. Usernames are unique; a duplicate returns
// ErrConflict.
func (s *Store) CreateUser(ctx context.Context, username string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, fmt.Errorf("create user: empty username")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, created_at) VALUES (?, ?)`,
		username, time.Now().UTC(),
	)
	if isUniqueViolation(err) {
		return User{}, fmt.Errorf("create user %q: username taken: %w", username, ErrConflict)
	}
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return User{ID: id, Username: username}, nil
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

// GetUserByName returns the user with the given username.
func (s *Store) GetUserByName(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %q: %w", username, err)
	}
	return u, nil
}

// ListUsers returns users ordered by id.
func (s *Store) ListUsers(ctx context.Context, skip, limit int) ([]User, error) {
	skip, limit = page(skip, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username FROM users ORDER BY id LIMIT ? OFFSET ?`, limit, skip,
	)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
