// Package users is the optional bearer-protected user registry, stored in
// SQLite.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no user has the requested ID.
var ErrNotFound = errors.New("user not found")

// User is one registry entry.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Patch carries the fields of a partial update. Nil fields are left alone.
type Patch struct {
	Username *string
	Email    *string
}

// FieldError reports per-field problems. Conflict distinguishes unique
// violations from malformed input.
type FieldError struct {
	Conflict bool
	Fields   map[string][]string
}

func (e *FieldError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msgs := range e.Fields {
		parts = append(parts, field+": "+strings.Join(msgs, "; "))
	}
	return "invalid user: " + strings.Join(parts, ", ")
}

func (e *FieldError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email    TEXT NOT NULL UNIQUE
);`

// Store is a SQLite-backed user registry.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("users: create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("users: open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases coherent and serialises
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("users: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, email FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email); err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `SELECT id, username, email FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	return u, nil
}

// Create validates and inserts a user.
func (s *Store) Create(ctx context.Context, username, email string) (User, error) {
	u := User{Username: strings.TrimSpace(username), Email: strings.TrimSpace(email)}
	fe := &FieldError{}
	validateUsername(fe, u.Username)
	validateEmail(fe, u.Email)
	if len(fe.Fields) > 0 {
		return User{}, fe
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO users (username, email) VALUES (?, ?)`, u.Username, u.Email)
	if err != nil {
		return User{}, uniqueError(err)
	}
	u.ID, err = res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("users: last insert id: %w", err)
	}
	return u, nil
}

// Update applies a partial update. An empty patch is a validation error.
func (s *Store) Update(ctx context.Context, id int64, p Patch) (User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return User{}, err
	}

	fe := &FieldError{}
	if p.Username == nil && p.Email == nil {
		fe.add("_schema", "No valid fields were provided for update.")
		return User{}, fe
	}
	if p.Username != nil {
		u.Username = strings.TrimSpace(*p.Username)
		validateUsername(fe, u.Username)
	}
	if p.Email != nil {
		u.Email = strings.TrimSpace(*p.Email)
		validateEmail(fe, u.Email)
	}
	if len(fe.Fields) > 0 {
		return User{}, fe
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE users SET username = ?, email = ? WHERE id = ?`, u.Username, u.Email, id); err != nil {
		return User{}, uniqueError(err)
	}
	return u, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

func validateUsername(fe *FieldError, username string) {
	if username == "" {
		fe.add("username", "Missing data for required field.")
	}
}

func validateEmail(fe *FieldError, email string) {
	if email == "" {
		fe.add("email", "Missing data for required field.")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		fe.add("email", "Not a valid email address.")
	}
}

// uniqueError maps SQLite unique violations to a conflict FieldError.
func uniqueError(err error) error {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unique constraint") {
		return fmt.Errorf("users: write: %w", err)
	}
	fe := &FieldError{Conflict: true}
	if strings.Contains(msg, "users.email") {
		fe.add("email", "Email already exists.")
	}
	if strings.Contains(msg, "users.username") {
		fe.add("username", "Username already exists.")
	}
	if len(fe.Fields) == 0 {
		fe.add("_schema", "Unique constraint violated.")
	}
	return fe
}
