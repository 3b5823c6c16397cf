package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hive/pkg/logging"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// Store persists users in sqlite. Users are created lazily: the first
// authenticated request for an unknown verified email creates the record.
type Store struct {
	db *sql.DB
}

// NewStore creates the user store and its schema.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		email      TEXT NOT NULL UNIQUE,
		role       TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("failed to create users table: %w", err)
	}
	return &Store{db: db}, nil
}

// GetByEmail looks a user up by email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.get(ctx, `SELECT id, email, role, created_at FROM users WHERE email = ?`, email)
}

// GetByID looks a user up by id.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	return s.get(ctx, `SELECT id, email, role, created_at FROM users WHERE id = ?`, id)
}

func (s *Store) get(ctx context.Context, query string, arg string) (*User, error) {
	var u User
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}
	u.CreatedAt = time.UnixMilli(createdAt)
	return &u, nil
}

// GetOrCreate returns the user with the given email, creating it with the
// given role on first sight. The role of an existing user is not changed
// here; promotions are an explicit operation.
func (s *Store) GetOrCreate(ctx context.Context, email string, role Role) (*User, error) {
	// Insert-if-absent then read back, so two racing first requests for
	// the same email converge on one record.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, role, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(email) DO NOTHING`,
		uuid.NewString(), email, string(role), time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.CreatedAt.After(time.Now().Add(-time.Second)) {
		logging.Info("Auth", "Created user %s role=%s", u.Email, u.Role)
	}
	return u, nil
}

// List returns all users ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, email, role, created_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		var createdAt int64
		if err := rows.Scan(&u.ID, &u.Email, &u.Role, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.CreatedAt = time.UnixMilli(createdAt)
		users = append(users, &u)
	}
	return users, rows.Err()
}
