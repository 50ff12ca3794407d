package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rouzd/facegate/internal/database"
)

// UserRepository provides PostgreSQL-backed user directory access.
type UserRepository struct {
	pool *Pool
}

// NewUserRepository creates a new PostgreSQL user repository.
func NewUserRepository(pool *Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetActiveUser returns the active user with the given username, or nil
// when no such user exists.
func (r *UserRepository) GetActiveUser(ctx context.Context, username string) (*database.User, error) {
	query := `
		SELECT id, username, email, face_image, is_active, created_at, last_authenticated_at
		FROM users
		WHERE username = $1 AND is_active = TRUE
	`

	var u database.User
	var email sql.NullString
	var lastAuth sql.NullTime
	err := r.pool.QueryRow(ctx, query, database.NormalizeUsername(username)).Scan(
		&u.ID,
		&u.Username,
		&email,
		&u.FaceImage,
		&u.Active,
		&u.CreatedAt,
		&lastAuth,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	u.Email = email.String
	if lastAuth.Valid {
		u.LastAuthenticatedAt = &lastAuth.Time
	}
	return &u, nil
}

// ListActiveUsers returns all active users ordered by enrollment time.
func (r *UserRepository) ListActiveUsers(ctx context.Context) ([]database.User, error) {
	query := `
		SELECT id, username, email, face_image, is_active, created_at, last_authenticated_at
		FROM users
		WHERE is_active = TRUE
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []database.User
	for rows.Next() {
		var u database.User
		var email sql.NullString
		var lastAuth sql.NullTime
		if err := rows.Scan(&u.ID, &u.Username, &email, &u.FaceImage, &u.Active, &u.CreatedAt, &lastAuth); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Email = email.String
		if lastAuth.Valid {
			u.LastAuthenticatedAt = &lastAuth.Time
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// CreateUser enrolls a new identity with its reference face image.
func (r *UserRepository) CreateUser(ctx context.Context, username, email string, faceImage []byte) (int64, error) {
	query := `
		INSERT INTO users (username, email, face_image)
		VALUES ($1, NULLIF($2, ''), $3)
		RETURNING id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query, database.NormalizeUsername(username), email, faceImage).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return 0, database.ErrDuplicateUser
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// SetLastAuthenticated records a successful authentication time for the
// identity. Last write wins.
func (r *UserRepository) SetLastAuthenticated(ctx context.Context, username string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE users SET last_authenticated_at = $2 WHERE username = $1",
		database.NormalizeUsername(username), at,
	)
	if err != nil {
		return fmt.Errorf("update last authenticated: %w", err)
	}
	return nil
}
