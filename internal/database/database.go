// Package database defines the user directory and audit log interfaces and
// their shared types. Concrete backends live in subpackages.
package database

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateUser is returned by CreateUser when the username is already
// enrolled.
var ErrDuplicateUser = errors.New("username already enrolled")

// User is an enrolled identity with its reference face image.
type User struct {
	ID                  int64
	Username            string
	Email               string
	FaceImage           []byte
	Active              bool
	CreatedAt           time.Time
	LastAuthenticatedAt *time.Time
}

// AuditRecord is one append-only authentication attempt entry.
type AuditRecord struct {
	Identity  string // resolved identity, empty when none
	Success   bool
	Status    string // terminal session status, or "verify" for single-shot checks
	Source    string // caller network origin
	CreatedAt time.Time
}

// UserReader provides read access to the directory of enrolled identities.
type UserReader interface {
	// GetActiveUser returns the active user with the given username, or nil
	// when no such user exists.
	GetActiveUser(ctx context.Context, username string) (*User, error)
	// ListActiveUsers returns all active users in a stable order.
	ListActiveUsers(ctx context.Context) ([]User, error)
}

// UserWriter enrolls identities and records successful authentications.
type UserWriter interface {
	CreateUser(ctx context.Context, username, email string, faceImage []byte) (int64, error)
	// SetLastAuthenticated updates the identity's last-authenticated-at
	// timestamp. Last write wins.
	SetLastAuthenticated(ctx context.Context, username string, at time.Time) error
}

// AuditLog records authentication attempts. Entries are never mutated or
// deleted.
type AuditLog interface {
	Append(ctx context.Context, record AuditRecord) error
}

// AuditReader provides read access to recorded attempts for review.
type AuditReader interface {
	// RecentForIdentity returns the latest attempts for one identity,
	// newest first.
	RecentForIdentity(ctx context.Context, identity string, limit int) ([]AuditRecord, error)
}
