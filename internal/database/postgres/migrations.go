package postgres

import (
	"context"
	"fmt"
)

// Migrate creates the schema if it does not exist yet. Statements are
// idempotent so repeated startups are safe.
func (p *Pool) Migrate(ctx context.Context) error {
	createUsers := `
		CREATE TABLE IF NOT EXISTS users (
			id                     BIGSERIAL PRIMARY KEY,
			username               VARCHAR(255) UNIQUE NOT NULL,
			email                  VARCHAR(255),
			face_image             BYTEA NOT NULL,
			is_active              BOOLEAN NOT NULL DEFAULT TRUE,
			created_at             TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			last_authenticated_at  TIMESTAMP WITH TIME ZONE
		)
	`
	if _, err := p.Exec(ctx, createUsers); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	createAttempts := `
		CREATE TABLE IF NOT EXISTS login_attempts (
			id          BIGSERIAL PRIMARY KEY,
			identity    VARCHAR(255),
			success     BOOLEAN NOT NULL,
			status      VARCHAR(32) NOT NULL,
			source      VARCHAR(255),
			created_at  TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`
	if _, err := p.Exec(ctx, createAttempts); err != nil {
		return fmt.Errorf("failed to create login_attempts table: %w", err)
	}

	if _, err := p.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS login_attempts_identity_idx ON login_attempts(identity)
	`); err != nil {
		return fmt.Errorf("failed to create login_attempts identity index: %w", err)
	}

	return nil
}
