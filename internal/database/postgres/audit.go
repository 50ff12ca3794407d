package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rouzd/facegate/internal/database"
)

// AuditRepository provides the PostgreSQL-backed append-only audit log.
type AuditRepository struct {
	pool *Pool
}

// NewAuditRepository creates a new PostgreSQL audit repository.
func NewAuditRepository(pool *Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Append inserts one attempt record. Existing rows are never touched.
func (r *AuditRepository) Append(ctx context.Context, record database.AuditRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO login_attempts (identity, success, status, source, created_at)
		VALUES (NULLIF($1, ''), $2, $3, NULLIF($4, ''), $5)
	`, record.Identity, record.Success, record.Status, record.Source, createdAt)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// RecentForIdentity returns the latest attempt records for one identity,
// newest first. Used by operators when reviewing failed logins.
func (r *AuditRepository) RecentForIdentity(ctx context.Context, identity string, limit int) ([]database.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(identity, ''), success, status, COALESCE(source, ''), created_at
		FROM login_attempts
		WHERE identity = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var records []database.AuditRecord
	for rows.Next() {
		var rec database.AuditRecord
		if err := rows.Scan(&rec.Identity, &rec.Success, &rec.Status, &rec.Source, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit records: %w", err)
	}
	return records, nil
}
