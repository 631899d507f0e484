package queries

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pierre-platform/security-core/internal/storage"
)

// AuditEventRow is the raw row for audit_events (spec.md §3 AuditEvent,
// §4.7). Metadata carries event-specific fields as JSON, mirroring the
// teacher's internal/audit/service.go DBLogger row shape.
type AuditEventRow struct {
	ID        pgtype.UUID
	TenantID  pgtype.UUID
	UserID    pgtype.UUID
	EventType string
	Severity  string
	Metadata  []byte
	CreatedAt pgtype.Timestamptz
}

// AuditQueries wraps DBTX for audit_events, adapted from the teacher's
// internal/audit/service.go DBLogger.
type AuditQueries struct {
	db storage.DBTX
}

func NewAuditQueries(db storage.DBTX) *AuditQueries {
	return &AuditQueries{db: db}
}

// Insert appends one audit event. Audit events are append-only; there
// is no Update or Delete on this table.
func (q *AuditQueries) Insert(ctx context.Context, row AuditEventRow) error {
	const sql = `
INSERT INTO audit_events (id, tenant_id, user_id, event_type, severity, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())`
	_, err := q.db.Exec(ctx, sql, row.ID, row.TenantID, row.UserID, row.EventType, row.Severity, row.Metadata)
	if err != nil {
		return fmt.Errorf("storage: insert audit event: %w", err)
	}
	return nil
}

// ListByTenant returns the most recent events for a tenant, newest first.
func (q *AuditQueries) ListByTenant(ctx context.Context, tenantID pgtype.UUID, limit int) ([]AuditEventRow, error) {
	const sql = `
SELECT id, tenant_id, user_id, event_type, severity, metadata, created_at
FROM audit_events WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := q.db.Query(ctx, sql, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list audit events: %w", err)
	}
	defer rows.Close()

	var out []AuditEventRow
	for rows.Next() {
		var row AuditEventRow
		if err := rows.Scan(&row.ID, &row.TenantID, &row.UserID, &row.EventType, &row.Severity, &row.Metadata, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan audit event: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
