package queries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pierre-platform/security-core/internal/storage"
)

// InvitationRow is the raw row for invitations (spec.md §3 "[NEW]
// identity bootstrap" — invitation-based onboarding of
// TenantMembership). TokenHash is the HMAC digest; the raw token is
// mailed and never persisted.
type InvitationRow struct {
	TokenHash string
	TenantID  pgtype.UUID
	Email     string
	Role      string
	InvitedBy pgtype.UUID
	CreatedAt pgtype.Timestamptz
	ExpiresAt pgtype.Timestamptz
	Used      bool
}

// InvitationQueries wraps DBTX for the invitations table, following the
// same single-use UPDATE...RETURNING shape as PasswordResetQueries and
// authserver.Store.
type InvitationQueries struct {
	db storage.DBTX
}

func NewInvitationQueries(db storage.DBTX) *InvitationQueries {
	return &InvitationQueries{db: db}
}

// Create persists a freshly minted invitation.
func (q *InvitationQueries) Create(ctx context.Context, row InvitationRow) error {
	const sql = `
INSERT INTO invitations (token_hash, tenant_id, email, role, invited_by, created_at, expires_at, used)
VALUES ($1, $2, $3, $4, $5, now(), $6, false)`
	_, err := q.db.Exec(ctx, sql, row.TokenHash, row.TenantID, row.Email, row.Role, row.InvitedBy, row.ExpiresAt)
	if err != nil {
		return fmt.Errorf("storage: create invitation: %w", err)
	}
	return nil
}

// Consume atomically marks an invitation used, returning false if it
// was already used, expired, or never existed.
func (q *InvitationQueries) Consume(ctx context.Context, tokenHash string, now time.Time) (InvitationRow, bool, error) {
	const sql = `
UPDATE invitations
SET used = true
WHERE token_hash = $1 AND used = false AND expires_at > $2
RETURNING token_hash, tenant_id, email, role, invited_by, created_at, expires_at, used`
	var row InvitationRow
	err := q.db.QueryRow(ctx, sql, tokenHash, now).Scan(
		&row.TokenHash, &row.TenantID, &row.Email, &row.Role, &row.InvitedBy, &row.CreatedAt, &row.ExpiresAt, &row.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		return InvitationRow{}, false, nil
	}
	if err != nil {
		return InvitationRow{}, false, fmt.Errorf("storage: consume invitation: %w", err)
	}
	return row, true, nil
}

// CleanExpired deletes lapsed invitations that were never accepted,
// leaving accepted rows for any future audit lookup.
func (q *InvitationQueries) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM invitations WHERE expires_at <= $1 AND used = false`, now)
	if err != nil {
		return 0, fmt.Errorf("storage: clean_expired_invitations: %w", err)
	}
	return tag.RowsAffected(), nil
}
