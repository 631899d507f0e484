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

// PasswordResetTokenRow is the raw row for password_reset_tokens
// (spec.md §3 PasswordResetToken). TokenHash is the HMAC digest; the
// raw token is mailed to the user and never persisted.
type PasswordResetTokenRow struct {
	TokenHash string
	UserID    pgtype.UUID
	CreatedAt pgtype.Timestamptz
	ExpiresAt pgtype.Timestamptz
	Used      bool
}

// PasswordResetQueries wraps DBTX for password_reset_tokens, adapted
// from the teacher's internal/auth/recovery.go two-step pattern into
// the atomic single-use consume this design requires throughout.
type PasswordResetQueries struct {
	db storage.DBTX
}

func NewPasswordResetQueries(db storage.DBTX) *PasswordResetQueries {
	return &PasswordResetQueries{db: db}
}

// Store persists a freshly minted reset token.
func (q *PasswordResetQueries) Store(ctx context.Context, row PasswordResetTokenRow) error {
	const sql = `
INSERT INTO password_reset_tokens (token_hash, user_id, created_at, expires_at, used)
VALUES ($1, $2, now(), $3, false)`
	_, err := q.db.Exec(ctx, sql, row.TokenHash, row.UserID, row.ExpiresAt)
	if err != nil {
		return fmt.Errorf("storage: store password reset token: %w", err)
	}
	return nil
}

// Consume atomically marks a reset token used, returning false if it
// was already used, expired, or never existed.
func (q *PasswordResetQueries) Consume(ctx context.Context, tokenHash string, now time.Time) (PasswordResetTokenRow, bool, error) {
	const sql = `
UPDATE password_reset_tokens
SET used = true
WHERE token_hash = $1 AND used = false AND expires_at > $2
RETURNING token_hash, user_id, created_at, expires_at, used`
	var row PasswordResetTokenRow
	err := q.db.QueryRow(ctx, sql, tokenHash, now).Scan(&row.TokenHash, &row.UserID, &row.CreatedAt, &row.ExpiresAt, &row.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		return PasswordResetTokenRow{}, false, nil
	}
	if err != nil {
		return PasswordResetTokenRow{}, false, fmt.Errorf("storage: consume password reset token: %w", err)
	}
	return row, true, nil
}

// CleanExpired deletes lapsed or already-used reset tokens.
func (q *PasswordResetQueries) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM password_reset_tokens WHERE expires_at <= $1 OR used = true`, now)
	if err != nil {
		return 0, fmt.Errorf("storage: clean_expired_password_reset_tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
