package queries

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pierre-platform/security-core/internal/storage"
)

// ApiKeyRow is the raw row for api_keys (spec.md §3 ApiKey). KeyHash is
// the HMAC digest of the raw key; Prefix is the short non-secret
// identifying prefix shown to users and used to narrow the lookup
// before the constant-time digest comparison (spec.md §4.5 step 1).
type ApiKeyRow struct {
	ID                     pgtype.UUID
	TenantID               pgtype.UUID
	UserID                 pgtype.UUID
	Prefix                 string
	KeyHash                string
	Name                   string
	Description            string
	Tier                   string
	RateLimitRequests      int64
	RateLimitWindowSeconds int32
	IsActive               bool
	CreatedAt              pgtype.Timestamptz
	LastUsedAt             pgtype.Timestamptz
	ExpiresAt              pgtype.Timestamptz
}

// ApiKeyQueries wraps DBTX for the api_keys table.
type ApiKeyQueries struct {
	db storage.DBTX
}

func NewApiKeyQueries(db storage.DBTX) *ApiKeyQueries {
	return &ApiKeyQueries{db: db}
}

// Create inserts a freshly minted API key record.
func (q *ApiKeyQueries) Create(ctx context.Context, row ApiKeyRow) error {
	const sql = `
INSERT INTO api_keys (
	id, tenant_id, user_id, prefix, key_hash, name, description, tier,
	rate_limit_requests, rate_limit_window_seconds, is_active, created_at, expires_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, true, now(), $11)`
	_, err := q.db.Exec(ctx, sql,
		row.ID, row.TenantID, row.UserID, row.Prefix, row.KeyHash, row.Name, row.Description, row.Tier,
		row.RateLimitRequests, row.RateLimitWindowSeconds, row.ExpiresAt)
	if err != nil {
		return fmt.Errorf("storage: create api key: %w", err)
	}
	return nil
}

const apiKeySelectColumns = `id, tenant_id, user_id, prefix, key_hash, name, description, tier,
	rate_limit_requests, rate_limit_window_seconds, is_active, created_at, last_used_at, expires_at`

func scanApiKeyRow(row pgx.Row) (ApiKeyRow, error) {
	var r ApiKeyRow
	err := row.Scan(
		&r.ID, &r.TenantID, &r.UserID, &r.Prefix, &r.KeyHash, &r.Name, &r.Description, &r.Tier,
		&r.RateLimitRequests, &r.RateLimitWindowSeconds, &r.IsActive, &r.CreatedAt, &r.LastUsedAt, &r.ExpiresAt)
	return r, err
}

// GetByPrefix narrows candidates to the short prefix; the caller still
// must run a constant-time comparison of KeyHash before trusting a match
// (spec.md §4.5, §8 "timing-safe comparison"), then check IsActive and
// ExpiresAt itself (spec.md §4.6 item 2).
func (q *ApiKeyQueries) GetByPrefix(ctx context.Context, prefix string) (ApiKeyRow, error) {
	sql := `SELECT ` + apiKeySelectColumns + ` FROM api_keys WHERE prefix = $1`
	row, err := scanApiKeyRow(q.db.QueryRow(ctx, sql, prefix))
	if errors.Is(err, pgx.ErrNoRows) {
		return ApiKeyRow{}, ErrNotFound
	}
	if err != nil {
		return ApiKeyRow{}, fmt.Errorf("storage: get api key by prefix: %w", err)
	}
	return row, nil
}

// TouchLastUsed stamps the most recent successful use of a key.
func (q *ApiKeyQueries) TouchLastUsed(ctx context.Context, id pgtype.UUID) error {
	const sql = `UPDATE api_keys SET last_used_at = now() WHERE id = $1`
	_, err := q.db.Exec(ctx, sql, id)
	if err != nil {
		return fmt.Errorf("storage: touch api key last used: %w", err)
	}
	return nil
}

// Revoke permanently deactivates a key (is_active = false); revocation
// is never reversed.
func (q *ApiKeyQueries) Revoke(ctx context.Context, id pgtype.UUID) error {
	const sql = `UPDATE api_keys SET is_active = false WHERE id = $1`
	tag, err := q.db.Exec(ctx, sql, id)
	if err != nil {
		return fmt.Errorf("storage: revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByTenant returns every key (including deactivated ones) owned by a tenant.
func (q *ApiKeyQueries) ListByTenant(ctx context.Context, tenantID pgtype.UUID) ([]ApiKeyRow, error) {
	sql := `SELECT ` + apiKeySelectColumns + ` FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC`
	rows, err := q.db.Query(ctx, sql, tenantID)
	if err != nil {
		return nil, fmt.Errorf("storage: list api keys: %w", err)
	}
	defer rows.Close()

	var out []ApiKeyRow
	for rows.Next() {
		row, err := scanApiKeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan api key: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
