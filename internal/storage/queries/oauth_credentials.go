package queries

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pierre-platform/security-core/internal/storage"
)

// ErrNotFound is returned by single-row lookups that miss, matching
// spec.md §7's NotFound storage error.
var ErrNotFound = errors.New("storage: not found")

// TenantOAuthCredentialsRow is the raw row shape for the
// tenant_oauth_credentials table (spec.md §6). ClientSecretEncrypted is
// opaque ciphertext; decryption happens one layer up, in vault.Vault.
type TenantOAuthCredentialsRow struct {
	TenantID              pgtype.UUID
	Provider              string
	ClientID              string
	ClientSecretEncrypted string
	RedirectURI           string
	Scopes                []string
	RateLimitPerDay       int64
	CreatedAt             pgtype.Timestamptz
	UpdatedAt             pgtype.Timestamptz
}

// TenantOAuthCredentialsQueries wraps DBTX for the tenant_oauth_credentials table.
type TenantOAuthCredentialsQueries struct {
	db storage.DBTX
}

func NewTenantOAuthCredentialsQueries(db storage.DBTX) *TenantOAuthCredentialsQueries {
	return &TenantOAuthCredentialsQueries{db: db}
}

// Upsert writes (or overwrites) the row keyed by (tenant_id, provider),
// matching spec.md §4.2 put_tenant_oauth_credentials.
func (q *TenantOAuthCredentialsQueries) Upsert(ctx context.Context, row TenantOAuthCredentialsRow) error {
	const sql = `
INSERT INTO tenant_oauth_credentials
	(tenant_id, provider, client_id, client_secret_encrypted, redirect_uri, scopes, rate_limit_per_day, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
ON CONFLICT (tenant_id, provider) DO UPDATE SET
	client_id = EXCLUDED.client_id,
	client_secret_encrypted = EXCLUDED.client_secret_encrypted,
	redirect_uri = EXCLUDED.redirect_uri,
	scopes = EXCLUDED.scopes,
	rate_limit_per_day = EXCLUDED.rate_limit_per_day,
	updated_at = now()`
	_, err := q.db.Exec(ctx, sql, row.TenantID, row.Provider, row.ClientID, row.ClientSecretEncrypted,
		row.RedirectURI, row.Scopes, row.RateLimitPerDay)
	if err != nil {
		return fmt.Errorf("storage: upsert tenant_oauth_credentials: %w", err)
	}
	return nil
}

// Get fetches the row for (tenant_id, provider), or ErrNotFound.
func (q *TenantOAuthCredentialsQueries) Get(ctx context.Context, tenantID pgtype.UUID, provider string) (TenantOAuthCredentialsRow, error) {
	const sql = `
SELECT tenant_id, provider, client_id, client_secret_encrypted, redirect_uri, scopes, rate_limit_per_day, created_at, updated_at
FROM tenant_oauth_credentials WHERE tenant_id = $1 AND provider = $2`
	var row TenantOAuthCredentialsRow
	err := q.db.QueryRow(ctx, sql, tenantID, provider).Scan(
		&row.TenantID, &row.Provider, &row.ClientID, &row.ClientSecretEncrypted,
		&row.RedirectURI, &row.Scopes, &row.RateLimitPerDay, &row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TenantOAuthCredentialsRow{}, ErrNotFound
	}
	if err != nil {
		return TenantOAuthCredentialsRow{}, fmt.Errorf("storage: get tenant_oauth_credentials: %w", err)
	}
	return row, nil
}

// ListProviders returns every provider a tenant has credentials configured for.
func (q *TenantOAuthCredentialsQueries) ListProviders(ctx context.Context, tenantID pgtype.UUID) ([]string, error) {
	const sql = `SELECT provider FROM tenant_oauth_credentials WHERE tenant_id = $1 ORDER BY provider`
	rows, err := q.db.Query(ctx, sql, tenantID)
	if err != nil {
		return nil, fmt.Errorf("storage: list tenant oauth providers: %w", err)
	}
	defer rows.Close()

	var providers []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("storage: scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// UserOAuthTokenRow is the raw row for user_oauth_tokens (spec.md §3).
type UserOAuthTokenRow struct {
	ID                    pgtype.UUID
	UserID                pgtype.UUID
	TenantID              pgtype.UUID
	Provider              string
	AccessTokenEncrypted  string
	RefreshTokenEncrypted pgtype.Text
	TokenType             string
	ExpiresAt             pgtype.Timestamptz
	Scope                 pgtype.Text
	CreatedAt             pgtype.Timestamptz
	UpdatedAt             pgtype.Timestamptz
	LastSync              pgtype.Timestamptz
}

// UserOAuthTokenQueries wraps DBTX for the user_oauth_tokens table.
type UserOAuthTokenQueries struct {
	db storage.DBTX
}

func NewUserOAuthTokenQueries(db storage.DBTX) *UserOAuthTokenQueries {
	return &UserOAuthTokenQueries{db: db}
}

// Upsert writes by (user_id, tenant_id, provider), matching spec.md
// §4.2 put_user_token: "On conflict, updates encrypted payloads and
// timestamps; never returns the existing plaintext."
func (q *UserOAuthTokenQueries) Upsert(ctx context.Context, row UserOAuthTokenRow) error {
	const sql = `
INSERT INTO user_oauth_tokens
	(id, user_id, tenant_id, provider, access_token_encrypted, refresh_token_encrypted, token_type, expires_at, scope, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
ON CONFLICT (user_id, tenant_id, provider) DO UPDATE SET
	access_token_encrypted = EXCLUDED.access_token_encrypted,
	refresh_token_encrypted = EXCLUDED.refresh_token_encrypted,
	token_type = EXCLUDED.token_type,
	expires_at = EXCLUDED.expires_at,
	scope = EXCLUDED.scope,
	updated_at = now()`
	_, err := q.db.Exec(ctx, sql, row.ID, row.UserID, row.TenantID, row.Provider,
		row.AccessTokenEncrypted, row.RefreshTokenEncrypted, row.TokenType, row.ExpiresAt, row.Scope)
	if err != nil {
		return fmt.Errorf("storage: upsert user_oauth_tokens: %w", err)
	}
	return nil
}

// Get fetches by (user_id, tenant_id, provider). A zero-valid tenantID
// performs the tenant-wide admin-dashboard lookup spec.md §4.2 allows
// ("tenant_id = ⊥"); callers using that form are responsible for
// authorization, per spec.
func (q *UserOAuthTokenQueries) Get(ctx context.Context, userID, tenantID pgtype.UUID, provider string) (UserOAuthTokenRow, error) {
	var sql string
	var args []any
	if tenantID.Valid {
		sql = `
SELECT id, user_id, tenant_id, provider, access_token_encrypted, refresh_token_encrypted, token_type, expires_at, scope, created_at, updated_at, last_sync
FROM user_oauth_tokens WHERE user_id = $1 AND tenant_id = $2 AND provider = $3`
		args = []any{userID, tenantID, provider}
	} else {
		sql = `
SELECT id, user_id, tenant_id, provider, access_token_encrypted, refresh_token_encrypted, token_type, expires_at, scope, created_at, updated_at, last_sync
FROM user_oauth_tokens WHERE user_id = $1 AND provider = $2`
		args = []any{userID, provider}
	}

	var row UserOAuthTokenRow
	err := q.db.QueryRow(ctx, sql, args...).Scan(
		&row.ID, &row.UserID, &row.TenantID, &row.Provider, &row.AccessTokenEncrypted,
		&row.RefreshTokenEncrypted, &row.TokenType, &row.ExpiresAt, &row.Scope,
		&row.CreatedAt, &row.UpdatedAt, &row.LastSync)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserOAuthTokenRow{}, ErrNotFound
	}
	if err != nil {
		return UserOAuthTokenRow{}, fmt.Errorf("storage: get user_oauth_tokens: %w", err)
	}
	return row, nil
}

// Delete hard-deletes a single (user, tenant, provider) row; no tombstones.
func (q *UserOAuthTokenQueries) Delete(ctx context.Context, userID, tenantID pgtype.UUID, provider string) error {
	const sql = `DELETE FROM user_oauth_tokens WHERE user_id = $1 AND tenant_id = $2 AND provider = $3`
	_, err := q.db.Exec(ctx, sql, userID, tenantID, provider)
	if err != nil {
		return fmt.Errorf("storage: delete user_oauth_tokens: %w", err)
	}
	return nil
}

// DeleteAllInTenant removes every token row a user has within a tenant.
func (q *UserOAuthTokenQueries) DeleteAllInTenant(ctx context.Context, userID, tenantID pgtype.UUID) error {
	const sql = `DELETE FROM user_oauth_tokens WHERE user_id = $1 AND tenant_id = $2`
	_, err := q.db.Exec(ctx, sql, userID, tenantID)
	if err != nil {
		return fmt.Errorf("storage: delete all user_oauth_tokens in tenant: %w", err)
	}
	return nil
}
