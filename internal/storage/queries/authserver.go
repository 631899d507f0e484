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

// AuthorizationServerClientRow is the raw row for oauth2_clients.
type AuthorizationServerClientRow struct {
	ID               pgtype.UUID
	ClientID         string
	ClientSecretHash string
	RedirectURIs     []string
	GrantTypes       []string
	ResponseTypes    []string
	ClientName       string
	Scope            string
	CreatedAt        pgtype.Timestamptz
	ExpiresAt        pgtype.Timestamptz
}

// AuthorizationCodeRow is the raw row for oauth2_auth_codes.
type AuthorizationCodeRow struct {
	Code                string
	ClientID            string
	UserID              pgtype.UUID
	TenantID            pgtype.UUID
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	ExpiresAt           pgtype.Timestamptz
	Used                bool
	State               pgtype.Text
}

// RefreshTokenRow is the raw row for oauth2_refresh_tokens. TokenHash is
// the HMAC digest of the raw token; the raw token itself is never stored
// (spec.md §3 RefreshToken).
type RefreshTokenRow struct {
	TokenHash string
	ClientID  string
	UserID    pgtype.UUID
	TenantID  pgtype.UUID
	Scope     string
	CreatedAt pgtype.Timestamptz
	ExpiresAt pgtype.Timestamptz
	Revoked   bool
}

// OAuth2StateRow is the raw row for oauth2_states.
type OAuth2StateRow struct {
	State               string
	ClientID             string
	UserID               pgtype.UUID
	TenantID             pgtype.UUID
	RedirectURI          string
	Scope                string
	CodeChallenge        string
	CodeChallengeMethod  string
	CreatedAt            pgtype.Timestamptz
	ExpiresAt            pgtype.Timestamptz
	Used                 bool
}

// AuthServerQueries wraps DBTX for every oauth2_* table C3 owns.
type AuthServerQueries struct {
	db storage.DBTX
}

func NewAuthServerQueries(db storage.DBTX) *AuthServerQueries {
	return &AuthServerQueries{db: db}
}

// RegisterClient inserts a newly registered authorization-server client.
func (q *AuthServerQueries) RegisterClient(ctx context.Context, row AuthorizationServerClientRow) error {
	const sql = `
INSERT INTO oauth2_clients (id, client_id, client_secret_hash, redirect_uris, grant_types, response_types, client_name, scope, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), $9)`
	_, err := q.db.Exec(ctx, sql, row.ID, row.ClientID, row.ClientSecretHash, row.RedirectURIs,
		row.GrantTypes, row.ResponseTypes, row.ClientName, row.Scope, row.ExpiresAt)
	if err != nil {
		return fmt.Errorf("storage: register_client: %w", err)
	}
	return nil
}

// GetClient fetches a registered client by its public client_id.
func (q *AuthServerQueries) GetClient(ctx context.Context, clientID string) (AuthorizationServerClientRow, error) {
	const sql = `
SELECT id, client_id, client_secret_hash, redirect_uris, grant_types, response_types, client_name, scope, created_at, expires_at
FROM oauth2_clients WHERE client_id = $1`
	var row AuthorizationServerClientRow
	err := q.db.QueryRow(ctx, sql, clientID).Scan(
		&row.ID, &row.ClientID, &row.ClientSecretHash, &row.RedirectURIs,
		&row.GrantTypes, &row.ResponseTypes, &row.ClientName, &row.Scope, &row.CreatedAt, &row.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return AuthorizationServerClientRow{}, ErrNotFound
	}
	if err != nil {
		return AuthorizationServerClientRow{}, fmt.Errorf("storage: get_client: %w", err)
	}
	return row, nil
}

// StoreAuthCode persists a freshly minted authorization code.
func (q *AuthServerQueries) StoreAuthCode(ctx context.Context, row AuthorizationCodeRow) error {
	const sql = `
INSERT INTO oauth2_auth_codes (code, client_id, user_id, tenant_id, redirect_uri, scope, code_challenge, code_challenge_method, expires_at, used, state)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10)`
	_, err := q.db.Exec(ctx, sql, row.Code, row.ClientID, row.UserID, row.TenantID, row.RedirectURI,
		row.Scope, row.CodeChallenge, row.CodeChallengeMethod, row.ExpiresAt, row.State)
	if err != nil {
		return fmt.Errorf("storage: store_auth_code: %w", err)
	}
	return nil
}

// ConsumeAuthCode atomically marks an authorization code used and
// returns the row, but only if the guard clause holds: unused, not
// expired, and bound to the expected client/redirect_uri. This single
// UPDATE...RETURNING is what makes two concurrent consumes on the same
// code resolve to exactly one success (spec.md §4.3, §8 invariant 3;
// generalizes the teacher's two-step GetVerificationToken + Delete
// pattern in internal/auth/recovery.go into one atomic statement, which
// spec.md's linearizability requirement demands and the teacher's
// original two-step form does not provide).
func (q *AuthServerQueries) ConsumeAuthCode(ctx context.Context, code, clientID, redirectURI string, now time.Time) (AuthorizationCodeRow, bool, error) {
	const sql = `
UPDATE oauth2_auth_codes
SET used = true
WHERE code = $1 AND client_id = $2 AND redirect_uri = $3 AND used = false AND expires_at > $4
RETURNING code, client_id, user_id, tenant_id, redirect_uri, scope, code_challenge, code_challenge_method, expires_at, used, state`
	var row AuthorizationCodeRow
	err := q.db.QueryRow(ctx, sql, code, clientID, redirectURI, now).Scan(
		&row.Code, &row.ClientID, &row.UserID, &row.TenantID, &row.RedirectURI, &row.Scope,
		&row.CodeChallenge, &row.CodeChallengeMethod, &row.ExpiresAt, &row.Used, &row.State)
	if errors.Is(err, pgx.ErrNoRows) {
		return AuthorizationCodeRow{}, false, nil
	}
	if err != nil {
		return AuthorizationCodeRow{}, false, fmt.Errorf("storage: consume_auth_code: %w", err)
	}
	return row, true, nil
}

// StoreRefreshToken persists a refresh token record keyed by its HMAC digest.
func (q *AuthServerQueries) StoreRefreshToken(ctx context.Context, row RefreshTokenRow) error {
	const sql = `
INSERT INTO oauth2_refresh_tokens (token_hash, client_id, user_id, tenant_id, scope, created_at, expires_at, revoked)
VALUES ($1, $2, $3, $4, $5, now(), $6, false)`
	_, err := q.db.Exec(ctx, sql, row.TokenHash, row.ClientID, row.UserID, row.TenantID, row.Scope, row.ExpiresAt)
	if err != nil {
		return fmt.Errorf("storage: store_refresh_token: %w", err)
	}
	return nil
}

// ConsumeRefreshToken atomically revokes the token identified by
// tokenHash if it is bound to clientID, unrevoked, and unexpired,
// returning the row iff the swap succeeded (spec.md §4.3, §8 invariant 2).
func (q *AuthServerQueries) ConsumeRefreshToken(ctx context.Context, tokenHash, clientID string, now time.Time) (RefreshTokenRow, bool, error) {
	const sql = `
UPDATE oauth2_refresh_tokens
SET revoked = true
WHERE token_hash = $1 AND client_id = $2 AND revoked = false AND expires_at > $3
RETURNING token_hash, client_id, user_id, tenant_id, scope, created_at, expires_at, revoked`
	var row RefreshTokenRow
	err := q.db.QueryRow(ctx, sql, tokenHash, clientID, now).Scan(
		&row.TokenHash, &row.ClientID, &row.UserID, &row.TenantID, &row.Scope,
		&row.CreatedAt, &row.ExpiresAt, &row.Revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshTokenRow{}, false, nil
	}
	if err != nil {
		return RefreshTokenRow{}, false, fmt.Errorf("storage: consume_refresh_token: %w", err)
	}
	return row, true, nil
}

// GetRefreshToken is a read-only lookup by token hash, used by the
// request authenticator to validate an agent session token without
// consuming it (authentication must be idempotent across retries,
// unlike the token endpoint's single-use redemption).
func (q *AuthServerQueries) GetRefreshToken(ctx context.Context, tokenHash string) (RefreshTokenRow, error) {
	const sql = `
SELECT token_hash, client_id, user_id, tenant_id, scope, created_at, expires_at, revoked
FROM oauth2_refresh_tokens WHERE token_hash = $1`
	var row RefreshTokenRow
	err := q.db.QueryRow(ctx, sql, tokenHash).Scan(
		&row.TokenHash, &row.ClientID, &row.UserID, &row.TenantID, &row.Scope,
		&row.CreatedAt, &row.ExpiresAt, &row.Revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return RefreshTokenRow{}, ErrNotFound
	}
	if err != nil {
		return RefreshTokenRow{}, fmt.Errorf("storage: get_refresh_token: %w", err)
	}
	return row, nil
}

// RevokeRefreshToken is an idempotent unconditional revoke (spec.md §4.3).
func (q *AuthServerQueries) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	const sql = `UPDATE oauth2_refresh_tokens SET revoked = true WHERE token_hash = $1`
	_, err := q.db.Exec(ctx, sql, tokenHash)
	if err != nil {
		return fmt.Errorf("storage: revoke_refresh_token: %w", err)
	}
	return nil
}

// StoreState persists an anti-CSRF nonce.
func (q *AuthServerQueries) StoreState(ctx context.Context, row OAuth2StateRow) error {
	const sql = `
INSERT INTO oauth2_states (state, client_id, user_id, tenant_id, redirect_uri, scope, code_challenge, code_challenge_method, created_at, expires_at, used)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), $9, false)`
	_, err := q.db.Exec(ctx, sql, row.State, row.ClientID, row.UserID, row.TenantID, row.RedirectURI,
		row.Scope, row.CodeChallenge, row.CodeChallengeMethod, row.ExpiresAt)
	if err != nil {
		return fmt.Errorf("storage: store_state: %w", err)
	}
	return nil
}

// ConsumeState is the identical single-use shape as ConsumeAuthCode, for
// CSRF nonces (spec.md §4.3).
func (q *AuthServerQueries) ConsumeState(ctx context.Context, state string, now time.Time) (OAuth2StateRow, bool, error) {
	const sql = `
UPDATE oauth2_states
SET used = true
WHERE state = $1 AND used = false AND expires_at > $2
RETURNING state, client_id, user_id, tenant_id, redirect_uri, scope, code_challenge, code_challenge_method, created_at, expires_at, used`
	var row OAuth2StateRow
	err := q.db.QueryRow(ctx, sql, state, now).Scan(
		&row.State, &row.ClientID, &row.UserID, &row.TenantID, &row.RedirectURI, &row.Scope,
		&row.CodeChallenge, &row.CodeChallengeMethod, &row.CreatedAt, &row.ExpiresAt, &row.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		return OAuth2StateRow{}, false, nil
	}
	if err != nil {
		return OAuth2StateRow{}, false, fmt.Errorf("storage: consume_state: %w", err)
	}
	return row, true, nil
}

// CleanExpired deletes lapsed authorization codes, revoked or expired
// refresh tokens, and lapsed CSRF state nonces in one pass, mirroring
// the teacher's janitor worker's sweep across several token tables.
func (q *AuthServerQueries) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, sql := range []string{
		`DELETE FROM oauth2_auth_codes WHERE expires_at <= $1`,
		`DELETE FROM oauth2_refresh_tokens WHERE expires_at <= $1 OR revoked = true`,
		`DELETE FROM oauth2_states WHERE expires_at <= $1 OR used = true`,
	} {
		tag, err := q.db.Exec(ctx, sql, now)
		if err != nil {
			return total, fmt.Errorf("storage: clean_expired_authserver_rows: %w", err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
