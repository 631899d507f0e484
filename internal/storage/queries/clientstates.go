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

// ClientStateRow is the raw row for oauth_client_states: Pierre's own
// outbound-PKCE bookkeeping when acting as an OAuth client against a
// fitness provider, distinct from oauth2_states which backs C5's own
// authorization server role.
type ClientStateRow struct {
	State            string
	Provider         string
	UserID           pgtype.UUID
	TenantID         pgtype.UUID
	RedirectTo       string
	Scope            string
	PKCECodeVerifier string
	CreatedAt        pgtype.Timestamptz
	ExpiresAt        pgtype.Timestamptz
	Used             bool
}

// ClientStateQueries wraps DBTX for oauth_client_states.
type ClientStateQueries struct {
	db storage.DBTX
}

func NewClientStateQueries(db storage.DBTX) *ClientStateQueries {
	return &ClientStateQueries{db: db}
}

// Store persists a freshly minted outbound-connect state nonce.
func (q *ClientStateQueries) Store(ctx context.Context, row ClientStateRow) error {
	const sql = `
INSERT INTO oauth_client_states (state, user_id, tenant_id, provider, redirect_to, scope, pkce_code_verifier, created_at, expires_at, used)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), $8, false)`
	_, err := q.db.Exec(ctx, sql, row.State, row.UserID, row.TenantID, row.Provider,
		row.RedirectTo, row.Scope, row.PKCECodeVerifier, row.ExpiresAt)
	if err != nil {
		return fmt.Errorf("storage: store_client_state: %w", err)
	}
	return nil
}

// Consume atomically marks a state nonce used, the same single-use
// UPDATE...RETURNING shape as AuthServerQueries.ConsumeState, so a
// provider callback replayed twice (e.g. a doubled browser redirect)
// can only complete the connect flow once.
func (q *ClientStateQueries) Consume(ctx context.Context, state string, now time.Time) (ClientStateRow, bool, error) {
	const sql = `
UPDATE oauth_client_states
SET used = true
WHERE state = $1 AND used = false AND expires_at > $2
RETURNING state, provider, user_id, tenant_id, redirect_to, scope, pkce_code_verifier, created_at, expires_at, used`
	var row ClientStateRow
	err := q.db.QueryRow(ctx, sql, state, now).Scan(
		&row.State, &row.Provider, &row.UserID, &row.TenantID, &row.RedirectTo,
		&row.Scope, &row.PKCECodeVerifier, &row.CreatedAt, &row.ExpiresAt, &row.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		return ClientStateRow{}, false, nil
	}
	if err != nil {
		return ClientStateRow{}, false, fmt.Errorf("storage: consume_client_state: %w", err)
	}
	return row, true, nil
}

// CleanExpired deletes lapsed or already-used state nonces, keeping
// oauth_client_states from growing unbounded.
func (q *ClientStateQueries) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM oauth_client_states WHERE expires_at <= $1 OR used = true`, now)
	if err != nil {
		return 0, fmt.Errorf("storage: clean_expired_client_states: %w", err)
	}
	return tag.RowsAffected(), nil
}
