// Package authserver implements Pierre's own OAuth 2.0 authorization
// server: the single-use state store (C3) and the Authorization Code +
// PKCE protocol engine (C5) built on top of it.
package authserver

import (
	"context"
	"time"

	"github.com/pierre-platform/security-core/internal/storage"
	"github.com/pierre-platform/security-core/internal/storage/models"
	"github.com/pierre-platform/security-core/internal/storage/queries"
)

// ErrNotFound mirrors queries.ErrNotFound for callers outside the
// storage package.
var ErrNotFound = queries.ErrNotFound

// Store is the Authorization Server State Store (C3): atomic
// single-use consumption for authorization codes, refresh tokens, and
// CSRF state nonces, plus client registration CRUD. Every consume
// primitive is a single UPDATE...RETURNING so two concurrent consumes
// on the same artifact resolve to exactly one success and one "not
// found" (spec.md §4.3).
type Store struct {
	q *queries.AuthServerQueries
}

func NewStore(db storage.DBTX) *Store {
	return &Store{q: queries.NewAuthServerQueries(db)}
}

// RegisterClient persists a newly registered authorization-server client.
func (s *Store) RegisterClient(ctx context.Context, c models.AuthorizationServerClient) error {
	var expiresAt time.Time
	if c.ExpiresAt != nil {
		expiresAt = *c.ExpiresAt
	}
	row := queries.AuthorizationServerClientRow{
		ID:               storage.PgUUID(c.ID),
		ClientID:         c.ClientID,
		ClientSecretHash: c.ClientSecretHash,
		RedirectURIs:     c.RedirectURIs,
		GrantTypes:       c.GrantTypes,
		ResponseTypes:    c.ResponseTypes,
		ClientName:       c.ClientName,
		Scope:            c.Scope,
		ExpiresAt:        storage.PgTimestamptz(expiresAt),
	}
	return s.q.RegisterClient(ctx, row)
}

// GetClient fetches a registered client by its public client_id.
func (s *Store) GetClient(ctx context.Context, clientID string) (models.AuthorizationServerClient, error) {
	row, err := s.q.GetClient(ctx, clientID)
	if err != nil {
		return models.AuthorizationServerClient{}, err
	}
	out := models.AuthorizationServerClient{
		ID:               storage.FromPgUUID(row.ID),
		ClientID:         row.ClientID,
		ClientSecretHash: row.ClientSecretHash,
		RedirectURIs:     row.RedirectURIs,
		GrantTypes:       row.GrantTypes,
		ResponseTypes:    row.ResponseTypes,
		ClientName:       row.ClientName,
		Scope:            row.Scope,
		CreatedAt:        row.CreatedAt.Time,
	}
	if row.ExpiresAt.Valid {
		t := row.ExpiresAt.Time
		out.ExpiresAt = &t
	}
	return out, nil
}

// StoreAuthCode persists a freshly minted authorization code.
func (s *Store) StoreAuthCode(ctx context.Context, code models.AuthorizationCode) error {
	row := queries.AuthorizationCodeRow{
		Code:                code.Code,
		ClientID:            code.ClientID,
		UserID:              storage.PgUUID(code.UserID),
		TenantID:            storage.PgUUID(code.TenantID),
		RedirectURI:         code.RedirectURI,
		Scope:               code.Scope,
		CodeChallenge:       code.CodeChallenge,
		CodeChallengeMethod: string(code.CodeChallengeMethod),
		ExpiresAt:           storage.PgTimestamptz(code.ExpiresAt),
		State:               storage.PgText(code.State),
	}
	return s.q.StoreAuthCode(ctx, row)
}

// ConsumeAuthCode atomically marks an authorization code used. Returns
// ok=false with a nil error if the code does not exist, is already
// used, is expired, or does not match client_id/redirect_uri.
func (s *Store) ConsumeAuthCode(ctx context.Context, code, clientID, redirectURI string, now time.Time) (models.AuthorizationCode, bool, error) {
	row, ok, err := s.q.ConsumeAuthCode(ctx, code, clientID, redirectURI, now)
	if err != nil || !ok {
		return models.AuthorizationCode{}, false, err
	}
	return models.AuthorizationCode{
		Code:                row.Code,
		ClientID:            row.ClientID,
		UserID:              storage.FromPgUUID(row.UserID),
		TenantID:            storage.FromPgUUID(row.TenantID),
		RedirectURI:         row.RedirectURI,
		Scope:               row.Scope,
		CodeChallenge:       row.CodeChallenge,
		CodeChallengeMethod: models.PKCEMethod(row.CodeChallengeMethod),
		ExpiresAt:           row.ExpiresAt.Time,
		Used:                row.Used,
		State:               row.State.String,
	}, true, nil
}

// StoreRefreshToken persists a refresh token record keyed by its HMAC digest.
func (s *Store) StoreRefreshToken(ctx context.Context, rt models.RefreshToken) error {
	row := queries.RefreshTokenRow{
		TokenHash: rt.TokenHash,
		ClientID:  rt.ClientID,
		UserID:    storage.PgUUID(rt.UserID),
		TenantID:  storage.PgUUID(rt.TenantID),
		Scope:     rt.Scope,
		ExpiresAt: storage.PgTimestamptz(rt.ExpiresAt),
	}
	return s.q.StoreRefreshToken(ctx, row)
}

// ConsumeRefreshToken atomically revokes the token identified by
// tokenHash if it is bound to clientID, unrevoked and unexpired.
func (s *Store) ConsumeRefreshToken(ctx context.Context, tokenHash, clientID string, now time.Time) (models.RefreshToken, bool, error) {
	row, ok, err := s.q.ConsumeRefreshToken(ctx, tokenHash, clientID, now)
	if err != nil || !ok {
		return models.RefreshToken{}, false, err
	}
	return models.RefreshToken{
		TokenHash: row.TokenHash,
		ClientID:  row.ClientID,
		UserID:    storage.FromPgUUID(row.UserID),
		TenantID:  storage.FromPgUUID(row.TenantID),
		Scope:     row.Scope,
		CreatedAt: row.CreatedAt.Time,
		ExpiresAt: row.ExpiresAt.Time,
		Revoked:   row.Revoked,
	}, true, nil
}

// PeekRefreshToken is a read-only lookup by the raw token's HMAC
// digest, for the request authenticator's agent-token classification,
// which must not consume the token on a mere authentication check.
func (s *Store) PeekRefreshToken(ctx context.Context, tokenHash string) (models.RefreshToken, error) {
	row, err := s.q.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		return models.RefreshToken{}, err
	}
	return models.RefreshToken{
		TokenHash: row.TokenHash,
		ClientID:  row.ClientID,
		UserID:    storage.FromPgUUID(row.UserID),
		TenantID:  storage.FromPgUUID(row.TenantID),
		Scope:     row.Scope,
		CreatedAt: row.CreatedAt.Time,
		ExpiresAt: row.ExpiresAt.Time,
		Revoked:   row.Revoked,
	}, nil
}

// RevokeRefreshToken is an idempotent unconditional revoke.
func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	return s.q.RevokeRefreshToken(ctx, tokenHash)
}

// StoreState persists an anti-CSRF nonce for the authorize step.
func (s *Store) StoreState(ctx context.Context, st models.OAuth2State) error {
	row := queries.OAuth2StateRow{
		State:               st.State,
		ClientID:            st.ClientID,
		UserID:              storage.PgUUID(st.UserID),
		TenantID:            storage.PgUUID(st.TenantID),
		RedirectURI:         st.RedirectURI,
		Scope:               st.Scope,
		CodeChallenge:       st.CodeChallenge,
		CodeChallengeMethod: string(st.CodeChallengeMethod),
		ExpiresAt:           storage.PgTimestamptz(st.ExpiresAt),
	}
	return s.q.StoreState(ctx, row)
}

// ConsumeState atomically marks a CSRF nonce used.
func (s *Store) ConsumeState(ctx context.Context, state string, now time.Time) (models.OAuth2State, bool, error) {
	row, ok, err := s.q.ConsumeState(ctx, state, now)
	if err != nil || !ok {
		return models.OAuth2State{}, false, err
	}
	return models.OAuth2State{
		State:               row.State,
		ClientID:            row.ClientID,
		UserID:              storage.FromPgUUID(row.UserID),
		TenantID:            storage.FromPgUUID(row.TenantID),
		RedirectURI:         row.RedirectURI,
		Scope:               row.Scope,
		CodeChallenge:       row.CodeChallenge,
		CodeChallengeMethod: models.PKCEMethod(row.CodeChallengeMethod),
		CreatedAt:           row.CreatedAt.Time,
		ExpiresAt:           row.ExpiresAt.Time,
		Used:                row.Used,
	}, true, nil
}

