package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pierre-platform/security-core/internal/audit"
	"github.com/pierre-platform/security-core/internal/storage"
	"github.com/pierre-platform/security-core/internal/storage/models"
	"github.com/pierre-platform/security-core/internal/storage/queries"
)

// UserToken is the decrypted, in-memory view of a UserOAuthToken row.
// The storage.models.UserOAuthToken struct names the at-rest (encrypted)
// shape; this is the plaintext shape callers above the vault work with.
type UserToken struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	TenantID     uuid.UUID
	Provider     string
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	Scope        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSync     time.Time
}

// TenantCredentials is the decrypted, in-memory view of a
// TenantOAuthCredentials row.
type TenantCredentials struct {
	TenantID        uuid.UUID
	Provider        string
	ClientID        string
	ClientSecret    string
	RedirectURI     string
	Scopes          []string
	RateLimitPerDay int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// userTokenAAD and tenantCredentialAAD build the canonical AAD strings
// from the GLOSSARY. Keep these as the only place the format strings
// are assembled so every call site binds consistently.
func userTokenAAD(tenantID, userID uuid.UUID, provider string) string {
	return fmt.Sprintf("%s|%s|%s|user_oauth_tokens", tenantID, userID, provider)
}

func tenantCredentialAAD(tenantID uuid.UUID, provider string) string {
	return fmt.Sprintf("%s|%s|tenant_oauth_credentials", tenantID, provider)
}

// Vault is the credential vault (C2): encrypted CRUD over
// TenantOAuthCredentials and UserOAuthToken, built on a KeyManager for
// AEAD and a storage.DBTX-backed query layer for persistence. Grounded
// on the teacher's storage.New / db.Queries wiring pattern, adapted to
// the hand-written query layer in internal/storage/queries.
type Vault struct {
	km     *KeyManager
	credQ  *queries.TenantOAuthCredentialsQueries
	tokenQ *queries.UserOAuthTokenQueries
	audit  audit.Logger
}

// NewVault constructs a Vault over db, which may be a *pgxpool.Pool or
// a pgx.Tx (anything satisfying storage.DBTX).
func NewVault(km *KeyManager, db storage.DBTX, auditLogger audit.Logger) *Vault {
	return &Vault{
		km:     km,
		credQ:  queries.NewTenantOAuthCredentialsQueries(db),
		tokenQ: queries.NewUserOAuthTokenQueries(db),
		audit:  auditLogger,
	}
}

// auditEncryptionFailed records a master-key-wrong or AAD-mismatch
// decryption failure. This is always a critical-severity event: it
// means either data corruption or an attempted tamper, never a normal
// operating condition (spec.md §8 Scenario 6).
func (v *Vault) auditEncryptionFailed(ctx context.Context, tenantID, userID uuid.UUID, resource string, cause error) {
	if v.audit == nil {
		return
	}
	event := models.AuditEvent{
		EventID:   uuid.New(),
		EventType: string(audit.EventEncryptionFailed),
		Severity:  models.SeverityCritical,
		Resource:  resource,
		Metadata:  map[string]any{"error": cause.Error()},
	}
	if tenantID != uuid.Nil {
		event.TenantID = &tenantID
	}
	if userID != uuid.Nil {
		event.UserID = &userID
	}
	v.audit.Log(ctx, event)
}

// PutUserToken upserts by (user_id, tenant_id, provider), encrypting
// access and refresh tokens under the per-user-token AAD. Never returns
// the plaintext that was previously stored.
func (v *Vault) PutUserToken(ctx context.Context, tok UserToken) error {
	aad := userTokenAAD(tok.TenantID, tok.UserID, tok.Provider)

	accessEnc, err := v.km.Encrypt([]byte(tok.AccessToken), aad)
	if err != nil {
		return fmt.Errorf("vault: encrypt access token: %w", err)
	}

	var refreshEnc string
	if tok.RefreshToken != "" {
		refreshEnc, err = v.km.Encrypt([]byte(tok.RefreshToken), aad)
		if err != nil {
			return fmt.Errorf("vault: encrypt refresh token: %w", err)
		}
	}

	id := tok.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := queries.UserOAuthTokenRow{
		ID:                    storage.PgUUID(id),
		UserID:                storage.PgUUID(tok.UserID),
		TenantID:              storage.PgUUID(tok.TenantID),
		Provider:              tok.Provider,
		AccessTokenEncrypted:  accessEnc,
		RefreshTokenEncrypted: storage.PgText(refreshEnc),
		TokenType:             tok.TokenType,
		ExpiresAt:             toTimestamptz(tok.ExpiresAt),
		Scope:                 storage.PgText(tok.Scope),
	}
	return v.tokenQ.Upsert(ctx, row)
}

// GetUserToken decrypts in-line; returns nil, nil if the row is absent.
// A zero tenantID performs the tenant-wide admin-dashboard lookup
// spec.md explicitly allows ("tenant_id = ⊥"); callers using that form
// are responsible for authorization.
func (v *Vault) GetUserToken(ctx context.Context, userID, tenantID uuid.UUID, provider string) (*UserToken, error) {
	row, err := v.tokenQ.Get(ctx, storage.PgUUID(userID), storage.PgUUID(tenantID), provider)
	if errors.Is(err, queries.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	actualTenantID := storage.FromPgUUID(row.TenantID)
	aad := userTokenAAD(actualTenantID, userID, provider)

	accessPlain, err := v.km.Decrypt(row.AccessTokenEncrypted, aad)
	if err != nil {
		v.auditEncryptionFailed(ctx, actualTenantID, userID, "user_oauth_tokens.access_token", err)
		return nil, fmt.Errorf("vault: decrypt access token: %w", err)
	}

	var refreshPlain string
	if row.RefreshTokenEncrypted.Valid {
		rp, err := v.km.Decrypt(row.RefreshTokenEncrypted.String, aad)
		if err != nil {
			v.auditEncryptionFailed(ctx, actualTenantID, userID, "user_oauth_tokens.refresh_token", err)
			return nil, fmt.Errorf("vault: decrypt refresh token: %w", err)
		}
		refreshPlain = string(rp)
	}

	return &UserToken{
		ID:           storage.FromPgUUID(row.ID),
		UserID:       userID,
		TenantID:     actualTenantID,
		Provider:     provider,
		AccessToken:  string(accessPlain),
		RefreshToken: refreshPlain,
		TokenType:    row.TokenType,
		ExpiresAt:    row.ExpiresAt.Time,
		Scope:        row.Scope.String,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
		LastSync:     row.LastSync.Time,
	}, nil
}

// DeleteUserToken hard-deletes a single (user, tenant, provider) row.
func (v *Vault) DeleteUserToken(ctx context.Context, userID, tenantID uuid.UUID, provider string) error {
	return v.tokenQ.Delete(ctx, storage.PgUUID(userID), storage.PgUUID(tenantID), provider)
}

// DeleteAllUserTokensInTenant hard-deletes every token a user has within a tenant.
func (v *Vault) DeleteAllUserTokensInTenant(ctx context.Context, userID, tenantID uuid.UUID) error {
	return v.tokenQ.DeleteAllInTenant(ctx, storage.PgUUID(userID), storage.PgUUID(tenantID))
}

// PutTenantOAuthCredentials upserts by (tenant_id, provider), encrypting
// the client secret under the per-tenant-credential AAD.
func (v *Vault) PutTenantOAuthCredentials(ctx context.Context, c TenantCredentials) error {
	aad := tenantCredentialAAD(c.TenantID, c.Provider)
	secretEnc, err := v.km.Encrypt([]byte(c.ClientSecret), aad)
	if err != nil {
		return fmt.Errorf("vault: encrypt client secret: %w", err)
	}

	row := queries.TenantOAuthCredentialsRow{
		TenantID:              storage.PgUUID(c.TenantID),
		Provider:              c.Provider,
		ClientID:              c.ClientID,
		ClientSecretEncrypted: secretEnc,
		RedirectURI:           c.RedirectURI,
		Scopes:                c.Scopes,
		RateLimitPerDay:       c.RateLimitPerDay,
	}
	return v.credQ.Upsert(ctx, row)
}

// GetTenantOAuthCredentials decrypts in-line; returns nil, nil if absent.
func (v *Vault) GetTenantOAuthCredentials(ctx context.Context, tenantID uuid.UUID, provider string) (*TenantCredentials, error) {
	row, err := v.credQ.Get(ctx, storage.PgUUID(tenantID), provider)
	if errors.Is(err, queries.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	aad := tenantCredentialAAD(tenantID, provider)
	secretPlain, err := v.km.Decrypt(row.ClientSecretEncrypted, aad)
	if err != nil {
		v.auditEncryptionFailed(ctx, tenantID, uuid.Nil, "tenant_oauth_credentials.client_secret", err)
		return nil, fmt.Errorf("vault: decrypt client secret: %w", err)
	}

	return &TenantCredentials{
		TenantID:        tenantID,
		Provider:        provider,
		ClientID:        row.ClientID,
		ClientSecret:    string(secretPlain),
		RedirectURI:     row.RedirectURI,
		Scopes:          row.Scopes,
		RateLimitPerDay: row.RateLimitPerDay,
		CreatedAt:       row.CreatedAt.Time,
		UpdatedAt:       row.UpdatedAt.Time,
	}, nil
}

// ListTenantOAuthProviders returns every provider a tenant has credentials for.
func (v *Vault) ListTenantOAuthProviders(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	return v.credQ.ListProviders(ctx, storage.PgUUID(tenantID))
}

func toTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
