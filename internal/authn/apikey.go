package authn

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pierre-platform/security-core/internal/config"
	"github.com/pierre-platform/security-core/internal/storage"
	"github.com/pierre-platform/security-core/internal/storage/queries"
)

// APIKeyManager mints and revokes tenant API keys in the "pk_<prefix>_
// <secret>" shape classifyAPIKey expects. Grounded on the teacher's
// token-generation idiom (internal/auth/recovery.go's GenerateSecureToken)
// applied to a second credential kind.
type APIKeyManager struct {
	keys  *queries.ApiKeyQueries
	hmac  hmacDigester
	tiers map[string]config.TierLimits
}

func NewAPIKeyManager(db storage.DBTX, hmac hmacDigester, tiers map[string]config.TierLimits) *APIKeyManager {
	return &APIKeyManager{keys: queries.NewApiKeyQueries(db), hmac: hmac, tiers: tiers}
}

// IssuedAPIKey is returned once, at creation time. RawKey is never
// recoverable afterward; only its HMAC digest is persisted.
type IssuedAPIKey struct {
	ID     uuid.UUID
	Prefix string
	RawKey string
}

// CreateInput is everything the issuer must supply, mirroring spec.md
// §3 ApiKey's full field set (user_id, tier, expires_at alongside the
// prefix/hash pair).
type CreateInput struct {
	TenantID    uuid.UUID
	UserID      uuid.UUID
	Name        string
	Description string
	Tier        string
	TTL         time.Duration // zero means the key never expires
}

// Create mints a new API key scoped to in.TenantID and in.UserID. The
// key's per-request burst allowance defaults from the tenant's tier
// limits at mint time (spec.md §3 rate_limit_requests/
// rate_limit_window_seconds), a point-in-time snapshot independent of
// whatever the tenant's tier later becomes.
func (m *APIKeyManager) Create(ctx context.Context, in CreateInput) (IssuedAPIKey, error) {
	prefixBytes := make([]byte, 4)
	if _, err := rand.Read(prefixBytes); err != nil {
		return IssuedAPIKey{}, fmt.Errorf("authn: generate api key prefix: %w", err)
	}
	prefix := "pk_" + hex.EncodeToString(prefixBytes)

	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		return IssuedAPIKey{}, fmt.Errorf("authn: generate api key secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)

	digest, err := m.hmac.HMACDigest(secret)
	if err != nil {
		return IssuedAPIKey{}, fmt.Errorf("authn: digest api key secret: %w", err)
	}

	var requests int64
	var windowSeconds int32
	if limits, ok := m.tiers[in.Tier]; ok {
		requests = int64(limits.Burst)
		windowSeconds = 60
	}

	var expiresAt pgtype.Timestamptz
	if in.TTL > 0 {
		expiresAt = pgtype.Timestamptz{Time: time.Now().Add(in.TTL), Valid: true}
	}

	id := uuid.New()
	if err := m.keys.Create(ctx, queries.ApiKeyRow{
		ID:                     storage.PgUUID(id),
		TenantID:               storage.PgUUID(in.TenantID),
		UserID:                 storage.PgUUID(in.UserID),
		Prefix:                 prefix,
		KeyHash:                digest,
		Name:                   in.Name,
		Description:            in.Description,
		Tier:                   in.Tier,
		RateLimitRequests:      requests,
		RateLimitWindowSeconds: windowSeconds,
		ExpiresAt:              expiresAt,
	}); err != nil {
		return IssuedAPIKey{}, err
	}

	return IssuedAPIKey{ID: id, Prefix: prefix, RawKey: prefix + "_" + secret}, nil
}

// Revoke permanently deactivates a key.
func (m *APIKeyManager) Revoke(ctx context.Context, id uuid.UUID) error {
	return m.keys.Revoke(ctx, storage.PgUUID(id))
}

// APIKeySummary is the non-secret view returned by List.
type APIKeySummary struct {
	ID         uuid.UUID
	Prefix     string
	Name       string
	Tier       string
	IsActive   bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
}

// List returns every key a tenant owns, including deactivated ones,
// never exposing the secret or its digest.
func (m *APIKeyManager) List(ctx context.Context, tenantID uuid.UUID) ([]APIKeySummary, error) {
	rows, err := m.keys.ListByTenant(ctx, storage.PgUUID(tenantID))
	if err != nil {
		return nil, err
	}
	out := make([]APIKeySummary, 0, len(rows))
	for _, row := range rows {
		summary := APIKeySummary{
			ID:        storage.FromPgUUID(row.ID),
			Prefix:    row.Prefix,
			Name:      row.Name,
			Tier:      row.Tier,
			IsActive:  row.IsActive,
			CreatedAt: row.CreatedAt.Time,
		}
		if row.LastUsedAt.Valid {
			t := row.LastUsedAt.Time
			summary.LastUsedAt = &t
		}
		if row.ExpiresAt.Valid {
			t := row.ExpiresAt.Time
			summary.ExpiresAt = &t
		}
		out = append(out, summary)
	}
	return out, nil
}
