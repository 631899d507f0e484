// Package authn implements the Request Authenticator & Rate Limiter
// (C6): classifies inbound bearer credentials in order of specificity,
// yielding a Principal, and enforces the tenant-tier rate-limit matrix
// (spec.md §4.6).
package authn

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pierre-platform/security-core/internal/audit"
	"github.com/pierre-platform/security-core/internal/authserver"
	"github.com/pierre-platform/security-core/internal/storage"
	"github.com/pierre-platform/security-core/internal/storage/models"
	"github.com/pierre-platform/security-core/internal/storage/queries"
	"github.com/pierre-platform/security-core/internal/tokens"
)

// ErrUnauthenticated is returned when no classifier recognizes the
// credential, or the credential that matched a shape fails validation.
// It never hints which kind was expected (spec.md §4.6).
var ErrUnauthenticated = errors.New("authn: unauthenticated")

// AuthMethod distinguishes how a request was authenticated.
type AuthMethod string

const (
	AuthMethodSession AuthMethod = "session"
	AuthMethodAPIKey  AuthMethod = "api_key"
	AuthMethodAgent   AuthMethod = "agent"
)

// Principal is the authenticated identity of a request, grounded on
// the teacher's context.go UserIDKey/TenantIDKey/RoleKey triple but
// generalized into a single value the middleware can inject in one
// context.WithValue call.
type Principal struct {
	UserID     uuid.UUID
	TenantID   uuid.UUID
	Email      string
	Tier       string
	Role       string
	Scopes     string
	AuthMethod AuthMethod
}

// hmacDigester is satisfied by *vault.KeyManager.
type hmacDigester interface {
	HMACDigest(token string) (string, error)
}

// Authenticator runs the three-way classification spec.md §4.6 names.
type Authenticator struct {
	signer    *tokens.Provider
	apiKeys   *queries.ApiKeyQueries
	hmac      hmacDigester
	authStore *authserver.Store
	audit     audit.Logger
}

func NewAuthenticator(signer *tokens.Provider, db storage.DBTX, hmac hmacDigester, authStore *authserver.Store, auditLogger audit.Logger) *Authenticator {
	return &Authenticator{
		signer:    signer,
		apiKeys:   queries.NewApiKeyQueries(db),
		hmac:      hmac,
		authStore: authStore,
		audit:     auditLogger,
	}
}

// Authenticate classifies credential and returns the resulting
// Principal. Exactly one of the three shapes may match; an ambiguous or
// malformed credential fails closed with ErrUnauthenticated. Every
// failure is recorded as an auth_failed event (spec.md §4.7); a
// successful api_key classification separately records api_key_used.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		a.auditAuthFailed(ctx, "empty_credential")
		return Principal{}, ErrUnauthenticated
	}

	var (
		principal Principal
		err       error
		method    string
	)
	switch {
	case tokens.LooksLikeJWT(credential):
		method = "session"
		principal, err = a.classifySessionToken(credential)
	case strings.HasPrefix(credential, "pk_"):
		method = "api_key"
		principal, err = a.classifyAPIKey(ctx, credential)
	default:
		method = "agent"
		principal, err = a.classifyAgentToken(ctx, credential)
	}

	if err != nil {
		a.auditAuthFailed(ctx, method)
		return Principal{}, err
	}
	return principal, nil
}

func (a *Authenticator) auditAuthFailed(ctx context.Context, method string) {
	if a.audit == nil {
		return
	}
	a.audit.Log(ctx, models.AuditEvent{
		EventID:   uuid.New(),
		EventType: string(audit.EventAuthFailed),
		Severity:  models.SeverityWarning,
		Metadata:  map[string]any{"method": method},
	})
}

// classifySessionToken decodes and verifies a signed session JWT:
// select key by kid (handled inside tokens.Provider.Validate against
// its own keypair), verify signature, exp/nbf/iss.
func (a *Authenticator) classifySessionToken(credential string) (Principal, error) {
	claims, err := a.signer.Validate(credential)
	if err != nil {
		return Principal{}, ErrUnauthenticated
	}
	if claims.Kind != "session" {
		return Principal{}, ErrUnauthenticated
	}
	return Principal{
		UserID:     claims.UserID,
		TenantID:   claims.TenantID,
		Role:       claims.Role,
		AuthMethod: AuthMethodSession,
	}, nil
}

// classifyAPIKey splits "pk_<prefix>_<secret>" at the delimiter, looks
// up the ApiKey row by prefix, and compares hash(secret) in constant
// time (grounded on the teacher's SecureCompareTokens idiom,
// internal/auth/secure_compare.go). Per spec.md §4.6 item 2 this also
// verifies is_active and expires_at before the key is trusted.
func (a *Authenticator) classifyAPIKey(ctx context.Context, credential string) (Principal, error) {
	rest := strings.TrimPrefix(credential, "pk_")
	idx := strings.Index(rest, "_")
	if idx <= 0 || idx == len(rest)-1 {
		return Principal{}, ErrUnauthenticated
	}
	prefix, secret := "pk_"+rest[:idx], rest[idx+1:]

	row, err := a.apiKeys.GetByPrefix(ctx, prefix)
	if err != nil {
		return Principal{}, ErrUnauthenticated
	}

	digest, err := a.hmac.HMACDigest(secret)
	if err != nil {
		return Principal{}, fmt.Errorf("authn: digest_api_key: %w", err)
	}
	if subtle.ConstantTimeCompare([]byte(digest), []byte(row.KeyHash)) != 1 {
		return Principal{}, ErrUnauthenticated
	}

	if !row.IsActive {
		return Principal{}, ErrUnauthenticated
	}
	if row.ExpiresAt.Valid && !time.Now().Before(row.ExpiresAt.Time) {
		return Principal{}, ErrUnauthenticated
	}

	if err := a.apiKeys.TouchLastUsed(ctx, row.ID); err != nil {
		return Principal{}, fmt.Errorf("authn: touch_last_used: %w", err)
	}

	userID := storage.FromPgUUID(row.UserID)
	tenantID := storage.FromPgUUID(row.TenantID)
	if a.audit != nil {
		a.audit.Log(ctx, models.AuditEvent{
			EventID:   uuid.New(),
			EventType: string(audit.EventAPIKeyUsed),
			Severity:  models.SeverityInfo,
			UserID:    &userID,
			TenantID:  &tenantID,
			Metadata:  map[string]any{"prefix": row.Prefix},
		})
	}

	return Principal{
		UserID:     userID,
		TenantID:   tenantID,
		Tier:       row.Tier,
		AuthMethod: AuthMethodAPIKey,
	}, nil
}

// classifyAgentToken treats the credential as an opaque agent session
// token: the raw value minted by C5's refresh-token issuance, looked up
// by its HMAC digest through C3's atomic consume-safe tables. This does
// not consume the token (a read-only lookup would be required here;
// agent tokens are validated, not spent, on every request) — it checks
// the refresh token exists, is unrevoked, and unexpired via a direct
// read instead of C3's consume primitive, since authentication must be
// idempotent across retries.
func (a *Authenticator) classifyAgentToken(ctx context.Context, credential string) (Principal, error) {
	digest, err := a.hmac.HMACDigest(credential)
	if err != nil {
		return Principal{}, fmt.Errorf("authn: digest_agent_token: %w", err)
	}

	rt, err := a.authStore.PeekRefreshToken(ctx, digest)
	if err != nil {
		return Principal{}, ErrUnauthenticated
	}
	if rt.Revoked || !time.Now().Before(rt.ExpiresAt) {
		return Principal{}, ErrUnauthenticated
	}

	return Principal{
		UserID:     rt.UserID,
		TenantID:   rt.TenantID,
		Scopes:     rt.Scope,
		AuthMethod: AuthMethodAgent,
	}, nil
}
