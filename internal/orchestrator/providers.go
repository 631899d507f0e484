// Package orchestrator implements the Client Orchestrator (C4): given
// (tenant, user, provider), produces a valid bearer token for an
// upstream fitness provider without exposing the refresh flow to
// callers, transparently resolving credentials and refreshing expired
// tokens (spec.md §4.4).
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/pierre-platform/security-core/internal/audit"
	"github.com/pierre-platform/security-core/internal/config"
	"github.com/pierre-platform/security-core/internal/storage/models"
	"github.com/pierre-platform/security-core/internal/vault"
)

var (
	ErrProviderNotConfigured = errors.New("orchestrator: provider not configured")
	ErrNotConnected          = errors.New("orchestrator: user has not connected this provider")
	ErrReauthorize           = errors.New("orchestrator: refresh token rejected, user must reconnect")
	ErrTenantRateLimited     = errors.New("orchestrator: tenant daily rate limit exceeded")
)

// ResolvedCredentials is what the three-tier resolution order in
// Resolve produces: an oauth2.Config ready to drive a token
// refresh, plus the daily rate limit that credential tier carries.
type ResolvedCredentials struct {
	OAuth2Config    *oauth2.Config
	RateLimitPerDay int64
}

// CredentialResolver is the three-tier lookup spec.md §4.4 names:
// explicit override (test fixtures only), tenant-specific credentials,
// then platform-wide fallback.
type CredentialResolver struct {
	providers             map[string]config.ProviderConfig
	allowFallback         bool
	allowExplicitOverride bool // disabled in production builds
	v                     *vault.Vault
	audit                 audit.Logger
}

func NewCredentialResolver(providers map[string]config.ProviderConfig, v *vault.Vault, allowFallback, allowExplicitOverride bool, auditLogger audit.Logger) *CredentialResolver {
	return &CredentialResolver{
		providers:             providers,
		v:                     v,
		allowFallback:         allowFallback,
		allowExplicitOverride: allowExplicitOverride,
		audit:                 auditLogger,
	}
}

// auditCredsAccessed records which credential tier served a provider
// token request (spec.md §4.7 oauth_creds_accessed).
func (r *CredentialResolver) auditCredsAccessed(ctx context.Context, tenantID uuid.UUID, provider, source string) {
	if r.audit == nil {
		return
	}
	r.audit.Log(ctx, models.AuditEvent{
		EventID:   uuid.New(),
		EventType: string(audit.EventOAuthCredsAccessed),
		Severity:  models.SeverityInfo,
		TenantID:  &tenantID,
		Metadata:  map[string]any{"provider": provider, "source": source},
	})
}

// explicitOverride is an unexported type, so only code inside this
// package can supply one; every production code path passes nil.
type explicitOverride struct {
	clientID, clientSecret, redirectURI string
	rateLimitPerDay                     int64
}

// Resolve implements the tier order: explicit override (if the build
// allows it and one is supplied), tenant row, platform fallback.
func (r *CredentialResolver) Resolve(ctx context.Context, tenantID uuid.UUID, provider string, override *explicitOverride) (ResolvedCredentials, error) {
	pc, known := r.providers[provider]
	if !known {
		return ResolvedCredentials{}, ErrProviderNotConfigured
	}

	if r.allowExplicitOverride && override != nil {
		slog.Info("credential_source_selected", "tenant_id", tenantID, "provider", provider, "source", "explicit_override")
		r.auditCredsAccessed(ctx, tenantID, provider, "explicit_override")
		return ResolvedCredentials{
			OAuth2Config:    buildOAuth2Config(pc, override.clientID, override.clientSecret, override.redirectURI),
			RateLimitPerDay: override.rateLimitPerDay,
		}, nil
	}

	if r.v != nil {
		tc, err := r.v.GetTenantOAuthCredentials(ctx, tenantID, provider)
		if err == nil && tc != nil {
			slog.Info("credential_source_selected", "tenant_id", tenantID, "provider", provider, "source", "tenant_row")
			r.auditCredsAccessed(ctx, tenantID, provider, "tenant_row")
			return ResolvedCredentials{
				OAuth2Config:    buildOAuth2Config(pc, tc.ClientID, tc.ClientSecret, tc.RedirectURI),
				RateLimitPerDay: tc.RateLimitPerDay,
			}, nil
		}
	}

	if r.allowFallback && pc.DefaultClientID != "" {
		slog.Info("credential_source_selected", "tenant_id", tenantID, "provider", provider, "source", "platform_fallback")
		r.auditCredsAccessed(ctx, tenantID, provider, "platform_fallback")
		return ResolvedCredentials{
			OAuth2Config:    buildOAuth2Config(pc, pc.DefaultClientID, pc.DefaultSecret, ""),
			RateLimitPerDay: pc.RateLimitPerDay,
		}, nil
	}

	return ResolvedCredentials{}, ErrProviderNotConfigured
}

func buildOAuth2Config(pc config.ProviderConfig, clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  pc.AuthorizeURL,
			TokenURL: pc.TokenURL,
		},
	}
}

// isInvalidGrant reports whether err signals the provider rejected the
// refresh token outright (spec.md §4.4 step 4), as opposed to a
// transient failure the caller should retry.
func isInvalidGrant(err error) bool {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		return rErr.ErrorCode == "invalid_grant"
	}
	return false
}

// safetyMarginExpired reports whether a token with the given expiry
// needs refreshing: now + safety_margin >= expires_at.
func safetyMarginExpired(now, expiresAt time.Time, safetyMargin time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return !now.Add(safetyMargin).Before(expiresAt)
}
