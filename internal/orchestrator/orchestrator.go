package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/pierre-platform/security-core/internal/audit"
	"github.com/pierre-platform/security-core/internal/storage/models"
	"github.com/pierre-platform/security-core/internal/vault"
)

// Orchestrator is the Client Orchestrator (C4): given (tenant, user,
// provider) it produces a valid bearer token for the upstream fitness
// provider, resolving credentials and transparently refreshing expired
// tokens through the vault (spec.md §4.4).
type Orchestrator struct {
	vault        *vault.Vault
	resolver     *CredentialResolver
	rates        *RateTracker
	safetyMargin time.Duration
	audit        audit.Logger
}

func New(v *vault.Vault, resolver *CredentialResolver, rates *RateTracker, safetyMargin time.Duration, auditLogger audit.Logger) *Orchestrator {
	return &Orchestrator{vault: v, resolver: resolver, rates: rates, safetyMargin: safetyMargin, audit: auditLogger}
}

// GetAccessToken implements the fetch algorithm of spec.md §4.4:
//
//  1. Read the stored token. Absent means NotConnected.
//  2. If unexpired past the safety margin, return it directly (Fresh).
//  3. Otherwise resolve credentials, refresh against the provider, and
//     persist the new token back through the vault under the same AAD
//     (Expired -> Fresh).
//  4. A provider-reported invalid_grant deletes the stored token,
//     forcing the caller to reconnect (Expired -> Absent).
func (o *Orchestrator) GetAccessToken(ctx context.Context, userID, tenantID uuid.UUID, provider string) (string, error) {
	tok, err := o.vault.GetUserToken(ctx, userID, tenantID, provider)
	if err != nil {
		return "", fmt.Errorf("orchestrator: get_user_token: %w", err)
	}
	if tok == nil {
		return "", ErrNotConnected
	}

	now := time.Now()
	if !safetyMarginExpired(now, tok.ExpiresAt, o.safetyMargin) {
		return tok.AccessToken, nil
	}

	creds, err := o.resolver.Resolve(ctx, tenantID, provider, nil)
	if err != nil {
		return "", err
	}
	if !o.rates.Allow(tenantID.String(), provider, creds.RateLimitPerDay, now) {
		return "", ErrTenantRateLimited
	}

	refreshed, err := creds.OAuth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	if err != nil {
		if isInvalidGrant(err) {
			o.rates.RecordFailure(tenantID.String(), provider, now)
			if delErr := o.vault.DeleteUserToken(ctx, userID, tenantID, provider); delErr != nil {
				return "", fmt.Errorf("orchestrator: delete_user_token after invalid_grant: %w", delErr)
			}
			return "", ErrReauthorize
		}
		o.rates.RecordFailure(tenantID.String(), provider, now)
		return "", fmt.Errorf("orchestrator: refresh failed (transient, retry with backoff): %w", err)
	}

	newRefresh := refreshed.RefreshToken
	if newRefresh == "" {
		newRefresh = tok.RefreshToken // providers may omit an unchanged refresh token
	}

	tok.AccessToken = refreshed.AccessToken
	tok.RefreshToken = newRefresh
	tok.ExpiresAt = refreshed.Expiry
	tok.UpdatedAt = now

	if err := o.vault.PutUserToken(ctx, *tok); err != nil {
		return "", fmt.Errorf("orchestrator: put_user_token after refresh: %w", err)
	}

	o.rates.RecordSuccess(tenantID.String(), provider, now)
	if o.audit != nil {
		o.audit.Log(ctx, models.AuditEvent{
			EventID:   uuid.New(),
			EventType: string(audit.EventTokenRefreshed),
			Severity:  models.SeverityInfo,
			UserID:    &userID,
			TenantID:  &tenantID,
			Metadata:  map[string]any{"provider": provider},
		})
	}
	return refreshed.AccessToken, nil
}

// Disconnect removes a user's stored token for a provider (the
// Fresh --delete--> Absent edge of the state machine), e.g. on
// explicit user-initiated disconnect.
func (o *Orchestrator) Disconnect(ctx context.Context, userID, tenantID uuid.UUID, provider string) error {
	return o.vault.DeleteUserToken(ctx, userID, tenantID, provider)
}

// Connect stores the initial token pair obtained from the provider's
// authorization_code exchange (the Absent --put--> Fresh edge).
func (o *Orchestrator) Connect(ctx context.Context, tok vault.UserToken) error {
	return o.vault.PutUserToken(ctx, tok)
}
