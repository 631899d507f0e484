// Package identity implements the local identity bootstrap the security
// core needs even though it is not itself a federated identity provider
// (spec.md §1 Non-goals carve-out): register/login/change-password,
// password-reset, tenant creation, and invitation-based onboarding of
// additional tenant members. Grounded on the teacher's
// internal/auth/{service,login_service,registration_service,
// tenant_service,invitation_service,recovery,password,secure_compare,
// token}.go, with "tenant" generalized from a healthcare org to the
// fitness-platform tenant spec.md §3 defines and "role" narrowed to the
// owner|admin|member enum TenantMembership specifies.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/pierre-platform/security-core/internal/audit"
	"github.com/pierre-platform/security-core/internal/storage"
	"github.com/pierre-platform/security-core/internal/storage/queries"
	"github.com/pierre-platform/security-core/internal/tokens"
)

var (
	ErrPublicRegistrationDisabled = errors.New("identity: public registration is disabled")
	ErrEmailTaken                 = errors.New("identity: email already registered")
	ErrInvalidCredentials         = errors.New("identity: invalid email or password")
	ErrAccountSuspended           = errors.New("identity: account suspended")
	ErrTenantRequired             = errors.New("identity: tenant is required")
	ErrNotAMember                 = errors.New("identity: user is not a member of this tenant")
	ErrInvalidResetToken          = errors.New("identity: invalid or expired reset token")
	ErrInvalidInvitation          = errors.New("identity: invalid or expired invitation")
	ErrInvitationEmailMismatch    = errors.New("identity: account email does not match the invitation")
)

const (
	SessionTokenTTL     = 1 * time.Hour
	PasswordResetTTL    = 15 * time.Minute
	InvitationTTL       = 7 * 24 * time.Hour
)

// Mailer is the narrow outbound-notification contract the identity
// service needs; internal/notify.Mailer satisfies it.
type Mailer interface {
	SendPasswordReset(ctx context.Context, toEmail, rawToken, appURL string) error
	SendInvitation(ctx context.Context, toEmail, rawToken, appURL, tenantName string) error
}

// hmacDigester is satisfied by *vault.KeyManager; reset and invitation
// tokens are hashed the same keyed way as C3's refresh tokens and C6's
// API keys (C3's auth codes and state nonces are stored raw).
type hmacDigester interface {
	HMACDigest(token string) (string, error)
}

// Service is the identity bootstrap's single entry point.
type Service struct {
	users       *queries.UserQueries
	tenants     *queries.TenantQueries
	resetTokens *queries.PasswordResetQueries
	invitations *queries.InvitationQueries

	hasher PasswordHasher
	hmac   hmacDigester
	signer *tokens.Provider
	audit  audit.Logger
	mail   Mailer

	allowPublicRegistration bool
	defaultAppURL           string
}

// Config bundles the tunables a caller sets at construction. Grounded
// on the teacher's AuthService fields (config.AllowPublicRegistration,
// config.DefaultAppURL).
type Config struct {
	AllowPublicRegistration bool
	DefaultAppURL           string
}

func NewService(db storage.DBTX, hasher PasswordHasher, hmac hmacDigester, signer *tokens.Provider, auditLogger audit.Logger, mail Mailer, cfg Config) *Service {
	return &Service{
		users:                   queries.NewUserQueries(db),
		tenants:                 queries.NewTenantQueries(db),
		resetTokens:             queries.NewPasswordResetQueries(db),
		invitations:             queries.NewInvitationQueries(db),
		hasher:                  hasher,
		hmac:                    hmac,
		signer:                  signer,
		audit:                   auditLogger,
		mail:                    mail,
		allowPublicRegistration: cfg.AllowPublicRegistration,
		defaultAppURL:           cfg.DefaultAppURL,
	}
}
