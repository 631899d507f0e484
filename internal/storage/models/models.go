// Package models defines the persisted entities of the security core.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Plan is a tenant's billing plan.
type Plan string

const (
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

// Tier mirrors Plan for user-level quota lookups (spec.md §4.6).
type Tier string

const (
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// MembershipRole is a user's role within a tenant.
type MembershipRole string

const (
	RoleOwner  MembershipRole = "owner"
	RoleAdmin  MembershipRole = "admin"
	RoleMember MembershipRole = "member"
)

// UserStatus is the lifecycle state of a User.
type UserStatus string

const (
	StatusPending   UserStatus = "pending"
	StatusActive    UserStatus = "active"
	StatusSuspended UserStatus = "suspended"
)

// PKCEMethod is the code_challenge_method of an authorization request.
type PKCEMethod string

const (
	PKCEPlain PKCEMethod = "plain"
	PKCES256  PKCEMethod = "S256"
)

// Tenant is a billing and isolation boundary (spec.md §3).
type Tenant struct {
	ID          uuid.UUID
	Name        string
	Slug        string
	Domain      string
	Plan        Plan
	OwnerUserID uuid.UUID
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TenantMembership is the many-to-many join between Tenant and User.
type TenantMembership struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Role     MembershipRole
}

// User is a platform account, tenant-scoped through TenantMembership.
type User struct {
	ID           uuid.UUID
	Email        string
	DisplayName  string
	PasswordHash string
	Tier         Tier
	Status       UserStatus
	IsAdmin      bool
	ApprovedAt   *time.Time
	CreatedAt    time.Time
	LastActive   time.Time
}

// TenantOAuthCredentials is a tenant's overridden OAuth app credentials
// for a given fitness provider (spec.md §3). ClientSecretEncrypted is
// ciphertext produced by vault.KeyManager under AAD
// "{tenant_id}|{provider}|tenant_oauth_credentials".
type TenantOAuthCredentials struct {
	TenantID              uuid.UUID
	Provider              string
	ClientID              string
	ClientSecretEncrypted string
	RedirectURI           string
	Scopes                []string
	RateLimitPerDay        int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// UserOAuthToken is a user's provider token, encrypted at rest under AAD
// "{tenant_id}|{user_id}|{provider}|user_oauth_tokens".
type UserOAuthToken struct {
	ID                    uuid.UUID
	UserID                uuid.UUID
	TenantID              uuid.UUID
	Provider              string
	AccessTokenEncrypted  string
	RefreshTokenEncrypted string
	TokenType             string
	ExpiresAt             *time.Time
	Scope                 string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	LastSync              *time.Time
}

// AuthorizationServerClient is a registered client of Pierre's own
// OAuth 2.0 authorization server (C5).
type AuthorizationServerClient struct {
	ID              uuid.UUID
	ClientID        string
	ClientSecretHash string // empty for public clients
	RedirectURIs    []string
	GrantTypes      []string
	ResponseTypes   []string
	ClientName      string
	Scope           string
	CreatedAt       time.Time
	ExpiresAt       *time.Time
}

// IsConfidential reports whether the client must authenticate with a secret.
func (c AuthorizationServerClient) IsConfidential() bool {
	return c.ClientSecretHash != ""
}

// AuthorizationCode is a single-use PKCE-bound grant (spec.md §3, §4.5).
type AuthorizationCode struct {
	Code                string
	ClientID            string
	UserID              uuid.UUID
	TenantID            uuid.UUID
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod PKCEMethod
	ExpiresAt           time.Time
	Used                bool
	State               string
}

// RefreshToken is the authorization server's own refresh token record.
// Only TokenHash (an HMAC digest) is ever persisted.
type RefreshToken struct {
	TokenHash string
	ClientID  string
	UserID    uuid.UUID
	TenantID  uuid.UUID
	Scope     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// OAuth2State is an anti-CSRF nonce for the authorize step.
type OAuth2State struct {
	State               string
	ClientID            string
	UserID              uuid.UUID
	TenantID            uuid.UUID
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod PKCEMethod
	CreatedAt           time.Time
	ExpiresAt           time.Time
	Used                bool
}

// OAuthClientState is Pierre's own outbound-PKCE bookkeeping when it
// acts as a client against a fitness provider (spec.md §3).
type OAuthClientState struct {
	State             string
	Provider          string
	UserID            uuid.UUID
	TenantID          uuid.UUID
	RedirectURI       string
	Scope             string
	PKCECodeVerifier  string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	Used              bool
}

// PasswordResetToken backs the identity bootstrap's password-reset flow.
type PasswordResetToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedBy string
	UsedAt    *time.Time
}

// Invitation onboards an additional member into an existing Tenant
// (identity bootstrap's invitation-based flow). TokenHash is the HMAC
// digest the invitation link carries; the raw token is mailed and never
// persisted.
type Invitation struct {
	TokenHash string
	TenantID  uuid.UUID
	Email     string
	Role      MembershipRole
	InvitedBy uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

// ApiKey is a long-lived, prefix-addressable API credential (spec.md
// §3). Field names and types mirror queries.ApiKeyRow, the shape
// actually read from and written to the api_keys table; this struct is
// the plaintext, nullable-pointer view of the same entity used outside
// the storage package.
type ApiKey struct {
	ID                     uuid.UUID
	TenantID               uuid.UUID
	UserID                 uuid.UUID
	Prefix                 string
	KeyHash                string
	Name                   string
	Description            string
	Tier                   Tier
	RateLimitRequests      int64
	RateLimitWindowSeconds int32
	IsActive               bool
	CreatedAt              time.Time
	LastUsedAt             *time.Time
	ExpiresAt              *time.Time
}

// Severity is the level of an AuditEvent.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// AuditEvent is an append-only, security-relevant record (spec.md §3, §4.7).
type AuditEvent struct {
	EventID     uuid.UUID
	EventType   string
	Severity    Severity
	Timestamp   time.Time
	UserID      *uuid.UUID
	TenantID    *uuid.UUID
	SourceIP    string
	SessionID   *uuid.UUID
	Description string
	Metadata    map[string]any
	Resource    string
	Action      string
	Result      string
}
