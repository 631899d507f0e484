package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pierre-platform/security-core/internal/storage"
	"github.com/pierre-platform/security-core/internal/storage/models"
	"github.com/pierre-platform/security-core/internal/storage/queries"
)

// InviteMember mints an invitation for email to join tenantID with
// role, grounded on the teacher's CreateInvitation.
func (s *Service) InviteMember(ctx context.Context, tenantID, invitedBy uuid.UUID, email string, role models.MembershipRole) error {
	email = strings.ToLower(strings.TrimSpace(email))

	tenant, err := s.tenants.Get(ctx, storage.PgUUID(tenantID))
	if err != nil {
		return fmt.Errorf("identity: lookup tenant: %w", err)
	}

	rawToken, err := randomToken(32)
	if err != nil {
		return err
	}
	digest, err := s.hmac.HMACDigest(rawToken)
	if err != nil {
		return fmt.Errorf("identity: digest invitation token: %w", err)
	}

	if err := s.invitations.Create(ctx, queries.InvitationRow{
		TokenHash: digest,
		TenantID:  storage.PgUUID(tenantID),
		Email:     email,
		Role:      string(role),
		InvitedBy: storage.PgUUID(invitedBy),
		ExpiresAt: storage.PgTimestamptz(time.Now().Add(InvitationTTL)),
	}); err != nil {
		return fmt.Errorf("identity: store invitation: %w", err)
	}

	return s.mail.SendInvitation(ctx, email, rawToken, s.defaultAppURL, tenant.Name)
}

// AcceptInvitationInput is the data needed to redeem an invitation.
// Password is only used when the invited email has no existing account
// yet; for an existing account the invitation simply grants membership.
type AcceptInvitationInput struct {
	RawToken string
	Password string
}

// AcceptInvitation consumes an invitation atomically and either creates
// a fresh account or attaches an existing one to the inviting tenant,
// mirroring the teacher's RegisterWithInvite but without forcing a
// second, unwanted personal tenant into existence.
func (s *Service) AcceptInvitation(ctx context.Context, in AcceptInvitationInput) (models.User, error) {
	digest, err := s.hmac.HMACDigest(in.RawToken)
	if err != nil {
		return models.User{}, fmt.Errorf("identity: digest invitation token: %w", err)
	}

	invite, ok, err := s.invitations.Consume(ctx, digest, time.Now())
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, ErrInvalidInvitation
	}

	tenantID := storage.FromPgUUID(invite.TenantID)
	role := models.MembershipRole(invite.Role)

	existing, err := s.users.GetByEmail(ctx, invite.Email)
	var userID uuid.UUID
	switch {
	case err == nil:
		userID = storage.FromPgUUID(existing.ID)
	case err == queries.ErrNotFound:
		hash, hashErr := s.hasher.Hash(in.Password)
		if hashErr != nil {
			return models.User{}, hashErr
		}
		userID = uuid.New()
		if createErr := s.users.Create(ctx, queries.UserRow{
			ID:           storage.PgUUID(userID),
			Email:        invite.Email,
			PasswordHash: hash,
			Status:       string(models.StatusActive),
		}); createErr != nil {
			return models.User{}, fmt.Errorf("identity: create invited user: %w", createErr)
		}
	default:
		return models.User{}, fmt.Errorf("identity: lookup invited user: %w", err)
	}

	if err := s.tenants.AddMember(ctx, queries.TenantMembershipRow{
		TenantID: invite.TenantID,
		UserID:   storage.PgUUID(userID),
		Role:     string(role),
	}); err != nil {
		return models.User{}, fmt.Errorf("identity: add invited membership: %w", err)
	}

	s.audit.Log(ctx, models.AuditEvent{
		EventID:   uuid.New(),
		EventType: "tenant_user_added",
		Severity:  models.SeverityInfo,
		UserID:    &userID,
		TenantID:  &tenantID,
		Metadata:  map[string]any{"method": "invitation", "role": string(role)},
	})

	return models.User{
		ID:     userID,
		Email:  invite.Email,
		Status: models.StatusActive,
	}, nil
}
