package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/pierre-platform/security-core/internal/storage"
	"github.com/pierre-platform/security-core/internal/storage/models"
	"github.com/pierre-platform/security-core/internal/storage/queries"
)

// LoginInput is the data needed to authenticate and mint a session.
// TenantID is mandatory: sessions are always issued scoped to one
// tenant's membership, mirroring the teacher's "users are tenant
// scoped" rule generalized to spec.md's TenantMembership.
type LoginInput struct {
	Email    string
	Password string
	TenantID uuid.UUID
}

// LoginResult carries the minted session token alongside the user it
// identifies.
type LoginResult struct {
	SessionToken string
	User         models.User
	Role         models.MembershipRole
}

// Login verifies credentials and tenant membership, then mints a
// session token C6 classifies as AuthMethodSession.
func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	if in.TenantID == uuid.Nil {
		return LoginResult{}, ErrTenantRequired
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	row, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		// Generic error: do not reveal whether the email exists.
		return LoginResult{}, ErrInvalidCredentials
	}

	if row.Status == string(models.StatusSuspended) {
		return LoginResult{}, ErrAccountSuspended
	}

	if err := s.hasher.Compare(row.PasswordHash, in.Password); err != nil {
		s.auditFailedLogin(ctx, storage.FromPgUUID(row.ID))
		return LoginResult{}, ErrInvalidCredentials
	}

	userID := storage.FromPgUUID(row.ID)
	membership, err := s.tenants.GetMembership(ctx, storage.PgUUID(in.TenantID), storage.PgUUID(userID))
	if err != nil {
		if err == queries.ErrNotFound {
			return LoginResult{}, ErrNotAMember
		}
		return LoginResult{}, err
	}

	role := models.MembershipRole(membership.Role)
	token, err := s.signer.IssueSessionToken(userID, in.TenantID, string(role), SessionTokenTTL)
	if err != nil {
		return LoginResult{}, err
	}

	s.audit.Log(ctx, models.AuditEvent{
		EventID:   uuid.New(),
		EventType: "user_login",
		Severity:  models.SeverityInfo,
		UserID:    &userID,
		TenantID:  &in.TenantID,
		Metadata:  map[string]any{"method": "password"},
	})

	return LoginResult{
		SessionToken: token,
		User: models.User{
			ID:     userID,
			Email:  row.Email,
			Status: models.UserStatus(row.Status),
		},
		Role: role,
	}, nil
}

func (s *Service) auditFailedLogin(ctx context.Context, userID uuid.UUID) {
	s.audit.Log(ctx, models.AuditEvent{
		EventID:   uuid.New(),
		EventType: "auth_failed",
		Severity:  models.SeverityWarning,
		UserID:    &userID,
		Metadata:  map[string]any{"reason": "bad_password"},
	})
}

// ChangePassword verifies the current password before replacing it.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	row, err := s.users.GetByID(ctx, storage.PgUUID(userID))
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(row.PasswordHash, currentPassword); err != nil {
		return ErrInvalidCredentials
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePasswordHash(ctx, storage.PgUUID(userID), newHash); err != nil {
		return err
	}

	s.audit.Log(ctx, models.AuditEvent{
		EventID:   uuid.New(),
		EventType: "password_changed",
		Severity:  models.SeverityInfo,
		UserID:    &userID,
	})
	return nil
}
