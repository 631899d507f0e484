package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pierre-platform/security-core/internal/storage"
	"github.com/pierre-platform/security-core/internal/storage/models"
	"github.com/pierre-platform/security-core/internal/storage/queries"
)

// RegisterInput is the data needed to register a new platform account.
type RegisterInput struct {
	Email    string
	Password string
}

// Register creates a new user account, active immediately (this
// platform has no email-verification step; spec.md's User has no field
// for it). The caller is responsible for creating or joining a tenant
// afterward via CreateTenant or AcceptInvitation.
func (s *Service) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	if !s.allowPublicRegistration {
		return models.User{}, ErrPublicRegistrationDisabled
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return models.User{}, ErrEmailTaken
	} else if err != queries.ErrNotFound {
		return models.User{}, fmt.Errorf("identity: check email taken: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return models.User{}, err
	}

	id := uuid.New()
	if err := s.users.Create(ctx, queries.UserRow{
		ID:           storage.PgUUID(id),
		Email:        email,
		PasswordHash: hash,
		Status:       string(models.StatusActive),
	}); err != nil {
		return models.User{}, fmt.Errorf("identity: create user: %w", err)
	}

	s.audit.Log(ctx, models.AuditEvent{
		EventID:   uuid.New(),
		EventType: "user_registered",
		Severity:  models.SeverityInfo,
		UserID:    &id,
		Metadata:  map[string]any{"email": email},
	})

	return models.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Status:       models.StatusActive,
	}, nil
}
