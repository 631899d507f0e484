package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pierre-platform/security-core/internal/storage"
	"github.com/pierre-platform/security-core/internal/storage/models"
	"github.com/pierre-platform/security-core/internal/storage/queries"
)

// CreateTenantInput is the data needed to bootstrap a new tenant.
type CreateTenantInput struct {
	Name        string
	Slug        string
	Domain      string
	OwnerUserID uuid.UUID
}

// CreateTenant creates a Tenant and grants its creator the owner role,
// mirroring the teacher's tenant_service.go "create tenant + owner
// membership" atomicity expectation.
func (s *Service) CreateTenant(ctx context.Context, in CreateTenantInput) (models.Tenant, error) {
	id := uuid.New()

	if err := s.tenants.Create(ctx, queries.TenantRow{
		ID:          storage.PgUUID(id),
		Name:        in.Name,
		Slug:        in.Slug,
		Domain:      in.Domain,
		Plan:        string(models.PlanStarter),
		OwnerUserID: storage.PgUUID(in.OwnerUserID),
	}); err != nil {
		return models.Tenant{}, fmt.Errorf("identity: create tenant: %w", err)
	}

	if err := s.tenants.AddMember(ctx, queries.TenantMembershipRow{
		TenantID: storage.PgUUID(id),
		UserID:   storage.PgUUID(in.OwnerUserID),
		Role:     string(models.RoleOwner),
	}); err != nil {
		return models.Tenant{}, fmt.Errorf("identity: add owner membership: %w", err)
	}

	s.audit.Log(ctx, models.AuditEvent{
		EventID:   uuid.New(),
		EventType: "tenant_created",
		Severity:  models.SeverityInfo,
		UserID:    &in.OwnerUserID,
		TenantID:  &id,
		Metadata:  map[string]any{"slug": in.Slug},
	})

	return models.Tenant{
		ID:          id,
		Name:        in.Name,
		Slug:        in.Slug,
		Domain:      in.Domain,
		Plan:        models.PlanStarter,
		OwnerUserID: in.OwnerUserID,
		IsActive:    true,
	}, nil
}
