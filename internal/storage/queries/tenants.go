package queries

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pierre-platform/security-core/internal/storage"
)

// TenantRow is the raw row for tenants (spec.md §3 Tenant).
type TenantRow struct {
	ID          pgtype.UUID
	Name        string
	Slug        string
	Domain      string
	Plan        string
	OwnerUserID pgtype.UUID
	IsActive    bool
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

// TenantMembershipRow is the raw row for tenant_users (spec.md §3 TenantMembership).
type TenantMembershipRow struct {
	TenantID pgtype.UUID
	UserID   pgtype.UUID
	Role     string
	JoinedAt pgtype.Timestamptz
}

// TenantQueries wraps DBTX for tenants and tenant_users.
type TenantQueries struct {
	db storage.DBTX
}

func NewTenantQueries(db storage.DBTX) *TenantQueries {
	return &TenantQueries{db: db}
}

// Create inserts a new tenant.
func (q *TenantQueries) Create(ctx context.Context, row TenantRow) error {
	const sql = `
INSERT INTO tenants (id, name, slug, domain, plan, owner_user_id, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, true, now(), now())`
	_, err := q.db.Exec(ctx, sql, row.ID, row.Name, row.Slug, row.Domain, row.Plan, row.OwnerUserID)
	if err != nil {
		return fmt.Errorf("storage: create tenant: %w", err)
	}
	return nil
}

// Get fetches a tenant by id.
func (q *TenantQueries) Get(ctx context.Context, id pgtype.UUID) (TenantRow, error) {
	const sql = `SELECT id, name, slug, domain, plan, owner_user_id, is_active, created_at, updated_at FROM tenants WHERE id = $1`
	var row TenantRow
	err := q.db.QueryRow(ctx, sql, id).Scan(&row.ID, &row.Name, &row.Slug, &row.Domain, &row.Plan, &row.OwnerUserID, &row.IsActive, &row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TenantRow{}, ErrNotFound
	}
	if err != nil {
		return TenantRow{}, fmt.Errorf("storage: get tenant: %w", err)
	}
	return row, nil
}

// GetBySlug fetches a tenant by its unique slug.
func (q *TenantQueries) GetBySlug(ctx context.Context, slug string) (TenantRow, error) {
	const sql = `SELECT id, name, slug, domain, plan, owner_user_id, is_active, created_at, updated_at FROM tenants WHERE slug = $1`
	var row TenantRow
	err := q.db.QueryRow(ctx, sql, slug).Scan(&row.ID, &row.Name, &row.Slug, &row.Domain, &row.Plan, &row.OwnerUserID, &row.IsActive, &row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TenantRow{}, ErrNotFound
	}
	if err != nil {
		return TenantRow{}, fmt.Errorf("storage: get tenant by slug: %w", err)
	}
	return row, nil
}

// UpdatePlan changes a tenant's billing plan.
func (q *TenantQueries) UpdatePlan(ctx context.Context, id pgtype.UUID, plan string) error {
	const sql = `UPDATE tenants SET plan = $2, updated_at = now() WHERE id = $1`
	tag, err := q.db.Exec(ctx, sql, id, plan)
	if err != nil {
		return fmt.Errorf("storage: update tenant plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMember inserts a membership row, idempotently. Mirrors the
// teacher's TenantUser invitation-acceptance insert in
// internal/auth/invitation_service.go.
func (q *TenantQueries) AddMember(ctx context.Context, row TenantMembershipRow) error {
	const sql = `
INSERT INTO tenant_users (tenant_id, user_id, role, joined_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (tenant_id, user_id) DO UPDATE SET role = EXCLUDED.role`
	_, err := q.db.Exec(ctx, sql, row.TenantID, row.UserID, row.Role)
	if err != nil {
		return fmt.Errorf("storage: add tenant member: %w", err)
	}
	return nil
}

// GetMembership fetches a single (tenant, user) membership row.
func (q *TenantQueries) GetMembership(ctx context.Context, tenantID, userID pgtype.UUID) (TenantMembershipRow, error) {
	const sql = `SELECT tenant_id, user_id, role, joined_at FROM tenant_users WHERE tenant_id = $1 AND user_id = $2`
	var row TenantMembershipRow
	err := q.db.QueryRow(ctx, sql, tenantID, userID).Scan(&row.TenantID, &row.UserID, &row.Role, &row.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TenantMembershipRow{}, ErrNotFound
	}
	if err != nil {
		return TenantMembershipRow{}, fmt.Errorf("storage: get membership: %w", err)
	}
	return row, nil
}

// ListMemberships returns every tenant a user belongs to.
func (q *TenantQueries) ListMemberships(ctx context.Context, userID pgtype.UUID) ([]TenantMembershipRow, error) {
	const sql = `SELECT tenant_id, user_id, role, joined_at FROM tenant_users WHERE user_id = $1 ORDER BY joined_at`
	rows, err := q.db.Query(ctx, sql, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: list memberships: %w", err)
	}
	defer rows.Close()

	var out []TenantMembershipRow
	for rows.Next() {
		var row TenantMembershipRow
		if err := rows.Scan(&row.TenantID, &row.UserID, &row.Role, &row.JoinedAt); err != nil {
			return nil, fmt.Errorf("storage: scan membership: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// RemoveMember deletes a membership row.
func (q *TenantQueries) RemoveMember(ctx context.Context, tenantID, userID pgtype.UUID) error {
	const sql = `DELETE FROM tenant_users WHERE tenant_id = $1 AND user_id = $2`
	_, err := q.db.Exec(ctx, sql, tenantID, userID)
	if err != nil {
		return fmt.Errorf("storage: remove tenant member: %w", err)
	}
	return nil
}
