package queries

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pierre-platform/security-core/internal/storage"
)

// UserRow is the raw row for users (spec.md §3 User).
type UserRow struct {
	ID           pgtype.UUID
	Email        string
	PasswordHash string
	Status       string
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

// UserQueries wraps DBTX for the users table.
type UserQueries struct {
	db storage.DBTX
}

func NewUserQueries(db storage.DBTX) *UserQueries {
	return &UserQueries{db: db}
}

// Create inserts a new user, mirroring the teacher's
// internal/auth/registration_service.go insert.
func (q *UserQueries) Create(ctx context.Context, row UserRow) error {
	const sql = `
INSERT INTO users (id, email, password_hash, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, now(), now())`
	_, err := q.db.Exec(ctx, sql, row.ID, row.Email, row.PasswordHash, row.Status)
	if err != nil {
		return fmt.Errorf("storage: create user: %w", err)
	}
	return nil
}

// GetByID fetches a user by primary key.
func (q *UserQueries) GetByID(ctx context.Context, id pgtype.UUID) (UserRow, error) {
	const sql = `SELECT id, email, password_hash, status, created_at, updated_at FROM users WHERE id = $1`
	var row UserRow
	err := q.db.QueryRow(ctx, sql, id).Scan(&row.ID, &row.Email, &row.PasswordHash, &row.Status, &row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRow{}, ErrNotFound
	}
	if err != nil {
		return UserRow{}, fmt.Errorf("storage: get user by id: %w", err)
	}
	return row, nil
}

// GetByEmail fetches a user by email, case-sensitively stored but
// callers are expected to lowercase before calling (mirrors the
// teacher's login_service.go normalization).
func (q *UserQueries) GetByEmail(ctx context.Context, email string) (UserRow, error) {
	const sql = `SELECT id, email, password_hash, status, created_at, updated_at FROM users WHERE email = $1`
	var row UserRow
	err := q.db.QueryRow(ctx, sql, email).Scan(&row.ID, &row.Email, &row.PasswordHash, &row.Status, &row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRow{}, ErrNotFound
	}
	if err != nil {
		return UserRow{}, fmt.Errorf("storage: get user by email: %w", err)
	}
	return row, nil
}

// UpdatePasswordHash overwrites a user's password hash, for both
// change-password and reset-password flows.
func (q *UserQueries) UpdatePasswordHash(ctx context.Context, id pgtype.UUID, hash string) error {
	const sql = `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`
	tag, err := q.db.Exec(ctx, sql, id, hash)
	if err != nil {
		return fmt.Errorf("storage: update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions a user between pending/active/suspended.
func (q *UserQueries) UpdateStatus(ctx context.Context, id pgtype.UUID, status string) error {
	const sql = `UPDATE users SET status = $2, updated_at = now() WHERE id = $1`
	tag, err := q.db.Exec(ctx, sql, id, status)
	if err != nil {
		return fmt.Errorf("storage: update user status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
