// Package storage wires the Postgres connection pool and the
// low-level query helpers the vault, authorization server, orchestrator,
// authenticator and audit sink are built on.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/google/uuid"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, matching the
// teacher's db.DBTX pattern so query helpers work uniformly inside or
// outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgres creates a new connection pool to PostgreSQL, mirroring the
// teacher's storage.NewPostgres (internal/storage/storage.go).
func NewPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: failed to ping: %w", err)
	}

	return pool, nil
}

// PgUUID converts a uuid.UUID into the nullable pgtype wire format,
// following the teacher's toUUID idiom (internal/audit/service.go).
func PgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

// FromPgUUID converts back; returns uuid.Nil if the column was NULL.
func FromPgUUID(v pgtype.UUID) uuid.UUID {
	if !v.Valid {
		return uuid.Nil
	}
	return uuid.UUID(v.Bytes)
}

// PgText converts a possibly-empty string into a nullable pgtype.Text.
func PgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// PgTimestamptz converts a time.Time into the nullable pgtype wire
// format; the zero time maps to NULL.
func PgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}
