package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pierre-platform/security-core/internal/storage"
	"github.com/pierre-platform/security-core/internal/storage/models"
	"github.com/pierre-platform/security-core/internal/storage/queries"
)

// DBLogger implements Logger using the audit_events table. It is the
// primary, persisted, queryable audit store spec.md §4.7 requires; the
// JSONLogger fallback is only used when this write itself fails.
//
// Design Decision: writes are synchronous. At high volume this should
// push to a channel/queue instead; left as a follow-up since nothing in
// the current call graph needs it yet.
type DBLogger struct {
	queries  *queries.AuditQueries
	fallback *JSONLogger
	logger   *slog.Logger
}

func NewDBLogger(db storage.DBTX, fallback *JSONLogger, logger *slog.Logger) *DBLogger {
	return &DBLogger{
		queries:  queries.NewAuditQueries(db),
		fallback: fallback,
		logger:   logger,
	}
}

// Log records an event, outside the business-transaction boundary of
// whatever triggered it. A failure here never rolls back that action;
// it falls back to a structured stderr log at error severity instead
// (spec.md §4.7).
func (s *DBLogger) Log(ctx context.Context, event models.AuditEvent) {
	metadataBytes, err := json.Marshal(event.Metadata)
	if err != nil {
		s.logger.Error("audit_metadata_marshal_failed", "error", err)
		metadataBytes = []byte("{}")
	}

	row := queries.AuditEventRow{
		ID:        storage.PgUUID(event.EventID),
		TenantID:  toPgUUID(event.TenantID),
		UserID:    toPgUUID(event.UserID),
		EventType: event.EventType,
		Severity:  string(event.Severity),
		Metadata:  metadataBytes,
	}

	if err := s.queries.Insert(ctx, row); err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("audit_db_insert_failed",
			"event_type", event.EventType,
			"severity", event.Severity,
			"error", err,
		)
		if s.fallback != nil {
			s.fallback.Log(ctx, event)
		}
	}
}

func toPgUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return storage.PgUUID(*id)
}
