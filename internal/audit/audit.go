package audit

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pierre-platform/security-core/internal/storage/models"
)

// EventType defines the category of the audit log. Required event set
// per spec.md §4.7.
type EventType string

const (
	EventUserLogin             EventType = "user_login"
	EventUserLogout            EventType = "user_logout"
	EventAuthFailed            EventType = "auth_failed"
	EventAPIKeyUsed            EventType = "api_key_used"
	EventOAuthCredsCreated     EventType = "oauth_creds_created"
	EventOAuthCredsModified    EventType = "oauth_creds_modified"
	EventOAuthCredsDeleted     EventType = "oauth_creds_deleted"
	EventOAuthCredsAccessed    EventType = "oauth_creds_accessed"
	EventTokenRefreshed        EventType = "token_refreshed"
	EventTenantCreated         EventType = "tenant_created"
	EventTenantModified        EventType = "tenant_modified"
	EventTenantDeleted         EventType = "tenant_deleted"
	EventTenantUserAdded       EventType = "tenant_user_added"
	EventTenantUserRemoved     EventType = "tenant_user_removed"
	EventTenantUserRoleChanged EventType = "tenant_user_role_changed"
	EventDataEncrypted         EventType = "data_encrypted"
	EventDataDecrypted         EventType = "data_decrypted"
	EventKeyRotated            EventType = "key_rotated"
	EventEncryptionFailed      EventType = "encryption_failed"
	EventToolExecuted          EventType = "tool_executed"
	EventToolExecutionFailed   EventType = "tool_execution_failed"
	EventProviderAPICalled     EventType = "provider_api_called"
	EventConfigurationChanged  EventType = "configuration_changed"
	EventSystemMaintenance     EventType = "system_maintenance"
	EventSecurityPolicyViolation EventType = "security_policy_violation"
)

// Logger is the contract every component writes security-relevant
// events through. Implementations never return an error to the caller:
// per spec.md §4.7, a failure to audit is itself an error-severity event
// logged to stderr, but it does not roll back the business action that
// triggered it.
type Logger interface {
	Log(ctx context.Context, event models.AuditEvent)
}

// JSONLogger writes structured logs to stdout, with a specific "audit"
// key that can be filtered by log aggregators (Datadog, Splunk, Sentry)
// to go to a separate index.
type JSONLogger struct {
	logger *slog.Logger
	mu     sync.Mutex
}

func NewJSONLogger() *JSONLogger {
	// Separate handler instance so formatting stays consistent
	// independent of the main app logger.
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &JSONLogger{logger: slog.New(handler)}
}

func (l *JSONLogger) Log(ctx context.Context, event models.AuditEvent) {
	fields := []any{
		slog.String("log_type", "AUDIT_TRAIL"),
		slog.String("event_id", event.EventID.String()),
		slog.String("event_type", event.EventType),
		slog.String("severity", string(event.Severity)),
		slog.Time("timestamp_utc", event.Timestamp.UTC()),
	}
	if event.UserID != nil {
		fields = append(fields, slog.String("user_id", event.UserID.String()))
	}
	if event.TenantID != nil {
		fields = append(fields, slog.String("tenant_id", event.TenantID.String()))
	}
	if event.SourceIP != "" {
		fields = append(fields, slog.String("source_ip", event.SourceIP))
	}
	if event.Resource != "" {
		fields = append(fields, slog.String("resource", event.Resource))
	}
	if event.Action != "" {
		fields = append(fields, slog.String("action", event.Action))
	}
	if event.Result != "" {
		fields = append(fields, slog.String("result", event.Result))
	}
	for k, v := range event.Metadata {
		fields = append(fields, slog.Any("meta_"+k, v))
	}

	level := slog.LevelInfo
	switch event.Severity {
	case models.SeverityWarning:
		level = slog.LevelWarn
	case models.SeverityError, models.SeverityCritical:
		level = slog.LevelError
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Log(ctx, level, "audit_event", fields...)
}

// NewEvent fills the mechanical fields (EventID, Timestamp) every call
// site would otherwise repeat.
func NewEvent(eventType EventType, severity models.Severity) models.AuditEvent {
	return models.AuditEvent{
		EventID:   uuid.New(),
		EventType: string(eventType),
		Severity:  severity,
		Timestamp: time.Now().UTC(),
	}
}

// MockLogger is a no-op Logger, for tests exercising callers that must
// not actually write.
type MockLogger struct{}

func (m *MockLogger) Log(ctx context.Context, event models.AuditEvent) {}
