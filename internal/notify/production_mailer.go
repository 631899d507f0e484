package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProductionMailer implements identity.Mailer using the async queue
// pattern: emails are enqueued to email_outbox and delivered later by
// cmd/emailworker, the same split the teacher uses to keep password
// reset and invitation requests fast and non-blocking.
type ProductionMailer struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

func NewProductionMailer(pool *pgxpool.Pool, logger *slog.Logger) *ProductionMailer {
	return &ProductionMailer{Pool: pool, Logger: logger}
}

func (m *ProductionMailer) SendPasswordReset(ctx context.Context, toEmail, rawToken, appURL string) error {
	payload := EmailPayload{
		To:       toEmail,
		Template: TemplatePasswordReset,
		Data: map[string]any{
			"link": appURL + "/auth/reset?token=" + rawToken,
		},
	}
	if err := EnqueueEmail(ctx, m.Pool, payload); err != nil {
		m.Logger.Error("enqueue password reset email failed", "to_hash", HashRecipient(toEmail), "error", err)
		return fmt.Errorf("notify: send password reset: %w", err)
	}
	m.Logger.Info("password reset email enqueued", "to_hash", HashRecipient(toEmail))
	return nil
}

func (m *ProductionMailer) SendInvitation(ctx context.Context, toEmail, rawToken, appURL, tenantName string) error {
	payload := EmailPayload{
		To:       toEmail,
		Template: TemplateInvitation,
		Data: map[string]any{
			"link":   appURL + "/auth/accept-invite?token=" + rawToken,
			"tenant": tenantName,
		},
	}
	if err := EnqueueEmail(ctx, m.Pool, payload); err != nil {
		m.Logger.Error("enqueue invitation email failed", "to_hash", HashRecipient(toEmail), "error", err)
		return fmt.Errorf("notify: send invitation: %w", err)
	}
	m.Logger.Info("invitation email enqueued", "to_hash", HashRecipient(toEmail), "tenant", tenantName)
	return nil
}
