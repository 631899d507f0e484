// Package notify sends transactional email for identity bootstrap
// (password resets, invitations), generalizing the teacher's
// internal/notify and internal/mailer packages onto Pierre's schema.
package notify

import (
	"context"
	"log/slog"
)

// DevMailer logs mail instead of sending it, the same role the
// teacher's DevMailer plays outside production.
type DevMailer struct {
	Logger *slog.Logger
}

func NewDevMailer(logger *slog.Logger) *DevMailer {
	return &DevMailer{Logger: logger}
}

func (m *DevMailer) SendPasswordReset(_ context.Context, toEmail, rawToken, appURL string) error {
	m.Logger.Info("email_sent",
		"type", "password_reset",
		"to_hash", HashRecipient(toEmail),
		"link", appURL+"/auth/reset?token="+rawToken,
	)
	return nil
}

func (m *DevMailer) SendInvitation(_ context.Context, toEmail, rawToken, appURL, tenantName string) error {
	m.Logger.Info("email_sent",
		"type", "invitation",
		"to_hash", HashRecipient(toEmail),
		"tenant", tenantName,
		"link", appURL+"/auth/accept-invite?token="+rawToken,
	)
	return nil
}
