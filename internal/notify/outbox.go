// Package notify sends transactional email for identity bootstrap
// (password resets, invitations), generalizing the teacher's
// internal/notify and internal/mailer packages onto Pierre's schema.
package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EmailTemplate restricts outbox payloads to a fixed whitelist, the
// same anti-injection posture as the teacher's mailer.EmailTemplate.
type EmailTemplate string

const (
	TemplatePasswordReset EmailTemplate = "password_reset"
	TemplateInvitation    EmailTemplate = "invitation"
)

var validTemplates = map[EmailTemplate]bool{
	TemplatePasswordReset: true,
	TemplateInvitation:    true,
}

// EmailPayload is the unit of work persisted to email_outbox.
type EmailPayload struct {
	To       string         `json:"to"`
	TenantID *uuid.UUID     `json:"tenant_id,omitempty"`
	Template EmailTemplate  `json:"template"`
	Data     map[string]any `json:"data"`
}

// EnqueueEmail validates and persists a payload for cmd/emailworker to
// pick up, mirroring the teacher's mailer.EnqueueEmail.
func EnqueueEmail(ctx context.Context, pool *pgxpool.Pool, payload EmailPayload) error {
	if !validTemplates[payload.Template] {
		return fmt.Errorf("notify: invalid template: %s", payload.Template)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO email_outbox (tenant_id, payload, status, next_retry_at)
		VALUES ($1, $2, 'pending', now())
	`, payload.TenantID, body)
	if err != nil {
		return fmt.Errorf("notify: enqueue email: %w", err)
	}
	return nil
}

// HashRecipient pseudonymizes an email address for email_logs, the
// teacher's mailer.HashRecipient unchanged.
func HashRecipient(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}

// CreateEmailLog records a delivery attempt, mirroring the teacher's
// mailer.CreateEmailLog.
func CreateEmailLog(ctx context.Context, pool *pgxpool.Pool, payload EmailPayload, status, providerMsgID, providerErr string) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO email_logs (tenant_id, recipient_hash, template, status, provider_msg_id, provider_error, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, CASE WHEN $4 = 'sent' THEN now() ELSE NULL END)
	`, payload.TenantID, HashRecipient(payload.To), string(payload.Template), status, providerMsgID, providerErr)
	if err != nil {
		return fmt.Errorf("notify: write email log: %w", err)
	}
	return nil
}
