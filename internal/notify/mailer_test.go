package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDevMailer_SendPasswordResetLogsLinkNotRawEmail(t *testing.T) {
	var buf bytes.Buffer
	m := NewDevMailer(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := m.SendPasswordReset(context.Background(), "person@example.com", "tok123", "https://app.pierre.example")
	assert.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "tok123")
	assert.NotContains(t, out, "person@example.com")
}

func TestDevMailer_SendInvitationLogsTenantName(t *testing.T) {
	var buf bytes.Buffer
	m := NewDevMailer(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := m.SendInvitation(context.Background(), "invitee@example.com", "tok456", "https://app.pierre.example", "Acme Fitness")
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Acme Fitness")
}
