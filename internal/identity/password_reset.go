package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pierre-platform/security-core/internal/storage"
	"github.com/pierre-platform/security-core/internal/storage/models"
	"github.com/pierre-platform/security-core/internal/storage/queries"
)

// randomToken mints a random URL-safe string for mailed links,
// following the teacher's GenerateSecureToken (internal/auth/recovery.go).
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("identity: generate token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// RequestPasswordReset mints a reset token and emails it, if the email
// belongs to an account. "Silence is golden": a nonexistent email
// returns nil rather than revealing enumeration, mirroring the
// teacher's recovery.go.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	row, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil
	}

	rawToken, err := randomToken(32)
	if err != nil {
		return err
	}
	digest, err := s.hmac.HMACDigest(rawToken)
	if err != nil {
		return fmt.Errorf("identity: digest reset token: %w", err)
	}

	if err := s.resetTokens.Store(ctx, queries.PasswordResetTokenRow{
		TokenHash: digest,
		UserID:    row.ID,
		ExpiresAt: storage.PgTimestamptz(time.Now().Add(PasswordResetTTL)),
	}); err != nil {
		return fmt.Errorf("identity: store reset token: %w", err)
	}

	return s.mail.SendPasswordReset(ctx, email, rawToken, s.defaultAppURL)
}

// ResetPassword consumes a reset token atomically and sets a new
// password. The token's single-use guarantee comes entirely from
// PasswordResetQueries.Consume's UPDATE...RETURNING swap, the same
// pattern C3 uses for authorization codes and refresh tokens.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	digest, err := s.hmac.HMACDigest(rawToken)
	if err != nil {
		return fmt.Errorf("identity: digest reset token: %w", err)
	}

	row, ok, err := s.resetTokens.Consume(ctx, digest, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidResetToken
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePasswordHash(ctx, row.UserID, newHash); err != nil {
		return err
	}

	userID := storage.FromPgUUID(row.UserID)
	s.audit.Log(ctx, models.AuditEvent{
		EventID:   uuid.New(),
		EventType: "password_reset",
		Severity:  models.SeverityInfo,
		UserID:    &userID,
	})
	return nil
}
