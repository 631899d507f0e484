package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/pierre-platform/security-core/internal/config"
)

// SMTPProvider delivers an EmailPayload over SMTP using the platform's
// single outbound relay, adapted from the teacher's SMTPProvider.
// Unlike the teacher, there is no per-tenant encrypted credential to
// decrypt: Pierre's config.SMTPConfig is loaded once at startup.
type SMTPProvider struct {
	cfg config.SMTPConfig
}

func NewSMTPProvider(cfg config.SMTPConfig) (*SMTPProvider, error) {
	if _, err := sanitizeAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("notify: invalid SMTP from address: %w", err)
	}
	return &SMTPProvider{cfg: cfg}, nil
}

// Send delivers payload and returns a tracking message ID.
func (p *SMTPProvider) Send(ctx context.Context, payload EmailPayload) (string, error) {
	toAddr, err := sanitizeAddress(payload.To)
	if err != nil {
		return "", fmt.Errorf("notify: invalid recipient address: %w", err)
	}
	fromAddr, err := sanitizeAddress(p.cfg.From)
	if err != nil {
		return "", fmt.Errorf("notify: invalid from address: %w", err)
	}

	messageID := fmt.Sprintf("<%s@%s>", randomLocalPart(), p.cfg.Host)
	message := buildMessage(fromAddr, toAddr, messageID, payload)

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	serverAddr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	var conn net.Conn
	if p.cfg.TLSMode == "tls" {
		conn, err = tls.DialWithDialer(dialer, "tcp", serverAddr, &tls.Config{
			ServerName: p.cfg.Host,
			MinVersion: tls.VersionTLS12,
		})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", serverAddr)
	}
	if err != nil {
		return "", fmt.Errorf("notify: smtp connect: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		return "", fmt.Errorf("notify: smtp client: %w", err)
	}
	defer client.Quit()

	if p.cfg.TLSMode == "starttls" {
		if err := client.StartTLS(&tls.Config{ServerName: p.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return "", fmt.Errorf("notify: starttls: %w", err)
		}
	}

	if p.cfg.User != "" {
		auth := smtp.PlainAuth("", p.cfg.User, p.cfg.Password, p.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return "", fmt.Errorf("notify: smtp auth: %w", err)
		}
	}

	if err := client.Mail(fromAddr); err != nil {
		return "", fmt.Errorf("notify: smtp mail: %w", err)
	}
	if err := client.Rcpt(toAddr); err != nil {
		return "", fmt.Errorf("notify: smtp rcpt: %w", err)
	}
	writer, err := client.Data()
	if err != nil {
		return "", fmt.Errorf("notify: smtp data: %w", err)
	}
	if _, err := writer.Write(message); err != nil {
		return "", fmt.Errorf("notify: smtp write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("notify: smtp finalize: %w", err)
	}

	return messageID, nil
}

func buildMessage(from, to, messageID string, payload EmailPayload) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subjectFor(payload.Template))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(bodyFor(payload))
	return []byte(b.String())
}

func subjectFor(t EmailTemplate) string {
	switch t {
	case TemplatePasswordReset:
		return "Reset your Pierre password"
	case TemplateInvitation:
		return "You've been invited to Pierre"
	default:
		return "Pierre notification"
	}
}

func bodyFor(payload EmailPayload) string {
	link, _ := payload.Data["link"].(string)
	switch payload.Template {
	case TemplatePasswordReset:
		return "You requested a password reset.\n\nReset your password: " + link + "\n\nThis link expires in 15 minutes.\n"
	case TemplateInvitation:
		tenant, _ := payload.Data["tenant"].(string)
		return "You've been invited to join " + tenant + " on Pierre.\n\nAccept your invitation: " + link + "\n"
	default:
		return "This is a notification from Pierre.\n"
	}
}

// sanitizeAddress rejects CRLF/header injection, the same check the
// teacher's sanitizeEmailAddress performs.
func sanitizeAddress(addr string) (string, error) {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return "", err
	}
	if strings.ContainsAny(parsed.Address, "\r\n") || strings.ContainsAny(parsed.Name, "\r\n") {
		return "", fmt.Errorf("header injection in address")
	}
	return parsed.String(), nil
}

func randomLocalPart() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
