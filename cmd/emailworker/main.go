// Package main implements the email worker daemon: a background
// process that polls email_outbox and delivers queued mail over SMTP,
// the same split the identity bootstrap's RequestPasswordReset and
// InviteMember rely on to stay fast and non-blocking.
//
// Usage:
//
//	go run ./cmd/emailworker
//
// Environment Variables:
//
//	DATABASE_URL            - PostgreSQL connection string
//	SMTP_HOST/PORT/USER/PASSWORD/FROM/TLS_MODE - outbound relay
//	EMAIL_WORKER_INTERVAL   - poll interval (default: 5s)
//	EMAIL_WORKER_BATCH_SIZE - max emails per poll (default: 10)
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pierre-platform/security-core/internal/config"
	"github.com/pierre-platform/security-core/internal/notify"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	logger.Info("email worker starting")

	cfg := config.Load()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()

	if cfg.SMTP.Host == "" {
		log.Fatal("SMTP_HOST not set")
	}
	provider, err := notify.NewSMTPProvider(cfg.SMTP)
	if err != nil {
		log.Fatalf("invalid SMTP configuration: %v", err)
	}

	pollInterval := getEnvDuration("EMAIL_WORKER_INTERVAL", 5*time.Second)
	batchSize := getEnvInt("EMAIL_WORKER_BATCH_SIZE", 10)
	logger.Info("worker configured", "poll_interval", pollInterval, "batch_size", batchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received, draining queue")
		cancel()
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return
		case <-ticker.C:
			if err := processBatch(ctx, pool, provider, logger, batchSize); err != nil {
				logger.Error("queue processing error", "error", err)
			}
		}
	}
}

// processBatch fetches pending emails and delivers each. FOR UPDATE
// SKIP LOCKED lets multiple worker replicas run against the same
// queue without double-sending.
func processBatch(ctx context.Context, pool *pgxpool.Pool, provider *notify.SMTPProvider, logger *slog.Logger, batchSize int) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, tenant_id, payload, retry_count
		FROM email_outbox
		WHERE status = 'pending' AND next_retry_at <= now()
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, batchSize)
	if err != nil {
		return err
	}

	type job struct {
		id         uuid.UUID
		tenantID   *uuid.UUID
		payload    []byte
		retryCount int
	}
	var jobs []job
	for rows.Next() {
		var j job
		if err := rows.Scan(&j.id, &j.tenantID, &j.payload, &j.retryCount); err != nil {
			rows.Close()
			return err
		}
		jobs = append(jobs, j)
	}
	rows.Close()

	for _, j := range jobs {
		if _, err := tx.Exec(ctx, `UPDATE email_outbox SET status = 'processing' WHERE id = $1`, j.id); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	count := 0
	for _, j := range jobs {
		sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := deliver(sendCtx, pool, provider, logger, j.id, j.payload, j.retryCount)
		cancel()
		if err != nil {
			logger.Error("email delivery failed", "id", j.id, "retry_count", j.retryCount, "error", err)
		}
		count++
	}
	if count > 0 {
		logger.Info("processed email batch", "count", count)
	}
	return nil
}

func deliver(ctx context.Context, pool *pgxpool.Pool, provider *notify.SMTPProvider, logger *slog.Logger, id uuid.UUID, payloadJSON []byte, retryCount int) error {
	var payload notify.EmailPayload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		markFailed(ctx, pool, id, retryCount, "invalid payload json: "+err.Error())
		return err
	}

	providerMsgID, err := provider.Send(ctx, payload)
	if err != nil {
		markFailed(ctx, pool, id, retryCount, err.Error())
		_ = notify.CreateEmailLog(ctx, pool, payload, "failed", "", err.Error())
		return err
	}

	if _, err := pool.Exec(ctx, `UPDATE email_outbox SET status = 'sent', sent_at = now() WHERE id = $1`, id); err != nil {
		return err
	}
	if err := notify.CreateEmailLog(ctx, pool, payload, "sent", providerMsgID, ""); err != nil {
		logger.Error("write email log failed", "error", err)
	}

	logger.Info("email sent", "id", id, "template", payload.Template, "to_hash", notify.HashRecipient(payload.To))
	return nil
}

// markFailed schedules a retry with exponential backoff (5m, then
// 10m), giving up after three attempts.
func markFailed(ctx context.Context, pool *pgxpool.Pool, id uuid.UUID, retryCount int, reason string) {
	const maxRetries = 3
	next := retryCount + 1
	if next >= maxRetries {
		pool.Exec(ctx, `UPDATE email_outbox SET status = 'dead', retry_count = $2 WHERE id = $1`, id, next)
		return
	}
	backoff := time.Duration(5*(1<<retryCount)) * time.Minute
	pool.Exec(ctx, `
		UPDATE email_outbox
		SET status = 'pending', retry_count = $2, next_retry_at = now() + $3
		WHERE id = $1
	`, id, next, backoff)
	_ = reason
}

func getEnvDuration(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
