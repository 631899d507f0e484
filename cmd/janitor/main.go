// Package main implements the periodic cleanup worker: a background
// process that sweeps every single-use, time-bounded token table
// (password resets, invitations, outbound provider-connect state
// nonces, and C5's own auth codes/refresh tokens/CSRF state) so none
// of them grow unbounded.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pierre-platform/security-core/internal/config"
	"github.com/pierre-platform/security-core/internal/storage"
	"github.com/pierre-platform/security-core/internal/storage/queries"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.Load()

	ctx := context.Background()
	pool, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	authserver := queries.NewAuthServerQueries(pool)
	passwordResets := queries.NewPasswordResetQueries(pool)
	invitations := queries.NewInvitationQueries(pool)
	clientStates := queries.NewClientStateQueries(pool)

	logger.Info("janitor started", "interval", "1h")

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	runSweep(context.Background(), authserver, passwordResets, invitations, clientStates, logger)

	for {
		select {
		case <-ticker.C:
			runSweep(context.Background(), authserver, passwordResets, invitations, clientStates, logger)
		case <-quit:
			logger.Info("janitor shutting down")
			return
		}
	}
}

func runSweep(
	ctx context.Context,
	authserver *queries.AuthServerQueries,
	passwordResets *queries.PasswordResetQueries,
	invitations *queries.InvitationQueries,
	clientStates *queries.ClientStateQueries,
	logger *slog.Logger,
) {
	now := time.Now()
	logger.Info("running cleanup cycle")

	if n, err := authserver.CleanExpired(ctx, now); err != nil {
		logger.Error("clean authserver rows failed", "error", err)
	} else if n > 0 {
		logger.Info("cleaned authserver rows", "deleted", n)
	}

	if n, err := passwordResets.CleanExpired(ctx, now); err != nil {
		logger.Error("clean password reset tokens failed", "error", err)
	} else if n > 0 {
		logger.Info("cleaned password reset tokens", "deleted", n)
	}

	if n, err := invitations.CleanExpired(ctx, now); err != nil {
		logger.Error("clean invitations failed", "error", err)
	} else if n > 0 {
		logger.Info("cleaned invitations", "deleted", n)
	}

	if n, err := clientStates.CleanExpired(ctx, now); err != nil {
		logger.Error("clean client states failed", "error", err)
	} else if n > 0 {
		logger.Info("cleaned client states", "deleted", n)
	}
}
