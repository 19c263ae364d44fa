package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/washdeskhq/washdesk/internal/clients/paystack"
	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/interfaces"
	"github.com/washdeskhq/washdesk/internal/models"
	"github.com/washdeskhq/washdesk/internal/server"
	"github.com/washdeskhq/washdesk/internal/storage/postgres"
)

func main() {
	configPath := os.Getenv("WASHDESK_CONFIG")
	if configPath == "" {
		configPath = "config.toml"
	}

	cfg, err := common.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := common.NewLogger(cfg.Logging.Level)
	logger.Info().
		Str("version", common.GetVersion()).
		Str("environment", cfg.Environment).
		Msg("Starting Washdesk")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	storage, err := postgres.Open(ctx, cfg.Database.DSN)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("Database connection failed")
	}

	if err := seedSuperadmin(context.Background(), storage, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Superadmin bootstrap failed")
	}

	gateway := paystack.NewClient(cfg.Paystack.SecretKey,
		paystack.WithBaseURL(cfg.Paystack.BaseURL),
		paystack.WithRateLimit(cfg.Paystack.RateLimit),
		paystack.WithTimeout(cfg.Paystack.GetTimeout()),
		paystack.WithLogger(logger),
	)

	srv := server.NewServer(cfg, logger, storage, gateway)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)).
		Msg("Server ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := storage.Close(); err != nil {
		logger.Error().Err(err).Msg("Database close failed")
	}

	logger.Info().Msg("Server stopped")
}

// seedSuperadmin creates the initial superadmin account on first boot so the
// role-gated user creation chain has a root. The account uses the configured
// default password and must change it on first login.
func seedSuperadmin(ctx context.Context, storage interfaces.Storage, cfg *common.Config, logger *common.Logger) error {
	_, err := storage.Users().GetByUsername(ctx, "superadmin")
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Auth.DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user := &models.User{
		Username:     "superadmin",
		Email:        "superadmin@washdesk.local",
		PasswordHash: string(hash),
		Role:         models.RoleSuperadmin,
		IsActive:     true,
	}
	if err := storage.Users().Create(ctx, user); err != nil {
		if errors.Is(err, common.ErrDuplicate) {
			return nil
		}
		return err
	}

	logger.Info().Str("username", user.Username).Msg("Seeded initial superadmin account")
	return nil
}
