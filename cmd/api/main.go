package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/daybook/server/internal/attachments"
	"github.com/daybook/server/internal/billing"
	"github.com/daybook/server/internal/config"
	"github.com/daybook/server/internal/crypto"
	"github.com/daybook/server/internal/db"
	httphandler "github.com/daybook/server/internal/http"
	"github.com/daybook/server/internal/http/handlers"
	"github.com/daybook/server/internal/journal"
	"github.com/daybook/server/internal/messenger"
	"github.com/daybook/server/internal/repo"
	"github.com/daybook/server/internal/storage"
	"github.com/daybook/server/internal/webhook"
)

func main() {
	// Load .env from CWD so local runs pick up config (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Repositories
	messageRepo := repo.NewMessageRepo(database)
	userRepo := repo.NewUserRepo(database)
	subscriptionRepo := repo.NewSubscriptionRepo(database)
	rateLimitRepo := repo.NewRateLimitRepo(database)
	entryRepo := repo.NewEntryRepo(database)
	attachmentRepo := repo.NewAttachmentRepo(database)

	// Attachment storage: S3 when a bucket is configured, local dir otherwise
	var store storage.ObjectStore
	if cfg.S3Bucket != "" {
		store, err = storage.NewS3Store(ctx, cfg)
		if err != nil {
			logger.Error("failed to configure S3 storage", "error", err)
			os.Exit(1)
		}
	} else {
		store, err = storage.NewLocalStore(cfg.LocalDir)
		if err != nil {
			logger.Error("failed to configure local storage", "error", err)
			os.Exit(1)
		}
	}

	// Pipeline components
	codec := crypto.NewCodec()
	aggregator := journal.NewAggregator(entryRepo, codec, logger)
	ingestor := attachments.NewIngestor(store, attachmentRepo, logger)
	sender := messenger.NewSurgeClient(cfg, logger)
	checkout := billing.NewCheckoutService(cfg.CheckoutSecret, cfg.CheckoutBaseURL)

	service := webhook.NewService(
		messageRepo, userRepo, subscriptionRepo, rateLimitRepo,
		aggregator, ingestor, sender, checkout,
		webhook.Templates{
			Instruction:     messenger.InstructionMessage,
			Confirmation:    messenger.ConfirmationMessage,
			BillingReminder: messenger.BillingReminderMessage,
		},
		logger,
	)

	validator := webhook.NewSignatureValidator(cfg.SurgeSigningSecret)
	webhookHandler := handlers.NewWebhookHandler(validator, service, cfg.DevMode, logger)

	router := httphandler.NewRouter(webhookHandler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the module root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
