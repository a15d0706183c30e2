package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"subscription-tracker/internal/config"
	"subscription-tracker/internal/database"
	"subscription-tracker/internal/email"
	"subscription-tracker/internal/llm"
	"subscription-tracker/internal/secrets"
	"subscription-tracker/internal/server"
	"subscription-tracker/internal/workers"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	log.Printf("Database initialized at %s", cfg.Database.Path)

	cipher, err := secrets.NewCipher(cfg.Secrets.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize token encryption: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Background pipeline: token broker -> Gmail client factory -> runners
	broker := email.NewTokenBroker(db.Accounts, db.Users, cipher, cfg.Token.RefreshBuffer)
	clientFor := func(ctx context.Context, account *database.Account) (email.MailClient, error) {
		return email.NewGmailClient(ctx, broker.Source(ctx, account))
	}

	syncRunner := workers.NewSyncRunner(db.Accounts, db.Emails, clientFor, cfg, logger)
	processRunner := workers.NewProcessRunner(db.Accounts, db.Emails, db.Subscriptions,
		llm.NewClient(cfg.LLM), cfg.Processing, logger)
	supervisor := workers.NewSupervisor(db.Accounts, syncRunner, processRunner, logger)

	if !cfg.LLM.Enabled() {
		log.Println("LLM classifier disabled (no API key); keyword results are authoritative")
	}

	// Restart any runs a previous process left mid-flight
	supervisor.ResumeInterrupted()

	handlers := server.NewHandlers(db, supervisor)
	handler := server.NewRouter(handlers)

	srv := &http.Server{
		Addr:    cfg.Address(),
		Handler: handler,

		// Timeouts
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Handle server startup and graceful shutdown
	shutdownTimeout := 30 * time.Second
	if err := server.HandleSignals(srv, shutdownTimeout); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
