package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sql.DB connection and provides access to stores
type DB struct {
	*sql.DB
	Users         *UserStore
	Accounts      *AccountStore
	Emails        *EmailStore
	Subscriptions *SubscriptionStore
}

// Open opens a database connection and initializes stores
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Enable WAL mode for better concurrent access between the HTTP
	// surface and the background runners
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Enable foreign key constraints in SQLite
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	database := &DB{
		DB:            db,
		Users:         NewUserStore(db),
		Accounts:      NewAccountStore(db),
		Emails:        NewEmailStore(db),
		Subscriptions: NewSubscriptionStore(db),
	}

	// Run migrations
	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}

// migrate creates the database schema
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS credentials (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL DEFAULT 'google',
		client_id TEXT NOT NULL,
		client_secret_encrypted TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		credential_id TEXT NOT NULL,
		email_address TEXT NOT NULL,
		access_token_encrypted TEXT NOT NULL DEFAULT '',
		refresh_token_encrypted TEXT NOT NULL DEFAULT '',
		token_expiry DATETIME,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		processing_status TEXT NOT NULL DEFAULT 'idle',
		total_emails INTEGER NOT NULL DEFAULT 0,
		processed_emails INTEGER NOT NULL DEFAULT 0,
		emails_to_analyze INTEGER NOT NULL DEFAULT 0,
		emails_analyzed INTEGER NOT NULL DEFAULT 0,
		subscriptions_found INTEGER NOT NULL DEFAULT 0,
		ai_cost_total REAL NOT NULL DEFAULT 0,
		is_initial_sync_complete BOOLEAN NOT NULL DEFAULT FALSE,
		last_sync DATETIME,
		last_page_token TEXT NOT NULL DEFAULT '',
		last_processed_message_id TEXT NOT NULL DEFAULT '',
		query_hash TEXT NOT NULL DEFAULT '',
		processing_started_at DATETIME,
		last_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (credential_id) REFERENCES credentials(id)
	);

	CREATE TABLE IF NOT EXISTS emails (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		gmail_message_id TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL DEFAULT '',
		body_text TEXT NOT NULL DEFAULT '',
		body_html TEXT NOT NULL DEFAULT '',
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		is_subscription BOOLEAN NOT NULL DEFAULT FALSE,
		subscription_confidence REAL NOT NULL DEFAULT 0,
		extracted_data TEXT NOT NULL DEFAULT '',
		ai_provider TEXT NOT NULL DEFAULT '',
		ai_reasoning TEXT NOT NULL DEFAULT '',
		analysis_attempts INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(account_id, gmail_message_id),
		FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		email_id TEXT,
		service_name TEXT NOT NULL,
		amount REAL NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		billing_cycle TEXT NOT NULL DEFAULT 'monthly',
		next_billing_date DATETIME,
		status TEXT NOT NULL DEFAULT 'active',
		confidence_score REAL NOT NULL DEFAULT 0,
		user_verified BOOLEAN NOT NULL DEFAULT FALSE,
		category TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		first_detected DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_updated DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, service_name, amount),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (email_id) REFERENCES emails(id) ON DELETE SET NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);
	CREATE INDEX IF NOT EXISTS idx_accounts_sync_status ON accounts(sync_status);
	CREATE INDEX IF NOT EXISTS idx_accounts_processing_status ON accounts(processing_status);
	CREATE INDEX IF NOT EXISTS idx_emails_account ON emails(account_id);
	CREATE INDEX IF NOT EXISTS idx_emails_unprocessed ON emails(account_id, processed_at, received_at DESC);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id, status);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// IsHealthy checks if the database connection is healthy
func (db *DB) IsHealthy() error {
	return db.Ping()
}
