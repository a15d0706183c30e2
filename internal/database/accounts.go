package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AccountStore handles database operations for accounts
type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountColumns = `id, user_id, credential_id, email_address,
	access_token_encrypted, refresh_token_encrypted, token_expiry,
	is_active, sync_status, processing_status,
	total_emails, processed_emails, emails_to_analyze, emails_analyzed,
	subscriptions_found, ai_cost_total,
	is_initial_sync_complete, last_sync, last_page_token,
	last_processed_message_id, query_hash, processing_started_at, last_error,
	created_at, updated_at`

func scanAccount(row interface{ Scan(...interface{}) error }) (*Account, error) {
	var a Account
	var tokenExpiry, lastSync, processingStartedAt sql.NullTime

	err := row.Scan(
		&a.ID, &a.UserID, &a.CredentialID, &a.EmailAddress,
		&a.AccessToken, &a.RefreshToken, &tokenExpiry,
		&a.IsActive, &a.SyncStatus, &a.ProcessingStatus,
		&a.TotalEmails, &a.ProcessedEmails, &a.EmailsToAnalyze, &a.EmailsAnalyzed,
		&a.SubscriptionsFound, &a.AICostTotal,
		&a.IsInitialSyncComplete, &lastSync, &a.LastPageToken,
		&a.LastProcessedMessageID, &a.QueryHash, &processingStartedAt, &a.LastError,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if tokenExpiry.Valid {
		a.TokenExpiry = tokenExpiry.Time
	}
	if lastSync.Valid {
		t := lastSync.Time
		a.LastSync = &t
	}
	if processingStartedAt.Valid {
		t := processingStartedAt.Time
		a.ProcessingStartedAt = &t
	}

	return &a, nil
}

// Create inserts a new account
func (s *AccountStore) Create(account *Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.SyncStatus == "" {
		account.SyncStatus = SyncStatusPending
	}
	if account.ProcessingStatus == "" {
		account.ProcessingStatus = ProcessingStatusIdle
	}

	query := `INSERT INTO accounts (id, user_id, credential_id, email_address,
			  access_token_encrypted, refresh_token_encrypted, token_expiry,
			  is_active, sync_status, processing_status)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query, account.ID, account.UserID, account.CredentialID,
		account.EmailAddress, account.AccessToken, account.RefreshToken,
		nullableTime(account.TokenExpiry), account.IsActive,
		account.SyncStatus, account.ProcessingStatus)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by ID
func (s *AccountStore) GetByID(id string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`
	return scanAccount(s.db.QueryRow(query, id))
}

// List retrieves all accounts
func (s *AccountStore) List() ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at`
	return s.queryAccounts(query)
}

// ListInterrupted retrieves accounts whose sync or processing was cut short
// by a restart and needs resumption.
func (s *AccountStore) ListInterrupted() ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
			  WHERE sync_status = ? OR processing_status = ?`
	return s.queryAccounts(query, SyncStatusSyncing, ProcessingStatusAnalyzing)
}

func (s *AccountStore) queryAccounts(query string, args ...interface{}) ([]Account, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}

	return accounts, rows.Err()
}

// BeginSync marks an account as syncing from scratch: counters zeroed,
// cursor cleared, the new query fingerprint stored.
func (s *AccountStore) BeginSync(id, queryHash string) error {
	query := `UPDATE accounts SET sync_status = ?, total_emails = 0,
			  processed_emails = 0, last_page_token = '',
			  last_processed_message_id = '', query_hash = ?,
			  processing_started_at = ?, last_error = '',
			  updated_at = CURRENT_TIMESTAMP
			  WHERE id = ?`

	return s.exec(query, SyncStatusSyncing, queryHash, time.Now().UTC(), id)
}

// MarkSyncing flags a resumed sync as live without touching counters or
// the cursor.
func (s *AccountStore) MarkSyncing(id string) error {
	query := `UPDATE accounts SET sync_status = ?, last_error = '',
			  updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return s.exec(query, SyncStatusSyncing, id)
}

// SetTotalEmails records the counted total for the current filter.
func (s *AccountStore) SetTotalEmails(id string, total int) error {
	query := `UPDATE accounts SET total_emails = ?, updated_at = CURRENT_TIMESTAMP
			  WHERE id = ?`
	return s.exec(query, total, id)
}

// SaveSyncCursor atomically advances the resume cursor after a fully
// drained page.
func (s *AccountStore) SaveSyncCursor(id string, processed int, pageToken, lastMessageID string) error {
	query := `UPDATE accounts SET processed_emails = ?, last_page_token = ?,
			  last_processed_message_id = ?, updated_at = CURRENT_TIMESTAMP
			  WHERE id = ?`
	return s.exec(query, processed, pageToken, lastMessageID, id)
}

// CompleteSync finalizes a successful sync run and clears the resume cursor.
// initialRun marks the first full sync of the account.
func (s *AccountStore) CompleteSync(id string, total, processed int, initialRun bool) error {
	query := `UPDATE accounts SET sync_status = ?, total_emails = ?,
			  processed_emails = ?, last_page_token = '',
			  last_processed_message_id = '', query_hash = '',
			  is_initial_sync_complete = is_initial_sync_complete OR ?,
			  last_sync = ?, last_error = '', updated_at = CURRENT_TIMESTAMP
			  WHERE id = ?`
	return s.exec(query, SyncStatusCompleted, total, processed, initialRun, time.Now().UTC(), id)
}

// FailSync records a sync failure. When clearResume is set the cursor and
// fingerprint are wiped so the next run starts from scratch.
func (s *AccountStore) FailSync(id, message string, clearResume bool) error {
	if clearResume {
		query := `UPDATE accounts SET sync_status = ?, last_error = ?,
				  last_page_token = '', last_processed_message_id = '',
				  query_hash = '', updated_at = CURRENT_TIMESTAMP
				  WHERE id = ?`
		return s.exec(query, SyncStatusError, message, id)
	}

	query := `UPDATE accounts SET sync_status = ?, last_error = ?,
			  updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return s.exec(query, SyncStatusError, message, id)
}

// BeginProcessing marks an account as analyzing from scratch.
func (s *AccountStore) BeginProcessing(id string, toAnalyze int) error {
	query := `UPDATE accounts SET processing_status = ?, emails_to_analyze = ?,
			  emails_analyzed = 0, subscriptions_found = 0,
			  processing_started_at = ?, last_error = '',
			  updated_at = CURRENT_TIMESTAMP
			  WHERE id = ?`
	return s.exec(query, ProcessingStatusAnalyzing, toAnalyze, time.Now().UTC(), id)
}

// MarkAnalyzing flags a resumed processing run as live, preserving counters.
func (s *AccountStore) MarkAnalyzing(id string) error {
	query := `UPDATE accounts SET processing_status = ?, last_error = '',
			  updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return s.exec(query, ProcessingStatusAnalyzing, id)
}

// AddProcessingProgress adds batch totals to the analysis counters.
func (s *AccountStore) AddProcessingProgress(id string, analyzed, found int) error {
	query := `UPDATE accounts SET emails_analyzed = emails_analyzed + ?,
			  subscriptions_found = subscriptions_found + ?,
			  updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return s.exec(query, analyzed, found, id)
}

// CompleteProcessing finalizes a successful processing run.
func (s *AccountStore) CompleteProcessing(id string) error {
	query := `UPDATE accounts SET processing_status = ?,
			  processing_started_at = NULL, last_error = '',
			  updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return s.exec(query, ProcessingStatusCompleted, id)
}

// FailProcessing records a processing failure, preserving all counters so
// the next run can resume.
func (s *AccountStore) FailProcessing(id, message string) error {
	query := `UPDATE accounts SET processing_status = ?, last_error = ?,
			  updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return s.exec(query, ProcessingStatusError, message, id)
}

// AddAICost adds a classifier charge to the running total, kept at
// 6-decimal USD precision.
func (s *AccountStore) AddAICost(id string, cost float64) error {
	query := `UPDATE accounts SET ai_cost_total = ROUND(ai_cost_total + ?, 6),
			  updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return s.exec(query, cost, id)
}

// UpdateAccessToken writes back a refreshed bearer and its expiry.
func (s *AccountStore) UpdateAccessToken(id, encryptedToken string, expiry time.Time) error {
	query := `UPDATE accounts SET access_token_encrypted = ?, token_expiry = ?,
			  updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return s.exec(query, encryptedToken, expiry.UTC(), id)
}

// Delete removes an account; mail rows cascade.
func (s *AccountStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (s *AccountStore) exec(query string, args ...interface{}) error {
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
