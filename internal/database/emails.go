package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EmailStore handles database operations for persisted mail rows
type EmailStore struct {
	db *sql.DB
}

func NewEmailStore(db *sql.DB) *EmailStore {
	return &EmailStore{db: db}
}

const emailColumns = `id, account_id, gmail_message_id, subject, sender,
	body_text, body_html, received_at, processed_at, is_subscription,
	subscription_confidence, extracted_data, ai_provider, ai_reasoning,
	analysis_attempts, created_at, updated_at`

func scanEmail(row interface{ Scan(...interface{}) error }) (*Email, error) {
	var e Email
	var processedAt sql.NullTime

	err := row.Scan(
		&e.ID, &e.AccountID, &e.GmailMessageID, &e.Subject, &e.Sender,
		&e.BodyText, &e.BodyHTML, &e.ReceivedAt, &processedAt, &e.IsSubscription,
		&e.SubscriptionConfidence, &e.ExtractedData, &e.AIProvider, &e.AIReasoning,
		&e.AnalysisAttempts, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if processedAt.Valid {
		t := processedAt.Time
		e.ProcessedAt = &t
	}

	return &e, nil
}

// Upsert creates or refreshes a mail row keyed on (account, remote message
// ID), overwriting headers and bodies. Classification state is untouched so
// a re-sync never reverts processed rows.
func (s *EmailStore) Upsert(email *Email) error {
	if email.ID == "" {
		email.ID = uuid.NewString()
	}

	query := `INSERT INTO emails (id, account_id, gmail_message_id, subject,
			  sender, body_text, body_html, received_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(account_id, gmail_message_id) DO UPDATE SET
			      subject = excluded.subject,
			      sender = excluded.sender,
			      body_text = excluded.body_text,
			      body_html = excluded.body_html,
			      received_at = excluded.received_at,
			      updated_at = CURRENT_TIMESTAMP`

	_, err := s.db.Exec(query, email.ID, email.AccountID, email.GmailMessageID,
		email.Subject, email.Sender, email.BodyText, email.BodyHTML,
		email.ReceivedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert email: %w", err)
	}

	return nil
}

// GetByMessageID retrieves a mail row by its remote message ID
func (s *EmailStore) GetByMessageID(accountID, gmailMessageID string) (*Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails
			  WHERE account_id = ? AND gmail_message_id = ?`
	return scanEmail(s.db.QueryRow(query, accountID, gmailMessageID))
}

// CountByAccount returns the number of persisted mail rows for an account
func (s *EmailStore) CountByAccount(accountID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM emails WHERE account_id = ?`, accountID).Scan(&count)
	return count, err
}

// CountUnprocessed returns the number of mail rows awaiting classification
func (s *EmailStore) CountUnprocessed(accountID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM emails WHERE account_id = ? AND processed_at IS NULL`
	err := s.db.QueryRow(query, accountID).Scan(&count)
	return count, err
}

// GetUnprocessed retrieves up to limit unclassified rows, newest first
func (s *EmailStore) GetUnprocessed(accountID string, limit int) ([]Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails
			  WHERE account_id = ? AND processed_at IS NULL
			  ORDER BY received_at DESC
			  LIMIT ?`

	rows, err := s.db.Query(query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []Email
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *email)
	}

	return emails, rows.Err()
}

// MarkProcessed records a classification verdict and stamps processed_at,
// consuming the row for future batches.
func (s *EmailStore) MarkProcessed(id string, isSubscription bool, confidence float64, extractedData, provider, reasoning string) error {
	query := `UPDATE emails SET processed_at = ?, is_subscription = ?,
			  subscription_confidence = ?, extracted_data = ?, ai_provider = ?,
			  ai_reasoning = ?, updated_at = CURRENT_TIMESTAMP
			  WHERE id = ?`

	result, err := s.db.Exec(query, time.Now().UTC(), isSubscription,
		confidence, extractedData, provider, reasoning, id)
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

// IncrementAttempts bumps the failed-analysis counter and returns the new
// value. The row stays unprocessed until the attempt budget is consumed.
func (s *EmailStore) IncrementAttempts(id string) (int, error) {
	query := `UPDATE emails SET analysis_attempts = analysis_attempts + 1,
			  updated_at = CURRENT_TIMESTAMP
			  WHERE id = ?
			  RETURNING analysis_attempts`

	var attempts int
	if err := s.db.QueryRow(query, id).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("failed to increment analysis attempts: %w", err)
	}

	return attempts, nil
}
