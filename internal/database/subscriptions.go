package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// SubscriptionStore handles database operations for the subscription ledger
type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

const subscriptionColumns = `id, user_id, email_id, service_name, amount,
	currency, billing_cycle, next_billing_date, status, confidence_score,
	user_verified, category, notes, first_detected, last_updated`

func scanSubscription(row interface{ Scan(...interface{}) error }) (*Subscription, error) {
	var sub Subscription
	var emailID sql.NullString
	var nextBilling sql.NullTime

	err := row.Scan(
		&sub.ID, &sub.UserID, &emailID, &sub.ServiceName, &sub.Amount,
		&sub.Currency, &sub.BillingCycle, &nextBilling, &sub.Status,
		&sub.ConfidenceScore, &sub.UserVerified, &sub.Category, &sub.Notes,
		&sub.FirstDetected, &sub.LastUpdated)
	if err != nil {
		return nil, err
	}

	if emailID.Valid {
		id := emailID.String
		sub.EmailID = &id
	}
	if nextBilling.Valid {
		t := nextBilling.Time
		sub.NextBillingDate = &t
	}

	return &sub, nil
}

// InsertDetected records a detected subscription. Conflicts on
// (user, service_name, amount) are silently suppressed; the return value
// reports whether a new row was created.
func (s *SubscriptionStore) InsertDetected(sub *Subscription) (bool, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Currency == "" {
		sub.Currency = "USD"
	}
	if sub.BillingCycle == "" {
		sub.BillingCycle = CycleMonthly
	}
	if sub.Status == "" {
		sub.Status = SubscriptionActive
	}

	var emailID interface{}
	if sub.EmailID != nil {
		emailID = *sub.EmailID
	}
	var nextBilling interface{}
	if sub.NextBillingDate != nil {
		nextBilling = sub.NextBillingDate.UTC()
	}

	query := `INSERT INTO subscriptions (id, user_id, email_id, service_name,
			  amount, currency, billing_cycle, next_billing_date, status,
			  confidence_score)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(user_id, service_name, amount) DO NOTHING`

	result, err := s.db.Exec(query, sub.ID, sub.UserID, emailID,
		sub.ServiceName, sub.Amount, sub.Currency, sub.BillingCycle,
		nextBilling, sub.Status, sub.ConfidenceScore)
	if err != nil {
		return false, fmt.Errorf("failed to insert subscription: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// ListByUser retrieves a user's subscription ledger, newest first
func (s *SubscriptionStore) ListByUser(userID string) ([]Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
			  WHERE user_id = ?
			  ORDER BY first_detected DESC`

	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}

	return subs, rows.Err()
}

// CountByUser returns the size of a user's ledger
func (s *SubscriptionStore) CountByUser(userID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM subscriptions WHERE user_id = ?`, userID).Scan(&count)
	return count, err
}

// UpdateStatus changes a subscription's lifecycle status
func (s *SubscriptionStore) UpdateStatus(id, status string) error {
	query := `UPDATE subscriptions SET status = ?, last_updated = CURRENT_TIMESTAMP
			  WHERE id = ?`

	result, err := s.db.Exec(query, status, id)
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
