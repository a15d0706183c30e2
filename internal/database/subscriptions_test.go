package database

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertDetectedSuppressesDuplicates(t *testing.T) {
	db := setupTestDB(t)
	account := seedAccount(t, db)

	first := &Subscription{
		UserID:          account.UserID,
		ServiceName:     "Netflix",
		Amount:          15.99,
		Currency:        "USD",
		BillingCycle:    CycleMonthly,
		ConfidenceScore: 0.98,
	}
	created, err := db.Subscriptions.InsertDetected(first)
	require.NoError(t, err)
	assert.True(t, created)

	// Same user, service, and amount: silently suppressed
	duplicate := &Subscription{
		UserID:          account.UserID,
		ServiceName:     "Netflix",
		Amount:          15.99,
		ConfidenceScore: 0.91,
	}
	created, err = db.Subscriptions.InsertDetected(duplicate)
	require.NoError(t, err)
	assert.False(t, created)

	count, err := db.Subscriptions.CountByUser(account.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Different amount is a distinct subscription
	upgraded := &Subscription{
		UserID:      account.UserID,
		ServiceName: "Netflix",
		Amount:      22.99,
	}
	created, err = db.Subscriptions.InsertDetected(upgraded)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestInsertDetectedDefaults(t *testing.T) {
	db := setupTestDB(t)
	account := seedAccount(t, db)

	sub := &Subscription{
		UserID:      account.UserID,
		ServiceName: "Spotify",
		Amount:      10.99,
	}
	created, err := db.Subscriptions.InsertDetected(sub)
	require.NoError(t, err)
	require.True(t, created)

	subs, err := db.Subscriptions.ListByUser(account.UserID)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	assert.Equal(t, "USD", subs[0].Currency)
	assert.Equal(t, CycleMonthly, subs[0].BillingCycle)
	assert.Equal(t, SubscriptionActive, subs[0].Status)
}

func TestUpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	account := seedAccount(t, db)

	sub := &Subscription{UserID: account.UserID, ServiceName: "Hulu", Amount: 7.99}
	_, err := db.Subscriptions.InsertDetected(sub)
	require.NoError(t, err)

	require.NoError(t, db.Subscriptions.UpdateStatus(sub.ID, SubscriptionCancelled))

	subs, err := db.Subscriptions.ListByUser(account.UserID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, SubscriptionCancelled, subs[0].Status)

	assert.ErrorIs(t, db.Subscriptions.UpdateStatus("missing", SubscriptionPaused), sql.ErrNoRows)
}
