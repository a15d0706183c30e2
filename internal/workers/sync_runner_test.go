package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"subscription-tracker/internal/database"
	"subscription-tracker/internal/email"
)

// currentFingerprint computes the fingerprint the runner will derive for
// an account that has never completed an initial sync.
func currentFingerprint() string {
	query := email.NewQueryBuilder(12).BuildInitial(time.Now())
	return email.Fingerprint(query)
}

func TestSyncInitialRun(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db)

	client := &fakeMailClient{
		pages: map[string]*email.Page{
			"": {MessageIDs: []string{"m1", "m2", "m3"}},
		},
	}

	runner := NewSyncRunner(db.Accounts, db.Emails, factoryFor(client), testConfig(), testLogger())
	require.NoError(t, runner.Run(context.Background(), account.ID))

	got, err := db.Accounts.GetByID(account.ID)
	require.NoError(t, err)

	assert.Equal(t, database.SyncStatusCompleted, got.SyncStatus)
	assert.Equal(t, 3, got.TotalEmails)
	assert.Equal(t, 3, got.ProcessedEmails)
	assert.True(t, got.IsInitialSyncComplete)
	assert.Empty(t, got.LastPageToken)
	assert.Empty(t, got.QueryHash)
	require.NotNil(t, got.LastSync)

	stored, err := db.Emails.CountByAccount(account.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored)
}

func TestSyncResumesFromSavedCursor(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db)

	// A prior run drained two messages and saved its cursor before dying
	require.NoError(t, db.Accounts.BeginSync(account.ID, currentFingerprint()))
	require.NoError(t, db.Accounts.SetTotalEmails(account.ID, 3))
	require.NoError(t, db.Accounts.SaveSyncCursor(account.ID, 2, "page-2", "m2"))

	client := &fakeMailClient{
		pages: map[string]*email.Page{
			"":       {MessageIDs: []string{"m1", "m2"}, NextPageToken: "page-2"},
			"page-2": {MessageIDs: []string{"m3"}},
		},
	}

	runner := NewSyncRunner(db.Accounts, db.Emails, factoryFor(client), testConfig(), testLogger())
	require.NoError(t, runner.Run(context.Background(), account.ID))

	got, err := db.Accounts.GetByID(account.ID)
	require.NoError(t, err)

	assert.Equal(t, database.SyncStatusCompleted, got.SyncStatus)
	assert.Equal(t, 3, got.TotalEmails)
	assert.Equal(t, 3, got.ProcessedEmails)

	// The count phase and the first page were never re-requested
	assert.NotContains(t, client.requestedTokens(), "")

	stored, err := db.Emails.CountByAccount(account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
}

func TestSyncFingerprintMismatchStartsFresh(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db)

	// The saved cursor belongs to a filter built on an earlier date
	require.NoError(t, db.Accounts.BeginSync(account.ID, "stalehash12345ab"))
	require.NoError(t, db.Accounts.SetTotalEmails(account.ID, 2))
	require.NoError(t, db.Accounts.SaveSyncCursor(account.ID, 1, "page-2", "m1"))

	seedRow(t, db, account.ID, "m1", "Your receipt", "billing@example.com", "charged")

	client := &fakeMailClient{
		pages: map[string]*email.Page{
			"":       {MessageIDs: []string{"m1", "m2"}, NextPageToken: "page-2"},
			"page-2": {MessageIDs: []string{"m3"}},
		},
	}

	runner := NewSyncRunner(db.Accounts, db.Emails, factoryFor(client), testConfig(), testLogger())
	require.NoError(t, runner.Run(context.Background(), account.ID))

	got, err := db.Accounts.GetByID(account.ID)
	require.NoError(t, err)

	// Total recomputed from scratch, cursor discarded
	assert.Equal(t, database.SyncStatusCompleted, got.SyncStatus)
	assert.Equal(t, 3, got.TotalEmails)
	assert.Equal(t, 3, got.ProcessedEmails)
	assert.Contains(t, client.requestedTokens(), "")

	// The re-drained m1 upserted over the existing row
	stored, err := db.Emails.CountByAccount(account.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored)
}

func TestSyncCountsSkippedMessages(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db)

	client := &fakeMailClient{
		pages: map[string]*email.Page{
			"": {MessageIDs: []string{"m1", "m2", "m3"}},
		},
		failIDs: map[string]error{
			"m2": errors.New("message fetch failed"),
		},
	}

	runner := NewSyncRunner(db.Accounts, db.Emails, factoryFor(client), testConfig(), testLogger())
	require.NoError(t, runner.Run(context.Background(), account.ID))

	got, err := db.Accounts.GetByID(account.ID)
	require.NoError(t, err)

	// The skipped message still advances the counter so the run can
	// report processed == total
	assert.Equal(t, database.SyncStatusCompleted, got.SyncStatus)
	assert.Equal(t, 3, got.ProcessedEmails)

	stored, err := db.Emails.CountByAccount(account.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
}

func TestSyncAuthFailureClearsResumeState(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db)

	client := &fakeMailClient{
		listErr: &googleapi.Error{Code: 401, Message: "invalid credentials"},
	}

	runner := NewSyncRunner(db.Accounts, db.Emails, factoryFor(client), testConfig(), testLogger())
	require.Error(t, runner.Run(context.Background(), account.ID))

	got, err := db.Accounts.GetByID(account.ID)
	require.NoError(t, err)

	assert.Equal(t, database.SyncStatusError, got.SyncStatus)
	assert.Equal(t, "Authentication failed - please reconnect your account", got.LastError)
	assert.Empty(t, got.LastPageToken)
	assert.Empty(t, got.QueryHash)
}

func TestSyncRateLimitPreservesResumeState(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db)

	require.NoError(t, db.Accounts.BeginSync(account.ID, currentFingerprint()))
	require.NoError(t, db.Accounts.SetTotalEmails(account.ID, 3))
	require.NoError(t, db.Accounts.SaveSyncCursor(account.ID, 2, "page-2", "m2"))

	client := &fakeMailClient{
		listErr: &googleapi.Error{Code: 429, Message: "rate limit exceeded"},
	}

	runner := NewSyncRunner(db.Accounts, db.Emails, factoryFor(client), testConfig(), testLogger())
	require.Error(t, runner.Run(context.Background(), account.ID))

	got, err := db.Accounts.GetByID(account.ID)
	require.NoError(t, err)

	assert.Equal(t, database.SyncStatusError, got.SyncStatus)
	assert.Equal(t, "Rate limit reached - please retry later", got.LastError)
	assert.Equal(t, "page-2", got.LastPageToken)
}

func TestSyncResumesAfterRetriableFailure(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db)

	// A rate-limited run failed with its cursor preserved
	require.NoError(t, db.Accounts.BeginSync(account.ID, currentFingerprint()))
	require.NoError(t, db.Accounts.SetTotalEmails(account.ID, 3))
	require.NoError(t, db.Accounts.SaveSyncCursor(account.ID, 2, "page-2", "m2"))
	require.NoError(t, db.Accounts.FailSync(account.ID, "Rate limit reached - please retry later", false))

	client := &fakeMailClient{
		pages: map[string]*email.Page{
			"":       {MessageIDs: []string{"m1", "m2"}, NextPageToken: "page-2"},
			"page-2": {MessageIDs: []string{"m3"}},
		},
	}

	runner := NewSyncRunner(db.Accounts, db.Emails, factoryFor(client), testConfig(), testLogger())
	require.NoError(t, runner.Run(context.Background(), account.ID))

	got, err := db.Accounts.GetByID(account.ID)
	require.NoError(t, err)

	assert.Equal(t, database.SyncStatusCompleted, got.SyncStatus)
	assert.Equal(t, 3, got.TotalEmails)
	assert.Equal(t, 3, got.ProcessedEmails)
	assert.Empty(t, got.LastError)

	// The retry picked up at the saved cursor: no count phase, no first page
	assert.NotContains(t, client.requestedTokens(), "")

	stored, err := db.Emails.CountByAccount(account.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
}

func TestSyncStoreFailureMarksError(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db)

	// Reject counter writes so the first store update of the run fails
	_, err := db.Exec(`CREATE TRIGGER block_total_writes
		BEFORE UPDATE OF total_emails ON accounts
		BEGIN SELECT RAISE(ABORT, 'storage unavailable'); END`)
	require.NoError(t, err)

	client := &fakeMailClient{
		pages: map[string]*email.Page{
			"": {MessageIDs: []string{"m1"}},
		},
	}

	runner := NewSyncRunner(db.Accounts, db.Emails, factoryFor(client), testConfig(), testLogger())
	require.Error(t, runner.Run(context.Background(), account.ID))

	// The account is not left stuck in syncing; the failure is recorded
	got, err := db.Accounts.GetByID(account.ID)
	require.NoError(t, err)
	assert.Equal(t, database.SyncStatusError, got.SyncStatus)
	assert.Contains(t, got.LastError, "Sync failed")
}

func TestSyncIncrementalQueryAfterInitial(t *testing.T) {
	db := newTestDB(t)
	account := seedAccount(t, db)

	require.NoError(t, db.Accounts.BeginSync(account.ID, "h1"))
	require.NoError(t, db.Accounts.CompleteSync(account.ID, 0, 0, true))

	client := &fakeMailClient{
		pages: map[string]*email.Page{
			"": {MessageIDs: []string{"m9"}},
		},
	}

	runner := NewSyncRunner(db.Accounts, db.Emails, factoryFor(client), testConfig(), testLogger())
	require.NoError(t, runner.Run(context.Background(), account.ID))

	got, err := db.Accounts.GetByID(account.ID)
	require.NoError(t, err)
	assert.True(t, got.IsInitialSyncComplete)
	assert.Equal(t, 1, got.TotalEmails)

	// The filter was narrowed to mail after the last sync
	assert.Contains(t, client.lastQuery, "after:")
	assert.Contains(t, client.lastQuery, "-in:spam -in:trash")
}
