package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subscription-tracker/internal/config"
	"subscription-tracker/internal/database"
	"subscription-tracker/internal/email"
	"subscription-tracker/internal/workers"
)

// emptyMailClient reports a mailbox with no matching messages.
type emptyMailClient struct{}

func (emptyMailClient) ListMessageIDs(ctx context.Context, query, pageToken string, pageSize int64) (*email.Page, error) {
	return &email.Page{}, nil
}

func (emptyMailClient) GetMessage(ctx context.Context, id string) (*email.Message, error) {
	return &email.Message{ID: id, ReceivedAt: time.Now().UTC()}, nil
}

func setupServer(t *testing.T) (*database.DB, http.Handler) {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		Gmail: config.GmailConfig{CountPageSize: 500, FetchPageSize: 100},
		Sync:  config.SyncConfig{MonthsBack: 12, StaleThreshold: 30 * time.Minute},
		Processing: config.ProcessingConfig{
			BatchSize:        50,
			KeywordThreshold: 0.3,
			MaxAttempts:      3,
		},
	}

	clientFor := func(ctx context.Context, account *database.Account) (email.MailClient, error) {
		return emptyMailClient{}, nil
	}

	syncRunner := workers.NewSyncRunner(db.Accounts, db.Emails, clientFor, cfg, logger)
	processRunner := workers.NewProcessRunner(db.Accounts, db.Emails, db.Subscriptions, nil, cfg.Processing, logger)
	supervisor := workers.NewSupervisor(db.Accounts, syncRunner, processRunner, logger)

	return db, NewRouter(NewHandlers(db, supervisor))
}

func seedAccount(t *testing.T, db *database.DB) *database.Account {
	t.Helper()

	user := &database.User{Email: "owner@example.com"}
	require.NoError(t, db.Users.Create(user))

	cred := &database.Credential{UserID: user.ID, ClientID: "client", ClientSecret: "secret"}
	require.NoError(t, db.Users.CreateCredential(cred))

	account := &database.Account{
		UserID:       user.ID,
		CredentialID: cred.ID,
		EmailAddress: "owner@gmail.com",
		IsActive:     true,
	}
	require.NoError(t, db.Accounts.Create(account))

	return account
}

func doRequest(t *testing.T, router http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	_, router := setupServer(t)

	w := doRequest(t, router, "GET", "/api/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ok", body["database"])
}

func TestListAccountsEmpty(t *testing.T) {
	_, router := setupServer(t)

	w := doRequest(t, router, "GET", "/api/accounts")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestGetAccountByID(t *testing.T) {
	db, router := setupServer(t)
	account := seedAccount(t, db)

	w := doRequest(t, router, "GET", "/api/accounts/"+account.ID)
	assert.Equal(t, http.StatusOK, w.Code)

	var got database.Account
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, account.ID, got.ID)
	assert.Equal(t, "owner@gmail.com", got.EmailAddress)
	assert.Equal(t, database.SyncStatusPending, got.SyncStatus)

	w = doRequest(t, router, "GET", "/api/accounts/no-such-account")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartSync(t *testing.T) {
	db, router := setupServer(t)
	account := seedAccount(t, db)

	w := doRequest(t, router, "POST", "/api/accounts/"+account.ID+"/sync")
	assert.Equal(t, http.StatusAccepted, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, account.ID, body["account_id"])
	assert.Equal(t, "sync_started", body["status"])
}

func TestStartSyncMissingAccount(t *testing.T) {
	_, router := setupServer(t)

	w := doRequest(t, router, "POST", "/api/accounts/no-such-account/sync")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartSyncConflict(t *testing.T) {
	db, router := setupServer(t)
	account := seedAccount(t, db)

	// Syncing with no cursor reads as live in another process
	require.NoError(t, db.Accounts.BeginSync(account.ID, "h1"))

	w := doRequest(t, router, "POST", "/api/accounts/"+account.ID+"/sync")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStartProcessing(t *testing.T) {
	db, router := setupServer(t)
	account := seedAccount(t, db)

	w := doRequest(t, router, "POST", "/api/accounts/"+account.ID+"/process")
	assert.Equal(t, http.StatusAccepted, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "processing_started", body["status"])
}

func TestGetUserSubscriptions(t *testing.T) {
	db, router := setupServer(t)
	account := seedAccount(t, db)

	sub := &database.Subscription{
		UserID:          account.UserID,
		ServiceName:     "Netflix",
		Amount:          15.99,
		BillingCycle:    database.CycleMonthly,
		ConfidenceScore: 0.95,
	}
	created, err := db.Subscriptions.InsertDetected(sub)
	require.NoError(t, err)
	require.True(t, created)

	w := doRequest(t, router, "GET", "/api/users/"+account.UserID+"/subscriptions")
	assert.Equal(t, http.StatusOK, w.Code)

	var subs []database.Subscription
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &subs))
	require.Len(t, subs, 1)
	assert.Equal(t, "Netflix", subs[0].ServiceName)

	// Unknown users get an empty list, not an error
	w = doRequest(t, router, "GET", "/api/users/nobody/subscriptions")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}
