package workers

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"subscription-tracker/internal/config"
	"subscription-tracker/internal/database"
	"subscription-tracker/internal/email"
	"subscription-tracker/internal/llm"
)

// newTestDB opens a file-backed database so the runners' goroutines share
// one store.
func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func seedAccount(t *testing.T, db *database.DB) *database.Account {
	t.Helper()

	user := &database.User{Email: "owner@example.com"}
	require.NoError(t, db.Users.Create(user))

	cred := &database.Credential{
		UserID:       user.ID,
		ClientID:     "client-id",
		ClientSecret: "encrypted-secret",
	}
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

func seedRow(t *testing.T, db *database.DB, accountID, messageID, subject, sender, body string) *database.Email {
	t.Helper()

	row := &database.Email{
		AccountID:      accountID,
		GmailMessageID: messageID,
		Subject:        subject,
		Sender:         sender,
		BodyText:       body,
		ReceivedAt:     time.Now().UTC(),
	}
	require.NoError(t, db.Emails.Upsert(row))

	stored, err := db.Emails.GetByMessageID(accountID, messageID)
	require.NoError(t, err)
	return stored
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig returns the default knobs with all delays zeroed.
func testConfig() *config.Config {
	return &config.Config{
		Gmail: config.GmailConfig{
			CountPageSize: 500,
			FetchPageSize: 100,
		},
		Sync: config.SyncConfig{
			MonthsBack:     12,
			PageDelay:      0,
			StaleThreshold: 30 * time.Minute,
		},
		Processing: config.ProcessingConfig{
			BatchSize:            50,
			BatchDelay:           0,
			KeywordThreshold:     0.3,
			AutoCreateConfidence: 0,
			MaxAttempts:          3,
		},
	}
}

// fakeMailClient serves canned pages and messages. Page tokens requested
// are recorded so tests can assert whether the count phase ran.
type fakeMailClient struct {
	mu       sync.Mutex
	pages    map[string]*email.Page
	messages map[string]*email.Message
	failIDs  map[string]error
	listErr  error
	block    chan struct{}

	listTokens []string
	lastQuery  string
}

func (f *fakeMailClient) ListMessageIDs(ctx context.Context, query, pageToken string, pageSize int64) (*email.Page, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.listTokens = append(f.listTokens, pageToken)
	f.lastQuery = query

	if f.listErr != nil {
		return nil, f.listErr
	}

	page, ok := f.pages[pageToken]
	if !ok {
		return &email.Page{}, nil
	}
	return page, nil
}

func (f *fakeMailClient) GetMessage(ctx context.Context, id string) (*email.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failIDs[id]; ok {
		return nil, err
	}

	msg, ok := f.messages[id]
	if !ok {
		msg = &email.Message{
			ID:         id,
			Subject:    "Your receipt",
			Sender:     "billing@example.com",
			PlainText:  "You were charged",
			ReceivedAt: time.Now().UTC(),
		}
	}
	return msg, nil
}

func (f *fakeMailClient) requestedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.listTokens...)
}

func factoryFor(client email.MailClient) ClientFactory {
	return func(ctx context.Context, account *database.Account) (email.MailClient, error) {
		return client, nil
	}
}

// fakeModel is a canned LanguageModel that counts its calls.
type fakeModel struct {
	mu      sync.Mutex
	enabled bool
	verdict *llm.Classification
	err     error
	calls   int
}

func (f *fakeModel) Enabled() bool {
	return f.enabled
}

func (f *fakeModel) Classify(ctx context.Context, subject, sender string, receivedAt time.Time, plainBody, htmlBody string) (*llm.Classification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.verdict, nil
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
