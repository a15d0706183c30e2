package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"subscription-tracker/internal/config"
	"subscription-tracker/internal/database"
	"subscription-tracker/internal/email"
)

// ClientFactory builds a mailbox client authenticated for one account.
type ClientFactory func(ctx context.Context, account *database.Account) (email.MailClient, error)

// SyncRunner drains a mailbox filter into Mail Rows for one account. It is
// a resumable state machine: the page cursor persisted after every drained
// page lets an interrupted run continue where it stopped.
type SyncRunner struct {
	accounts  *database.AccountStore
	emails    *database.EmailStore
	clientFor ClientFactory
	queries   *email.QueryBuilder
	gmailCfg  config.GmailConfig
	syncCfg   config.SyncConfig
	logger    *slog.Logger
}

func NewSyncRunner(accounts *database.AccountStore, emails *database.EmailStore, clientFor ClientFactory, cfg *config.Config, logger *slog.Logger) *SyncRunner {
	return &SyncRunner{
		accounts:  accounts,
		emails:    emails,
		clientFor: clientFor,
		queries:   email.NewQueryBuilder(cfg.Sync.MonthsBack),
		gmailCfg:  cfg.Gmail,
		syncCfg:   cfg.Sync,
		logger:    logger.With("worker", "sync"),
	}
}

// Run executes one sync pass for the account, resuming a prior
// interrupted run when the saved cursor is still valid.
func (r *SyncRunner) Run(ctx context.Context, accountID string) error {
	account, err := r.accounts.GetByID(accountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}

	query, initialRun, err := r.buildQuery(account)
	if err != nil {
		return r.fail(accountID, err)
	}
	fingerprint := email.Fingerprint(query)

	// Both interrupted (syncing) and failed (error) runs resume, as long
	// as the saved cursor still belongs to the current filter.
	resume := (account.SyncStatus == database.SyncStatusSyncing ||
		account.SyncStatus == database.SyncStatusError) &&
		account.LastPageToken != "" &&
		account.QueryHash == fingerprint

	var pageToken string
	var processed, total int

	if resume {
		pageToken = account.LastPageToken
		processed = account.ProcessedEmails
		total = account.TotalEmails

		if account.ProcessingStartedAt != nil && time.Since(*account.ProcessingStartedAt) > r.syncCfg.StaleThreshold {
			r.logger.Warn("resuming stale sync",
				"account_id", accountID,
				"started_at", account.ProcessingStartedAt)
		}
		r.logger.Info("resuming sync from saved cursor",
			"account_id", accountID,
			"processed", processed,
			"total", total)

		if err := r.accounts.MarkSyncing(accountID); err != nil {
			return r.fail(accountID, fmt.Errorf("failed to mark account syncing: %w", err))
		}
	} else {
		if account.QueryHash != "" && account.QueryHash != fingerprint {
			r.logger.Info("query fingerprint changed, discarding resume state",
				"account_id", accountID,
				"old_hash", account.QueryHash,
				"new_hash", fingerprint)
		}
		if err := r.accounts.BeginSync(accountID, fingerprint); err != nil {
			return r.fail(accountID, fmt.Errorf("failed to begin sync: %w", err))
		}
	}

	client, err := r.clientFor(ctx, account)
	if err != nil {
		return r.fail(accountID, err)
	}

	if !resume {
		total, err = r.countMessages(ctx, client, query)
		if err != nil {
			return r.fail(accountID, err)
		}
		if err := r.accounts.SetTotalEmails(accountID, total); err != nil {
			return r.fail(accountID, fmt.Errorf("failed to store total: %w", err))
		}
		r.logger.Info("counted messages under filter",
			"account_id", accountID, "total", total)
	}

	skipped := 0
	for {
		page, err := client.ListMessageIDs(ctx, query, pageToken, r.gmailCfg.FetchPageSize)
		if err != nil {
			return r.fail(accountID, err)
		}

		var lastID string
		for _, id := range page.MessageIDs {
			msg, err := client.GetMessage(ctx, id)
			if err != nil {
				skipped++
				r.logger.Warn("skipping message after fetch failure",
					"account_id", accountID, "message_id", id, "error", err)
				processed++
				lastID = id
				continue
			}

			row := &database.Email{
				AccountID:      accountID,
				GmailMessageID: msg.ID,
				Subject:        msg.Subject,
				Sender:         msg.Sender,
				BodyText:       msg.PlainText,
				BodyHTML:       msg.HTMLText,
				ReceivedAt:     msg.ReceivedAt,
			}
			if err := r.emails.Upsert(row); err != nil {
				return r.fail(accountID, fmt.Errorf("failed to persist message %s: %w", id, err))
			}

			processed++
			lastID = id
		}

		r.saveCursor(accountID, processed, page.NextPageToken, lastID)

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken

		select {
		case <-time.After(r.syncCfg.PageDelay):
		case <-ctx.Done():
			return r.fail(accountID, ctx.Err())
		}
	}

	if err := r.accounts.CompleteSync(accountID, total, processed, initialRun); err != nil {
		return r.fail(accountID, fmt.Errorf("failed to complete sync: %w", err))
	}

	r.logger.Info("sync completed",
		"account_id", accountID,
		"total", total,
		"processed", processed,
		"skipped", skipped)

	return nil
}

func (r *SyncRunner) buildQuery(account *database.Account) (string, bool, error) {
	if account.IsInitialSyncComplete {
		query, err := r.queries.BuildIncremental(account.LastSync)
		return query, false, err
	}
	return r.queries.BuildInitial(time.Now()), true, nil
}

func (r *SyncRunner) countMessages(ctx context.Context, client email.MailClient, query string) (int, error) {
	var total int
	var pageToken string
	for {
		page, err := client.ListMessageIDs(ctx, query, pageToken, r.gmailCfg.CountPageSize)
		if err != nil {
			return 0, err
		}
		total += len(page.MessageIDs)
		if page.NextPageToken == "" {
			return total, nil
		}
		pageToken = page.NextPageToken
	}
}

// saveCursor persists resume state after a drained page, retrying once.
// Losing one page of progress on a crash is accepted, so a second failure
// only logs.
func (r *SyncRunner) saveCursor(accountID string, processed int, nextPageToken, lastMessageID string) {
	err := r.accounts.SaveSyncCursor(accountID, processed, nextPageToken, lastMessageID)
	if err == nil {
		return
	}
	if err = r.accounts.SaveSyncCursor(accountID, processed, nextPageToken, lastMessageID); err != nil {
		r.logger.Error("failed to save sync cursor after retry",
			"account_id", accountID, "processed", processed, "error", err)
	}
}

func (r *SyncRunner) fail(accountID string, err error) error {
	kind := ClassifyError(err)
	message := kind.UserMessage(err)

	r.logger.Error("sync failed",
		"account_id", accountID,
		"kind", string(kind),
		"error", err)

	if dbErr := r.accounts.FailSync(accountID, message, kind.ClearsResume()); dbErr != nil {
		r.logger.Error("failed to record sync failure",
			"account_id", accountID, "error", dbErr)
	}

	return err
}
