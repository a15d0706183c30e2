package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"subscription-tracker/internal/classifier"
	"subscription-tracker/internal/config"
	"subscription-tracker/internal/database"
	"subscription-tracker/internal/llm"
)

// LanguageModel is the paid classification stage. llm.Client satisfies it;
// tests substitute a fake to observe call counts.
type LanguageModel interface {
	Enabled() bool
	Classify(ctx context.Context, subject, sender string, receivedAt time.Time, plainBody, htmlBody string) (*llm.Classification, error)
}

// ProcessRunner classifies unprocessed Mail Rows for one account and
// upserts detected subscriptions. The cheap keyword stage gates the paid
// model: rows it scores below the threshold never reach the LM.
type ProcessRunner struct {
	accounts      *database.AccountStore
	emails        *database.EmailStore
	subscriptions *database.SubscriptionStore
	keywords      *classifier.KeywordClassifier
	model         LanguageModel
	cfg           config.ProcessingConfig
	logger        *slog.Logger
}

func NewProcessRunner(accounts *database.AccountStore, emails *database.EmailStore, subscriptions *database.SubscriptionStore, model LanguageModel, cfg config.ProcessingConfig, logger *slog.Logger) *ProcessRunner {
	return &ProcessRunner{
		accounts:      accounts,
		emails:        emails,
		subscriptions: subscriptions,
		keywords:      classifier.NewKeywordClassifier(),
		model:         model,
		cfg:           cfg,
		logger:        logger.With("worker", "process"),
	}
}

// Run executes one processing pass over the account's unprocessed rows,
// resuming counters from an interrupted run where possible.
func (r *ProcessRunner) Run(ctx context.Context, accountID string) error {
	account, err := r.accounts.GetByID(accountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}

	resume := (account.ProcessingStatus == database.ProcessingStatusAnalyzing ||
		account.ProcessingStatus == database.ProcessingStatusError) &&
		account.EmailsAnalyzed < account.EmailsToAnalyze

	if resume {
		r.logger.Info("resuming processing",
			"account_id", accountID,
			"analyzed", account.EmailsAnalyzed,
			"to_analyze", account.EmailsToAnalyze)
		if err := r.accounts.MarkAnalyzing(accountID); err != nil {
			return fmt.Errorf("failed to mark account analyzing: %w", err)
		}
	} else {
		pending, err := r.emails.CountUnprocessed(accountID)
		if err != nil {
			return fmt.Errorf("failed to count unprocessed rows: %w", err)
		}
		if pending == 0 {
			r.logger.Info("no rows to process", "account_id", accountID)
			return r.accounts.CompleteProcessing(accountID)
		}
		if err := r.accounts.BeginProcessing(accountID, pending); err != nil {
			return fmt.Errorf("failed to begin processing: %w", err)
		}
	}

	for {
		batch, err := r.emails.GetUnprocessed(accountID, r.cfg.BatchSize)
		if err != nil {
			return r.fail(accountID, fmt.Errorf("failed to load batch: %w", err))
		}
		if len(batch) == 0 {
			break
		}

		analyzed, found := 0, 0
		for i := range batch {
			rowAnalyzed, subscriptionCreated, err := r.processRow(ctx, account, &batch[i])
			if err != nil {
				return r.fail(accountID, err)
			}
			if rowAnalyzed {
				analyzed++
			}
			if subscriptionCreated {
				found++
			}
		}

		if err := r.accounts.AddProcessingProgress(accountID, analyzed, found); err != nil {
			return r.fail(accountID, fmt.Errorf("failed to record batch progress: %w", err))
		}

		select {
		case <-time.After(r.cfg.BatchDelay):
		case <-ctx.Done():
			return r.fail(accountID, ctx.Err())
		}
	}

	if err := r.accounts.CompleteProcessing(accountID); err != nil {
		return fmt.Errorf("failed to complete processing: %w", err)
	}

	r.logger.Info("processing completed", "account_id", accountID)
	return nil
}

// processRow classifies one Mail Row. The returned booleans report whether
// the row was consumed (marked processed or burned) and whether a new
// subscription was created. Only unexpected store failures return an
// error; classification failures burn the row's attempt budget instead.
func (r *ProcessRunner) processRow(ctx context.Context, account *database.Account, row *database.Email) (bool, bool, error) {
	body := row.BodyText
	if body == "" {
		body = row.BodyHTML
	}

	result := r.keywords.Classify(row.Subject, row.Sender, body)
	provider := database.ProviderKeywords

	if result.Confidence >= r.cfg.KeywordThreshold {
		if r.model != nil && r.model.Enabled() {
			verdict, err := r.model.Classify(ctx, row.Subject, row.Sender, row.ReceivedAt, row.BodyText, row.BodyHTML)
			switch {
			case err == nil:
				result = &verdict.Result
				provider = database.ProviderClaude
				if verdict.Cost > 0 {
					if costErr := r.accounts.AddAICost(account.ID, verdict.Cost); costErr != nil {
						return false, false, fmt.Errorf("failed to record classifier cost: %w", costErr)
					}
				}
			case llm.IsInvalidResponse(err):
				return r.burnAttempt(row, err)
			default:
				r.logger.Warn("model call failed, using keyword result",
					"email_id", row.ID, "error", err)
				provider = database.ProviderKeywordsFallback
			}
		} else {
			provider = database.ProviderKeywordsFallback
		}
	}

	extracted, err := json.Marshal(result)
	if err != nil {
		return false, false, fmt.Errorf("failed to encode extracted data: %w", err)
	}

	if err := r.emails.MarkProcessed(row.ID, result.IsSubscription, result.Confidence,
		string(extracted), provider, result.Reasoning); err != nil {
		return false, false, fmt.Errorf("failed to mark row processed: %w", err)
	}

	created := false
	if result.IsSubscription && result.ServiceName != "" && result.Amount > 0 &&
		result.Confidence >= r.cfg.AutoCreateConfidence {
		created, err = r.createSubscription(account, row, result)
		if err != nil {
			return false, false, err
		}
	}

	return true, created, nil
}

// burnAttempt charges one analysis attempt to the row. When the budget is
// spent the row is marked processed with an error provider so it is never
// retried again.
func (r *ProcessRunner) burnAttempt(row *database.Email, cause error) (bool, bool, error) {
	attempts, err := r.emails.IncrementAttempts(row.ID)
	if err != nil {
		return false, false, fmt.Errorf("failed to record analysis attempt: %w", err)
	}

	if attempts < r.cfg.MaxAttempts {
		r.logger.Warn("classification failed, row will be retried",
			"email_id", row.ID, "attempts", attempts, "error", cause)
		return false, false, nil
	}

	reasoning := fmt.Sprintf("analysis failed after %d attempts: %v", attempts, cause)
	if err := r.emails.MarkProcessed(row.ID, false, 0, "", database.ProviderError, reasoning); err != nil {
		return false, false, fmt.Errorf("failed to burn row: %w", err)
	}

	r.logger.Error("row exhausted analysis attempts",
		"email_id", row.ID, "attempts", attempts, "error", cause)
	return true, false, nil
}

func (r *ProcessRunner) createSubscription(account *database.Account, row *database.Email, result *classifier.Result) (bool, error) {
	sub := &database.Subscription{
		UserID:          account.UserID,
		EmailID:         &row.ID,
		ServiceName:     result.ServiceName,
		Amount:          result.Amount,
		Currency:        result.Currency,
		BillingCycle:    result.BillingCycle,
		ConfidenceScore: result.Confidence,
	}
	if result.NextBillingDate != "" {
		if t, err := time.Parse("2006-01-02", result.NextBillingDate); err == nil {
			sub.NextBillingDate = &t
		}
	}

	created, err := r.subscriptions.InsertDetected(sub)
	if err != nil {
		return false, fmt.Errorf("failed to upsert subscription: %w", err)
	}

	if created {
		r.logger.Info("subscription detected",
			"user_id", account.UserID,
			"service", result.ServiceName,
			"amount", result.Amount)
	}

	return created, nil
}

func (r *ProcessRunner) fail(accountID string, err error) error {
	r.logger.Error("processing failed", "account_id", accountID, "error", err)

	if dbErr := r.accounts.FailProcessing(accountID, "Processing failed: "+err.Error()); dbErr != nil {
		r.logger.Error("failed to record processing failure",
			"account_id", accountID, "error", dbErr)
	}

	return err
}
