package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"subscription-tracker/internal/database"
)

// ErrAlreadyRunning is returned when a start request races an active
// runner for the same account and phase.
var ErrAlreadyRunning = errors.New("a run is already in progress for this account")

// Supervisor launches and tracks background runners. The in-process map
// gives a hard at-most-one guarantee per (account, phase) within this
// process; the account status fields extend it advisorily across
// processes.
type Supervisor struct {
	accounts *database.AccountStore
	sync     *SyncRunner
	process  *ProcessRunner
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]bool
}

func NewSupervisor(accounts *database.AccountStore, syncRunner *SyncRunner, processRunner *ProcessRunner, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		accounts: accounts,
		sync:     syncRunner,
		process:  processRunner,
		logger:   logger.With("worker", "supervisor"),
		active:   make(map[string]bool),
	}
}

// StartSync launches a background sync for the account. It refuses when a
// sync is already live, either in this process or advisorily via the
// account's status. On success the runner chains into processing.
func (s *Supervisor) StartSync(accountID string) error {
	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}

	if !s.acquire(accountID, "sync") {
		return ErrAlreadyRunning
	}

	if account.SyncStatus == database.SyncStatusSyncing && account.LastPageToken == "" {
		// Live run in another process, or a crash left no cursor to
		// resume from. Either way a fresh start now would race it.
		s.release(accountID, "sync")
		return ErrAlreadyRunning
	}

	go s.runSync(accountID)
	return nil
}

// StartProcessing launches a background processing run for the account.
func (s *Supervisor) StartProcessing(accountID string) error {
	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}

	if !s.acquire(accountID, "process") {
		return ErrAlreadyRunning
	}

	if account.ProcessingStatus == database.ProcessingStatusAnalyzing &&
		account.EmailsAnalyzed >= account.EmailsToAnalyze {
		s.release(accountID, "process")
		return ErrAlreadyRunning
	}

	go s.runProcessing(accountID)
	return nil
}

// ResumeInterrupted restarts runners for accounts a previous process left
// mid-flight. Called once at boot; failures are logged, never fatal.
func (s *Supervisor) ResumeInterrupted() {
	accounts, err := s.accounts.ListInterrupted()
	if err != nil {
		s.logger.Error("failed to scan for interrupted runs", "error", err)
		return
	}

	for _, account := range accounts {
		switch {
		case account.SyncStatus == database.SyncStatusSyncing:
			s.logger.Info("resuming interrupted sync", "account_id", account.ID)
			if s.acquire(account.ID, "sync") {
				go s.runSync(account.ID)
			}
		case account.ProcessingStatus == database.ProcessingStatusAnalyzing:
			s.logger.Info("resuming interrupted processing", "account_id", account.ID)
			if s.acquire(account.ID, "process") {
				go s.runProcessing(account.ID)
			}
		}
	}
}

func (s *Supervisor) runSync(accountID string) {
	defer s.release(accountID, "sync")

	if err := s.sync.Run(context.Background(), accountID); err != nil {
		return
	}

	if err := s.StartProcessing(accountID); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		s.logger.Error("failed to chain into processing",
			"account_id", accountID, "error", err)
	}
}

func (s *Supervisor) runProcessing(accountID string) {
	defer s.release(accountID, "process")

	// Run records its own failure on the account; nothing to propagate.
	_ = s.process.Run(context.Background(), accountID)
}

func (s *Supervisor) acquire(accountID, phase string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountID + ":" + phase
	if s.active[key] {
		return false
	}
	s.active[key] = true
	return true
}

func (s *Supervisor) release(accountID, phase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, accountID+":"+phase)
}
