package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"subscription-tracker/internal/database"
)

var syncWait bool

var syncCmd = &cobra.Command{
	Use:   "sync <account-id>",
	Short: "Start a mailbox sync for an account",
	Long: `Start a background mailbox sync for the given account. The server
fetches matching mail, persists it, and chains into classification when
the sync completes. With --wait the command polls until the run finishes.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVarP(&syncWait, "wait", "w", false, "Poll until the sync finishes")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	accountID := args[0]

	if _, err := client.StartSync(accountID); err != nil {
		formatter.PrintError(err)
		return err
	}

	if !config.Quiet {
		formatter.PrintSuccess("Sync started")
	}

	if !syncWait {
		return nil
	}

	spinner := cliSpinner("Syncing mailbox", formatter)
	spinner.Start()
	account, err := pollUntilSettled(client, accountID, func(a *database.Account) bool {
		return a.SyncStatus != database.SyncStatusSyncing
	})
	spinner.Stop()
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if account.SyncStatus == database.SyncStatusError {
		err := fmt.Errorf("sync failed: %s", account.LastError)
		formatter.PrintError(err)
		return err
	}

	formatter.PrintSuccess(fmt.Sprintf("Sync completed: %d of %d emails",
		account.ProcessedEmails, account.TotalEmails))
	return nil
}

// pollUntilSettled polls the account status until done reports true.
func pollUntilSettled(client interface {
	GetAccount(id string) (*database.Account, error)
}, accountID string, done func(*database.Account) bool) (*database.Account, error) {
	for {
		account, err := client.GetAccount(accountID)
		if err != nil {
			return nil, err
		}
		if done(account) {
			return account, nil
		}
		time.Sleep(2 * time.Second)
	}
}
