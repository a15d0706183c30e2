package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"subscription-tracker/internal/database"
)

var processWait bool

var processCmd = &cobra.Command{
	Use:   "process <account-id>",
	Short: "Start classification for an account's synced mail",
	Long: `Start a background classification run over the account's unprocessed
mail. The keyword stage scores every message and only uncertain ones are
escalated to the language model. With --wait the command polls until the
run finishes.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().BoolVarP(&processWait, "wait", "w", false, "Poll until processing finishes")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	accountID := args[0]

	if _, err := client.StartProcessing(accountID); err != nil {
		formatter.PrintError(err)
		return err
	}

	if !config.Quiet {
		formatter.PrintSuccess("Processing started")
	}

	if !processWait {
		return nil
	}

	spinner := cliSpinner("Classifying mail", formatter)
	spinner.Start()
	account, err := pollUntilSettled(client, accountID, func(a *database.Account) bool {
		return a.ProcessingStatus != database.ProcessingStatusAnalyzing
	})
	spinner.Stop()
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if account.ProcessingStatus == database.ProcessingStatusError {
		err := fmt.Errorf("processing failed: %s", account.LastError)
		formatter.PrintError(err)
		return err
	}

	formatter.PrintSuccess(fmt.Sprintf("Processing completed: %d analyzed, %d subscriptions found, $%.6f spent",
		account.EmailsAnalyzed, account.SubscriptionsFound, account.AICostTotal))
	return nil
}
