package cmd

import (
	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:     "accounts",
	Aliases: []string{"acc"},
	Short:   "Manage connected mailbox accounts",
}

var accountsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all connected accounts",
	RunE:    runAccountsList,
}

var accountsGetCmd = &cobra.Command{
	Use:   "get <account-id>",
	Short: "Show an account's sync and processing status",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsGet,
}

func init() {
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsGetCmd)
	rootCmd.AddCommand(accountsCmd)
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	accounts, err := client.GetAccounts()
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintAccounts(accounts)
}

func runAccountsGet(cmd *cobra.Command, args []string) error {
	_, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	account, err := client.GetAccount(args[0])
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	return formatter.PrintAccount(account)
}
