package cmd

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var interactive bool

var listCmd = &cobra.Command{
	Use:     "list <user-id>",
	Aliases: []string{"ls"},
	Short:   "List a user's detected subscriptions",
	Long:    `List the subscriptions detected in the user's synced mail.`,
	Args:    cobra.ExactArgs(1),
	RunE:    runList,
}

func init() {
	listCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Browse subscriptions in an interactive table")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	config, formatter, client, err := initializeClient()
	if err != nil {
		return err
	}

	userID := args[0]

	subscriptions, err := client.GetSubscriptions(userID)
	if err != nil {
		formatter.PrintError(err)
		return err
	}

	if interactive && isatty.IsTerminal(os.Stdout.Fd()) {
		model, err := NewInteractiveTable(subscriptions, userID, client, formatter, config)
		if err != nil {
			formatter.PrintError(err)
			return err
		}
		return model.Run()
	}

	return formatter.PrintSubscriptions(subscriptions)
}
