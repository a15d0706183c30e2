package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"subscription-tracker/internal/database"
)

// OutputFormatter handles different output formats
type OutputFormatter struct {
	format  string
	quiet   bool
	noColor bool
}

// NewOutputFormatter creates a new output formatter
func NewOutputFormatter(format string, quiet bool) *OutputFormatter {
	return &OutputFormatter{format: format, quiet: quiet}
}

// NewOutputFormatterWithColor creates a formatter with explicit color control
func NewOutputFormatterWithColor(format string, quiet, noColor bool) *OutputFormatter {
	return &OutputFormatter{format: format, quiet: quiet, noColor: noColor}
}

// NoColor reports whether colored output is disabled
func (f *OutputFormatter) NoColor() bool {
	return f.noColor
}

// PrintAccounts prints a list of accounts
func (f *OutputFormatter) PrintAccounts(accounts []database.Account) error {
	if f.quiet {
		for _, account := range accounts {
			fmt.Println(account.ID)
		}
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(accounts)
	case "table":
		return f.printAccountsTable(accounts)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintAccount prints a single account's status document
func (f *OutputFormatter) PrintAccount(account *database.Account) error {
	if f.quiet {
		fmt.Println(account.ID)
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(account)
	case "table":
		return f.printAccountDetail(account)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintSubscriptions prints a subscription ledger
func (f *OutputFormatter) PrintSubscriptions(subs []database.Subscription) error {
	if f.quiet {
		for _, sub := range subs {
			fmt.Println(sub.ID)
		}
		return nil
	}

	switch f.format {
	case "json":
		return json.NewEncoder(os.Stdout).Encode(subs)
	case "table":
		return f.printSubscriptionsTable(subs)
	default:
		return fmt.Errorf("unsupported format: %s", f.format)
	}
}

// PrintSuccess prints a success message
func (f *OutputFormatter) PrintSuccess(message string) {
	if !f.quiet {
		fmt.Printf("✓ %s\n", message)
	}
}

// PrintError prints an error message
func (f *OutputFormatter) PrintError(err error) {
	if !f.quiet {
		fmt.Fprintf(os.Stderr, "✗ Error: %v\n", err)
	}
}

// PrintInfo prints an informational message
func (f *OutputFormatter) PrintInfo(message string) {
	if !f.quiet {
		fmt.Printf("ℹ %s\n", message)
	}
}

func (f *OutputFormatter) printAccountsTable(accounts []database.Account) error {
	if len(accounts) == 0 {
		fmt.Println("No accounts found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tEMAIL\tSYNC\tPROCESSING\tEMAILS\tSUBSCRIPTIONS\tAI COST")

	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%d\t$%.4f\n",
			truncate(a.ID, 12),
			truncate(a.EmailAddress, 30),
			a.SyncStatus,
			a.ProcessingStatus,
			a.ProcessedEmails, a.TotalEmails,
			a.SubscriptionsFound,
			a.AICostTotal)
	}

	return nil
}

func (f *OutputFormatter) printAccountDetail(a *database.Account) error {
	fmt.Printf("Account ID: %s\n", a.ID)
	fmt.Printf("Email: %s\n", a.EmailAddress)
	fmt.Printf("Sync Status: %s\n", a.SyncStatus)
	fmt.Printf("Processing Status: %s\n", a.ProcessingStatus)
	fmt.Printf("Emails: %d synced of %d\n", a.ProcessedEmails, a.TotalEmails)
	fmt.Printf("Analyzed: %d of %d\n", a.EmailsAnalyzed, a.EmailsToAnalyze)
	fmt.Printf("Subscriptions Found: %d\n", a.SubscriptionsFound)
	fmt.Printf("AI Cost: $%.6f\n", a.AICostTotal)
	fmt.Printf("Initial Sync Complete: %v\n", a.IsInitialSyncComplete)

	if a.LastSync != nil {
		fmt.Printf("Last Sync: %s\n", a.LastSync.Format("2006-01-02 15:04:05"))
	}
	if a.LastError != "" {
		fmt.Printf("Last Error: %s\n", a.LastError)
	}

	return nil
}

func (f *OutputFormatter) printSubscriptionsTable(subs []database.Subscription) error {
	if len(subs) == 0 {
		fmt.Println("No subscriptions found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "SERVICE\tAMOUNT\tCYCLE\tSTATUS\tCONFIDENCE\tDETECTED")

	for _, s := range subs {
		fmt.Fprintf(w, "%s\t%s %.2f\t%s\t%s\t%.2f\t%s\n",
			truncate(s.ServiceName, 25),
			s.Currency, s.Amount,
			s.BillingCycle,
			s.Status,
			s.ConfidenceScore,
			s.FirstDetected.Format("2006-01-02"))
	}

	return nil
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
