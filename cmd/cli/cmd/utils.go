package cmd

import (
	cliapi "subscription-tracker/internal/cli"
)

// cliSpinner builds a progress spinner honoring the formatter's color
// setting.
func cliSpinner(message string, formatter *cliapi.OutputFormatter) *cliapi.ProgressSpinner {
	return cliapi.NewProgressSpinner(message, formatter.NoColor())
}
