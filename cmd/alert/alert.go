// Package alert implements the alert subcommand.
package alert

import (
	"github.com/spf13/cobra"
	"github.com/tkoskela/inatwatch/internal/conf"
	"github.com/tkoskela/inatwatch/internal/workflow"
)

// Command returns the alert command, which runs one watchlist alert invocation.
func Command(settings *conf.Settings) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Run the watchlist alert workflow once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := workflow.NewAlertFromSettings(settings, dryRun)
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch and render without delivering or saving state")

	return cmd
}
