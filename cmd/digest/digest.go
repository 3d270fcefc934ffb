// Package digest implements the digest subcommand.
package digest

import (
	"github.com/spf13/cobra"
	"github.com/tkoskela/inatwatch/internal/conf"
	"github.com/tkoskela/inatwatch/internal/workflow"
)

// Command returns the digest command, which runs one digest invocation.
func Command(settings *conf.Settings) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Run the digest workflow once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := workflow.NewDigestFromSettings(settings, dryRun)
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch and render without delivering or saving state")

	return cmd
}
