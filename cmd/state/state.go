// Package state implements the state inspection subcommand.
package state

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tkoskela/inatwatch/internal/conf"
	wstate "github.com/tkoskela/inatwatch/internal/state"
)

// Command returns the state command, which prints the persisted workflow
// state and can force a retention prune.
func Command(settings *conf.Settings) *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect the persisted workflow state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, settings, prune)
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "Drop processed ids past the retention horizon and save")

	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, prune bool) error {
	store := wstate.NewStore(settings.State.Path, settings.State.RetentionDays)
	loaded := store.Load()

	cmd.Printf("state file: %s\n", settings.State.Path)
	cmd.Printf("last digest run: %s\n", formatRun(loaded.LastDigestRun))
	cmd.Printf("last alert run:  %s\n", formatRun(loaded.LastAlertRun))
	cmd.Printf("digest observation ids: %d\n", len(loaded.DigestObservationIDs))
	cmd.Printf("alert observation ids:  %d\n", len(loaded.AlertObservationIDs))

	if !prune {
		return nil
	}

	if err := store.Save(loaded); err != nil {
		return fmt.Errorf("failed to prune state: %w", err)
	}
	pruned := store.Load()
	cmd.Printf("after prune: %d digest ids, %d alert ids\n",
		len(pruned.DigestObservationIDs), len(pruned.AlertObservationIDs))

	return nil
}

func formatRun(ts *time.Time) string {
	if ts == nil {
		return "never"
	}
	return ts.UTC().Format(time.RFC3339)
}
