package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tkoskela/inatwatch/cmd/alert"
	"github.com/tkoskela/inatwatch/cmd/digest"
	"github.com/tkoskela/inatwatch/cmd/state"
	"github.com/tkoskela/inatwatch/cmd/watch"
	"github.com/tkoskela/inatwatch/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "inatwatch",
		Short:   "iNaturalist observation watcher",
		Long:    "Polls iNaturalist for observations around a location and delivers rarity-ranked digests and watchlist alerts.",
		Version: settings.Version,
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	// Add sub-commands to the root command.
	subcommands := []*cobra.Command{
		digest.Command(settings),
		alert.Command(settings),
		watch.Command(settings),
		state.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
