// Package watch implements the long-running scheduler subcommand.
package watch

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tkoskela/inatwatch/internal/conf"
	"github.com/tkoskela/inatwatch/internal/logging"
	"github.com/tkoskela/inatwatch/internal/workflow"
)

// Command returns the watch command, which drives both workflows on their
// configured intervals until interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the digest and alert workflows on their schedules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), settings)
		},
	}
}

func run(ctx context.Context, settings *conf.Settings) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	digestInterval := time.Duration(settings.Digest.IntervalHours) * time.Hour
	alertInterval := time.Duration(settings.Alert.IntervalMinutes) * time.Minute
	logging.Info("watch started",
		"digest_interval", digestInterval.String(),
		"alert_interval", alertInterval.String())

	// both workflows run once at startup, then on their tickers
	runDigest(ctx, settings)
	runAlert(ctx, settings)

	digestTicker := time.NewTicker(digestInterval)
	defer digestTicker.Stop()
	alertTicker := time.NewTicker(alertInterval)
	defer alertTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info("watch stopping")
			return nil
		case <-digestTicker.C:
			runDigest(ctx, settings)
		case <-alertTicker.C:
			runAlert(ctx, settings)
		}
	}
}

// runDigest executes one digest invocation with a fresh dependency set.
// A failed run is logged and left to the next tick, which retries the
// same window because the state was not advanced.
func runDigest(ctx context.Context, settings *conf.Settings) {
	if ctx.Err() != nil {
		return
	}
	w, err := workflow.NewDigestFromSettings(settings, false)
	if err != nil {
		logging.Error("digest setup failed", "error", err)
		return
	}
	if err := w.Run(ctx); err != nil {
		logging.Error("digest run failed", "error", err)
	}
}

func runAlert(ctx context.Context, settings *conf.Settings) {
	if ctx.Err() != nil {
		return
	}
	w, err := workflow.NewAlertFromSettings(settings, false)
	if err != nil {
		logging.Error("alert setup failed", "error", err)
		return
	}
	if err := w.Run(ctx); err != nil {
		logging.Error("alert run failed", "error", err)
	}
}
