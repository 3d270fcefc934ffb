package workflow

import (
	"github.com/tkoskela/inatwatch/internal/conf"
	"github.com/tkoskela/inatwatch/internal/inat"
	"github.com/tkoskela/inatwatch/internal/rarity"
	"github.com/tkoskela/inatwatch/internal/report"
	"github.com/tkoskela/inatwatch/internal/state"
)

// NewDigestFromSettings wires a full digest workflow for one invocation,
// including a fresh rarity calculator so the memoization cache is scoped
// to this run.
func NewDigestFromSettings(settings *conf.Settings, dryRun bool) (*Digest, error) {
	client := inat.NewClient(inat.ClientConfigFromSettings(settings))
	fetcher := inat.NewFetcherFromSettings(client, settings)
	calculator := rarity.NewCalculator(client, settings.API.BaseURL, rarity.ConfigFromSettings(settings))
	store := state.NewStore(settings.State.Path, settings.State.RetentionDays)

	reporter, err := report.NewService(settings)
	if err != nil {
		return nil, err
	}

	w := NewDigest(settings, fetcher, calculator, store, reporter)
	w.SetDryRun(dryRun)
	return w, nil
}

// NewAlertFromSettings wires a full alert workflow for one invocation.
func NewAlertFromSettings(settings *conf.Settings, dryRun bool) (*Alert, error) {
	client := inat.NewClient(inat.ClientConfigFromSettings(settings))
	fetcher := inat.NewFetcherFromSettings(client, settings)
	store := state.NewStore(settings.State.Path, settings.State.RetentionDays)

	reporter, err := report.NewService(settings)
	if err != nil {
		return nil, err
	}

	w := NewAlert(settings, fetcher, store, reporter)
	w.SetDryRun(dryRun)
	return w, nil
}
