package workflow

import (
	"context"
	"time"

	"github.com/tkoskela/inatwatch/internal/conf"
	"github.com/tkoskela/inatwatch/internal/inat"
	"github.com/tkoskela/inatwatch/internal/report"
	"github.com/tkoskela/inatwatch/internal/state"
)

// Alert is the frequent watchlist workflow: same backbone as the digest
// but restricted to the watchlist taxa, without enrichment or sorting,
// and with old observations dropped instead of bucketed.
type Alert struct {
	settings *conf.Settings
	fetcher  Fetcher
	store    *state.Store
	reporter Reporter
	dryRun   bool

	now func() time.Time
}

// NewAlert wires an alert workflow from its collaborators.
func NewAlert(settings *conf.Settings, fetcher Fetcher, store *state.Store, reporter Reporter) *Alert {
	return &Alert{
		settings: settings,
		fetcher:  fetcher,
		store:    store,
		reporter: reporter,
		now:      time.Now,
	}
}

// SetDryRun makes Run skip delivery and state persistence.
func (w *Alert) SetDryRun(dryRun bool) {
	w.dryRun = dryRun
}

// Run executes one alert invocation end to end.
func (w *Alert) Run(ctx context.Context) error {
	if len(w.settings.Taxa.Watchlist) == 0 {
		logger.Warn("no watchlist taxa configured, alert run skipped")
		return nil
	}

	st := w.store.Load()

	windowEnd := w.now().UTC()
	windowStart := windowEnd.Add(-time.Duration(w.settings.Alert.LookbackMinutes) * time.Minute)
	if last := st.LastRun(state.KindAlert); last != nil {
		windowStart = last.UTC()
	}

	logger.Info("alert run started",
		"window_start", windowStart,
		"window_end", windowEnd,
		"watchlist_taxa", len(w.settings.Taxa.Watchlist),
		"dry_run", w.dryRun)

	result, err := w.fetcher.FetchWindow(ctx, inat.FetchParams{
		Start:           windowStart,
		End:             windowEnd,
		TaxonIDs:        w.settings.Taxa.Watchlist,
		WithoutTaxonIDs: w.settings.Taxa.Exclude,
		Latitude:        w.settings.Location.Latitude,
		Longitude:       w.settings.Location.Longitude,
		Radius:          w.settings.Location.Radius,
	})
	if err != nil {
		return err
	}

	fresh := dropSeen(st, state.KindAlert, result.Observations)
	recent := w.dropOld(fresh, windowEnd)

	logger.Info("alert observations filtered",
		"fetched", len(result.Observations),
		"fresh", len(fresh),
		"recent", len(recent))

	if len(recent) == 0 {
		st = state.WithLastRun(st, state.KindAlert, windowEnd)
		if w.dryRun {
			return nil
		}
		return w.store.Save(st)
	}

	alert := &report.Alert{
		NodeName: w.settings.Main.Name,
		Coverage: report.Coverage{
			WindowStart:  windowStart,
			WindowEnd:    windowEnd,
			Truncated:    result.Truncated,
			TotalResults: result.TotalResults,
		},
		Observations: recent,
	}

	if w.dryRun {
		logger.Info("dry run, skipping delivery and state save",
			"observations", len(recent))
		return nil
	}

	if err := w.reporter.SendAlert(ctx, alert); err != nil {
		return err
	}

	st = markAllSeen(st, state.KindAlert, recent, windowEnd)
	st = state.WithLastRun(st, state.KindAlert, windowEnd)

	return w.store.Save(st)
}

// dropOld removes observations older than the age threshold entirely.
// Unknown observed dates are kept.
func (w *Alert) dropOld(observations []inat.Observation, now time.Time) []inat.Observation {
	loc := w.settings.TimeLocation()
	threshold := w.settings.Digest.AgeThresholdDays

	recent := make([]inat.Observation, 0, len(observations))
	for i := range observations {
		if ageDays(now, &observations[i], loc) <= threshold {
			recent = append(recent, observations[i])
		}
	}
	return recent
}
