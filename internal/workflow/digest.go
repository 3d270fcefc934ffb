package workflow

import (
	"context"
	"time"

	"github.com/tkoskela/inatwatch/internal/conf"
	"github.com/tkoskela/inatwatch/internal/inat"
	"github.com/tkoskela/inatwatch/internal/report"
	"github.com/tkoskela/inatwatch/internal/state"
)

// Digest is the periodic summary workflow. One value runs one invocation;
// construct a fresh one per run so the rarity cache never crosses runs.
type Digest struct {
	settings *conf.Settings
	fetcher  Fetcher
	rarity   RarityScorer
	store    *state.Store
	reporter Reporter
	dryRun   bool

	// now is swappable for window and bucketing tests
	now func() time.Time
}

// NewDigest wires a digest workflow from its collaborators.
func NewDigest(settings *conf.Settings, fetcher Fetcher, scorer RarityScorer, store *state.Store, reporter Reporter) *Digest {
	return &Digest{
		settings: settings,
		fetcher:  fetcher,
		rarity:   scorer,
		store:    store,
		reporter: reporter,
		now:      time.Now,
	}
}

// SetDryRun makes Run skip delivery and state persistence.
func (w *Digest) SetDryRun(dryRun bool) {
	w.dryRun = dryRun
}

// Run executes one digest invocation end to end. Any error aborts before
// the state save so the next invocation retries the same window.
func (w *Digest) Run(ctx context.Context) error {
	st := w.store.Load()

	// captured once, used consistently through the whole run
	windowEnd := w.now().UTC()
	windowStart := windowEnd.AddDate(0, 0, -w.settings.Digest.LookbackDays)
	if last := st.LastRun(state.KindDigest); last != nil {
		windowStart = last.UTC()
	}

	logger.Info("digest run started",
		"window_start", windowStart,
		"window_end", windowEnd,
		"dry_run", w.dryRun)

	result, err := w.fetcher.FetchWindow(ctx, inat.FetchParams{
		Start:           windowStart,
		End:             windowEnd,
		TaxonIDs:        w.settings.Taxa.Include,
		WithoutTaxonIDs: w.settings.Taxa.Exclude,
		Latitude:        w.settings.Location.Latitude,
		Longitude:       w.settings.Location.Longitude,
		Radius:          w.settings.Location.Radius,
	})
	if err != nil {
		return err
	}

	fresh := dropSeen(st, state.KindDigest, result.Observations)
	logger.Info("digest observations deduplicated",
		"fetched", len(result.Observations),
		"fresh", len(fresh))

	if len(fresh) == 0 {
		// advance the window even on a quiet period, without reporting
		st = state.WithLastRun(st, state.KindDigest, windowEnd)
		if w.dryRun {
			return nil
		}
		return w.store.Save(st)
	}

	newBucket, oldBucket := w.bucketByAge(fresh, windowEnd)

	enrich(ctx, w.rarity, newBucket)
	enrich(ctx, w.rarity, oldBucket)
	sortByRarity(newBucket)
	sortByRarity(oldBucket)

	digest := &report.Digest{
		NodeName: w.settings.Main.Name,
		Coverage: report.Coverage{
			WindowStart:  windowStart,
			WindowEnd:    windowEnd,
			Truncated:    result.Truncated,
			TotalResults: result.TotalResults,
		},
		New: newBucket,
		Old: oldBucket,
	}

	if w.dryRun {
		logger.Info("dry run, skipping delivery and state save",
			"new", len(newBucket),
			"old", len(oldBucket))
		return nil
	}

	if err := w.reporter.SendDigest(ctx, digest); err != nil {
		return err
	}

	st = markAllSeen(st, state.KindDigest, fresh, windowEnd)
	st = state.WithLastRun(st, state.KindDigest, windowEnd)

	return w.store.Save(st)
}

// bucketByAge partitions observations into new and old by whole-day age.
// Unknown observed dates count as new.
func (w *Digest) bucketByAge(observations []inat.Observation, now time.Time) (newBucket, oldBucket []inat.Observation) {
	loc := w.settings.TimeLocation()
	threshold := w.settings.Digest.AgeThresholdDays

	for i := range observations {
		if ageDays(now, &observations[i], loc) <= threshold {
			newBucket = append(newBucket, observations[i])
		} else {
			oldBucket = append(oldBucket, observations[i])
		}
	}
	return newBucket, oldBucket
}
