// Package workflow composes fetching, deduplication, rarity enrichment and
// reporting into the digest and alert pipelines.
package workflow

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/tkoskela/inatwatch/internal/inat"
	"github.com/tkoskela/inatwatch/internal/logging"
	"github.com/tkoskela/inatwatch/internal/rarity"
	"github.com/tkoskela/inatwatch/internal/report"
	"github.com/tkoskela/inatwatch/internal/state"
)

// Package-level logger specific to the workflow service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	serviceLevelVar.Set(slog.LevelDebug)

	logger, _, err = logging.NewFileLogger("logs/workflow.log", "workflow", serviceLevelVar)
	if err != nil || logger == nil {
		logger = logging.NewDiscardLogger("workflow", serviceLevelVar)
	}
}

// Fetcher retrieves the observations for one time window.
type Fetcher interface {
	FetchWindow(ctx context.Context, params inat.FetchParams) (*inat.FetchResult, error)
}

// RarityScorer computes a scarcity score for a taxon.
type RarityScorer interface {
	Count(ctx context.Context, taxonID int64) rarity.Result
}

// Reporter delivers finished reports. A delivery failure fails the
// workflow run.
type Reporter interface {
	SendDigest(ctx context.Context, d *report.Digest) error
	SendAlert(ctx context.Context, a *report.Alert) error
}

// unknownAge marks an observation without a usable observed-on date.
// Unknown ages bucket as new, downstream sorting depends on this.
const unknownAge = -1

// ageDays returns the whole-day age of an observation relative to now in
// the given timezone, or unknownAge when it carries no observed-on date.
func ageDays(now time.Time, o *inat.Observation, loc *time.Location) int {
	observed, ok := o.ObservedOnDate()
	if !ok {
		return unknownAge
	}

	ny, nm, nd := now.In(loc).Date()
	oy, om, od := observed.Date()
	nowMidnight := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	observedMidnight := time.Date(oy, om, od, 0, 0, 0, 0, time.UTC)

	return int(nowMidnight.Sub(observedMidnight).Hours() / 24)
}

// dropSeen filters out observations already processed by the workflow kind,
// preserving order.
func dropSeen(st state.State, kind state.WorkflowKind, observations []inat.Observation) []inat.Observation {
	fresh := make([]inat.Observation, 0, len(observations))
	for i := range observations {
		if state.IsSeen(st, kind, observations[i].ID) {
			continue
		}
		fresh = append(fresh, observations[i])
	}
	return fresh
}

// sortByRarity orders observations rarest first: ascending rarity count with
// missing counts last, ties broken by newest creation time. Stable for
// equal keys.
func sortByRarity(observations []inat.Observation) {
	sort.SliceStable(observations, func(i, j int) bool {
		ri, rj := observations[i].RarityCount, observations[j].RarityCount
		switch {
		case ri == nil && rj == nil:
			// fall through to the tiebreak
		case ri == nil:
			return false
		case rj == nil:
			return true
		case *ri != *rj:
			return *ri < *rj
		}
		return observations[i].CreatedAt.After(observations[j].CreatedAt)
	})
}

// enrich attaches a rarity count and method to every observation in place.
// Scorer failures degrade to zero counts inside the scorer, never here.
func enrich(ctx context.Context, scorer RarityScorer, observations []inat.Observation) {
	for i := range observations {
		result := scorer.Count(ctx, observations[i].Taxon.ID)
		count := result.Count
		observations[i].RarityCount = &count
		observations[i].RarityMethod = result.Method
	}
}

// markAllSeen threads every observation id through the state at the given
// instant and returns the final snapshot.
func markAllSeen(st state.State, kind state.WorkflowKind, observations []inat.Observation, ts time.Time) state.State {
	for i := range observations {
		st = state.MarkSeen(st, kind, observations[i].ID, ts)
	}
	return st
}
