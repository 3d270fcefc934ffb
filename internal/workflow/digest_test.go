package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkoskela/inatwatch/internal/conf"
	"github.com/tkoskela/inatwatch/internal/errors"
	"github.com/tkoskela/inatwatch/internal/inat"
	"github.com/tkoskela/inatwatch/internal/rarity"
	"github.com/tkoskela/inatwatch/internal/report"
	"github.com/tkoskela/inatwatch/internal/state"
)

// testNow is the fixed "current instant" for all workflow tests.
var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	result     *inat.FetchResult
	err        error
	calls      int
	lastParams inat.FetchParams
}

func (f *fakeFetcher) FetchWindow(_ context.Context, params inat.FetchParams) (*inat.FetchResult, error) {
	f.calls++
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeScorer struct {
	counts map[int64]int
	calls  int
}

func (f *fakeScorer) Count(_ context.Context, taxonID int64) rarity.Result {
	f.calls++
	return rarity.Result{Count: f.counts[taxonID], Method: conf.RarityMethodRadius}
}

type fakeReporter struct {
	digests []*report.Digest
	alerts  []*report.Alert
	err     error
}

func (f *fakeReporter) SendDigest(_ context.Context, d *report.Digest) error {
	if f.err != nil {
		return f.err
	}
	f.digests = append(f.digests, d)
	return nil
}

func (f *fakeReporter) SendAlert(_ context.Context, a *report.Alert) error {
	if f.err != nil {
		return f.err
	}
	f.alerts = append(f.alerts, a)
	return nil
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()

	s := &conf.Settings{}
	s.Main.Name = "test-node"
	s.API.BaseURL = "https://api.inaturalist.org/v1/observations"
	s.Location.Latitude = 60.17
	s.Location.Longitude = 24.94
	s.Location.Radius = 25
	s.Location.Timezone = "UTC"
	s.Taxa.Include = []int64{3} // birds
	s.Taxa.Exclude = []int64{999}
	s.Taxa.Watchlist = []int64{888}
	s.Digest.AgeThresholdDays = 30
	s.Digest.LookbackDays = 7
	s.Alert.LookbackMinutes = 60
	s.State.Path = filepath.Join(t.TempDir(), "state.json")
	s.State.RetentionDays = 30
	return s
}

// obs builds an observation observed daysAgo days before testNow.
// A negative daysAgo leaves the observed date unknown.
func obs(id, taxonID int64, daysAgo int) inat.Observation {
	o := inat.Observation{
		ID:        id,
		CreatedAt: testNow.Add(-time.Duration(id) * time.Minute),
		Taxon:     inat.Taxon{ID: taxonID, Name: "Testus speciosus"},
	}
	if daysAgo >= 0 {
		o.ObservedOn = testNow.AddDate(0, 0, -daysAgo).Format("2006-01-02")
	}
	return o
}

func newDigestUnderTest(t *testing.T, settings *conf.Settings, fetcher *fakeFetcher, scorer *fakeScorer, reporter *fakeReporter) (*Digest, *state.Store) {
	t.Helper()

	store := state.NewStore(settings.State.Path, settings.State.RetentionDays)
	w := NewDigest(settings, fetcher, scorer, store, reporter)
	w.now = func() time.Time { return testNow }
	return w, store
}

func TestDigest_Run_BucketsEnrichesAndReports(t *testing.T) {
	settings := testSettings(t)
	fetcher := &fakeFetcher{result: &inat.FetchResult{
		Observations: []inat.Observation{
			obs(1, 10, 2),   // new
			obs(2, 20, 45),  // old
			obs(3, 30, -1),  // unknown date, treated as new
		},
		TotalResults: 3,
	}}
	scorer := &fakeScorer{counts: map[int64]int{10: 500, 20: 4, 30: 9}}
	reporter := &fakeReporter{}
	w, store := newDigestUnderTest(t, settings, fetcher, scorer, reporter)

	require.NoError(t, w.Run(context.Background()))

	require.Len(t, reporter.digests, 1)
	d := reporter.digests[0]

	require.Len(t, d.New, 2)
	require.Len(t, d.Old, 1)
	// rarity sort puts the rarer unknown-date observation first
	assert.Equal(t, int64(3), d.New[0].ID)
	assert.Equal(t, int64(1), d.New[1].ID)
	require.NotNil(t, d.New[0].RarityCount)
	assert.Equal(t, 9, *d.New[0].RarityCount)
	assert.Equal(t, conf.RarityMethodRadius, d.New[0].RarityMethod)

	// every fetched observation is now marked seen at the window end
	st := store.Load()
	for _, id := range []int64{1, 2, 3} {
		assert.True(t, state.IsSeen(st, state.KindDigest, id), "id %d", id)
	}
	require.NotNil(t, st.LastDigestRun)
	assert.True(t, st.LastDigestRun.Equal(testNow))
}

func TestDigest_Run_DedupIdempotence(t *testing.T) {
	settings := testSettings(t)
	fetcher := &fakeFetcher{result: &inat.FetchResult{
		Observations: []inat.Observation{obs(1, 10, 2), obs(2, 20, 3)},
		TotalResults: 2,
	}}
	reporter := &fakeReporter{}
	w, _ := newDigestUnderTest(t, settings, fetcher, &fakeScorer{}, reporter)

	require.NoError(t, w.Run(context.Background()))
	require.NoError(t, w.Run(context.Background()))

	// identical window with no new data reports nothing the second time
	assert.Len(t, reporter.digests, 1)
}

func TestDigest_Run_EmptyStillAdvancesState(t *testing.T) {
	settings := testSettings(t)
	fetcher := &fakeFetcher{result: &inat.FetchResult{}}
	reporter := &fakeReporter{}
	w, store := newDigestUnderTest(t, settings, fetcher, &fakeScorer{}, reporter)

	require.NoError(t, w.Run(context.Background()))

	assert.Empty(t, reporter.digests)
	st := store.Load()
	require.NotNil(t, st.LastDigestRun)
	assert.True(t, st.LastDigestRun.Equal(testNow))
}

func TestDigest_Run_WindowFromLastRun(t *testing.T) {
	settings := testSettings(t)
	fetcher := &fakeFetcher{result: &inat.FetchResult{}}
	w, _ := newDigestUnderTest(t, settings, fetcher, &fakeScorer{}, &fakeReporter{})

	// first run has no history, the default lookback applies
	require.NoError(t, w.Run(context.Background()))
	assert.True(t, fetcher.lastParams.Start.Equal(testNow.AddDate(0, 0, -7)))
	assert.True(t, fetcher.lastParams.End.Equal(testNow))
	assert.Equal(t, []int64{3}, fetcher.lastParams.TaxonIDs)
	assert.Equal(t, []int64{999}, fetcher.lastParams.WithoutTaxonIDs)

	// the second run starts where the first ended
	require.NoError(t, w.Run(context.Background()))
	assert.True(t, fetcher.lastParams.Start.Equal(testNow))
}

func TestDigest_Run_FetchFailureLeavesStateUntouched(t *testing.T) {
	settings := testSettings(t)
	fetcher := &fakeFetcher{err: errors.Newf("window fetch failed").
		Category(errors.CategoryRetryExhausted).Build()}
	w, _ := newDigestUnderTest(t, settings, fetcher, &fakeScorer{}, &fakeReporter{})

	err := w.Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryRetryExhausted))
	_, statErr := os.Stat(settings.State.Path)
	assert.True(t, os.IsNotExist(statErr), "state file must not exist after a fatal fetch")
}

func TestDigest_Run_ReportFailureLeavesStateUntouched(t *testing.T) {
	settings := testSettings(t)
	fetcher := &fakeFetcher{result: &inat.FetchResult{
		Observations: []inat.Observation{obs(1, 10, 2)},
		TotalResults: 1,
	}}
	reporter := &fakeReporter{err: errors.Newf("delivery down").
		Category(errors.CategoryReporting).Build()}
	w, _ := newDigestUnderTest(t, settings, fetcher, &fakeScorer{}, reporter)

	require.Error(t, w.Run(context.Background()))

	_, statErr := os.Stat(settings.State.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDigest_Run_DryRunSkipsDeliveryAndSave(t *testing.T) {
	settings := testSettings(t)
	fetcher := &fakeFetcher{result: &inat.FetchResult{
		Observations: []inat.Observation{obs(1, 10, 2)},
		TotalResults: 1,
	}}
	reporter := &fakeReporter{}
	w, _ := newDigestUnderTest(t, settings, fetcher, &fakeScorer{}, reporter)
	w.SetDryRun(true)

	require.NoError(t, w.Run(context.Background()))

	assert.Empty(t, reporter.digests)
	_, statErr := os.Stat(settings.State.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDigest_Run_TruncationSurfacedToReporter(t *testing.T) {
	settings := testSettings(t)
	fetcher := &fakeFetcher{result: &inat.FetchResult{
		Observations: []inat.Observation{obs(1, 10, 2)},
		Truncated:    true,
		TotalResults: 650,
	}}
	reporter := &fakeReporter{}
	w, _ := newDigestUnderTest(t, settings, fetcher, &fakeScorer{}, reporter)

	require.NoError(t, w.Run(context.Background()))

	require.Len(t, reporter.digests, 1)
	assert.True(t, reporter.digests[0].Coverage.Truncated)
	assert.Equal(t, 650, reporter.digests[0].Coverage.TotalResults)
}

func TestBucketBoundary(t *testing.T) {
	settings := testSettings(t)
	w, _ := newDigestUnderTest(t, settings, &fakeFetcher{}, &fakeScorer{}, &fakeReporter{})

	observations := []inat.Observation{
		obs(1, 10, 30), // exactly at the threshold, still new
		obs(2, 20, 31), // one past, old
		obs(3, 30, -1), // unknown date, new
	}

	newBucket, oldBucket := w.bucketByAge(observations, testNow)

	assert.Equal(t, []int64{1, 3}, ids(newBucket))
	assert.Equal(t, []int64{2}, ids(oldBucket))
}

func TestSortByRarity(t *testing.T) {
	t1 := testNow.Add(-3 * time.Hour)
	t2 := testNow.Add(-1 * time.Hour)
	t3 := testNow.Add(-2 * time.Hour)

	observations := []inat.Observation{
		{ID: 1, CreatedAt: t1, RarityCount: intPtr(5)},
		{ID: 2, CreatedAt: t2, RarityCount: intPtr(1)},
		{ID: 3, CreatedAt: t3, RarityCount: intPtr(1)},
	}

	sortByRarity(observations)

	// equal counts tie-break on newer creation time
	assert.Equal(t, []int64{2, 3, 1}, ids(observations))
}

func TestSortByRarity_MissingCountSortsLast(t *testing.T) {
	observations := []inat.Observation{
		{ID: 1, CreatedAt: testNow},
		{ID: 2, CreatedAt: testNow, RarityCount: intPtr(100)},
		{ID: 3, CreatedAt: testNow, RarityCount: intPtr(2)},
	}

	sortByRarity(observations)

	assert.Equal(t, []int64{3, 2, 1}, ids(observations))
}

func TestAgeDays(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name       string
		observedOn string
		want       int
	}{
		{"today", "2026-08-30", 0},
		{"yesterday", "2026-08-29", 1},
		{"thirty_days", "2026-07-31", 30},
		{"unknown", "", unknownAge},
		{"garbage", "not-a-date", unknownAge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := inat.Observation{ObservedOn: tt.observedOn}
			assert.Equal(t, tt.want, ageDays(testNow, &o, loc))
		})
	}
}

func ids(observations []inat.Observation) []int64 {
	out := make([]int64, 0, len(observations))
	for i := range observations {
		out = append(out, observations[i].ID)
	}
	return out
}

func intPtr(v int) *int { return &v }
