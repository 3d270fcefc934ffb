package inat

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://api.inaturalist.org/v1/observations"

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()

	client := NewClient(ClientConfig{})
	httpmock.ActivateNonDefault(client.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	client.sleep = func(time.Duration) {}

	return NewFetcher(client, testBaseURL)
}

// registerPages serves the given page sizes in order, with the stated total.
// Ids are sequential so accumulation order is checkable.
func registerPages(t *testing.T, pageSizes []int, totalResults int) {
	t.Helper()

	id := int64(0)
	pages := make([]SearchResponse, 0, len(pageSizes)+1)
	for _, size := range pageSizes {
		page := SearchResponse{TotalResults: totalResults}
		for range size {
			id++
			page.Results = append(page.Results, Observation{
				ID:        id,
				CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			})
		}
		pages = append(pages, page)
	}
	// trailing empty page in case the fetcher asks past the end
	pages = append(pages, SearchResponse{TotalResults: totalResults})

	httpmock.RegisterResponder(http.MethodGet, testBaseURL,
		func(req *http.Request) (*http.Response, error) {
			pageNum, err := strconv.Atoi(req.URL.Query().Get("page"))
			require.NoError(t, err)
			require.GreaterOrEqual(t, pageNum, 1)
			if pageNum > len(pages) {
				pageNum = len(pages)
			}
			return httpmock.NewJsonResponse(http.StatusOK, pages[pageNum-1])
		})
}

func testWindow() FetchParams {
	return FetchParams{
		Start:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2026, 8, 8, 0, 0, 0, 0, time.UTC),
		Latitude:  60.17,
		Longitude: 24.94,
		Radius:    25,
	}
}

func TestFetcher_Pagination_NaturalEnd(t *testing.T) {
	fetcher := newTestFetcher(t)
	fetcher.maxResults = 500
	registerPages(t, []int{200, 200, 50}, 450)

	result, err := fetcher.FetchWindow(context.Background(), testWindow())

	require.NoError(t, err)
	assert.Len(t, result.Observations, 450)
	assert.False(t, result.Truncated)
	assert.Equal(t, 450, result.TotalResults)
	// short third page ends pagination, no fourth request
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

func TestFetcher_Truncation_AtHardCap(t *testing.T) {
	fetcher := newTestFetcher(t)
	registerPages(t, []int{200, 200, 200}, 650)

	result, err := fetcher.FetchWindow(context.Background(), testWindow())

	require.NoError(t, err)
	assert.Len(t, result.Observations, 200)
	assert.True(t, result.Truncated)
	assert.Equal(t, 650, result.TotalResults)
	// first page already reaches the cap
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestFetcher_CapReachedMidPage(t *testing.T) {
	fetcher := newTestFetcher(t)
	fetcher.pageSize = 2
	fetcher.maxResults = 3
	registerPages(t, []int{2, 2, 1}, 5)

	result, err := fetcher.FetchWindow(context.Background(), testWindow())

	require.NoError(t, err)
	assert.Len(t, result.Observations, 3)
	assert.True(t, result.Truncated)
	assert.Equal(t, 5, result.TotalResults)
	assert.Equal(t, []int64{1, 2, 3}, observationIDs(result.Observations))
}

func TestFetcher_CapWithoutMoreResults_NotTruncated(t *testing.T) {
	fetcher := newTestFetcher(t)
	fetcher.pageSize = 2
	fetcher.maxResults = 4
	registerPages(t, []int{2, 2}, 4)

	result, err := fetcher.FetchWindow(context.Background(), testWindow())

	require.NoError(t, err)
	assert.Len(t, result.Observations, 4)
	assert.False(t, result.Truncated)
}

func TestFetcher_EmptyWindow(t *testing.T) {
	fetcher := newTestFetcher(t)
	registerPages(t, nil, 0)

	result, err := fetcher.FetchWindow(context.Background(), testWindow())

	require.NoError(t, err)
	assert.Empty(t, result.Observations)
	assert.False(t, result.Truncated)
	assert.Equal(t, 0, result.TotalResults)
}

func TestFetcher_QueryParameters(t *testing.T) {
	fetcher := newTestFetcher(t)

	var captured *http.Request
	httpmock.RegisterResponder(http.MethodGet, testBaseURL,
		func(req *http.Request) (*http.Response, error) {
			captured = req
			return httpmock.NewJsonResponse(http.StatusOK, SearchResponse{})
		})

	params := testWindow()
	params.TaxonIDs = []int64{3, 47115}
	params.WithoutTaxonIDs = []int64{123}

	_, err := fetcher.FetchWindow(context.Background(), params)
	require.NoError(t, err)
	require.NotNil(t, captured)

	q := captured.URL.Query()
	assert.Equal(t, "true", q.Get("photos"))
	assert.Equal(t, "false", q.Get("captive"))
	assert.Equal(t, "2026-08-01T00:00:00Z", q.Get("created_d1"))
	assert.Equal(t, "2026-08-08T00:00:00Z", q.Get("created_d2"))
	assert.Equal(t, "200", q.Get("per_page"))
	assert.Equal(t, "desc", q.Get("order"))
	assert.Equal(t, "created_at", q.Get("order_by"))
	assert.Equal(t, "3,47115", q.Get("taxon_id"))
	assert.Equal(t, "123", q.Get("without_taxon_id"))
	assert.Equal(t, "60.1700", q.Get("lat"))
	assert.Equal(t, "24.9400", q.Get("lng"))
	assert.Equal(t, "25", q.Get("radius"))
	assert.Equal(t, "1", q.Get("page"))
}

func observationIDs(observations []Observation) []int64 {
	ids := make([]int64, 0, len(observations))
	for _, o := range observations {
		ids = append(ids, o.ID)
	}
	return ids
}
