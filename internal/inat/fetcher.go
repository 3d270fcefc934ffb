package inat

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tkoskela/inatwatch/internal/conf"
)

const (
	// DefaultPageSize is the per_page value used for observation queries.
	DefaultPageSize = 200
	// DefaultMaxResults is the hard cap on accumulated observations per window.
	DefaultMaxResults = 200
)

// FetchParams describe one time-windowed, filtered observation query.
type FetchParams struct {
	Start time.Time // window start, inclusive, UTC
	End   time.Time // window end, exclusive, UTC

	TaxonIDs        []int64 // include filter, empty for all taxa
	WithoutTaxonIDs []int64 // exclude filter

	Latitude  float64
	Longitude float64
	Radius    float64 // kilometers
}

// FetchResult is the accumulated observation sequence for a window.
type FetchResult struct {
	Observations []Observation
	// Truncated is set when the hard cap stopped accumulation while the
	// API reported more matching results. Informational, not a failure.
	Truncated bool
	// TotalResults is the match count the API reports as available,
	// which may exceed what was retrieved.
	TotalResults int
}

// Fetcher drives the request client across paginated result pages.
type Fetcher struct {
	client  *Client
	baseURL string

	// pageSize and maxResults are fixed in production, adjustable in tests
	pageSize   int
	maxResults int
}

// NewFetcher creates a fetcher for the given observations endpoint.
func NewFetcher(client *Client, baseURL string) *Fetcher {
	return &Fetcher{
		client:     client,
		baseURL:    baseURL,
		pageSize:   DefaultPageSize,
		maxResults: DefaultMaxResults,
	}
}

// NewFetcherFromSettings wires a fetcher from the validated settings.
func NewFetcherFromSettings(client *Client, settings *conf.Settings) *Fetcher {
	return NewFetcher(client, settings.API.BaseURL)
}

// FetchWindow retrieves all observations for the window, newest first,
// up to the configured hard cap.
func (f *Fetcher) FetchWindow(ctx context.Context, params FetchParams) (*FetchResult, error) {
	result := &FetchResult{}
	page := 1

	for {
		var resp SearchResponse
		if err := f.client.Get(ctx, f.buildURL(params, page), &resp); err != nil {
			return nil, err
		}

		if page == 1 {
			result.TotalResults = resp.TotalResults
		}

		if len(resp.Results) == 0 {
			break
		}

		result.Observations = append(result.Observations, resp.Results...)

		if len(result.Observations) >= f.maxResults {
			result.Observations = result.Observations[:f.maxResults]
			if result.TotalResults > f.maxResults {
				result.Truncated = true
				logger.Warn("result cap reached, window truncated",
					"cap", f.maxResults,
					"total_results", result.TotalResults)
			}
			break
		}

		if len(resp.Results) < f.pageSize {
			// natural end of data
			break
		}

		page++
	}

	logger.Info("window fetched",
		"observations", len(result.Observations),
		"total_results", result.TotalResults,
		"truncated", result.Truncated,
		"pages", page)

	return result, nil
}

// buildURL assembles the query for one result page.
func (f *Fetcher) buildURL(params FetchParams, page int) string {
	q := url.Values{}
	q.Set("photos", "true")
	q.Set("captive", "false")
	q.Set("created_d1", params.Start.UTC().Format(time.RFC3339))
	q.Set("created_d2", params.End.UTC().Format(time.RFC3339))
	q.Set("per_page", strconv.Itoa(f.pageSize))
	q.Set("order", "desc")
	q.Set("order_by", "created_at")

	if len(params.TaxonIDs) > 0 {
		q.Set("taxon_id", joinIDs(params.TaxonIDs))
	}
	if len(params.WithoutTaxonIDs) > 0 {
		q.Set("without_taxon_id", joinIDs(params.WithoutTaxonIDs))
	}
	if params.Radius > 0 {
		q.Set("lat", formatCoord(params.Latitude))
		q.Set("lng", formatCoord(params.Longitude))
		q.Set("radius", strconv.FormatFloat(params.Radius, 'f', -1, 64))
	}
	q.Set("page", strconv.Itoa(page))

	return fmt.Sprintf("%s?%s", f.baseURL, q.Encode())
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
