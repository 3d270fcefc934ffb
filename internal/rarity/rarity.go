// Package rarity computes observation-count scarcity scores for taxa.
package rarity

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/patrickmn/go-cache"
	"github.com/tkoskela/inatwatch/internal/conf"
	"github.com/tkoskela/inatwatch/internal/inat"
	"github.com/tkoskela/inatwatch/internal/logging"
)

// Package-level logger specific to the rarity service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
)

func init() {
	var err error
	serviceLevelVar.Set(slog.LevelDebug)

	logger, _, err = logging.NewFileLogger("logs/rarity.log", "rarity", serviceLevelVar)
	if err != nil || logger == nil {
		logger = logging.NewDiscardLogger("rarity", serviceLevelVar)
	}
}

// Config selects the count strategy and its scope.
type Config struct {
	Method    string // conf.RarityMethodRadius, Place or Global
	PlaceID   int64  // place scope, used by the place method and as radius fallback
	Latitude  float64
	Longitude float64
	Radius    float64 // kilometers
}

// ConfigFromSettings maps the validated settings onto a rarity Config.
func ConfigFromSettings(settings *conf.Settings) Config {
	return Config{
		Method:    settings.Rarity.Method,
		PlaceID:   settings.Rarity.PlaceID,
		Latitude:  settings.Location.Latitude,
		Longitude: settings.Location.Longitude,
		Radius:    settings.Location.Radius,
	}
}

// Result is a computed rarity score: how many observations of the taxon
// exist under the scope of the method that answered.
type Result struct {
	Count  int
	Method string
}

// Calculator computes rarity counts with per-run memoization. Construct one
// per workflow invocation and discard it afterwards; the cache must not
// survive across runs.
type Calculator struct {
	client  *inat.Client
	baseURL string
	config  Config
	cache   *cache.Cache
}

// NewCalculator creates a calculator with an empty cache.
func NewCalculator(client *inat.Client, baseURL string, config Config) *Calculator {
	return &Calculator{
		client:  client,
		baseURL: baseURL,
		config:  config,
		// entries live for the lifetime of this calculator only
		cache: cache.New(cache.NoExpiration, cache.NoExpiration),
	}
}

// Count returns the rarity score for a taxon. Lookups never fail: every
// strategy error degrades to the next strategy and finally to a zero count,
// which is cached like any other answer for the remainder of the run.
func (c *Calculator) Count(ctx context.Context, taxonID int64) Result {
	cacheKey := strconv.FormatInt(taxonID, 10)

	if cached, found := c.cache.Get(cacheKey); found {
		if result, ok := cached.(Result); ok {
			logger.Debug("rarity cache hit", "taxon_id", taxonID, "count", result.Count)
			return result
		}
	}

	result := c.lookup(ctx, taxonID)
	c.cache.Set(cacheKey, result, cache.DefaultExpiration)

	logger.Debug("rarity computed",
		"taxon_id", taxonID,
		"count", result.Count,
		"method", result.Method)

	return result
}

// lookup walks the strategy chain for the configured method.
func (c *Calculator) lookup(ctx context.Context, taxonID int64) Result {
	for _, method := range c.strategyChain() {
		count, err := c.countWith(ctx, method, taxonID)
		if err != nil {
			logger.Warn("rarity strategy failed, trying next",
				"taxon_id", taxonID,
				"method", method,
				"error", err.Error())
			continue
		}
		return Result{Count: count, Method: method}
	}

	// every strategy failed; a zero placeholder stands until the next run
	logger.Warn("all rarity strategies failed, using zero count", "taxon_id", taxonID)
	return Result{Count: 0, Method: ""}
}

// strategyChain returns the fallback order for the configured method.
func (c *Calculator) strategyChain() []string {
	switch c.config.Method {
	case conf.RarityMethodRadius:
		if c.config.PlaceID > 0 {
			return []string{conf.RarityMethodRadius, conf.RarityMethodPlace, conf.RarityMethodGlobal}
		}
		return []string{conf.RarityMethodRadius, conf.RarityMethodGlobal}
	case conf.RarityMethodPlace:
		return []string{conf.RarityMethodPlace, conf.RarityMethodGlobal}
	default:
		return []string{conf.RarityMethodGlobal}
	}
}

// countWith issues one count-only query scoped per the given method.
func (c *Calculator) countWith(ctx context.Context, method string, taxonID int64) (int, error) {
	q := url.Values{}
	q.Set("taxon_id", strconv.FormatInt(taxonID, 10))
	q.Set("per_page", "0") // count-only query

	switch method {
	case conf.RarityMethodRadius:
		q.Set("lat", strconv.FormatFloat(c.config.Latitude, 'f', 4, 64))
		q.Set("lng", strconv.FormatFloat(c.config.Longitude, 'f', 4, 64))
		q.Set("radius", strconv.FormatFloat(c.config.Radius, 'f', -1, 64))
	case conf.RarityMethodPlace:
		q.Set("place_id", strconv.FormatInt(c.config.PlaceID, 10))
	case conf.RarityMethodGlobal:
		// unscoped
	}

	var resp inat.SearchResponse
	if err := c.client.Get(ctx, fmt.Sprintf("%s?%s", c.baseURL, q.Encode()), &resp); err != nil {
		return 0, err
	}

	return resp.TotalResults, nil
}
