// Package inat talks to the iNaturalist observations API.
package inat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tkoskela/inatwatch/internal/conf"
	"github.com/tkoskela/inatwatch/internal/errors"
	"github.com/tkoskela/inatwatch/internal/logging"
)

// Package-level logger specific to the inat service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
)

func init() {
	var err error
	serviceLevelVar.Set(slog.LevelDebug)

	logger, _, err = logging.NewFileLogger("logs/inat.log", "inat", serviceLevelVar)
	if err != nil || logger == nil {
		// Fallback to a disabled logger that still respects the level var
		logger = logging.NewDiscardLogger("inat", serviceLevelVar)
	}
}

// maxErrorBodyBytes caps how much of an error response body is kept for diagnostics.
const maxErrorBodyBytes = 512

// ClientConfig holds request client tuning.
type ClientConfig struct {
	Timeout        time.Duration // per-request timeout
	MaxAttempts    int           // total attempt budget for one logical request
	InitialBackoff time.Duration // first retry delay, doubles per retry
	MaxBackoff     time.Duration // backoff ceiling
	UserAgent      string
}

// DefaultClientConfig returns production defaults matching the shipped config.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:        30 * time.Second,
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     64 * time.Second,
		UserAgent:      "inatwatch",
	}
}

// ClientConfigFromSettings maps the validated settings onto a ClientConfig.
func ClientConfigFromSettings(settings *conf.Settings) ClientConfig {
	return ClientConfig{
		Timeout:        time.Duration(settings.API.Timeout) * time.Second,
		MaxAttempts:    settings.API.MaxAttempts,
		InitialBackoff: time.Duration(settings.API.InitialBackoff) * time.Second,
		MaxBackoff:     time.Duration(settings.API.MaxBackoff) * time.Second,
		UserAgent:      settings.API.UserAgent,
	}
}

// Client issues single logical GET requests against the upstream API with
// retry, exponential backoff and rate-limit handling. A request either
// yields decoded JSON or a terminal classified error.
type Client struct {
	httpClient *http.Client
	config     ClientConfig

	// sleep is swappable so tests can assert waits without real delays
	sleep func(time.Duration)
}

// NewClient creates a new request client.
func NewClient(config ClientConfig) *Client {
	defaults := DefaultClientConfig()
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}

	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		sleep:      time.Sleep,
	}
}

// requestOutcome is the classification of a single attempt. Exactly one
// state is terminal-success, the retryable states loop, everything else
// is terminal-failure.
type requestOutcome int

const (
	outcomeSuccess      requestOutcome = iota
	outcomeRetryBackoff                // transport error or 5xx, exponential backoff applies
	outcomeRetryAfter                  // 429 with server-specified delay
	outcomeFatal                       // 4xx, decode failure or unexpected status
)

// attemptResult carries the classification of one attempt through the retry loop.
type attemptResult struct {
	outcome    requestOutcome
	retryAfter time.Duration // only for outcomeRetryAfter
	err        error
}

// Get fetches the URL and decodes the JSON response body into result.
// Retryable failures are attempted up to the configured budget; anything
// else fails immediately with a categorized error.
func (c *Client) Get(ctx context.Context, url string, result any) error {
	attempt := 0
	backoff := c.config.InitialBackoff

	for {
		res := c.attempt(ctx, url, result)

		switch res.outcome {
		case outcomeSuccess:
			return nil

		case outcomeFatal:
			return res.err

		case outcomeRetryAfter:
			attempt++
			if attempt >= c.config.MaxAttempts {
				return c.exhausted(url, attempt, res.err)
			}
			logger.Warn("rate limited, honoring Retry-After",
				"url", url,
				"attempt", attempt,
				"wait_seconds", res.retryAfter.Seconds())
			c.sleep(res.retryAfter)
			// server-specified wait does not consume a backoff doubling

		case outcomeRetryBackoff:
			attempt++
			if attempt >= c.config.MaxAttempts {
				return c.exhausted(url, attempt, res.err)
			}
			logger.Warn("request failed, retrying",
				"url", url,
				"attempt", attempt,
				"max_attempts", c.config.MaxAttempts,
				"backoff_seconds", backoff.Seconds(),
				"error", res.err.Error())
			c.sleep(backoff)
			backoff = min(backoff*2, c.config.MaxBackoff)
		}

		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err()).
				Category(errors.CategoryNetwork).
				Component("inat").
				Context("url", url).
				Build()
		}
	}
}

// attempt performs one HTTP round trip and classifies the result.
func (c *Client) attempt(ctx context.Context, url string, result any) attemptResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return attemptResult{outcome: outcomeFatal, err: errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryClientRequest).
			Component("inat").
			Context("url", url).
			Build()}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return attemptResult{outcome: outcomeRetryBackoff, err: errors.Newf("HTTP request failed: %w", err).
			Category(errors.CategoryNetwork).
			Component("inat").
			Context("url", url).
			Build()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return attemptResult{outcome: outcomeRetryBackoff, err: errors.Newf("failed to read response body: %w", err).
			Category(errors.CategoryNetwork).
			Component("inat").
			Context("url", url).
			Context("status_code", resp.StatusCode).
			Build()}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if result != nil {
			if err := json.Unmarshal(bodyBytes, result); err != nil {
				// The server answered, retrying will not produce different bytes
				logger.Error("failed to parse API response",
					"url", url,
					"response_size", len(bodyBytes),
					"error", err)
				return attemptResult{outcome: outcomeFatal, err: errors.Newf("failed to parse response: %w", err).
					Category(errors.CategoryDecode).
					Component("inat").
					Context("url", url).
					Context("response_size", len(bodyBytes)).
					Build()}
			}
		}
		return attemptResult{outcome: outcomeSuccess}

	case resp.StatusCode == http.StatusTooManyRequests:
		res := attemptResult{err: errors.Newf("rate limited (status %d)", resp.StatusCode).
			Category(errors.CategoryRateLimit).
			Component("inat").
			Context("url", url).
			Context("status_code", resp.StatusCode).
			Build()}
		if wait, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			res.outcome = outcomeRetryAfter
			res.retryAfter = wait
		} else {
			// No server hint, fall back to the exponential schedule
			res.outcome = outcomeRetryBackoff
		}
		return res

	case resp.StatusCode >= http.StatusInternalServerError:
		return attemptResult{outcome: outcomeRetryBackoff, err: errors.Newf("server error (status %d)", resp.StatusCode).
			Category(errors.CategoryServer).
			Component("inat").
			Context("url", url).
			Context("status_code", resp.StatusCode).
			Build()}

	case resp.StatusCode >= http.StatusBadRequest:
		// Caller or configuration defect, retrying cannot help
		return attemptResult{outcome: outcomeFatal, err: errors.Newf("request rejected (status %d): %s",
			resp.StatusCode, truncateBody(bodyBytes)).
			Category(errors.CategoryClientRequest).
			Component("inat").
			Context("url", url).
			Context("status_code", resp.StatusCode).
			Build()}

	default:
		return attemptResult{outcome: outcomeFatal, err: errors.Newf("unexpected status %d", resp.StatusCode).
			Category(errors.CategoryClientRequest).
			Component("inat").
			Context("url", url).
			Context("status_code", resp.StatusCode).
			Build()}
	}
}

// exhausted builds the terminal error for an exceeded retry budget.
func (c *Client) exhausted(url string, attempts int, lastErr error) error {
	logger.Error("retry budget exhausted",
		"url", url,
		"attempts", attempts,
		"error", lastErr.Error())
	return errors.Newf("exhausted %d attempts: %w", attempts, lastErr).
		Category(errors.CategoryRetryExhausted).
		Component("inat").
		Context("url", url).
		Context("attempts", attempts).
		Build()
}

// parseRetryAfter interprets a Retry-After header value as whole seconds.
func parseRetryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

func truncateBody(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		return string(body[:maxErrorBodyBytes]) + "..."
	}
	return string(body)
}
