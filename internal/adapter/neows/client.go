// Package neows is a client for the NASA Near Earth Object Web Service feed.
package neows

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/neows-etl/internal/config"
	"github.com/couchcryptid/neows-etl/internal/domain"
	"github.com/couchcryptid/neows-etl/internal/observability"
)

const apiKeyHeader = "X-Api-Key"

// Client fetches close-approach records for one chunk at a time. It is not
// safe for concurrent use: requests are spaced by the minimum interval.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	policy      RetryPolicy
	minInterval time.Duration
	clock       clockwork.Clock
	metrics     *observability.Metrics
	logger      *slog.Logger

	rnd         func() float64
	lastRequest time.Time
}

// NewClient creates a feed client from cfg.
func NewClient(cfg *config.Config, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		policy: RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
			Jitter:     cfg.Jitter,
		},
		minInterval: cfg.MinInterval,
		clock:       clock,
		metrics:     metrics,
		logger:      logger,
		rnd:         rand.Float64,
	}
}

// Fetch returns every close approach in the chunk's window that matches its
// orbiting-body filter, following pagination links that stay inside the window.
//
// Errors are *domain.Error: Authentication for a missing key or 401/403,
// RemoteUnavailable once retries are exhausted or for other non-OK statuses,
// SchemaValidation for an undecodable payload.
func (c *Client) Fetch(ctx context.Context, chunk domain.Chunk) ([]domain.RawApproachRecord, error) {
	if c.apiKey == "" {
		return nil, domain.NewError(domain.KindAuthentication, "fetch feed", "NASA_API_KEY is not set", nil)
	}

	pageURL, err := c.firstPage(chunk)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{}
	var records []domain.RawApproachRecord
	for pageURL != "" {
		visited[pageURL] = true

		page, err := c.getWithRetry(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", chunk.Key(), err)
		}
		records = append(records, page.records(chunk.OrbitingBody)...)
		pageURL = nextPage(page.Links.Next, chunk, visited)
	}

	c.metrics.RecordsIngested.Add(float64(len(records)))
	return records, nil
}

func (c *Client) firstPage(chunk domain.Chunk) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", domain.NewError(domain.KindInvalidRange, "fetch feed", "invalid base URL", err)
	}
	q := u.Query()
	q.Del("api_key")
	q.Set("start_date", chunk.Range.Start().Format(domain.DateLayout))
	q.Set("end_date", chunk.Range.End().Format(domain.DateLayout))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// nextPage returns the link to follow after the current page, or "" when the
// link is absent, leaves the chunk window or was already fetched. The key
// travels in a header, so any api_key parameter is stripped.
func nextPage(next string, chunk domain.Chunk, visited map[string]bool) string {
	if next == "" {
		return ""
	}
	u, err := url.Parse(next)
	if err != nil {
		return ""
	}
	q := u.Query()
	start, err := domain.ParseDate(q.Get("start_date"))
	if err != nil || start.After(chunk.Range.End()) {
		return ""
	}
	q.Del("api_key")
	u.RawQuery = q.Encode()
	s := u.String()
	if visited[s] {
		return ""
	}
	return s
}

// getWithRetry runs one request through the attempt state machine.
func (c *Client) getWithRetry(ctx context.Context, pageURL string) (*feedResponse, error) {
	var (
		page    *feedResponse
		err     error
		attempt int
	)
	state := stateNotStarted
	for {
		switch state {
		case stateNotStarted:
			state = stateAttempting
		case stateAttempting:
			if werr := c.waitTurn(ctx); werr != nil {
				return nil, werr
			}
			page, err = c.do(ctx, pageURL)
			state = transition(err, attempt, c.policy.MaxRetries)
		case stateSucceeded:
			return page, nil
		case stateFailedRetryable:
			delay := c.policy.Delay(attempt, c.rnd())
			c.metrics.RemoteRetries.Inc()
			c.logger.Warn("feed request failed, retrying",
				"attempt", attempt+1, "delay", delay, "error", err)
			if serr := c.sleep(ctx, delay); serr != nil {
				return nil, serr
			}
			attempt++
			state = stateAttempting
		default:
			if domain.IsRetryable(err) {
				return nil, domain.NewError(domain.KindRemoteUnavailable, "fetch feed",
					fmt.Sprintf("giving up after %d attempts", attempt+1), err)
			}
			return nil, err
		}
	}
}

// transition moves an attempt out of the attempting state.
func transition(err error, attempt, maxRetries int) attemptState {
	switch {
	case err == nil:
		return stateSucceeded
	case domain.IsRetryable(err) && attempt < maxRetries:
		return stateFailedRetryable
	default:
		return stateFailedFatal
	}
}

func (c *Client) do(ctx context.Context, pageURL string) (*feedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindRemoteUnavailable, "fetch feed", "create request", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RemoteDuration.Observe(c.clock.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.metrics.RemoteRequests.WithLabelValues("network").Inc()
		return nil, domain.NewRetryableError("fetch feed", "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.metrics.RemoteRequests.WithLabelValues("fatal").Inc()
		return nil, domain.NewError(domain.KindAuthentication, "fetch feed",
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		c.metrics.RemoteRequests.WithLabelValues("retryable").Inc()
		return nil, domain.NewRetryableError("fetch feed", fmt.Sprintf("status %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		c.metrics.RemoteRequests.WithLabelValues("fatal").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.NewError(domain.KindRemoteUnavailable, "fetch feed",
			fmt.Sprintf("status %d: %s", resp.StatusCode, body), nil)
	}
	c.metrics.RemoteRequests.WithLabelValues("success").Inc()

	var page feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, domain.NewError(domain.KindSchemaValidation, "decode feed", "invalid payload", err)
	}
	if page.NearEarthObjects == nil {
		return nil, domain.NewError(domain.KindSchemaValidation, "decode feed", "payload has no near_earth_objects", nil)
	}
	return &page, nil
}

// waitTurn blocks until the minimum interval since the previous request has
// passed, then claims the slot.
func (c *Client) waitTurn(ctx context.Context) error {
	if c.minInterval > 0 && !c.lastRequest.IsZero() {
		if err := c.sleep(ctx, c.lastRequest.Add(c.minInterval).Sub(c.clock.Now())); err != nil {
			return err
		}
	}
	c.lastRequest = c.clock.Now()
	return nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
