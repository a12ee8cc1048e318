package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"feedsync/cache"
	"feedsync/models"
	"feedsync/ratelimit"
)

var (
	upstreamRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsync_upstream_requests_total",
		Help: "The total number of HTTP requests issued to the upstream feed source",
	})

	upstreamErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsync_upstream_errors_total",
		Help: "The total number of failed upstream requests",
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsync_response_cache_hits_total",
		Help: "The total number of page fetches served from the response cache",
	})

	upstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedsync_upstream_request_duration_seconds",
		Help:    "Latency of upstream page requests",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)

// FetchError is a transport or payload failure from the upstream source.
// It identifies the feed and cursor so a later run can retry the same page.
type FetchError struct {
	FeedId string
	Cursor string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch feed %s (cursor %q): %v", e.FeedId, e.Cursor, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClientConfig holds feed client configuration
type ClientConfig struct {
	BaseUrl   string
	AuthToken string
	PageSize  int
	Timeout   time.Duration
	// MaxRetries > 0 opts the client into bounded retry-with-backoff on
	// transport failures. Zero means one attempt per page.
	MaxRetries uint64
}

// Client fetches article pages from the upstream feed source. Every fetch
// routes through the shared rate limiter and response cache.
type Client struct {
	config  ClientConfig
	http    *http.Client
	limiter *ratelimit.Limiter
	cache   *cache.ResponseCache
}

func NewClient(config ClientConfig, limiter *ratelimit.Limiter, responses *cache.ResponseCache) *Client {
	if config.PageSize < 1 {
		config.PageSize = 20
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		limiter: limiter,
		cache:   responses,
	}
}

// FetchPage returns one page of articles for the feed. The cursor is opaque
// to the caller; an empty cursor means the newest page.
func (c *Client) FetchPage(ctx context.Context, feedId string, cursor string) (*models.FeedPage, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	if page, ok := c.cache.Get(feedId, cursor); ok {
		cacheHits.Inc()
		return page, nil
	}

	page, err := c.fetchPage(ctx, feedId, cursor)
	if err != nil {
		return nil, err
	}

	c.cache.Put(feedId, cursor, page)
	return page, nil
}

func (c *Client) fetchPage(ctx context.Context, feedId string, cursor string) (*models.FeedPage, error) {
	u, err := url.Parse(fmt.Sprintf("%s/feeds/%s/articles", c.config.BaseUrl, url.PathEscape(feedId)))
	if err != nil {
		return nil, &FetchError{FeedId: feedId, Cursor: cursor, Err: err}
	}
	q := u.Query()
	q.Set("limit", fmt.Sprintf("%d", c.config.PageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	log.WithFields(log.Fields{
		"feed":   feedId,
		"cursor": cursor,
	}).Info("Fetching feed page")

	var page *models.FeedPage
	operation := func() error {
		var opErr error
		page, opErr = c.doRequest(ctx, u.String())
		return opErr
	}

	if c.config.MaxRetries > 0 {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 500 * time.Millisecond
		bo.MaxInterval = 10 * time.Second
		err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx))
	} else {
		err = operation()
	}

	if err != nil {
		// Cancellation is a controlled exit, not an upstream failure
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		upstreamErrors.Inc()
		return nil, &FetchError{FeedId: feedId, Cursor: cursor, Err: err}
	}

	return page, nil
}

func (c *Client) doRequest(ctx context.Context, rawUrl string) (*models.FeedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawUrl, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	upstreamRequests.Inc()
	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	upstreamLatency.Observe(time.Since(start).Seconds())

	if res.StatusCode < 200 || res.StatusCode > 299 {
		err := fmt.Errorf("unexpected status %d", res.StatusCode)
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var page models.FeedPage
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode payload: %w", err))
	}

	if err := validatePage(&page); err != nil {
		return nil, backoff.Permanent(err)
	}

	return &page, nil
}

// validatePage rejects payloads missing required item fields so that
// malformed upstream data surfaces as a FetchError instead of propagating
// downstream as half-empty articles.
func validatePage(page *models.FeedPage) error {
	for i, item := range page.Items {
		if item.Guid == "" {
			return fmt.Errorf("item %d: missing guid", i)
		}
		if item.Title == "" {
			return fmt.Errorf("item %d (%s): missing title", i, item.Guid)
		}
		if item.Link == "" {
			return fmt.Errorf("item %d (%s): missing link", i, item.Guid)
		}
	}
	return nil
}

// FetchMetrics returns the engagement counts for one article, identified by
// its canonical URL. Metrics are point-in-time reads and are never cached.
func (c *Client) FetchMetrics(ctx context.Context, articleUrl string) (*models.ArticleMetrics, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.config.BaseUrl + "/metrics")
	if err != nil {
		return nil, fmt.Errorf("fetch metrics for %s: %w", articleUrl, err)
	}
	q := u.Query()
	q.Set("url", articleUrl)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch metrics for %s: %w", articleUrl, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	upstreamRequests.Inc()
	res, err := c.http.Do(req)
	if err != nil {
		upstreamErrors.Inc()
		return nil, fmt.Errorf("fetch metrics for %s: %w", articleUrl, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		upstreamErrors.Inc()
		return nil, fmt.Errorf("fetch metrics for %s: unexpected status %d", articleUrl, res.StatusCode)
	}

	var metrics models.ArticleMetrics
	if err := json.NewDecoder(res.Body).Decode(&metrics); err != nil {
		upstreamErrors.Inc()
		return nil, fmt.Errorf("fetch metrics for %s: decode payload: %w", articleUrl, err)
	}

	return &metrics, nil
}

// PurgeCache drops all cached pages so the next fetches hit upstream.
// A full sync calls this to reconcile against fresh pages.
func (c *Client) PurgeCache() {
	c.cache.Purge()
}

// FetchInfo returns feed-level metadata for account registration.
func (c *Client) FetchInfo(ctx context.Context, feedId string) (*models.FeedInfo, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	rawUrl := fmt.Sprintf("%s/feeds/%s", c.config.BaseUrl, url.PathEscape(feedId))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawUrl, nil)
	if err != nil {
		return nil, &FetchError{FeedId: feedId, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	upstreamRequests.Inc()
	res, err := c.http.Do(req)
	if err != nil {
		upstreamErrors.Inc()
		return nil, &FetchError{FeedId: feedId, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		upstreamErrors.Inc()
		return nil, &FetchError{FeedId: feedId, Err: fmt.Errorf("unexpected status %d", res.StatusCode)}
	}

	var info models.FeedInfo
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		upstreamErrors.Inc()
		return nil, &FetchError{FeedId: feedId, Err: fmt.Errorf("decode payload: %w", err)}
	}

	return &info, nil
}
