package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedsync/cache"
	"feedsync/models"
	"feedsync/ratelimit"
)

func newTestClient(t *testing.T, handler http.Handler, config ClientConfig) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config.BaseUrl = server.URL
	limiter := ratelimit.New(1000, time.Minute)
	responses := cache.New(64, 30*time.Minute)
	return NewClient(config, limiter, responses), server
}

func pageHandler(hits *atomic.Int64, page models.FeedPage) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page)
	})
}

func TestFetchPageDecodesPayload(t *testing.T) {
	var hits atomic.Int64
	client, _ := newTestClient(t, pageHandler(&hits, models.FeedPage{
		Items: []models.RawItem{
			{Title: "First", Link: "https://example.com/1", Guid: "g1"},
			{Title: "Second", Link: "https://example.com/2", Guid: "g2"},
		},
		NextCursor: "p1",
		HasMore:    true,
	}), ClientConfig{})

	page, err := client.FetchPage(context.Background(), "feed-1", "")
	require.NoError(t, err)

	assert.Len(t, page.Items, 2)
	assert.Equal(t, "p1", page.NextCursor)
	assert.True(t, page.HasMore)
}

func TestRepeatedFetchServedFromCache(t *testing.T) {
	var hits atomic.Int64
	client, _ := newTestClient(t, pageHandler(&hits, models.FeedPage{
		Items: []models.RawItem{{Title: "One", Link: "https://example.com/1", Guid: "g1"}},
	}), ClientConfig{})

	first, err := client.FetchPage(context.Background(), "feed-1", "")
	require.NoError(t, err)
	second, err := client.FetchPage(context.Background(), "feed-1", "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), hits.Load(), "identical fetch within the TTL must hit upstream once")

	// A different cursor is a cache miss
	_, err = client.FetchPage(context.Background(), "feed-1", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load())
}

func TestFetchPageSendsAuthAndPagination(t *testing.T) {
	var gotAuth, gotLimit, gotCursor string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotLimit = r.URL.Query().Get("limit")
		gotCursor = r.URL.Query().Get("cursor")
		_ = json.NewEncoder(w).Encode(models.FeedPage{})
	})
	client, _ := newTestClient(t, handler, ClientConfig{AuthToken: "secret", PageSize: 25})

	_, err := client.FetchPage(context.Background(), "feed-1", "p3")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "25", gotLimit)
	assert.Equal(t, "p3", gotCursor)
}

func TestFetchPageErrorStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	client, _ := newTestClient(t, handler, ClientConfig{})

	_, err := client.FetchPage(context.Background(), "feed-1", "")
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "feed-1", fetchErr.FeedId)
	assert.Contains(t, fetchErr.Error(), "500")
}

func TestFetchPageMalformedPayload(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{not json")
	})
	client, _ := newTestClient(t, handler, ClientConfig{})

	_, err := client.FetchPage(context.Background(), "feed-1", "")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestFetchPageRejectsItemsMissingRequiredFields(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.FeedPage{
			Items: []models.RawItem{{Title: "No guid", Link: "https://example.com/x"}},
		})
	})
	client, _ := newTestClient(t, handler, ClientConfig{})

	_, err := client.FetchPage(context.Background(), "feed-1", "")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, fetchErr.Error(), "missing guid")
}

func TestRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(models.FeedPage{
			Items: []models.RawItem{{Title: "Recovered", Link: "https://example.com/1", Guid: "g1"}},
		})
	})
	client, _ := newTestClient(t, handler, ClientConfig{MaxRetries: 5})

	page, err := client.FetchPage(context.Background(), "feed-1", "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, int64(3), hits.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	})
	client, _ := newTestClient(t, handler, ClientConfig{MaxRetries: 5})

	_, err := client.FetchPage(context.Background(), "feed-1", "")
	require.Error(t, err)
	assert.Equal(t, int64(1), hits.Load(), "4xx must not burn retries")
}

func TestCancellationSurfacesAsContextError(t *testing.T) {
	started := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})
	client, _ := newTestClient(t, handler, ClientConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := client.FetchPage(ctx, "feed-1", "")
	assert.ErrorIs(t, err, context.Canceled)

	var fetchErr *FetchError
	assert.False(t, errors.As(err, &fetchErr), "cancellation is not an upstream failure")
}

func TestFetchMetrics(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/metrics", r.URL.Path)
		assert.Equal(t, "https://example.com/1", r.URL.Query().Get("url"))
		_ = json.NewEncoder(w).Encode(models.ArticleMetrics{
			ReadCount: 1200,
			LikeCount: 34,
			WowCount:  7,
		})
	})
	client, _ := newTestClient(t, handler, ClientConfig{})

	metrics, err := client.FetchMetrics(context.Background(), "https://example.com/1")
	require.NoError(t, err)
	assert.Equal(t, 1200, metrics.ReadCount)
	assert.Equal(t, 34, metrics.LikeCount)
	assert.Equal(t, 7, metrics.WowCount)
}

func TestFetchMetricsErrorStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})
	client, _ := newTestClient(t, handler, ClientConfig{})

	_, err := client.FetchMetrics(context.Background(), "https://example.com/1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestFetchInfo(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/feeds/feed-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(models.FeedInfo{
			Title:       "A Feed",
			Description: "About things",
		})
	})
	client, _ := newTestClient(t, handler, ClientConfig{})

	info, err := client.FetchInfo(context.Background(), "feed-1")
	require.NoError(t, err)
	assert.Equal(t, "A Feed", info.Title)
	assert.Equal(t, "About things", info.Description)
}
