package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedsync/db"
	"feedsync/models"
	"feedsync/query"
	"feedsync/syncer"
)

type fakeStore struct {
	accounts []models.Account
	articles []models.Article
	runs     []models.SyncRun

	lastQuery query.Articles
}

func (s *fakeStore) ListAccounts(_ context.Context, activeOnly bool) ([]models.Account, error) {
	if !activeOnly {
		return s.accounts, nil
	}
	var active []models.Account
	for _, a := range s.accounts {
		if a.Active {
			active = append(active, a)
		}
	}
	return active, nil
}

func (s *fakeStore) GetAccountByFeedId(_ context.Context, feedId string) (*models.Account, error) {
	for _, a := range s.accounts {
		if a.FeedId == feedId {
			account := a
			return &account, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) ListArticles(_ context.Context, q query.Articles) ([]models.Article, error) {
	s.lastQuery = q
	if q.AccountId == 0 {
		return s.articles, nil
	}
	var matched []models.Article
	for _, a := range s.articles {
		if a.AccountId == q.AccountId {
			matched = append(matched, a)
		}
	}
	return matched, nil
}

func (s *fakeStore) SetArticleFlags(_ context.Context, id int64, read, favorite bool) error {
	for i := range s.articles {
		if s.articles[i].Id == id {
			s.articles[i].Read = read
			s.articles[i].Favorite = favorite
			return nil
		}
	}
	return db.ErrNotFound
}

func (s *fakeStore) ListSyncRuns(_ context.Context, accountId int64, limit int) ([]models.SyncRun, error) {
	var runs []models.SyncRun
	for _, r := range s.runs {
		if accountId == 0 || r.AccountId == accountId {
			runs = append(runs, r)
		}
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

type fakeRunner struct {
	run   *models.SyncRun
	err   error
	delay time.Duration

	gotOpts syncer.Options
}

func (r *fakeRunner) SyncAccount(_ context.Context, account models.Account, opts syncer.Options) (*models.SyncRun, error) {
	r.gotOpts = opts
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return nil, r.err
	}
	run := *r.run
	run.AccountId = account.Id
	return &run, nil
}

func testStore() *fakeStore {
	return &fakeStore{
		accounts: []models.Account{
			{Id: 1, FeedId: "feed-1", Name: "One", Active: true},
			{Id: 2, FeedId: "feed-2", Name: "Two", Active: false},
		},
		articles: []models.Article{
			{Id: 10, AccountId: 1, Title: "A", Guid: "g1"},
			{Id: 11, AccountId: 2, Title: "B", Guid: "g2"},
		},
		runs: []models.SyncRun{
			{Id: "r1", AccountId: 1, Status: models.RunSuccess},
			{Id: "r2", AccountId: 2, Status: models.RunFailed},
		},
	}
}

func decode[T any](t *testing.T, body io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(body).Decode(&v))
	return v
}

func TestListAccounts(t *testing.T) {
	app := Server(&ServerConfig{Store: testStore(), Runner: &fakeRunner{}})

	res, err := app.Test(httptest.NewRequest("GET", "/accounts", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
	accounts := decode[[]models.Account](t, res.Body)
	assert.Len(t, accounts, 2)

	res, err = app.Test(httptest.NewRequest("GET", "/accounts?active=true", nil))
	require.NoError(t, err)
	accounts = decode[[]models.Account](t, res.Body)
	require.Len(t, accounts, 1)
	assert.Equal(t, "feed-1", accounts[0].FeedId)
}

func TestListArticlesParsesQuery(t *testing.T) {
	store := testStore()
	app := Server(&ServerConfig{Store: store, Runner: &fakeRunner{}})

	res, err := app.Test(httptest.NewRequest(
		"GET", "/articles?limit=5&favorites=true&since=2024-01-01T00:00:00Z", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)

	assert.Equal(t, 5, store.lastQuery.Limit)
	assert.True(t, store.lastQuery.FavoritesOnly)
	require.NotNil(t, store.lastQuery.Since)
	assert.Equal(t, 2024, store.lastQuery.Since.Year())
}

func TestListArticlesRejectsBadTimestamps(t *testing.T) {
	app := Server(&ServerConfig{Store: testStore(), Runner: &fakeRunner{}})

	res, err := app.Test(httptest.NewRequest("GET", "/articles?since=yesterday", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, res.StatusCode)
}

func TestAccountArticlesScopedToAccount(t *testing.T) {
	app := Server(&ServerConfig{Store: testStore(), Runner: &fakeRunner{}})

	res, err := app.Test(httptest.NewRequest("GET", "/accounts/feed-1/articles", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
	articles := decode[[]models.Article](t, res.Body)
	require.Len(t, articles, 1)
	assert.Equal(t, "g1", articles[0].Guid)

	res, err = app.Test(httptest.NewRequest("GET", "/accounts/nope/articles", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, res.StatusCode)
}

func TestSetArticleFlags(t *testing.T) {
	store := testStore()
	app := Server(&ServerConfig{Store: store, Runner: &fakeRunner{}})

	body := strings.NewReader(`{"read": true, "favorite": true}`)
	req := httptest.NewRequest("PUT", "/articles/10/flags", body)
	req.Header.Set("Content-Type", "application/json")

	res, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 204, res.StatusCode)
	assert.True(t, store.articles[0].Read)
	assert.True(t, store.articles[0].Favorite)

	req = httptest.NewRequest("PUT", "/articles/999/flags", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	res, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 404, res.StatusCode)

	res, err = app.Test(httptest.NewRequest("PUT", "/articles/abc/flags", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, res.StatusCode)
}

func TestListSyncRuns(t *testing.T) {
	app := Server(&ServerConfig{Store: testStore(), Runner: &fakeRunner{}})

	res, err := app.Test(httptest.NewRequest("GET", "/syncs", nil))
	require.NoError(t, err)
	runs := decode[[]models.SyncRun](t, res.Body)
	assert.Len(t, runs, 2)

	res, err = app.Test(httptest.NewRequest("GET", "/syncs?feed=feed-2", nil))
	require.NoError(t, err)
	runs = decode[[]models.SyncRun](t, res.Body)
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].Id)
}

func TestTriggerSyncReturnsCompletedRun(t *testing.T) {
	runner := &fakeRunner{run: &models.SyncRun{Id: "r9", Status: models.RunSuccess, New: 3}}
	app := Server(&ServerConfig{Store: testStore(), Runner: runner})

	res, err := app.Test(httptest.NewRequest("POST", "/sync/feed-1?full=true", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)

	run := decode[models.SyncRun](t, res.Body)
	assert.Equal(t, "r9", run.Id)
	assert.Equal(t, 3, run.New)
	assert.True(t, runner.gotOpts.Full)
}

func TestTriggerSyncAnswersAcceptedForSlowRuns(t *testing.T) {
	runner := &fakeRunner{
		run:   &models.SyncRun{Id: "r9", Status: models.RunSuccess},
		delay: 2 * triggerWait,
	}
	app := Server(&ServerConfig{Store: testStore(), Runner: runner})

	res, err := app.Test(httptest.NewRequest("POST", "/sync/feed-1", nil), 5000)
	require.NoError(t, err)
	assert.Equal(t, 202, res.StatusCode)
}

func TestTriggerSyncConflictWhenAlreadyRunning(t *testing.T) {
	runner := &fakeRunner{err: syncer.ErrSyncInProgress}
	app := Server(&ServerConfig{Store: testStore(), Runner: runner})

	res, err := app.Test(httptest.NewRequest("POST", "/sync/feed-1", nil))
	require.NoError(t, err)
	assert.Equal(t, 409, res.StatusCode)
}

func TestTriggerSyncRejectsDeactivatedAccount(t *testing.T) {
	app := Server(&ServerConfig{Store: testStore(), Runner: &fakeRunner{}})

	res, err := app.Test(httptest.NewRequest("POST", "/sync/feed-2", nil))
	require.NoError(t, err)
	assert.Equal(t, 409, res.StatusCode)
}

func TestTriggerSyncUnknownAccount(t *testing.T) {
	app := Server(&ServerConfig{Store: testStore(), Runner: &fakeRunner{}})

	res, err := app.Test(httptest.NewRequest("POST", "/sync/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, res.StatusCode)
}
