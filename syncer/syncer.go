package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"feedsync/models"
	"feedsync/normalize"
)

var (
	runsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_runs_total",
		Help: "The total number of completed sync runs by terminal status",
	}, []string{"status"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedsync_run_duration_seconds",
		Help:    "Duration of sync runs",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

// ErrSyncInProgress is returned when a run is requested for an account
// that already has one running. The request is rejected, not queued.
var ErrSyncInProgress = errors.New("sync already in progress for this account")

// Store is the persistence surface the engine needs. The concrete db
// package satisfies it; tests use an in-memory fake.
type Store interface {
	GetArticleByGuid(ctx context.Context, accountId int64, guid string) (*models.Article, error)
	InsertArticle(ctx context.Context, article *models.Article) error
	UpdateArticleContent(ctx context.Context, id int64, article *models.Article) error
	CreateSyncRun(ctx context.Context, run *models.SyncRun) error
	CompleteSyncRun(ctx context.Context, run *models.SyncRun) error
}

// PageFetcher fetches one page of raw articles for a feed.
type PageFetcher interface {
	FetchPage(ctx context.Context, feedId string, cursor string) (*models.FeedPage, error)
}

// NormalizeFunc turns one raw item into a normalized record. It must be
// pure; the orchestrator calls it once per fetched item.
type NormalizeFunc func(models.RawItem) normalize.Normalized

// Options control one sync run.
type Options struct {
	// Full pages through every cursor regardless of overlap, for
	// reconciling historical drift. Default is incremental: stop once a
	// page contains only already-known unchanged guids.
	Full bool
}

// Config holds orchestrator configuration
type Config struct {
	// MaxPages is the per-run safety cap on fetched pages
	MaxPages int

	// Workers bounds the number of accounts synced in parallel
	Workers int
}

// Orchestrator drives sync runs: one state machine per account, with a
// shared fetcher, store and normalizer.
type Orchestrator struct {
	store     Store
	fetcher   PageFetcher
	normalize NormalizeFunc
	config    Config

	mu     sync.Mutex
	active map[int64]struct{}
}

func New(store Store, fetcher PageFetcher, normalizeFn NormalizeFunc, config Config) *Orchestrator {
	if config.MaxPages < 1 {
		config.MaxPages = 50
	}
	if config.Workers < 1 {
		config.Workers = 4
	}
	return &Orchestrator{
		store:     store,
		fetcher:   fetcher,
		normalize: normalizeFn,
		config:    config,
		active:    make(map[int64]struct{}),
	}
}

// acquire reserves the per-account run slot. At most one run per account
// may be active; a second request fails immediately.
func (o *Orchestrator) acquire(accountId int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, running := o.active[accountId]; running {
		return ErrSyncInProgress
	}
	o.active[accountId] = struct{}{}
	return nil
}

func (o *Orchestrator) release(accountId int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, accountId)
}

// SyncAccount performs one sync run for one account and returns the
// completed run record. Fetch and merge failures are recorded on the run,
// not returned; the error return covers usage errors (a concurrent run)
// and failures to record the run itself.
func (o *Orchestrator) SyncAccount(ctx context.Context, account models.Account, opts Options) (*models.SyncRun, error) {
	if err := o.acquire(account.Id); err != nil {
		return nil, err
	}
	defer o.release(account.Id)

	kind := models.RunIncremental
	if opts.Full {
		kind = models.RunFull
	}

	run := &models.SyncRun{
		Id:        uuid.NewString(),
		AccountId: account.Id,
		Kind:      kind,
	}
	if err := o.store.CreateSyncRun(ctx, run); err != nil {
		return nil, err
	}
	start := time.Now()

	fetchErr, mergeErr, cancelled := o.runPages(ctx, account, opts, run)

	switch {
	case mergeErr != nil:
		run.Status = models.RunFailed
		run.Error = mergeErr.Error()
	case cancelled:
		run.Status = models.RunPartial
	case fetchErr != nil:
		if run.Pages > 0 {
			run.Status = models.RunPartial
		} else {
			run.Status = models.RunFailed
		}
		run.Error = fetchErr.Error()
	default:
		run.Status = models.RunSuccess
	}

	// The terminal transition must land even when the run context is
	// already cancelled
	if err := o.store.CompleteSyncRun(context.WithoutCancel(ctx), run); err != nil {
		return nil, err
	}

	runsCompleted.WithLabelValues(string(run.Status)).Inc()
	runDuration.Observe(time.Since(start).Seconds())

	log.WithFields(log.Fields{
		"run":       run.Id,
		"feed":      account.FeedId,
		"status":    run.Status,
		"pages":     run.Pages,
		"new":       run.New,
		"updated":   run.Updated,
		"unchanged": run.Unchanged,
	}).Info("Sync run completed")

	return run, nil
}

// runPages is the page-fetch loop: an explicit loop with an explicit
// termination predicate (exhaustion, early stop, page cap, cancellation
// or failure). Later pages depend on the cursor of earlier ones, so the
// loop is strictly sequential.
func (o *Orchestrator) runPages(ctx context.Context, account models.Account, opts Options, run *models.SyncRun) (fetchErr error, mergeErr error, cancelled bool) {
	cursor := ""

	for {
		// Cooperative cancellation check before each fetch
		if ctx.Err() != nil {
			return nil, nil, true
		}
		if run.Pages >= o.config.MaxPages {
			log.WithFields(log.Fields{
				"feed":  account.FeedId,
				"pages": run.Pages,
			}).Warn("Page safety cap reached, stopping run")
			return nil, nil, false
		}

		page, err := o.fetcher.FetchPage(ctx, account.FeedId, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, true
			}
			return err, nil, false
		}

		run.Pages++
		run.Fetched += len(page.Items)

		records := make([]normalize.Normalized, 0, len(page.Items))
		for _, item := range page.Items {
			records = append(records, o.normalize(item))
		}

		outcome, err := merge(ctx, o.store, account, records)
		run.New += outcome.New
		run.Updated += outcome.Updated
		run.Unchanged += outcome.Unchanged
		if err != nil {
			// A cancellation surfacing through the store is a controlled
			// exit, not a merge failure
			if ctx.Err() != nil {
				return nil, nil, true
			}
			return nil, err, false
		}

		// An empty page cannot make progress regardless of HasMore
		if len(page.Items) == 0 {
			return nil, nil, false
		}

		// Incremental early stop: a page of nothing but already-known,
		// unchanged articles means the overlap with the store is reached.
		// Assumes reverse-chronological feed order.
		if !opts.Full && outcome.New == 0 && outcome.Updated == 0 {
			log.WithFields(log.Fields{
				"feed": account.FeedId,
				"page": run.Pages,
			}).Debug("All items on page already known, stopping incremental run")
			return nil, nil, false
		}

		if !page.HasMore || page.NextCursor == "" {
			return nil, nil, false
		}
		cursor = page.NextCursor
	}
}

// AccountResult pairs an account with its run outcome in a multi-account
// sync.
type AccountResult struct {
	Account models.Account
	Run     *models.SyncRun
	Err     error
}

// SyncAll runs one independent state machine per account over a fixed
// worker pool. One account failing never aborts the others.
func (o *Orchestrator) SyncAll(ctx context.Context, accounts []models.Account, opts Options) []AccountResult {
	results := make([]AccountResult, len(accounts))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < o.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				account := accounts[i]
				run, err := o.SyncAccount(ctx, account, opts)
				results[i] = AccountResult{Account: account, Run: run, Err: err}
				if err != nil {
					log.WithFields(log.Fields{
						"feed":  account.FeedId,
						"error": err,
					}).Error("Sync failed for account")
				}
			}
		}()
	}

	for i := range accounts {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}
