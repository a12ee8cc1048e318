package server

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"feedsync/db"
	"feedsync/models"
	"feedsync/query"
	"feedsync/syncer"
)

// Store is the read surface the HTTP API needs from the database.
type Store interface {
	ListAccounts(ctx context.Context, activeOnly bool) ([]models.Account, error)
	GetAccountByFeedId(ctx context.Context, feedId string) (*models.Account, error)
	ListArticles(ctx context.Context, q query.Articles) ([]models.Article, error)
	SetArticleFlags(ctx context.Context, id int64, read, favorite bool) error
	ListSyncRuns(ctx context.Context, accountId int64, limit int) ([]models.SyncRun, error)
}

// Runner triggers sync runs on behalf of the API.
type Runner interface {
	SyncAccount(ctx context.Context, account models.Account, opts syncer.Options) (*models.SyncRun, error)
}

type ServerConfig struct {

	// The hostname to use for the server
	Hostname string

	// The store to read accounts, articles and run history from
	Store Store

	// The runner used by the sync trigger endpoint
	Runner Runner
}

// How long the sync trigger endpoint waits for a run to finish before
// answering 202 and letting it continue in the background.
const triggerWait = 250 * time.Millisecond

// Returns a fiber.App instance serving the feedsync read API and the sync
// trigger endpoint
func Server(config *ServerConfig) *fiber.App {

	app := fiber.New()

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		// start timer
		start := time.Now()

		// next routes
		err := c.Next()

		// stop timer
		stop := time.Now()

		// Diff
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": stop.Sub(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/accounts", func(c *fiber.Ctx) error {
		activeOnly := c.QueryBool("active", false)

		accounts, err := config.Store.ListAccounts(c.Context(), activeOnly)
		if err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Error listing accounts")
			return c.Status(500).SendString("Error listing accounts")
		}
		if accounts == nil {
			accounts = []models.Account{}
		}
		return c.JSON(accounts)
	})

	app.Get("/articles", func(c *fiber.Ctx) error {
		q, err := articleQuery(c)
		if err != nil {
			return c.Status(400).SendString(err.Error())
		}
		return listArticles(c, config.Store, q)
	})

	app.Get("/accounts/:feedID/articles", func(c *fiber.Ctx) error {
		account, err := config.Store.GetAccountByFeedId(c.Context(), c.Params("feedID"))
		if errors.Is(err, db.ErrNotFound) {
			return c.Status(404).SendString("Unknown account")
		}
		if err != nil {
			return c.Status(500).SendString("Error looking up account")
		}

		q, err := articleQuery(c)
		if err != nil {
			return c.Status(400).SendString(err.Error())
		}
		q.AccountId = account.Id
		return listArticles(c, config.Store, q)
	})

	app.Put("/articles/:id/flags", func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return c.Status(400).SendString("Invalid article id")
		}

		var flags struct {
			Read     bool `json:"read"`
			Favorite bool `json:"favorite"`
		}
		if err := c.BodyParser(&flags); err != nil {
			return c.Status(400).SendString("Invalid flags payload")
		}

		err = config.Store.SetArticleFlags(c.Context(), id, flags.Read, flags.Favorite)
		if errors.Is(err, db.ErrNotFound) {
			return c.Status(404).SendString("Unknown article")
		}
		if err != nil {
			log.WithFields(log.Fields{
				"article": id,
				"error":   err,
			}).Error("Error updating article flags")
			return c.Status(500).SendString("Error updating article flags")
		}
		return c.SendStatus(204)
	})

	app.Get("/syncs", func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "20"))
		if err != nil || limit < 1 || limit > 100 {
			limit = 20
		}

		var accountId int64
		if feedId := c.Query("feed", ""); feedId != "" {
			account, err := config.Store.GetAccountByFeedId(c.Context(), feedId)
			if errors.Is(err, db.ErrNotFound) {
				return c.Status(404).SendString("Unknown account")
			}
			if err != nil {
				return c.Status(500).SendString("Error looking up account")
			}
			accountId = account.Id
		}

		runs, err := config.Store.ListSyncRuns(c.Context(), accountId, limit)
		if err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Error listing sync runs")
			return c.Status(500).SendString("Error listing sync runs")
		}
		if runs == nil {
			runs = []models.SyncRun{}
		}
		return c.JSON(runs)
	})

	app.Post("/sync/:feedID", func(c *fiber.Ctx) error {
		account, err := config.Store.GetAccountByFeedId(c.Context(), c.Params("feedID"))
		if errors.Is(err, db.ErrNotFound) {
			return c.Status(404).SendString("Unknown account")
		}
		if err != nil {
			return c.Status(500).SendString("Error looking up account")
		}
		if !account.Active {
			return c.Status(409).SendString("Account is deactivated")
		}

		opts := syncer.Options{Full: c.QueryBool("full", false)}

		// The run must outlive the request; answer 202 if it is still going
		// after a short grace period.
		type outcome struct {
			run *models.SyncRun
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			run, err := config.Runner.SyncAccount(context.Background(), *account, opts)
			done <- outcome{run: run, err: err}
		}()

		select {
		case result := <-done:
			if errors.Is(result.err, syncer.ErrSyncInProgress) {
				return c.Status(409).SendString("Sync already in progress")
			}
			if result.err != nil {
				log.WithFields(log.Fields{
					"feed":  account.FeedId,
					"error": result.err,
				}).Error("Error running sync")
				return c.Status(500).SendString("Error running sync")
			}
			return c.Status(200).JSON(result.run)
		case <-time.After(triggerWait):
			return c.Status(202).JSON(fiber.Map{
				"feedId": account.FeedId,
				"status": "started",
			})
		}
	})

	return app
}

func articleQuery(c *fiber.Ctx) (query.Articles, error) {
	q := query.Articles{
		FavoritesOnly: c.QueryBool("favorites", false),
		UnreadOnly:    c.QueryBool("unread", false),
	}

	limit, err := strconv.Atoi(c.Query("limit", strconv.Itoa(query.DefaultLimit)))
	if err != nil || limit < 1 || limit > 500 {
		limit = query.DefaultLimit
	}
	q.Limit = limit

	if before := c.Query("before", ""); before != "" {
		id, err := strconv.ParseInt(before, 10, 64)
		if err != nil {
			return q, errors.New("invalid before cursor")
		}
		q.Before = id
	}

	if since := c.Query("since", ""); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return q, errors.New("invalid since timestamp, want RFC3339")
		}
		q.Since = &t
	}
	if until := c.Query("until", ""); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return q, errors.New("invalid until timestamp, want RFC3339")
		}
		q.Until = &t
	}

	return q, nil
}

func listArticles(c *fiber.Ctx, store Store, q query.Articles) error {
	articles, err := store.ListArticles(c.Context(), q)
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Error("Error listing articles")
		return c.Status(500).SendString("Error listing articles")
	}
	if articles == nil {
		articles = []models.Article{}
	}
	return c.JSON(articles)
}
