package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"feedsync/cache"
	"feedsync/config"
	"feedsync/db"
	"feedsync/feed"
	"feedsync/normalize"
	"feedsync/ratelimit"
	"feedsync/syncer"
)

func dbFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "db-host",
			Usage:   "PostgreSQL host",
			EnvVars: []string{"FEEDSYNC_DB_HOST"},
			Value:   "localhost",
		},
		&cli.IntFlag{
			Name:    "db-port",
			Usage:   "PostgreSQL port",
			EnvVars: []string{"FEEDSYNC_DB_PORT"},
			Value:   5432,
		},
		&cli.StringFlag{
			Name:    "db-user",
			Usage:   "PostgreSQL user",
			EnvVars: []string{"FEEDSYNC_DB_USER"},
			Value:   "feedsync",
		},
		&cli.StringFlag{
			Name:    "db-password",
			Usage:   "PostgreSQL password",
			EnvVars: []string{"FEEDSYNC_DB_PASSWORD"},
			Value:   "feedsync",
		},
		&cli.StringFlag{
			Name:    "db-name",
			Usage:   "PostgreSQL database name",
			EnvVars: []string{"FEEDSYNC_DB_NAME"},
			Value:   "feedsync",
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "feedsync.toml",
		Usage:   "Path to feedsync configuration file",
		EnvVars: []string{"FEEDSYNC_CONFIG"},
	}
}

func openDB(ctx *cli.Context) (*db.DB, error) {
	return db.NewDB(
		ctx.String("db-host"),
		ctx.Int("db-port"),
		ctx.String("db-user"),
		ctx.String("db-password"),
		ctx.String("db-name"),
	)
}

// buildEngine assembles the full sync pipeline from the config file: rate
// limiter, response cache, feed client, normalizer and orchestrator.
func buildEngine(ctx *cli.Context, database *db.DB) (*syncer.Orchestrator, *feed.Client, error) {
	conf, err := config.LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, nil, err
	}

	limiter := ratelimit.New(conf.Sync.RateLimitPerMinute, time.Minute)
	responses := cache.New(conf.Sync.CacheSize, conf.CacheTTL())

	client := feed.NewClient(feed.ClientConfig{
		BaseUrl:    conf.Upstream.BaseUrl,
		AuthToken:  conf.Upstream.AuthToken,
		PageSize:   conf.Upstream.PageSize,
		Timeout:    conf.Timeout(),
		MaxRetries: uint64(conf.Upstream.MaxRetries),
	}, limiter, responses)

	normalizer := normalize.New()

	orchestrator := syncer.New(database, client, normalizer.Article, syncer.Config{
		MaxPages: conf.Sync.MaxPages,
		Workers:  conf.Sync.Workers,
	})

	return orchestrator, client, nil
}
