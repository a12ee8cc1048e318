package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "feedsync",
		Usage: "Sync engine for feed-account articles",
		Description: `Pulls articles from upstream feed accounts into a local
		PostgreSQL store and keeps them up to date.

		Feedsync fetches article pages through a rate-limited, cached client,
		normalizes the content and merges it into the store without ever
		touching user state like read and favorite flags. Every run is
		recorded in an append-only history.

		Flags can generally be set via environment variables, e.g.:

		--db-host => FEEDSYNC_DB_HOST=localhost
		--config => FEEDSYNC_CONFIG=feedsync.toml
		`,
		Commands: []*cli.Command{
			syncCmd(),
			accountCmd(),
			articlesCmd(),
			historyCmd(),
			exportCmd(),
			metricsCmd(),
			statsCmd(),
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
