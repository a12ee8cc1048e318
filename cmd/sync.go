package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"feedsync/models"
	"feedsync/syncer"
)

func syncCmd() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync articles from upstream feed accounts",
		Description: `Runs a sync for one account or for all active accounts.

By default a sync is incremental: paging stops once a whole page of
already-known, unchanged articles is seen. Pass --full to page through the
entire feed and reconcile historical edits.

Interrupting a sync with Ctrl-C finishes the page in flight, keeps all
merged articles and records the run as partial.`,
		Flags: append([]cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "feed-id",
				Usage:   "Sync a single account by its feed id",
				EnvVars: []string{"FEEDSYNC_FEED_ID"},
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Sync every active account",
			},
			&cli.BoolFlag{
				Name:  "full",
				Usage: "Page through the whole feed instead of stopping at known articles",
			},
		}, dbFlags()...),
		Action: func(ctx *cli.Context) error {
			if ctx.String("feed-id") == "" && !ctx.Bool("all") {
				return errors.New("specify --feed-id or --all")
			}

			database, err := openDB(ctx)
			if err != nil {
				return fmt.Errorf("could not connect to database: %w", err)
			}
			defer database.Close()

			orchestrator, client, err := buildEngine(ctx, database)
			if err != nil {
				return err
			}

			// A full sync reconciles against upstream, so cached pages from
			// earlier runs must not be reused
			if ctx.Bool("full") {
				client.PurgeCache()
			}

			// Ctrl-C cancels the run context; the engine finishes the page in
			// flight and records a partial run
			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
			defer stop()

			opts := syncer.Options{Full: ctx.Bool("full")}

			if feedId := ctx.String("feed-id"); feedId != "" {
				account, err := database.GetAccountByFeedId(runCtx, feedId)
				if err != nil {
					return fmt.Errorf("could not look up account %s: %w", feedId, err)
				}
				run, err := orchestrator.SyncAccount(runCtx, *account, opts)
				if err != nil {
					return err
				}
				printRun(account.FeedId, run)
				return nil
			}

			accounts, err := database.ListAccounts(runCtx, true)
			if err != nil {
				return fmt.Errorf("could not list accounts: %w", err)
			}
			if len(accounts) == 0 {
				fmt.Println("No active accounts to sync")
				return nil
			}

			results := orchestrator.SyncAll(runCtx, accounts, opts)

			failed := 0
			for _, result := range results {
				if result.Err != nil {
					failed++
					log.WithFields(log.Fields{
						"feed":  result.Account.FeedId,
						"error": result.Err,
					}).Error("Sync failed")
					continue
				}
				printRun(result.Account.FeedId, result.Run)
				if result.Run.Status == models.RunFailed {
					failed++
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d accounts failed to sync", failed, len(results))
			}
			return nil
		},
	}
}
