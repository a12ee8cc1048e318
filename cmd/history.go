package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"feedsync/models"
)

func historyCmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show sync run history",
		Description: `Lists recorded sync runs, newest first. Runs are append-only: every
invocation of sync leaves exactly one row.`,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "feed-id",
				Usage: "Only runs for this account",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to list",
				Value: 20,
			},
		}, dbFlags()...),
		Action: func(ctx *cli.Context) error {
			database, err := openDB(ctx)
			if err != nil {
				return fmt.Errorf("could not connect to database: %w", err)
			}
			defer database.Close()

			var accountId int64
			if feedId := ctx.String("feed-id"); feedId != "" {
				account, err := database.GetAccountByFeedId(ctx.Context, feedId)
				if err != nil {
					return fmt.Errorf("could not look up account %s: %w", feedId, err)
				}
				accountId = account.Id
			}

			runs, err := database.ListSyncRuns(ctx.Context, accountId, ctx.Int("limit"))
			if err != nil {
				return fmt.Errorf("could not list sync runs: %w", err)
			}

			for _, run := range runs {
				printJson(run)
			}
			return nil
		},
	}
}

func printRun(feedId string, run *models.SyncRun) {
	fmt.Printf("%s: %s (%d pages, %d new, %d updated, %d unchanged)\n",
		feedId, run.Status, run.Pages, run.New, run.Updated, run.Unchanged)
	if run.Error != "" {
		fmt.Printf("%s: error: %s\n", feedId, run.Error)
	}
}
