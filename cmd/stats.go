package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"feedsync/db"
)

func statsCmd() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show store statistics",
		Flags: dbFlags(),
		Action: func(ctx *cli.Context) error {
			database, err := openDB(ctx)
			if err != nil {
				return fmt.Errorf("could not connect to database: %w", err)
			}
			defer database.Close()

			accounts, err := database.ListAccounts(ctx.Context, false)
			if err != nil {
				return fmt.Errorf("could not list accounts: %w", err)
			}

			total, err := database.CountArticles(ctx.Context, 0)
			if err != nil {
				return fmt.Errorf("could not count articles: %w", err)
			}

			fmt.Printf("Accounts: %d\n", len(accounts))
			fmt.Printf("Articles: %d\n", total)

			for _, account := range accounts {
				count, err := database.CountArticles(ctx.Context, account.Id)
				if err != nil {
					return fmt.Errorf("could not count articles for %s: %w", account.FeedId, err)
				}
				state := "active"
				if !account.Active {
					state = "inactive"
				}
				fmt.Printf("  %s (%s): %d articles\n", account.FeedId, state, count)
			}

			run, err := database.GetLatestSyncRun(ctx.Context)
			if errors.Is(err, db.ErrNotFound) {
				fmt.Println("No sync runs recorded yet")
				return nil
			}
			if err != nil {
				return fmt.Errorf("could not load latest sync run: %w", err)
			}

			fmt.Printf("Last run: %s at %s (%d new, %d updated, %d unchanged)\n",
				run.Status, run.StartedAt.Format("2006-01-02 15:04:05"),
				run.New, run.Updated, run.Unchanged)
			return nil
		},
	}
}
