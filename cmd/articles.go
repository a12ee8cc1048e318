package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"feedsync/query"
)

func articlesCmd() *cli.Command {
	return &cli.Command{
		Name:  "articles",
		Usage: "List stored articles",
		Description: `Lists stored articles, newest first, as one JSON object per line.
Use a tool like jq to process the output.`,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "feed-id",
				Usage: "Only articles from this account",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of articles to list",
				Value: query.DefaultLimit,
			},
			&cli.Int64Flag{
				Name:  "before",
				Usage: "Only articles with an id lower than this, for paging",
			},
			&cli.BoolFlag{
				Name:  "favorites",
				Usage: "Only favorited articles",
			},
			&cli.BoolFlag{
				Name:  "unread",
				Usage: "Only unread articles",
			},
		}, dbFlags()...),
		Action: func(ctx *cli.Context) error {
			database, err := openDB(ctx)
			if err != nil {
				return fmt.Errorf("could not connect to database: %w", err)
			}
			defer database.Close()

			q := query.Articles{
				Limit:         ctx.Int("limit"),
				Before:        ctx.Int64("before"),
				FavoritesOnly: ctx.Bool("favorites"),
				UnreadOnly:    ctx.Bool("unread"),
			}

			if feedId := ctx.String("feed-id"); feedId != "" {
				account, err := database.GetAccountByFeedId(ctx.Context, feedId)
				if err != nil {
					return fmt.Errorf("could not look up account %s: %w", feedId, err)
				}
				q.AccountId = account.Id
			}

			articles, err := database.ListArticles(ctx.Context, q)
			if err != nil {
				return fmt.Errorf("could not list articles: %w", err)
			}

			for _, article := range articles {
				printJson(article)
			}
			return nil
		},
	}
}
