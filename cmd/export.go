package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"feedsync/export"
	"feedsync/query"
)

func exportCmd() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export stored articles to JSON or CSV",
		Description: `Exports stored articles to a file or stdout. The CSV format carries
the article metadata columns; JSON carries the full records.`,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Usage: "Export format, json or csv",
				Value: "json",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file, defaults to stdout",
			},
			&cli.StringFlag{
				Name:  "feed-id",
				Usage: "Only articles from this account",
			},
			&cli.TimestampFlag{
				Name:   "since",
				Usage:  "Only articles published at or after this time (RFC3339)",
				Layout: time.RFC3339,
			},
			&cli.TimestampFlag{
				Name:   "until",
				Usage:  "Only articles published before this time (RFC3339)",
				Layout: time.RFC3339,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of articles to export",
				Value: 10000,
			},
		}, dbFlags()...),
		Action: func(ctx *cli.Context) error {
			format, err := export.ParseFormat(ctx.String("format"))
			if err != nil {
				return err
			}

			database, err := openDB(ctx)
			if err != nil {
				return fmt.Errorf("could not connect to database: %w", err)
			}
			defer database.Close()

			q := query.Articles{
				Limit: ctx.Int("limit"),
				Since: ctx.Timestamp("since"),
				Until: ctx.Timestamp("until"),
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

			var out io.Writer = os.Stdout
			if path := ctx.String("output"); path != "" {
				file, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("could not create output file: %w", err)
				}
				defer file.Close()
				out = file
			}

			if err := export.Articles(out, format, articles); err != nil {
				return err
			}

			if path := ctx.String("output"); path != "" {
				fmt.Printf("Exported %d articles to %s\n", len(articles), path)
			}
			return nil
		},
	}
}
