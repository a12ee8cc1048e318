package cmd

import (
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"feedsync/query"
)

func metricsCmd() *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "Refresh engagement metrics for stored articles",
		Description: `Fetches engagement counts (reads, likes, shares and so on) for stored
articles from the upstream source and stores them together with the derived
importance scores (engagement rate, virality index, content value index and
heat score).

Metrics are fetched per article through the shared rate limiter, so large
refreshes take a while. Use --limit and --feed-id to bound a run.`,
		Flags: append([]cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "feed-id",
				Usage: "Only articles from this account",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of articles to refresh, newest first",
				Value: 100,
			},
		}, dbFlags()...),
		Action: func(ctx *cli.Context) error {
			database, err := openDB(ctx)
			if err != nil {
				return fmt.Errorf("could not connect to database: %w", err)
			}
			defer database.Close()

			_, client, err := buildEngine(ctx, database)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
			defer stop()

			q := query.Articles{Limit: ctx.Int("limit")}
			if feedId := ctx.String("feed-id"); feedId != "" {
				account, err := database.GetAccountByFeedId(runCtx, feedId)
				if err != nil {
					return fmt.Errorf("could not look up account %s: %w", feedId, err)
				}
				q.AccountId = account.Id
			}

			articles, err := database.ListArticles(runCtx, q)
			if err != nil {
				return fmt.Errorf("could not list articles: %w", err)
			}

			refreshed, failed := 0, 0
			for _, article := range articles {
				if runCtx.Err() != nil {
					break
				}

				metrics, err := client.FetchMetrics(runCtx, article.Url)
				if err != nil {
					if runCtx.Err() != nil {
						break
					}
					failed++
					log.WithFields(log.Fields{
						"article": article.Id,
						"error":   err,
					}).Warn("Could not fetch metrics")
					continue
				}

				if err := database.UpdateArticleMetrics(runCtx, article.Id, *metrics); err != nil {
					failed++
					log.WithFields(log.Fields{
						"article": article.Id,
						"error":   err,
					}).Warn("Could not store metrics")
					continue
				}
				refreshed++
			}

			fmt.Printf("Refreshed metrics for %d of %d articles (%d failed)\n",
				refreshed, len(articles), failed)
			if failed > 0 && refreshed == 0 {
				return fmt.Errorf("no metrics could be refreshed")
			}
			return nil
		},
	}
}
