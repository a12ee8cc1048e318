package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"feedsync/db"
	"feedsync/models"
)

func accountCmd() *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "Manage tracked feed accounts",
		Subcommands: []*cli.Command{
			accountAddCmd(),
			accountListCmd(),
			accountRefreshCmd(),
			accountDeactivateCmd(),
		},
	}
}

func accountAddCmd() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Register a new feed account",
		Description: `Registers a feed account for syncing. Unless --name is given, the
account metadata is fetched from the upstream feed source.`,
		Flags: append([]cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:     "feed-id",
				Usage:    "Upstream feed identifier",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Display name, skips the upstream metadata fetch",
			},
		}, dbFlags()...),
		Action: func(ctx *cli.Context) error {
			database, err := openDB(ctx)
			if err != nil {
				return fmt.Errorf("could not connect to database: %w", err)
			}
			defer database.Close()

			feedId := ctx.String("feed-id")
			account := &models.Account{
				FeedId: feedId,
				Name:   ctx.String("name"),
				Active: true,
			}

			if account.Name == "" {
				_, client, err := buildEngine(ctx, database)
				if err != nil {
					return err
				}
				info, err := client.FetchInfo(ctx.Context, feedId)
				if err != nil {
					return fmt.Errorf("could not fetch feed metadata: %w", err)
				}
				account.Name = info.Title
				account.Description = info.Description
				account.AvatarUrl = info.AvatarUrl
			}

			if err := database.CreateAccount(ctx.Context, account); err != nil {
				if errors.Is(err, db.ErrDuplicate) {
					return fmt.Errorf("account %s is already registered", feedId)
				}
				return fmt.Errorf("could not create account: %w", err)
			}

			fmt.Printf("Registered account %s (%s)\n", account.FeedId, account.Name)
			return nil
		},
	}
}

func accountListCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List registered accounts",
		Flags: append([]cli.Flag{
			&cli.BoolFlag{
				Name:  "active",
				Usage: "Only list active accounts",
			},
		}, dbFlags()...),
		Action: func(ctx *cli.Context) error {
			database, err := openDB(ctx)
			if err != nil {
				return fmt.Errorf("could not connect to database: %w", err)
			}
			defer database.Close()

			accounts, err := database.ListAccounts(ctx.Context, ctx.Bool("active"))
			if err != nil {
				return fmt.Errorf("could not list accounts: %w", err)
			}

			for _, account := range accounts {
				printJson(account)
			}
			return nil
		},
	}
}

func accountRefreshCmd() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Refresh account metadata from upstream",
		Description: `Re-fetches the display name, description and avatar for an account
from the upstream feed source. The feed id itself never changes.`,
		Flags: append([]cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:     "feed-id",
				Usage:    "Upstream feed identifier",
				Required: true,
			},
		}, dbFlags()...),
		Action: func(ctx *cli.Context) error {
			database, err := openDB(ctx)
			if err != nil {
				return fmt.Errorf("could not connect to database: %w", err)
			}
			defer database.Close()

			feedId := ctx.String("feed-id")
			account, err := database.GetAccountByFeedId(ctx.Context, feedId)
			if err != nil {
				return fmt.Errorf("could not look up account %s: %w", feedId, err)
			}

			_, client, err := buildEngine(ctx, database)
			if err != nil {
				return err
			}
			info, err := client.FetchInfo(ctx.Context, feedId)
			if err != nil {
				return fmt.Errorf("could not fetch feed metadata: %w", err)
			}

			if err := database.UpdateAccountMetadata(ctx.Context, account.Id,
				info.Title, info.Description, info.AvatarUrl); err != nil {
				return fmt.Errorf("could not update account: %w", err)
			}

			fmt.Printf("Refreshed account %s (%s)\n", feedId, info.Title)
			return nil
		},
	}
}

func accountDeactivateCmd() *cli.Command {
	return &cli.Command{
		Name:  "deactivate",
		Usage: "Stop syncing an account",
		Description: `Deactivates an account so it is skipped by sync. Its articles stay in
the store; accounts are never deleted.`,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "feed-id",
				Usage:    "Upstream feed identifier",
				Required: true,
			},
		}, dbFlags()...),
		Action: func(ctx *cli.Context) error {
			database, err := openDB(ctx)
			if err != nil {
				return fmt.Errorf("could not connect to database: %w", err)
			}
			defer database.Close()

			feedId := ctx.String("feed-id")
			if err := database.DeactivateAccount(ctx.Context, feedId); err != nil {
				if errors.Is(err, db.ErrNotFound) {
					return fmt.Errorf("no account with feed id %s", feedId)
				}
				return fmt.Errorf("could not deactivate account: %w", err)
			}

			fmt.Printf("Deactivated account %s\n", feedId)
			return nil
		},
	}
}

// printJson prints a value as a single JSON line, for piping into jq.
func printJson(v any) {
	data, err := json.Marshal(v)
	if err == nil {
		fmt.Println(string(data))
	}
}
