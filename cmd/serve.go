package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"feedsync/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the feedsync HTTP API",
		Description: `Starts the HTTP server exposing accounts, articles and sync history,
plus a sync trigger endpoint and Prometheus metrics on /metrics.`,
		Flags: append([]cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:    "port",
				Usage:   "Port to listen on",
				EnvVars: []string{"FEEDSYNC_PORT"},
				Value:   3000,
			},
			&cli.StringFlag{
				Name:    "hostname",
				Usage:   "The hostname where the server is running",
				EnvVars: []string{"FEEDSYNC_HOSTNAME"},
				Value:   "localhost",
			},
		}, dbFlags()...),
		Action: func(ctx *cli.Context) error {
			database, err := openDB(ctx)
			if err != nil {
				return fmt.Errorf("could not connect to database: %w", err)
			}
			defer database.Close()

			orchestrator, _, err := buildEngine(ctx, database)
			if err != nil {
				return err
			}

			app := server.Server(&server.ServerConfig{
				Hostname: ctx.String("hostname"),
				Store:    database,
				Runner:   orchestrator,
			})

			// Graceful shutdown
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)
			go func() {
				<-c
				log.Info("Gracefully shutting down...")
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.Error(err)
				}
			}()

			addr := fmt.Sprintf(":%d", ctx.Int("port"))
			log.WithFields(log.Fields{
				"addr": addr,
			}).Info("Starting server")
			return app.Listen(addr)
		},
	}
}
