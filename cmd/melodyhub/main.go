package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	app := &cli.Command{
		Name:    "melodyhub",
		Usage:   "Music catalog and account backend",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML configuration file",
				Sources: cli.EnvVars("MELODYHUB_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP API",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "migrate",
						Usage: "Apply pending schema migrations before serving",
					},
				},
				Action: serveCommand,
			},
			{
				Name:  "migrate",
				Usage: "Manage the database schema",
				Commands: []*cli.Command{
					{Name: "up", Usage: "Apply all pending migrations", Action: migrateCommand(true)},
					{Name: "down", Usage: "Revert all migrations", Action: migrateCommand(false)},
				},
			},
			{
				Name:  "seed",
				Usage: "Create roles, the admin account and a demo catalog",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Run the seed and roll it back",
					},
				},
				Action: seedCommand,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("melodyhub failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
