package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"melodyhub/internal/store"
)

func migrateCommand(up bool) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		rt, err := setup(ctx, cmd.String("config"))
		if err != nil {
			return err
		}
		defer rt.Close()

		if up {
			err = store.MigrateUp(ctx, rt.db, rt.dialect)
		} else {
			err = store.MigrateDown(ctx, rt.db, rt.dialect)
		}
		if err != nil {
			return err
		}
		rt.logger.Info().Bool("up", up).Str("driver", rt.dialect.Driver()).Msg("migrations applied")
		return nil
	}
}
