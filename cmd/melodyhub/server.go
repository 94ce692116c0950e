package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"melodyhub/internal/app/music"
	"melodyhub/internal/app/users"
	"melodyhub/internal/auth"
	"melodyhub/internal/http/middleware"
	"melodyhub/internal/httpapi"
	"melodyhub/internal/objectstore"
	"melodyhub/internal/store"
)

func serveCommand(ctx context.Context, cmd *cli.Command) error {
	rt, err := setup(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg := rt.cfg

	if cmd.Bool("migrate") {
		if err := store.MigrateUp(ctx, rt.db, rt.dialect); err != nil {
			return err
		}
	}

	objects, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:     cfg.Storage.Endpoint,
		Region:       cfg.Storage.Region,
		AccessKey:    cfg.Storage.AccessKey,
		SecretKey:    cfg.Storage.SecretKey,
		PublicURL:    cfg.Storage.PublicURL,
		UsePathStyle: true,
	})
	if err != nil {
		return err
	}
	if err := objects.EnsureBuckets(ctx, cfg.Storage.AvatarBucket); err != nil {
		return fmt.Errorf("ensure buckets: %w", err)
	}

	err = rt.manager.Transaction(ctx, func(ctx context.Context, tx *store.Session) error {
		return ensureAccounts(ctx, tx, cfg.Bootstrap)
	})
	if err != nil {
		return fmt.Errorf("bootstrap accounts: %w", err)
	}

	tokens := auth.NewTokens(cfg.Security.JWTSecret, cfg.Security.TokenTTL.Duration)
	authn := auth.NewAuthenticator(tokens, rt.manager, auth.Options{DisableAuth: cfg.Security.DisableAuth})
	if cfg.Security.DisableAuth {
		rt.logger.Warn().Msg("authentication disabled: every request acts as the first admin")
	}

	api := httpapi.New(
		users.New(rt.manager, tokens, objects, users.Config{AvatarBucket: cfg.Storage.AvatarBucket}),
		music.New(rt.manager),
		authn,
		httpapi.Options{
			CookieSecure: cfg.Security.CookieSecure,
			AuthLimiter:  middleware.NewRateLimiter(cfg.Security.LoginRateLimit),
			Logger:       rt.logger,
		},
	)

	var handler http.Handler = api.Routes()
	handler = middleware.CORS(cfg.CORS.AllowedOrigins)(handler)
	handler = middleware.Recovery(rt.logger)(handler)
	handler = middleware.RequestLogging(rt.logger)(handler)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info().Str("addr", server.Addr).Msg("melodyhub listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	rt.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	stats := rt.manager.Stats()
	rt.logger.Info().Int64("sessions", stats.Acquired).Msg("server stopped")
	return nil
}

func seedCommand(ctx context.Context, cmd *cli.Command) error {
	rt, err := setup(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	defer rt.Close()

	dryRun := cmd.Bool("dry-run")
	opts := store.RunOptions{Isolation: sql.LevelSerializable, Commit: !dryRun}

	var added int
	err = rt.manager.Run(ctx, opts, func(ctx context.Context, tx *store.Session) error {
		if err := ensureAccounts(ctx, tx, rt.cfg.Bootstrap); err != nil {
			return err
		}
		n, err := seedCatalog(ctx, tx)
		added = n
		return err
	})
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	rt.logger.Info().Int("songs_added", added).Bool("dry_run", dryRun).Msg("seed complete")
	return nil
}
