package main

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"melodyhub/internal/app/music"
	"melodyhub/internal/app/users"
	"melodyhub/internal/auth"
	"melodyhub/internal/config"
	"melodyhub/internal/store"
	"melodyhub/internal/store/storetest"
)

func TestEnsureAccountsIsIdempotent(t *testing.T) {
	m := storetest.Open(t)
	ctx := context.Background()
	cfg := config.BootstrapConfig{AdminEmail: "root@x.com", AdminPassword: "s3cret"}

	for i := 0; i < 2; i++ {
		err := m.Transaction(ctx, func(ctx context.Context, tx *store.Session) error {
			return ensureAccounts(ctx, tx, cfg)
		})
		require.NoError(t, err)
	}

	err := m.Session(ctx, func(ctx context.Context, s *store.Session) error {
		roles, err := store.Roles.Count(ctx, s, nil)
		require.NoError(t, err)
		require.EqualValues(t, 2, roles)

		admin, err := store.Users.FindOne(ctx, s, store.Filter{"email": "root@x.com"})
		require.NoError(t, err)
		require.True(t, auth.CheckPassword(admin.PasswordHash, "s3cret"))

		role, err := store.Roles.FindByID(ctx, s, *admin.RoleID)
		require.NoError(t, err)
		require.Equal(t, auth.AdminRole, role.Name)
		return nil
	})
	require.NoError(t, err)
}

func TestEnsureAccountsNormalizesAdminEmail(t *testing.T) {
	m := storetest.Open(t)
	ctx := context.Background()

	for _, email := range []string{"Admin@Example.com", " ADMIN@example.COM "} {
		cfg := config.BootstrapConfig{AdminEmail: email, AdminPassword: "s3cret"}
		err := m.Transaction(ctx, func(ctx context.Context, tx *store.Session) error {
			return ensureAccounts(ctx, tx, cfg)
		})
		require.NoError(t, err)
	}

	err := m.Session(ctx, func(ctx context.Context, s *store.Session) error {
		n, err := store.Users.Count(ctx, s, nil)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
		return nil
	})
	require.NoError(t, err)

	svc := users.New(m, auth.NewTokens("secret", time.Hour), nil, users.Config{})
	res, err := svc.Login(ctx, "Admin@Example.com", "s3cret")
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
}

func TestSeedCatalog(t *testing.T) {
	m := storetest.Open(t)
	ctx := context.Background()

	var first, second int
	err := m.Transaction(ctx, func(ctx context.Context, tx *store.Session) error {
		var err error
		first, err = seedCatalog(ctx, tx)
		return err
	})
	require.NoError(t, err)
	require.Positive(t, first)

	err = m.Transaction(ctx, func(ctx context.Context, tx *store.Session) error {
		var err error
		second, err = seedCatalog(ctx, tx)
		return err
	})
	require.NoError(t, err)
	require.Zero(t, second)

	found, err := music.New(m).SearchSongs(ctx, "moon")
	require.NoError(t, err)
	titles := make([]string, len(found))
	for i, s := range found {
		titles[i] = s.Title
	}
	require.ElementsMatch(t, []string{"Pink Moon", "Harvest Moon", "Clair de Lune (Moonlight)"}, titles)
}

func TestSeedDryRunLeavesNothing(t *testing.T) {
	m := storetest.Open(t)
	ctx := context.Background()

	opts := store.RunOptions{Isolation: sql.LevelSerializable}
	err := m.Run(ctx, opts, func(ctx context.Context, tx *store.Session) error {
		if err := ensureAccounts(ctx, tx, config.BootstrapConfig{}); err != nil {
			return err
		}
		_, err := seedCatalog(ctx, tx)
		return err
	})
	require.NoError(t, err)

	err = m.Session(ctx, func(ctx context.Context, s *store.Session) error {
		for _, count := range []func() (int64, error){
			func() (int64, error) { return store.Roles.Count(ctx, s, nil) },
			func() (int64, error) { return store.Artists.Count(ctx, s, nil) },
			func() (int64, error) { return store.Songs.Count(ctx, s, nil) },
		} {
			n, err := count()
			require.NoError(t, err)
			require.Zero(t, n)
		}
		return nil
	})
	require.NoError(t, err)
}
