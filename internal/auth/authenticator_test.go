package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"melodyhub/internal/auth"
	"melodyhub/internal/models"
	"melodyhub/internal/store"
	"melodyhub/internal/store/storetest"
)

const secret = "0123456789abcdef0123"

type fixture struct {
	db    *store.Manager
	admin *models.User
	user  *models.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{db: storetest.Open(t)}
	err := f.db.Transaction(context.Background(), func(ctx context.Context, s *store.Session) error {
		adminRole, err := store.Roles.Add(ctx, s, store.Values{"name": auth.AdminRole})
		if err != nil {
			return err
		}
		userRole, err := store.Roles.Add(ctx, s, store.Values{"name": "user"})
		if err != nil {
			return err
		}
		f.user, err = store.Users.Add(ctx, s, store.Values{"email": "u@x.com", "password_hash": "h", "role_id": userRole.ID})
		if err != nil {
			return err
		}
		f.admin, err = store.Users.Add(ctx, s, store.Values{"email": "admin@x.com", "password_hash": "h", "role_id": adminRole.ID})
		return err
	})
	require.NoError(t, err)
	return f
}

func TestAuthenticator_CurrentUser(t *testing.T) {
	f := newFixture(t)
	tokens := auth.NewTokens(secret, time.Hour)
	a := auth.NewAuthenticator(tokens, f.db, auth.Options{})
	ctx := context.Background()

	token, _, err := tokens.Issue(f.user.ID)
	require.NoError(t, err)

	got, err := a.CurrentUser(ctx, token)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, got.ID)

	_, err = a.CurrentUser(ctx, "")
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	_, err = a.CurrentUser(ctx, "junk")
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	ghost, _, err := tokens.Issue(9999)
	require.NoError(t, err)
	_, err = a.CurrentUser(ctx, ghost)
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestAuthenticator_RequireAdmin(t *testing.T) {
	f := newFixture(t)
	a := auth.NewAuthenticator(auth.NewTokens(secret, time.Hour), f.db, auth.Options{})
	ctx := context.Background()

	require.NoError(t, a.RequireAdmin(ctx, f.admin))

	err := a.RequireAdmin(ctx, f.user)
	require.ErrorIs(t, err, auth.ErrForbidden)
	require.True(t, errors.Is(err, auth.ErrUnauthorized))

	require.ErrorIs(t, a.RequireAdmin(ctx, &models.User{ID: 5}), auth.ErrForbidden)
	require.ErrorIs(t, a.RequireAdmin(ctx, nil), auth.ErrUnauthorized)
}

func TestAuthenticator_DisableAuthResolvesAdmin(t *testing.T) {
	f := newFixture(t)
	a := auth.NewAuthenticator(auth.NewTokens(secret, time.Hour), f.db, auth.Options{DisableAuth: true})

	got, err := a.CurrentUser(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, f.admin.ID, got.ID)
}

func TestAuthenticator_DisableAuthWithoutAdmin(t *testing.T) {
	a := auth.NewAuthenticator(auth.NewTokens(secret, time.Hour), storetest.Open(t), auth.Options{DisableAuth: true})

	_, err := a.CurrentUser(context.Background(), "")
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}
