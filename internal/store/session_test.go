package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"melodyhub/internal/store"
	"melodyhub/internal/store/storetest"
)

func TestManager_TransactionRollsBackOnError(t *testing.T) {
	m := storetest.Open(t)
	boom := errors.New("boom")

	err := m.Transaction(context.Background(), func(ctx context.Context, s *store.Session) error {
		if _, err := store.Artists.Add(ctx, s, store.Values{"name": "Sigur Rós"}); err != nil {
			return err
		}
		if _, err := store.Artists.Add(ctx, s, store.Values{"name": "Múm"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Zero(t, countArtists(t, m, nil))

	stats := m.Stats()
	require.Equal(t, stats.Acquired, stats.Released)
	require.EqualValues(t, 2, stats.Acquired)
}

func TestManager_TransactionRollsBackOnPanic(t *testing.T) {
	m := storetest.Open(t)

	func() {
		defer func() {
			require.Equal(t, "kaboom", recover())
		}()
		_ = m.Transaction(context.Background(), func(ctx context.Context, s *store.Session) error {
			if _, err := store.Artists.Add(ctx, s, store.Values{"name": "Low"}); err != nil {
				return err
			}
			panic("kaboom")
		})
	}()

	require.Zero(t, countArtists(t, m, nil))
	stats := m.Stats()
	require.Equal(t, stats.Acquired, stats.Released)
}

func TestManager_TransactionCommits(t *testing.T) {
	m := storetest.Open(t)

	err := m.Transaction(context.Background(), func(ctx context.Context, s *store.Session) error {
		require.True(t, s.InTransaction())
		_, err := store.Artists.Add(ctx, s, store.Values{"name": "Stars of the Lid"})
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, countArtists(t, m, nil))
}

func TestManager_FailedWriteAbortsTransaction(t *testing.T) {
	m := storetest.Open(t)
	seedArtist(t, m, "Grouper")

	var afterFailure error
	err := m.Transaction(context.Background(), func(ctx context.Context, s *store.Session) error {
		if _, err := store.Artists.Add(ctx, s, store.Values{"name": "Tim Hecker"}); err != nil {
			return err
		}
		_, err := store.Artists.Add(ctx, s, store.Values{"name": "Grouper"})
		require.ErrorIs(t, err, store.ErrConflict)

		// Swallow the error; the unit of work must still refuse to commit.
		_, afterFailure = store.Artists.Count(ctx, s, nil)
		return nil
	})
	require.ErrorIs(t, afterFailure, store.ErrSessionAborted)
	require.ErrorIs(t, err, store.ErrSessionAborted)
	require.EqualValues(t, 1, countArtists(t, m, nil))
}

func TestManager_RunWithoutCommitRollsBack(t *testing.T) {
	m := storetest.Open(t)
	opts := store.RunOptions{Isolation: sql.LevelSerializable}

	err := m.Run(context.Background(), opts, func(ctx context.Context, s *store.Session) error {
		_, err := store.Artists.Add(ctx, s, store.Values{"name": "Eluvium"})
		return err
	})
	require.NoError(t, err)
	require.Zero(t, countArtists(t, m, nil))

	opts.Commit = true
	err = m.Run(context.Background(), opts, func(ctx context.Context, s *store.Session) error {
		_, err := store.Artists.Add(ctx, s, store.Values{"name": "Eluvium"})
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, countArtists(t, m, nil))
}

func TestManager_SessionAutocommits(t *testing.T) {
	m := storetest.Open(t)
	boom := errors.New("boom")

	err := m.Session(context.Background(), func(ctx context.Context, s *store.Session) error {
		require.False(t, s.InTransaction())
		if _, err := store.Artists.Add(ctx, s, store.Values{"name": "Hammock"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 1, countArtists(t, m, nil))
}

func TestManager_IgnoresCancellation(t *testing.T) {
	m := storetest.Open(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := m.Transaction(ctx, func(ctx context.Context, s *store.Session) error {
		if _, err := store.Artists.Add(ctx, s, store.Values{"name": "Loscil"}); err != nil {
			return err
		}
		cancel()
		_, err := store.Artists.Add(ctx, s, store.Values{"name": "Biosphere"})
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, countArtists(t, m, nil))
}
