package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"melodyhub/internal/models"
	"melodyhub/internal/store"
	"melodyhub/internal/store/storetest"
)

func strPtr(s string) *string { return &s }

func seedArtist(t *testing.T, m *store.Manager, name string) models.Artist {
	t.Helper()
	var artist *models.Artist
	err := m.Transaction(context.Background(), func(ctx context.Context, s *store.Session) error {
		var err error
		artist, err = store.Artists.Add(ctx, s, store.Values{"name": name, "bio": "bio of " + name})
		return err
	})
	require.NoError(t, err)
	return *artist
}

func countArtists(t *testing.T, m *store.Manager, filter store.Filter) int64 {
	t.Helper()
	var n int64
	err := m.Session(context.Background(), func(ctx context.Context, s *store.Session) error {
		var err error
		n, err = store.Artists.Count(ctx, s, filter)
		return err
	})
	require.NoError(t, err)
	return n
}

func TestRepository_AddFindByIDRoundTrip(t *testing.T) {
	m := storetest.Open(t)
	ctx := context.Background()
	playedAt := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	err := m.Transaction(ctx, func(ctx context.Context, s *store.Session) error {
		role, err := store.Roles.Add(ctx, s, store.Values{"name": "admin"})
		require.NoError(t, err)
		gotRole, err := store.Roles.FindByID(ctx, s, role.ID)
		require.NoError(t, err)
		require.Equal(t, "admin", gotRole.Name)

		user, err := store.Users.Add(ctx, s, store.Values{
			"email":         "a@x.com",
			"password_hash": "hash",
			"first_name":    "Ada",
			"last_name":     "Lovelace",
			"phone_number":  "555",
			"role_id":       role.ID,
		})
		require.NoError(t, err)
		gotUser, err := store.Users.FindByID(ctx, s, user.ID)
		require.NoError(t, err)
		require.Equal(t, "a@x.com", gotUser.Email)
		require.Equal(t, "hash", gotUser.PasswordHash)
		require.Equal(t, "Ada", gotUser.FirstName)
		require.Nil(t, gotUser.AvatarURL)
		require.NotNil(t, gotUser.RoleID)
		require.Equal(t, role.ID, *gotUser.RoleID)
		require.False(t, gotUser.CreatedAt.IsZero())

		artist, err := store.Artists.Add(ctx, s, store.Values{"name": "Nils Frahm", "image_url": strPtr("http://img/nils")})
		require.NoError(t, err)
		gotArtist, err := store.Artists.FindByID(ctx, s, artist.ID)
		require.NoError(t, err)
		require.Equal(t, artist.Name, gotArtist.Name)
		require.Equal(t, "http://img/nils", *gotArtist.ImageURL)
		require.True(t, artist.CreatedAt.Equal(gotArtist.CreatedAt))

		song, err := store.Songs.Add(ctx, s, store.Values{"title": "Says", "duration": 499, "artist_id": artist.ID})
		require.NoError(t, err)
		gotSong, err := store.Songs.FindByID(ctx, s, song.ID)
		require.NoError(t, err)
		require.Equal(t, "Says", gotSong.Title)
		require.Equal(t, 499, gotSong.Duration)
		require.Equal(t, artist.ID, gotSong.ArtistID)

		playlist, err := store.Playlists.Add(ctx, s, store.Values{"name": "Focus", "user_id": user.ID})
		require.NoError(t, err)
		gotPlaylist, err := store.Playlists.FindByID(ctx, s, playlist.ID)
		require.NoError(t, err)
		require.Equal(t, "Focus", gotPlaylist.Name)
		require.Nil(t, gotPlaylist.Description)
		require.Equal(t, user.ID, gotPlaylist.UserID)

		member, err := store.PlaylistSongs.Add(ctx, s, store.Values{"playlist_id": playlist.ID, "song_id": song.ID, "added_at": playedAt})
		require.NoError(t, err)
		gotMember, err := store.PlaylistSongs.FindByID(ctx, s, member.ID)
		require.NoError(t, err)
		require.True(t, playedAt.Equal(gotMember.AddedAt), "added_at = %v", gotMember.AddedAt)

		play, err := store.RecentlyPlayed.Add(ctx, s, store.Values{"user_id": user.ID, "song_id": song.ID, "played_at": playedAt})
		require.NoError(t, err)
		gotPlay, err := store.RecentlyPlayed.FindByID(ctx, s, play.ID)
		require.NoError(t, err)
		require.Equal(t, song.ID, gotPlay.SongID)
		require.True(t, playedAt.Equal(gotPlay.PlayedAt), "played_at = %v", gotPlay.PlayedAt)
		return nil
	})
	require.NoError(t, err)
}

func TestRepository_FindByIDNotFound(t *testing.T) {
	m := storetest.Open(t)
	err := m.Session(context.Background(), func(ctx context.Context, s *store.Session) error {
		_, err := store.Songs.FindByID(ctx, s, 999)
		return err
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRepository_UpdateRejectsUnsetCriteria(t *testing.T) {
	m := storetest.Open(t)
	seedArtist(t, m, "Bonobo")
	seedArtist(t, m, "Burial")

	err := m.Transaction(context.Background(), func(ctx context.Context, s *store.Session) error {
		_, err := store.Artists.Update(ctx, s, store.Filter{"id": (*int64)(nil)}, store.Values{"bio": "oops"})
		return err
	})
	require.ErrorIs(t, err, store.ErrEmptyFilter)
	require.Zero(t, countArtists(t, m, store.Filter{"bio": "oops"}))
}

func TestRepository_DeleteRejectsEmptyFilter(t *testing.T) {
	m := storetest.Open(t)
	seedArtist(t, m, "Bonobo")
	seedArtist(t, m, "Burial")

	tests := []struct {
		name   string
		filter store.Filter
	}{
		{name: "nil filter", filter: nil},
		{name: "empty filter", filter: store.Filter{}},
		{name: "only unset criteria", filter: store.Filter{"name": (*string)(nil), "bio": nil}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := m.Transaction(context.Background(), func(ctx context.Context, s *store.Session) error {
				_, err := store.Artists.Delete(ctx, s, tc.filter)
				return err
			})
			require.ErrorIs(t, err, store.ErrEmptyFilter)
			require.EqualValues(t, 2, countArtists(t, m, nil))
		})
	}
}

func TestRepository_Delete(t *testing.T) {
	m := storetest.Open(t)
	seedArtist(t, m, "Bonobo")
	seedArtist(t, m, "Burial")

	var n int64
	err := m.Transaction(context.Background(), func(ctx context.Context, s *store.Session) error {
		var err error
		n, err = store.Artists.Delete(ctx, s, store.Filter{"name": "Burial"})
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.EqualValues(t, 1, countArtists(t, m, nil))
}

func TestRepository_UpdateReturnsMatchCount(t *testing.T) {
	m := storetest.Open(t)
	ctx := context.Background()
	a := seedArtist(t, m, "Bonobo")
	b := seedArtist(t, m, "Burial")
	seedArtist(t, m, "Caribou")

	err := m.Transaction(ctx, func(ctx context.Context, s *store.Session) error {
		_, err := store.Artists.Update(ctx, s, store.Filter{"name": "Bonobo"}, store.Values{"bio": "shared"})
		require.NoError(t, err)
		_, err = store.Artists.Update(ctx, s, store.Filter{"name": "Burial"}, store.Values{"bio": "shared"})
		return err
	})
	require.NoError(t, err)

	before := countArtists(t, m, store.Filter{"bio": "shared"})

	var n int64
	err = m.Transaction(ctx, func(ctx context.Context, s *store.Session) error {
		var err error
		n, err = store.Artists.Update(ctx, s, store.Filter{"bio": "shared"}, store.Values{"bio": "updated", "image_url": strPtr("http://img")})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, before, n)
	require.EqualValues(t, 2, n)

	err = m.Session(ctx, func(ctx context.Context, s *store.Session) error {
		got, err := store.Artists.FindByIDs(ctx, s, []int64{a.ID, b.ID})
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, artist := range got {
			require.Equal(t, "updated", artist.Bio)
			require.Equal(t, "http://img", *artist.ImageURL)
		}

		none, err := store.Artists.Update(ctx, s, store.Filter{"name": "Nobody"}, store.Values{"bio": "x"})
		require.NoError(t, err)
		require.Zero(t, none)
		return nil
	})
	require.NoError(t, err)
}

func TestRepository_Paginate(t *testing.T) {
	m := storetest.Open(t)
	ctx := context.Background()

	err := m.Session(ctx, func(ctx context.Context, s *store.Session) error {
		empty, err := store.Artists.Paginate(ctx, s, 1, 10, nil)
		require.NoError(t, err)
		require.Empty(t, empty)
		return nil
	})
	require.NoError(t, err)

	for i := 1; i <= 25; i++ {
		seedArtist(t, m, fmt.Sprintf("artist-%02d", i))
	}

	err = m.Session(ctx, func(ctx context.Context, s *store.Session) error {
		page, err := store.Artists.Paginate(ctx, s, 2, 10, nil)
		require.NoError(t, err)
		require.Len(t, page, 10)
		for i, a := range page {
			require.Equal(t, fmt.Sprintf("artist-%02d", i+11), a.Name)
		}

		last, err := store.Artists.Paginate(ctx, s, 3, 10, nil)
		require.NoError(t, err)
		require.Len(t, last, 5)

		filtered, err := store.Artists.Paginate(ctx, s, 1, 10, store.Filter{"name": "nobody"})
		require.NoError(t, err)
		require.Empty(t, filtered)

		_, err = store.Artists.Paginate(ctx, s, 0, 10, nil)
		require.ErrorIs(t, err, store.ErrInvalidPage)
		return nil
	})
	require.NoError(t, err)
}

func TestRepository_FindAllOptions(t *testing.T) {
	m := storetest.Open(t)
	ctx := context.Background()
	artist := seedArtist(t, m, "Massive Attack")

	err := m.Transaction(ctx, func(ctx context.Context, s *store.Session) error {
		for _, title := range []string{"Angel", "Teardrop", "Inertia Creeps"} {
			if _, err := store.Songs.Add(ctx, s, store.Values{"title": title, "duration": 300, "artist_id": artist.ID}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = m.Session(ctx, func(ctx context.Context, s *store.Session) error {
		songs, err := store.Songs.FindAll(ctx, s, store.Filter{"artist_id": artist.ID}, store.OrderBy("title", store.Desc), store.Limit(2))
		require.NoError(t, err)
		require.Len(t, songs, 2)
		require.Equal(t, "Teardrop", songs[0].Title)
		require.Equal(t, "Inertia Creeps", songs[1].Title)

		all, err := store.Songs.FindAll(ctx, s, nil)
		require.NoError(t, err)
		require.Len(t, all, 3)
		require.Equal(t, "Angel", all[0].Title)

		none, err := store.Songs.FindAll(ctx, s, store.Filter{"image_url": store.Null, "title": "Nope"})
		require.NoError(t, err)
		require.Empty(t, none)

		nulls, err := store.Songs.Count(ctx, s, store.Filter{"image_url": store.Null})
		require.NoError(t, err)
		require.EqualValues(t, 3, nulls)
		return nil
	})
	require.NoError(t, err)
}

func TestRepository_ContainsIgnoresCase(t *testing.T) {
	m := storetest.Open(t)
	ctx := context.Background()
	artist := seedArtist(t, m, "Various")

	err := m.Transaction(ctx, func(ctx context.Context, s *store.Session) error {
		_, err := store.Songs.AddMany(ctx, s, []store.Values{
			{"title": "Moonlight", "duration": 200, "artist_id": artist.ID},
			{"title": "Harvest Moon", "duration": 300, "artist_id": artist.ID},
			{"title": "Sunlight", "duration": 250, "artist_id": artist.ID},
			{"title": "100% Moon_ish", "duration": 250, "artist_id": artist.ID},
		})
		return err
	})
	require.NoError(t, err)

	err = m.Session(ctx, func(ctx context.Context, s *store.Session) error {
		got, err := store.Songs.FindAll(ctx, s, store.Filter{"title": store.Contains("MOON")})
		require.NoError(t, err)
		titles := make([]string, 0, len(got))
		for _, song := range got {
			titles = append(titles, song.Title)
		}
		require.ElementsMatch(t, []string{"Moonlight", "Harvest Moon", "100% Moon_ish"}, titles)

		literal, err := store.Songs.FindAll(ctx, s, store.Filter{"title": store.Contains("% moon_")})
		require.NoError(t, err)
		require.Len(t, literal, 1)
		require.Equal(t, "100% Moon_ish", literal[0].Title)
		return nil
	})
	require.NoError(t, err)
}

func TestRepository_FindOneReturnsFirstMatch(t *testing.T) {
	m := storetest.Open(t)
	ctx := context.Background()
	first := seedArtist(t, m, "Air")
	seedArtist(t, m, "Autechre")

	err := m.Transaction(ctx, func(ctx context.Context, s *store.Session) error {
		_, err := store.Artists.Update(ctx, s, nil, store.Values{"bio": "electronic"})
		return err
	})
	require.NoError(t, err)

	err = m.Session(ctx, func(ctx context.Context, s *store.Session) error {
		got, err := store.Artists.FindOne(ctx, s, store.Filter{"bio": "electronic"})
		require.NoError(t, err)
		require.Equal(t, first.ID, got.ID)

		_, err = store.Artists.FindOne(ctx, s, store.Filter{"bio": "jazz"})
		require.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestRepository_Upsert(t *testing.T) {
	m := storetest.Open(t)
	ctx := context.Background()

	var inserted, updated *models.Artist
	err := m.Transaction(ctx, func(ctx context.Context, s *store.Session) error {
		var err error
		inserted, err = store.Artists.Upsert(ctx, s, []string{"name"}, store.Values{"name": "Portishead", "bio": "Bristol"})
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, countArtists(t, m, store.Filter{"name": "Portishead"}))

	err = m.Transaction(ctx, func(ctx context.Context, s *store.Session) error {
		var err error
		updated, err = store.Artists.Upsert(ctx, s, []string{"name"}, store.Values{"name": "Portishead", "bio": "Trip hop from Bristol"})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, inserted.ID, updated.ID)
	require.Equal(t, "Trip hop from Bristol", updated.Bio)
	require.EqualValues(t, 1, countArtists(t, m, store.Filter{"name": "Portishead"}))

	err = m.Transaction(ctx, func(ctx context.Context, s *store.Session) error {
		_, err := store.Artists.Upsert(ctx, s, []string{"name"}, store.Values{"bio": "no key"})
		return err
	})
	require.ErrorIs(t, err, store.ErrEmptyFilter)
}

func TestRepository_AddManyIsAllOrNothing(t *testing.T) {
	m := storetest.Open(t)
	ctx := context.Background()

	err := m.Session(ctx, func(ctx context.Context, s *store.Session) error {
		_, err := store.Artists.AddMany(ctx, s, []store.Values{
			{"name": "Aphex Twin"},
			{"name": "Boards of Canada"},
			{"name": "Aphex Twin"},
		})
		require.ErrorIs(t, err, store.ErrConflict)

		var se *store.Error
		require.True(t, errors.As(err, &se))
		require.Equal(t, "artist", se.Entity)

		// The plain session stays usable after the batch rolled back.
		n, err := store.Artists.Count(ctx, s, nil)
		require.NoError(t, err)
		require.Zero(t, n)

		added, err := store.Artists.AddMany(ctx, s, []store.Values{{"name": "Aphex Twin"}, {"name": "Boards of Canada"}})
		require.NoError(t, err)
		require.Len(t, added, 2)
		return nil
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, countArtists(t, m, nil))
}

func TestRepository_BulkUpdate(t *testing.T) {
	m := storetest.Open(t)
	ctx := context.Background()
	a := seedArtist(t, m, "Four Tet")
	b := seedArtist(t, m, "Floating Points")

	var total int64
	err := m.Transaction(ctx, func(ctx context.Context, s *store.Session) error {
		var err error
		total, err = store.Artists.BulkUpdate(ctx, s, []store.Values{
			{"id": a.ID, "bio": "Kieran Hebden"},
			{"id": b.ID, "bio": "Sam Shepherd"},
			{"id": int64(999), "bio": "missing"},
		})
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	err = m.Session(ctx, func(ctx context.Context, s *store.Session) error {
		got, err := store.Artists.FindByID(ctx, s, b.ID)
		require.NoError(t, err)
		require.Equal(t, "Sam Shepherd", got.Bio)
		require.True(t, !got.UpdatedAt.Before(got.CreatedAt))

		_, err = store.Artists.BulkUpdate(ctx, s, []store.Values{{"bio": "no id"}})
		require.ErrorIs(t, err, store.ErrMissingKey)
		return nil
	})
	require.NoError(t, err)
}

func TestRepository_RejectsUnknownFields(t *testing.T) {
	m := storetest.Open(t)
	ctx := context.Background()

	err := m.Session(ctx, func(ctx context.Context, s *store.Session) error {
		_, err := store.Artists.FindAll(ctx, s, store.Filter{"name; DROP TABLE artists": "x"})
		require.ErrorIs(t, err, store.ErrUnknownField)

		_, err = store.Artists.Add(ctx, s, store.Values{"id": int64(7), "name": "Keyed"})
		require.ErrorIs(t, err, store.ErrUnknownField)

		_, err = store.Artists.FindAll(ctx, s, nil, store.OrderBy("popularity", store.Desc))
		require.ErrorIs(t, err, store.ErrUnknownField)
		return nil
	})
	require.NoError(t, err)
}

func TestRepository_ForeignKeyViolation(t *testing.T) {
	m := storetest.Open(t)
	err := m.Transaction(context.Background(), func(ctx context.Context, s *store.Session) error {
		_, err := store.Songs.Add(ctx, s, store.Values{"title": "Orphan", "duration": 10, "artist_id": int64(42)})
		return err
	})
	require.ErrorIs(t, err, store.ErrForeignKey)
}
