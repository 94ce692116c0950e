// Package music implements playlists, listening history and the song catalog.
package music

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"melodyhub/internal/models"
	"melodyhub/internal/store"
)

var (
	// ErrInvalidInput signals a request that fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is the root of every lookup failure in this package.
	ErrNotFound = errors.New("not found")
	// ErrSongNotFound is returned when a referenced song does not exist.
	ErrSongNotFound = fmt.Errorf("%w: song", ErrNotFound)
	// ErrPlaylistNotFound covers playlists that do not exist or belong to someone else.
	ErrPlaylistNotFound = fmt.Errorf("%w: playlist", ErrNotFound)
	// ErrArtistNotFound is returned for unknown artists.
	ErrArtistNotFound = fmt.Errorf("%w: artist", ErrNotFound)
	// ErrAlreadyInPlaylist is returned when a song is added twice.
	ErrAlreadyInPlaylist = errors.New("song already in playlist")
)

const (
	DefaultRecentLimit = 5
	MaxRecentLimit     = 50
	DefaultPageSize    = 20
	MaxPageSize        = 100
)

// PlaylistInput is the create-playlist form.
type PlaylistInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
}

// ArtistInput describes an artist keyed by name.
type ArtistInput struct {
	Name     string  `json:"name"`
	Bio      string  `json:"bio"`
	ImageURL *string `json:"image_url"`
}

// SongInput describes a new song.
type SongInput struct {
	Title    string  `json:"title"`
	Duration int     `json:"duration"`
	ImageURL *string `json:"image_url"`
	ArtistID int64   `json:"artist_id"`
}

// SongUpdate patches one song. Nil fields are left unchanged.
type SongUpdate struct {
	ID       int64   `json:"id"`
	Title    *string `json:"title"`
	Duration *int    `json:"duration"`
	ImageURL *string `json:"image_url"`
	ArtistID *int64  `json:"artist_id"`
}

// Page is one page of a catalog listing.
type Page[T any] struct {
	Items    []T   `json:"items"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// Service exposes the music workflows.
type Service interface {
	ListPlaylists(ctx context.Context, userID int64) ([]models.Playlist, error)
	CreatePlaylist(ctx context.Context, userID int64, in PlaylistInput) (*models.Playlist, error)
	GetPlaylist(ctx context.Context, userID, playlistID int64) (*models.PlaylistWithSongs, error)
	DeletePlaylist(ctx context.Context, userID, playlistID int64) error
	AddSongToPlaylist(ctx context.Context, userID, playlistID, songID int64) error
	RemoveSongFromPlaylist(ctx context.Context, userID, playlistID, songID int64) error

	RecentlyPlayed(ctx context.Context, userID int64, limit int) ([]models.RecentlyPlayedEntry, error)
	AddRecentlyPlayed(ctx context.Context, userID, songID int64) error

	SearchSongs(ctx context.Context, query string) ([]models.SongWithArtist, error)
	ListArtists(ctx context.Context, page, pageSize int) (Page[models.Artist], error)
	GetArtist(ctx context.Context, id int64) (*models.ArtistWithSongs, error)
	ListSongs(ctx context.Context, page, pageSize int) (Page[models.SongWithArtist], error)
	UpsertArtist(ctx context.Context, in ArtistInput) (*models.Artist, error)
	AddSongs(ctx context.Context, in []SongInput) ([]models.Song, error)
	UpdateSongs(ctx context.Context, in []SongUpdate) (int64, error)
}

// Option customises a Service.
type Option func(*service)

// WithClock overrides the time source used for play and membership timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

type service struct {
	db  *store.Manager
	now func() time.Time
}

// New constructs a Service on top of the session manager.
func New(db *store.Manager, opts ...Option) Service {
	s := &service{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) ListPlaylists(ctx context.Context, userID int64) ([]models.Playlist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.Playlist
	err := s.db.Session(ctx, func(ctx context.Context, sess *store.Session) error {
		var err error
		out, err = store.Playlists.FindAll(ctx, sess, store.Filter{"user_id": userID})
		return err
	})
	return out, err
}

func (s *service) CreatePlaylist(ctx context.Context, userID int64, in PlaylistInput) (*models.Playlist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	var created *models.Playlist
	err := s.db.Transaction(ctx, func(ctx context.Context, tx *store.Session) error {
		var err error
		created, err = store.Playlists.Add(ctx, tx, store.Values{
			"name":        in.Name,
			"description": in.Description,
			"image_url":   in.ImageURL,
			"user_id":     userID,
		})
		if errors.Is(err, store.ErrForeignKey) {
			return fmt.Errorf("%w: unknown user", ErrInvalidInput)
		}
		return err
	})
	return created, err
}

// ownedPlaylist hides other users' playlists behind ErrPlaylistNotFound.
func ownedPlaylist(ctx context.Context, sess *store.Session, userID, playlistID int64) (*models.Playlist, error) {
	p, err := store.Playlists.FindOne(ctx, sess, store.Filter{"id": playlistID, "user_id": userID})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPlaylistNotFound
	}
	return p, err
}

func (s *service) GetPlaylist(ctx context.Context, userID, playlistID int64) (*models.PlaylistWithSongs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *models.PlaylistWithSongs
	err := s.db.Session(ctx, func(ctx context.Context, sess *store.Session) error {
		p, err := ownedPlaylist(ctx, sess, userID, playlistID)
		if err != nil {
			return err
		}
		members, err := store.PlaylistSongs.FindAll(ctx, sess, store.Filter{"playlist_id": p.ID},
			store.OrderBy("added_at", store.Asc), store.OrderBy("id", store.Asc))
		if err != nil {
			return err
		}

		ids := make([]int64, len(members))
		for i, m := range members {
			ids[i] = m.SongID
		}
		songs, err := songsByID(ctx, sess, ids)
		if err != nil {
			return err
		}

		out = &models.PlaylistWithSongs{Playlist: *p, Songs: make([]models.PlaylistEntry, 0, len(members))}
		for _, m := range members {
			if song, ok := songs[m.SongID]; ok {
				out.Songs = append(out.Songs, models.PlaylistEntry{SongWithArtist: song, AddedAt: m.AddedAt})
			}
		}
		return nil
	})
	return out, err
}

func (s *service) DeletePlaylist(ctx context.Context, userID, playlistID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Transaction(ctx, func(ctx context.Context, tx *store.Session) error {
		p, err := ownedPlaylist(ctx, tx, userID, playlistID)
		if err != nil {
			return err
		}
		if _, err := store.PlaylistSongs.Delete(ctx, tx, store.Filter{"playlist_id": p.ID}); err != nil {
			return err
		}
		_, err = store.Playlists.Delete(ctx, tx, store.Filter{"id": p.ID})
		return err
	})
}

func (s *service) AddSongToPlaylist(ctx context.Context, userID, playlistID, songID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Transaction(ctx, func(ctx context.Context, tx *store.Session) error {
		p, err := ownedPlaylist(ctx, tx, userID, playlistID)
		if err != nil {
			return err
		}
		if _, err := store.Songs.FindByID(ctx, tx, songID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrSongNotFound
			}
			return err
		}
		_, err = store.PlaylistSongs.Add(ctx, tx, store.Values{
			"playlist_id": p.ID,
			"song_id":     songID,
			"added_at":    s.now().UTC(),
		})
		if errors.Is(err, store.ErrConflict) {
			return ErrAlreadyInPlaylist
		}
		return err
	})
}

func (s *service) RemoveSongFromPlaylist(ctx context.Context, userID, playlistID, songID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Transaction(ctx, func(ctx context.Context, tx *store.Session) error {
		p, err := ownedPlaylist(ctx, tx, userID, playlistID)
		if err != nil {
			return err
		}
		n, err := store.PlaylistSongs.Delete(ctx, tx, store.Filter{"playlist_id": p.ID, "song_id": songID})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrSongNotFound
		}
		return nil
	})
}

func (s *service) RecentlyPlayed(ctx context.Context, userID int64, limit int) ([]models.RecentlyPlayedEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}

	var out []models.RecentlyPlayedEntry
	err := s.db.Session(ctx, func(ctx context.Context, sess *store.Session) error {
		plays, err := store.RecentlyPlayed.FindAll(ctx, sess, store.Filter{"user_id": userID},
			store.OrderBy("played_at", store.Desc), store.OrderBy("id", store.Desc), store.Limit(limit))
		if err != nil {
			return err
		}

		ids := make([]int64, len(plays))
		for i, p := range plays {
			ids[i] = p.SongID
		}
		songs, err := songsByID(ctx, sess, ids)
		if err != nil {
			return err
		}

		out = make([]models.RecentlyPlayedEntry, 0, len(plays))
		for _, p := range plays {
			if song, ok := songs[p.SongID]; ok {
				out = append(out, models.RecentlyPlayedEntry{Song: song, PlayedAt: p.PlayedAt})
			}
		}
		return nil
	})
	return out, err
}

func (s *service) AddRecentlyPlayed(ctx context.Context, userID, songID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Transaction(ctx, func(ctx context.Context, tx *store.Session) error {
		if _, err := store.Songs.FindByID(ctx, tx, songID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrSongNotFound
			}
			return err
		}
		_, err := store.RecentlyPlayed.Add(ctx, tx, store.Values{
			"user_id":   userID,
			"song_id":   songID,
			"played_at": s.now().UTC(),
		})
		return err
	})
}

func (s *service) SearchSongs(ctx context.Context, query string) ([]models.SongWithArtist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.SongWithArtist{}, nil
	}

	var out []models.SongWithArtist
	err := s.db.Session(ctx, func(ctx context.Context, sess *store.Session) error {
		songs, err := store.Songs.FindAll(ctx, sess, store.Filter{"title": store.Contains(query)},
			store.OrderBy("title", store.Asc), store.OrderBy("id", store.Asc))
		if err != nil {
			return err
		}
		out, err = withArtists(ctx, sess, songs)
		return err
	})
	return out, err
}

func pageBounds(page, size int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = DefaultPageSize
	}
	if page < 0 || size < 0 {
		return 0, 0, fmt.Errorf("%w: page and page_size must be positive", ErrInvalidInput)
	}
	return page, min(size, MaxPageSize), nil
}

func (s *service) ListArtists(ctx context.Context, page, pageSize int) (Page[models.Artist], error) {
	if err := ctx.Err(); err != nil {
		return Page[models.Artist]{}, err
	}
	page, pageSize, err := pageBounds(page, pageSize)
	if err != nil {
		return Page[models.Artist]{}, err
	}

	out := Page[models.Artist]{Page: page, PageSize: pageSize}
	err = s.db.Session(ctx, func(ctx context.Context, sess *store.Session) error {
		var err error
		if out.Total, err = store.Artists.Count(ctx, sess, nil); err != nil {
			return err
		}
		out.Items, err = store.Artists.Paginate(ctx, sess, page, pageSize, nil)
		return err
	})
	return out, err
}

func (s *service) GetArtist(ctx context.Context, id int64) (*models.ArtistWithSongs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *models.ArtistWithSongs
	err := s.db.Session(ctx, func(ctx context.Context, sess *store.Session) error {
		artist, err := store.Artists.FindByID(ctx, sess, id)
		if errors.Is(err, store.ErrNotFound) {
			return ErrArtistNotFound
		}
		if err != nil {
			return err
		}
		songs, err := store.Songs.FindAll(ctx, sess, store.Filter{"artist_id": artist.ID})
		if err != nil {
			return err
		}
		out = &models.ArtistWithSongs{Artist: *artist, Songs: songs}
		return nil
	})
	return out, err
}

func (s *service) ListSongs(ctx context.Context, page, pageSize int) (Page[models.SongWithArtist], error) {
	if err := ctx.Err(); err != nil {
		return Page[models.SongWithArtist]{}, err
	}
	page, pageSize, err := pageBounds(page, pageSize)
	if err != nil {
		return Page[models.SongWithArtist]{}, err
	}

	out := Page[models.SongWithArtist]{Page: page, PageSize: pageSize}
	err = s.db.Session(ctx, func(ctx context.Context, sess *store.Session) error {
		var err error
		if out.Total, err = store.Songs.Count(ctx, sess, nil); err != nil {
			return err
		}
		songs, err := store.Songs.Paginate(ctx, sess, page, pageSize, nil)
		if err != nil {
			return err
		}
		out.Items, err = withArtists(ctx, sess, songs)
		return err
	})
	return out, err
}

func (s *service) UpsertArtist(ctx context.Context, in ArtistInput) (*models.Artist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	values := store.Values{"name": in.Name, "bio": in.Bio}
	if in.ImageURL != nil {
		values["image_url"] = *in.ImageURL
	}

	var artist *models.Artist
	err := s.db.Transaction(ctx, func(ctx context.Context, tx *store.Session) error {
		var err error
		artist, err = store.Artists.Upsert(ctx, tx, []string{"name"}, values)
		return err
	})
	return artist, err
}

func (s *service) AddSongs(ctx context.Context, in []SongInput) ([]models.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: no songs given", ErrInvalidInput)
	}

	records := make([]store.Values, len(in))
	for i, song := range in {
		title := strings.TrimSpace(song.Title)
		switch {
		case title == "":
			return nil, fmt.Errorf("%w: song %d: title is required", ErrInvalidInput, i)
		case song.Duration <= 0:
			return nil, fmt.Errorf("%w: song %d: duration must be positive", ErrInvalidInput, i)
		case song.ArtistID <= 0:
			return nil, fmt.Errorf("%w: song %d: artist_id is required", ErrInvalidInput, i)
		}
		records[i] = store.Values{
			"title":     title,
			"duration":  song.Duration,
			"image_url": song.ImageURL,
			"artist_id": song.ArtistID,
		}
	}

	var songs []models.Song
	err := s.db.Transaction(ctx, func(ctx context.Context, tx *store.Session) error {
		var err error
		songs, err = store.Songs.AddMany(ctx, tx, records)
		if errors.Is(err, store.ErrForeignKey) {
			return ErrArtistNotFound
		}
		return err
	})
	return songs, err
}

func (s *service) UpdateSongs(ctx context.Context, in []SongUpdate) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	records := make([]store.Values, 0, len(in))
	for i, u := range in {
		if u.ID <= 0 {
			return 0, fmt.Errorf("%w: update %d: id is required", ErrInvalidInput, i)
		}
		rec := store.Values{"id": u.ID}
		if u.Title != nil {
			title := strings.TrimSpace(*u.Title)
			if title == "" {
				return 0, fmt.Errorf("%w: update %d: title must not be blank", ErrInvalidInput, i)
			}
			rec["title"] = title
		}
		if u.Duration != nil {
			if *u.Duration <= 0 {
				return 0, fmt.Errorf("%w: update %d: duration must be positive", ErrInvalidInput, i)
			}
			rec["duration"] = *u.Duration
		}
		if u.ImageURL != nil {
			rec["image_url"] = *u.ImageURL
		}
		if u.ArtistID != nil {
			rec["artist_id"] = *u.ArtistID
		}
		if len(rec) == 1 {
			return 0, fmt.Errorf("%w: update %d: nothing to change", ErrInvalidInput, i)
		}
		records = append(records, rec)
	}

	var n int64
	err := s.db.Transaction(ctx, func(ctx context.Context, tx *store.Session) error {
		var err error
		n, err = store.Songs.BulkUpdate(ctx, tx, records)
		if errors.Is(err, store.ErrForeignKey) {
			return ErrArtistNotFound
		}
		return err
	})
	return n, err
}

// songsByID loads songs with their artists, keyed by song id.
func songsByID(ctx context.Context, sess *store.Session, ids []int64) (map[int64]models.SongWithArtist, error) {
	songs, err := store.Songs.FindByIDs(ctx, sess, unique(ids))
	if err != nil {
		return nil, err
	}
	resolved, err := withArtists(ctx, sess, songs)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]models.SongWithArtist, len(resolved))
	for _, song := range resolved {
		out[song.ID] = song
	}
	return out, nil
}

func withArtists(ctx context.Context, sess *store.Session, songs []models.Song) ([]models.SongWithArtist, error) {
	ids := make([]int64, len(songs))
	for i, song := range songs {
		ids[i] = song.ArtistID
	}
	artists, err := store.Artists.FindByIDs(ctx, sess, unique(ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.ArtistSummary, len(artists))
	for _, a := range artists {
		byID[a.ID] = a.Summary()
	}

	out := make([]models.SongWithArtist, len(songs))
	for i, song := range songs {
		out[i] = models.SongWithArtist{Song: song}
		if a, ok := byID[song.ArtistID]; ok {
			out[i].Artist = &a
		}
	}
	return out, nil
}

func unique(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
