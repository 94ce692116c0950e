package store

import "melodyhub/internal/models"

// Repositories for every persisted entity.
var (
	Roles = NewRepository(Descriptor[models.Role]{
		Entity:  "role",
		Table:   "roles",
		Key:     "id",
		Columns: []string{"id", "name", "created_at", "updated_at"},
		Fields: func(r *models.Role) []any {
			return []any{&r.ID, &r.Name, Timestamp(&r.CreatedAt), Timestamp(&r.UpdatedAt)}
		},
		Touch: "updated_at",
	})

	Users = NewRepository(Descriptor[models.User]{
		Entity: "user",
		Table:  "users",
		Key:    "id",
		Columns: []string{
			"id", "email", "password_hash", "first_name", "last_name",
			"phone_number", "avatar_url", "role_id", "created_at", "updated_at",
		},
		Fields: func(u *models.User) []any {
			return []any{
				&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
				&u.PhoneNumber, &u.AvatarURL, &u.RoleID,
				Timestamp(&u.CreatedAt), Timestamp(&u.UpdatedAt),
			}
		},
		Touch: "updated_at",
	})

	Artists = NewRepository(Descriptor[models.Artist]{
		Entity:  "artist",
		Table:   "artists",
		Key:     "id",
		Columns: []string{"id", "name", "bio", "image_url", "created_at", "updated_at"},
		Fields: func(a *models.Artist) []any {
			return []any{&a.ID, &a.Name, &a.Bio, &a.ImageURL, Timestamp(&a.CreatedAt), Timestamp(&a.UpdatedAt)}
		},
		Touch: "updated_at",
	})

	Songs = NewRepository(Descriptor[models.Song]{
		Entity:  "song",
		Table:   "songs",
		Key:     "id",
		Columns: []string{"id", "title", "duration", "image_url", "artist_id", "created_at", "updated_at"},
		Fields: func(s *models.Song) []any {
			return []any{&s.ID, &s.Title, &s.Duration, &s.ImageURL, &s.ArtistID, Timestamp(&s.CreatedAt), Timestamp(&s.UpdatedAt)}
		},
		Touch: "updated_at",
	})

	Playlists = NewRepository(Descriptor[models.Playlist]{
		Entity:  "playlist",
		Table:   "playlists",
		Key:     "id",
		Columns: []string{"id", "name", "description", "image_url", "user_id", "created_at", "updated_at"},
		Fields: func(p *models.Playlist) []any {
			return []any{&p.ID, &p.Name, &p.Description, &p.ImageURL, &p.UserID, Timestamp(&p.CreatedAt), Timestamp(&p.UpdatedAt)}
		},
		Touch: "updated_at",
	})

	PlaylistSongs = NewRepository(Descriptor[models.PlaylistSong]{
		Entity:  "playlist_song",
		Table:   "playlist_songs",
		Key:     "id",
		Columns: []string{"id", "playlist_id", "song_id", "added_at", "created_at", "updated_at"},
		Fields: func(ps *models.PlaylistSong) []any {
			return []any{&ps.ID, &ps.PlaylistID, &ps.SongID, Timestamp(&ps.AddedAt), Timestamp(&ps.CreatedAt), Timestamp(&ps.UpdatedAt)}
		},
		Touch: "updated_at",
	})

	RecentlyPlayed = NewRepository(Descriptor[models.RecentlyPlayed]{
		Entity:  "recently_played",
		Table:   "recently_played",
		Key:     "id",
		Columns: []string{"id", "user_id", "song_id", "played_at", "created_at", "updated_at"},
		Fields: func(rp *models.RecentlyPlayed) []any {
			return []any{&rp.ID, &rp.UserID, &rp.SongID, Timestamp(&rp.PlayedAt), Timestamp(&rp.CreatedAt), Timestamp(&rp.UpdatedAt)}
		},
		Touch: "updated_at",
	})
)
