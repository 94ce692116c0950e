package models

import "time"

// Playlist is a user-curated list of songs.
type Playlist struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description" db:"description"`
	ImageURL    *string   `json:"image_url" db:"image_url"`
	UserID      int64     `json:"user_id" db:"user_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// PlaylistSong records membership of a song in a playlist.
type PlaylistSong struct {
	ID         int64     `json:"id" db:"id"`
	PlaylistID int64     `json:"playlist_id" db:"playlist_id"`
	SongID     int64     `json:"song_id" db:"song_id"`
	AddedAt    time.Time `json:"added_at" db:"added_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// PlaylistEntry is a song as it appears inside a playlist.
type PlaylistEntry struct {
	SongWithArtist
	AddedAt time.Time `json:"added_at"`
}

// PlaylistWithSongs is the playlist detail view, songs in insertion order.
type PlaylistWithSongs struct {
	Playlist
	Songs []PlaylistEntry `json:"songs"`
}

// RecentlyPlayed is one entry of a user's append-only play log.
type RecentlyPlayed struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	SongID    int64     `json:"song_id" db:"song_id"`
	PlayedAt  time.Time `json:"played_at" db:"played_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RecentlyPlayedEntry is a play log entry with the song resolved.
type RecentlyPlayedEntry struct {
	Song     SongWithArtist `json:"song"`
	PlayedAt time.Time      `json:"played_at"`
}
