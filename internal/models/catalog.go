package models

import "time"

// Artist owns zero or more songs. Name is unique and doubles as the import key.
type Artist struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Bio       string    `json:"bio" db:"bio"`
	ImageURL  *string   `json:"image_url" db:"image_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ArtistSummary is the slice of an artist embedded in song payloads.
type ArtistSummary struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	ImageURL *string `json:"image_url"`
}

// Summary returns the embeddable view of the artist.
func (a Artist) Summary() ArtistSummary {
	return ArtistSummary{ID: a.ID, Name: a.Name, ImageURL: a.ImageURL}
}

// Song belongs to exactly one artist. Duration is in seconds.
type Song struct {
	ID        int64     `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Duration  int       `json:"duration" db:"duration"`
	ImageURL  *string   `json:"image_url" db:"image_url"`
	ArtistID  int64     `json:"artist_id" db:"artist_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SongWithArtist is a song with its artist resolved.
type SongWithArtist struct {
	Song
	Artist *ArtistSummary `json:"artist"`
}

// ArtistWithSongs is an artist detail view.
type ArtistWithSongs struct {
	Artist
	Songs []Song `json:"songs"`
}
