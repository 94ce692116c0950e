package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"melodyhub/internal/app/music"
	"melodyhub/internal/models"
)

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name + " parameter"})
		return 0, false
	}
	return id, true
}

// queryInt reads an optional integer query parameter; absent means zero.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name + " parameter"})
		return 0, false
	}
	return n, true
}

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request, user *models.User) {
	playlists, err := s.music.ListPlaylists(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request, user *models.User) {
	var req music.PlaylistInput
	if !decodeJSON(w, r, &req) {
		return
	}
	playlist, err := s.music.CreatePlaylist(r.Context(), user.ID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, playlist)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request, user *models.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	playlist, err := s.music.GetPlaylist(r.Context(), user.ID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request, user *models.User) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.music.DeletePlaylist(r.Context(), user.ID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddPlaylistSong(w http.ResponseWriter, r *http.Request, user *models.User) {
	playlistID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	songID, ok := pathID(w, r, "song_id")
	if !ok {
		return
	}
	if err := s.music.AddSongToPlaylist(r.Context(), user.ID, playlistID, songID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Song added to playlist"})
}

func (s *Server) handleRemovePlaylistSong(w http.ResponseWriter, r *http.Request, user *models.User) {
	playlistID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	songID, ok := pathID(w, r, "song_id")
	if !ok {
		return
	}
	if err := s.music.RemoveSongFromPlaylist(r.Context(), user.ID, playlistID, songID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecentlyPlayed(w http.ResponseWriter, r *http.Request, user *models.User) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	entries, err := s.music.RecentlyPlayed(r.Context(), user.ID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAddRecentlyPlayed(w http.ResponseWriter, r *http.Request, user *models.User) {
	songID, ok := pathID(w, r, "song_id")
	if !ok {
		return
	}
	if err := s.music.AddRecentlyPlayed(r.Context(), user.ID, songID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Song added to recently played"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	songs, err := s.music.SearchSongs(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

func (s *Server) handleListArtists(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(w, r, "page")
	if !ok {
		return
	}
	size, ok := queryInt(w, r, "page_size")
	if !ok {
		return
	}
	artists, err := s.music.ListArtists(r.Context(), page, size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artists)
}

func (s *Server) handleGetArtist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	artist, err := s.music.GetArtist(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artist)
}

func (s *Server) handleUpsertArtist(w http.ResponseWriter, r *http.Request, _ *models.User) {
	var req music.ArtistInput
	if !decodeJSON(w, r, &req) {
		return
	}
	artist, err := s.music.UpsertArtist(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artist)
}

func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(w, r, "page")
	if !ok {
		return
	}
	size, ok := queryInt(w, r, "page_size")
	if !ok {
		return
	}
	songs, err := s.music.ListSongs(r.Context(), page, size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

func (s *Server) handleAddSongs(w http.ResponseWriter, r *http.Request, _ *models.User) {
	var req []music.SongInput
	if !decodeJSON(w, r, &req) {
		return
	}
	songs, err := s.music.AddSongs(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, songs)
}

func (s *Server) handleUpdateSongs(w http.ResponseWriter, r *http.Request, _ *models.User) {
	var req []music.SongUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := s.music.UpdateSongs(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Updated int64 `json:"updated"`
	}{Updated: n})
}
