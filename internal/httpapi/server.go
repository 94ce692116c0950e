// Package httpapi exposes the auth and music services over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"melodyhub/internal/app/music"
	"melodyhub/internal/app/users"
	"melodyhub/internal/models"
)

// UserService captures the account operations needed by the handlers.
type UserService interface {
	Register(ctx context.Context, in users.RegisterInput) error
	Login(ctx context.Context, email, password string) (users.LoginResult, error)
	Profile(ctx context.Context, userID int64) (models.Profile, error)
	UploadAvatar(ctx context.Context, userID int64, filename, contentType string, data []byte) (string, error)
	Media(ctx context.Context, bucket, name string) ([]byte, error)
}

// MusicService captures the music operations needed by the handlers.
type MusicService = music.Service

// Authenticator resolves tokens to users and checks roles.
type Authenticator interface {
	CurrentUser(ctx context.Context, token string) (*models.User, error)
	RequireAdmin(ctx context.Context, user *models.User) error
}

// Limiter guards abuse-prone endpoints.
type Limiter interface {
	Middleware(next http.Handler) http.Handler
}

// Options tune the HTTP layer.
type Options struct {
	// CookieSecure marks the access token cookie Secure.
	CookieSecure bool
	// AuthLimiter, when set, wraps the login and registration endpoints.
	AuthLimiter Limiter
	Logger      zerolog.Logger
}

// Server wires HTTP handlers to the underlying services.
type Server struct {
	users  UserService
	music  MusicService
	auth   Authenticator
	opts   Options
	logger zerolog.Logger
}

// New configures a Server.
func New(users UserService, music MusicService, auth Authenticator, opts Options) *Server {
	return &Server{
		users:  users,
		music:  music,
		auth:   auth,
		opts:   opts,
		logger: opts.Logger.With().Str("component", "httpapi").Logger(),
	}
}

// Routes exposes the HTTP handlers.
func (s *Server) Routes() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	router.Handle("/auth/register/", s.limited(http.HandlerFunc(s.handleRegister))).Methods(http.MethodPost)
	router.Handle("/auth/login/", s.limited(http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)
	router.HandleFunc("/auth/logout/", s.handleLogout).Methods(http.MethodPost)
	router.HandleFunc("/auth/me/", s.withUser(s.handleMe)).Methods(http.MethodGet)
	router.HandleFunc("/user/upload-avatar/", s.withUser(s.handleUploadAvatar)).Methods(http.MethodPost)
	router.HandleFunc("/media/{bucket}/{object}", s.handleMedia).Methods(http.MethodGet)

	router.HandleFunc("/music/playlists/", s.withUser(s.handleListPlaylists)).Methods(http.MethodGet)
	router.HandleFunc("/music/playlists/", s.withUser(s.handleCreatePlaylist)).Methods(http.MethodPost)
	router.HandleFunc("/music/playlists/{id:[0-9]+}", s.withUser(s.handleGetPlaylist)).Methods(http.MethodGet)
	router.HandleFunc("/music/playlists/{id:[0-9]+}", s.withUser(s.handleDeletePlaylist)).Methods(http.MethodDelete)
	router.HandleFunc("/music/playlists/{id:[0-9]+}/songs/{song_id:[0-9]+}", s.withUser(s.handleAddPlaylistSong)).Methods(http.MethodPost)
	router.HandleFunc("/music/playlists/{id:[0-9]+}/songs/{song_id:[0-9]+}", s.withUser(s.handleRemovePlaylistSong)).Methods(http.MethodDelete)
	router.HandleFunc("/music/recently-played/", s.withUser(s.handleRecentlyPlayed)).Methods(http.MethodGet)
	router.HandleFunc("/music/recently-played/{song_id:[0-9]+}", s.withUser(s.handleAddRecentlyPlayed)).Methods(http.MethodPost)
	router.HandleFunc("/music/search/", s.handleSearch).Methods(http.MethodGet)
	router.HandleFunc("/music/artists/", s.handleListArtists).Methods(http.MethodGet)
	router.HandleFunc("/music/artists/", s.withAdmin(s.handleUpsertArtist)).Methods(http.MethodPost)
	router.HandleFunc("/music/artists/{id:[0-9]+}", s.handleGetArtist).Methods(http.MethodGet)
	router.HandleFunc("/music/songs/", s.handleListSongs).Methods(http.MethodGet)
	router.HandleFunc("/music/songs/", s.withAdmin(s.handleAddSongs)).Methods(http.MethodPost)
	router.HandleFunc("/music/songs/", s.withAdmin(s.handleUpdateSongs)).Methods(http.MethodPatch)

	return router
}

func (s *Server) limited(h http.Handler) http.Handler {
	if s.opts.AuthLimiter == nil {
		return h
	}
	return s.opts.AuthLimiter.Middleware(h)
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// maxJSONBody caps request bodies that are decoded as JSON.
const maxJSONBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return false
	}
	return true
}

func parseBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
