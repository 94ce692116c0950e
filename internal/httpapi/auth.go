package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"melodyhub/internal/app/users"
	"melodyhub/internal/auth"
	"melodyhub/internal/logging"
	"melodyhub/internal/models"
)

const (
	// TokenCookie carries the access token for browser clients.
	TokenCookie = "users_access_token"

	maxAvatarBytes = 5 << 20
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	OK          bool   `json:"ok"`
	AccessToken string `json:"access_token"`
	Message     string `json:"message"`
}

type avatarResponse struct {
	OK        bool   `json:"ok"`
	AvatarURL string `json:"avatar_url"`
}

// requestToken reads the access token from the cookie, falling back to the
// Authorization header.
func requestToken(r *http.Request) string {
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return parseBearerToken(r.Header.Get("Authorization"))
}

type userHandler func(w http.ResponseWriter, r *http.Request, user *models.User)

func (s *Server) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.CurrentUser(r.Context(), requestToken(r))
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
				return
			}
			s.writeError(w, r, err)
			return
		}
		r = r.WithContext(logging.WithUserID(r.Context(), user.ID))
		next(w, r, user)
	}
}

func (s *Server) withAdmin(next userHandler) http.HandlerFunc {
	return s.withUser(func(w http.ResponseWriter, r *http.Request, user *models.User) {
		if err := s.auth.RequireAdmin(r.Context(), user); err != nil {
			if errors.Is(err, auth.ErrForbidden) {
				writeJSON(w, http.StatusForbidden, errorResponse{Error: "insufficient permissions"})
				return
			}
			s.writeError(w, r, err)
			return
		}
		next(w, r, user)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req users.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.users.Register(r.Context(), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "You have successfully registered!"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{
		OK:          true,
		AccessToken: res.Token,
		Message:     "Authorization successful!",
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, messageResponse{Message: "User successfully logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user *models.User) {
	profile, err := s.users.Profile(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUploadAvatar(w http.ResponseWriter, r *http.Request, user *models.User) {
	// Leave room for the multipart envelope around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes+(1<<20))
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "file too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing file field"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarBytes+1))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(data) > maxAvatarBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "file too large"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	url, err := s.users.UploadAvatar(r.Context(), user.ID, header.Filename, contentType, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, avatarResponse{OK: true, AvatarURL: url})
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	data, err := s.users.Media(r.Context(), vars["bucket"], vars["object"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
