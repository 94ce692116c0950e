package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"melodyhub/internal/auth"
	"melodyhub/internal/models"
	"melodyhub/internal/objectstore"
	"melodyhub/internal/store"
)

var (
	// ErrInvalidInput signals a malformed registration or upload.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmailTaken signals the email is already registered.
	ErrEmailTaken = errors.New("user with this email already exists")
	// ErrInvalidCredentials indicates a login failure.
	ErrInvalidCredentials = errors.New("incorrect email or password")
	// ErrNotFound is returned for unknown users and media.
	ErrNotFound = errors.New("not found")
)

// DefaultRole is assigned to new accounts when it exists.
const DefaultRole = "user"

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(userID int64) (string, time.Time, error)
}

// ObjectStore keeps uploaded media.
type ObjectStore interface {
	Put(ctx context.Context, bucket, name, contentType string, data []byte) (string, error)
	Get(ctx context.Context, bucket, name string) ([]byte, error)
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	PhoneNumber     string `json:"phone_number"`
}

// LoginResult carries a freshly issued access token.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
}

// Config holds user service settings.
type Config struct {
	AvatarBucket string
}

// Service exposes account workflows.
type Service interface {
	Register(ctx context.Context, in RegisterInput) error
	Login(ctx context.Context, email, password string) (LoginResult, error)
	Profile(ctx context.Context, userID int64) (models.Profile, error)
	UploadAvatar(ctx context.Context, userID int64, filename, contentType string, data []byte) (string, error)
	Media(ctx context.Context, bucket, name string) ([]byte, error)
}

type service struct {
	db      *store.Manager
	tokens  TokenIssuer
	objects ObjectStore
	cfg     Config
}

// New wires a Service.
func New(db *store.Manager, tokens TokenIssuer, objects ObjectStore, cfg Config) Service {
	return &service{db: db, tokens: tokens, objects: objects, cfg: cfg}
}

func validateRegistration(in RegisterInput) error {
	var problems []string
	// A bare address only; display-name forms such as "Bob <bob@x.com>" parse too.
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		problems = append(problems, "a valid email is required")
	}
	if in.Password == "" {
		problems = append(problems, "password is required")
	}
	if in.Password != in.ConfirmPassword {
		problems = append(problems, "passwords do not match")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func (s *service) Register(ctx context.Context, in RegisterInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in.Email = auth.NormalizeEmail(in.Email)
	if err := validateRegistration(in); err != nil {
		return err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return err
	}

	err = s.db.Transaction(ctx, func(ctx context.Context, tx *store.Session) error {
		_, err := store.Users.FindOne(ctx, tx, store.Filter{"email": in.Email})
		switch {
		case err == nil:
			return ErrEmailTaken
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("lookup user: %w", err)
		}

		values := store.Values{
			"email":         in.Email,
			"password_hash": hash,
			"first_name":    strings.TrimSpace(in.FirstName),
			"last_name":     strings.TrimSpace(in.LastName),
			"phone_number":  strings.TrimSpace(in.PhoneNumber),
		}
		role, err := store.Roles.FindOne(ctx, tx, store.Filter{"name": DefaultRole})
		switch {
		case err == nil:
			values["role_id"] = role.ID
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("lookup default role: %w", err)
		}

		if _, err := store.Users.Add(ctx, tx, values); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrEmailTaken
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
	return err
}

func (s *service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if err := ctx.Err(); err != nil {
		return LoginResult{}, err
	}

	var user *models.User
	err := s.db.Session(ctx, func(ctx context.Context, sess *store.Session) error {
		var err error
		user, err = store.Users.FindOne(ctx, sess, store.Filter{"email": auth.NormalizeEmail(email)})
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		auth.BurnPasswordCheck(password)
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, expires, err := s.tokens.Issue(user.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("create token: %w", err)
	}
	return LoginResult{Token: token, ExpiresAt: expires}, nil
}

func (s *service) Profile(ctx context.Context, userID int64) (models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return models.Profile{}, err
	}

	var user *models.User
	err := s.db.Session(ctx, func(ctx context.Context, sess *store.Session) error {
		var err error
		user, err = store.Users.FindByID(ctx, sess, userID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return models.Profile{}, ErrNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("load user: %w", err)
	}
	return user.Profile(), nil
}

func (s *service) UploadAvatar(ctx context.Context, userID int64, filename, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrInvalidInput)
	}

	url, err := s.objects.Put(ctx, s.cfg.AvatarBucket, objectstore.ObjectName(filename), contentType, data)
	if err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}

	err = s.db.Transaction(ctx, func(ctx context.Context, tx *store.Session) error {
		n, err := store.Users.Update(ctx, tx, store.Filter{"id": userID}, store.Values{"avatar_url": url})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

func (s *service) Media(ctx context.Context, bucket, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bucket != s.cfg.AvatarBucket || name == "" || strings.Contains(name, "/") {
		return nil, ErrNotFound
	}
	data, err := s.objects.Get(ctx, bucket, name)
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}
