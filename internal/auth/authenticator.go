// Package auth issues access tokens, hashes passwords and resolves the
// authenticated user for a request.
package auth

import (
	"context"
	"errors"
	"fmt"

	"melodyhub/internal/models"
	"melodyhub/internal/store"
)

var (
	// ErrUnauthorized indicates a missing or invalid token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an authenticated user lacking the required role.
	ErrForbidden = fmt.Errorf("%w: insufficient role", ErrUnauthorized)
)

// AdminRole is the role name that grants catalog administration.
const AdminRole = "admin"

// Options configures an Authenticator.
type Options struct {
	// DisableAuth skips token checks and treats every request as the first
	// admin user. Intended for local development only.
	DisableAuth bool
}

// Authenticator resolves tokens to users and enforces the admin policy.
type Authenticator struct {
	tokens *Tokens
	db     *store.Manager
	opts   Options
}

// NewAuthenticator wires an Authenticator.
func NewAuthenticator(tokens *Tokens, db *store.Manager, opts Options) *Authenticator {
	return &Authenticator{tokens: tokens, db: db, opts: opts}
}

// CurrentUser returns the user the token was issued to.
func (a *Authenticator) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	if a.opts.DisableAuth {
		return a.firstAdmin(ctx)
	}
	if token == "" {
		return nil, ErrUnauthorized
	}
	userID, err := a.tokens.Parse(token)
	if err != nil {
		return nil, ErrUnauthorized
	}

	var user *models.User
	err = a.db.Session(ctx, func(ctx context.Context, s *store.Session) error {
		var err error
		user, err = store.Users.FindByID(ctx, s, userID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load current user: %w", err)
	}
	return user, nil
}

// RequireAdmin returns ErrForbidden unless user holds the admin role.
func (a *Authenticator) RequireAdmin(ctx context.Context, user *models.User) error {
	if user == nil {
		return ErrUnauthorized
	}
	if user.RoleID == nil {
		return ErrForbidden
	}

	var role *models.Role
	err := a.db.Session(ctx, func(ctx context.Context, s *store.Session) error {
		var err error
		role, err = store.Roles.FindByID(ctx, s, *user.RoleID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrForbidden
	}
	if err != nil {
		return fmt.Errorf("load role: %w", err)
	}
	if role.Name != AdminRole {
		return ErrForbidden
	}
	return nil
}

func (a *Authenticator) firstAdmin(ctx context.Context) (*models.User, error) {
	var user *models.User
	err := a.db.Session(ctx, func(ctx context.Context, s *store.Session) error {
		role, err := store.Roles.FindOne(ctx, s, store.Filter{"name": AdminRole})
		if err != nil {
			return err
		}
		user, err = store.Users.FindOne(ctx, s, store.Filter{"role_id": role.ID})
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load admin user: %w", err)
	}
	return user, nil
}
