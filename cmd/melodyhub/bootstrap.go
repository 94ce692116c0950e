package main

import (
	"context"
	"errors"
	"fmt"

	"melodyhub/internal/app/users"
	"melodyhub/internal/auth"
	"melodyhub/internal/config"
	"melodyhub/internal/store"
)

// ensureAccounts creates the admin and default roles and, when configured, the
// administrator account. It is safe to run on every start.
func ensureAccounts(ctx context.Context, s *store.Session, cfg config.BootstrapConfig) error {
	var adminRoleID int64
	for _, name := range []string{auth.AdminRole, users.DefaultRole} {
		role, err := store.Roles.Upsert(ctx, s, []string{"name"}, store.Values{"name": name})
		if err != nil {
			return fmt.Errorf("ensure role %s: %w", name, err)
		}
		if name == auth.AdminRole {
			adminRoleID = role.ID
		}
	}

	email := auth.NormalizeEmail(cfg.AdminEmail)
	if email == "" {
		return nil
	}

	existing, err := store.Users.FindOne(ctx, s, store.Filter{"email": email})
	switch {
	case err == nil:
		if existing.RoleID != nil && *existing.RoleID == adminRoleID {
			return nil
		}
		_, err = store.Users.Update(ctx, s, store.Filter{"id": existing.ID}, store.Values{"role_id": adminRoleID})
		if err != nil {
			return fmt.Errorf("promote admin: %w", err)
		}
		return nil
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("lookup admin: %w", err)
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	_, err = store.Users.Add(ctx, s, store.Values{
		"email":         email,
		"password_hash": hash,
		"first_name":    "Admin",
		"role_id":       adminRoleID,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	return nil
}

type demoArtist struct {
	name  string
	bio   string
	songs []demoSong
}

type demoSong struct {
	title    string
	duration int
}

var demoCatalog = []demoArtist{
	{
		name: "Nick Drake",
		bio:  "English singer-songwriter.",
		songs: []demoSong{
			{"Pink Moon", 124},
			{"Northern Sky", 227},
			{"River Man", 261},
		},
	},
	{
		name: "Beach House",
		bio:  "Dream pop duo from Baltimore.",
		songs: []demoSong{
			{"Space Song", 320},
			{"Myth", 258},
			{"Silver Soul", 299},
		},
	},
	{
		name: "Neil Young",
		songs: []demoSong{
			{"Harvest Moon", 303},
			{"Heart of Gold", 187},
		},
	},
	{
		name: "Debussy Ensemble",
		songs: []demoSong{
			{"Clair de Lune (Moonlight)", 300},
		},
	},
}

// seedCatalog upserts the demo artists by name and adds the songs each one is
// missing in a single batch. It returns how many songs were added.
func seedCatalog(ctx context.Context, s *store.Session) (int, error) {
	var batch []store.Values
	for _, a := range demoCatalog {
		artist, err := store.Artists.Upsert(ctx, s, []string{"name"}, store.Values{"name": a.name, "bio": a.bio})
		if err != nil {
			return 0, fmt.Errorf("upsert artist %s: %w", a.name, err)
		}
		for _, song := range a.songs {
			n, err := store.Songs.Count(ctx, s, store.Filter{"artist_id": artist.ID, "title": song.title})
			if err != nil {
				return 0, err
			}
			if n > 0 {
				continue
			}
			batch = append(batch, store.Values{
				"title":     song.title,
				"duration":  song.duration,
				"artist_id": artist.ID,
			})
		}
	}

	if len(batch) == 0 {
		return 0, nil
	}
	added, err := store.Songs.AddMany(ctx, s, batch)
	if err != nil {
		return 0, fmt.Errorf("add songs: %w", err)
	}
	return len(added), nil
}
