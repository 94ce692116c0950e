// Package storetest provides an in-memory SQLite store with the real schema
// for tests.
package storetest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"melodyhub/internal/store"
)

var seq atomic.Int64

// Open returns a manager over a fresh, migrated in-memory database that is
// closed when the test ends.
func Open(t testing.TB) *store.Manager {
	t.Helper()

	// Each test gets its own named in-memory database; a single connection
	// keeps every session on it.
	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared&_foreign_keys=on", seq.Add(1))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if err := store.MigrateUp(context.Background(), db, store.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return store.NewManager(db, store.SQLite, zerolog.Nop())
}
