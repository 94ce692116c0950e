package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect hides the SQL differences between the supported databases.
type Dialect interface {
	// Driver is the database/sql driver name the dialect pairs with.
	Driver() string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder(n int) string
	// MemberOf renders "column is one of ids" with parameters starting at
	// position next and returns the arguments to bind.
	MemberOf(column string, next int, ids []int64) (string, []any)
}

var (
	// Postgres targets PostgreSQL through the pgx stdlib driver.
	Postgres Dialect = postgresDialect{}
	// SQLite targets SQLite through mattn/go-sqlite3.
	SQLite Dialect = sqliteDialect{}
)

// DialectFor resolves a driver name from configuration.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return Postgres, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

type postgresDialect struct{}

func (postgresDialect) Driver() string { return "pgx" }

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (d postgresDialect) MemberOf(column string, next int, ids []int64) (string, []any) {
	return column + " = ANY(" + d.Placeholder(next) + ")", []any{pq.Array(ids)}
}

type sqliteDialect struct{}

func (sqliteDialect) Driver() string { return "sqlite3" }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) MemberOf(column string, _ int, ids []int64) (string, []any) {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return column + " IN (" + marks + ")", args
}
