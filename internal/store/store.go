// Package store is the data access layer: a generic repository over entity
// descriptors and a session manager that scopes every statement to a unit of
// work.
package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrForeignKey signals a reference to a missing row.
	ErrForeignKey = errors.New("foreign key violation")
	// ErrConstraint covers the remaining integrity failures (not null, check).
	ErrConstraint = errors.New("constraint violation")
	// ErrEmptyFilter rejects a delete, upsert or unset-criteria update with no
	// criteria.
	ErrEmptyFilter = errors.New("empty filter")
	// ErrNoValues rejects an update that sets nothing.
	ErrNoValues = errors.New("no values to set")
	// ErrUnknownField rejects a field name the entity does not declare.
	ErrUnknownField = errors.New("unknown field")
	// ErrMissingKey rejects a bulk update record without an id.
	ErrMissingKey = errors.New("record has no id")
	// ErrInvalidPage rejects a page or page size below one.
	ErrInvalidPage = errors.New("invalid page")
	// ErrSessionAborted is returned for work issued after the unit of work rolled back.
	ErrSessionAborted = errors.New("session aborted")
)

// Error is a storage failure tied to an entity and operation.
type Error struct {
	Entity string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify maps driver constraint errors onto the package sentinels. It
// returns nil for anything that is not an integrity violation.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyCode(pgErr.Code)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyCode(string(pqErr.Code))
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrConstraint {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return ErrConflict
		case sqlite3.ErrConstraintForeignKey:
			return ErrForeignKey
		default:
			return ErrConstraint
		}
	}
	return nil
}

func classifyCode(code string) error {
	switch code {
	case "23505":
		return ErrConflict
	case "23503":
		return ErrForeignKey
	case "23502", "23514":
		return ErrConstraint
	}
	return nil
}

// wrap builds the typed error returned from a failed operation.
func wrap(entity, op string, err error) error {
	if kind := classify(err); kind != nil {
		err = fmt.Errorf("%w: %w", kind, err)
	}
	return &Error{Entity: entity, Op: op, Err: err}
}
