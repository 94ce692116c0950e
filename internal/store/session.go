package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Func is a unit of work run against a session.
type Func func(ctx context.Context, s *Session) error

// RunOptions configures Manager.Run.
type RunOptions struct {
	// Isolation overrides the store's default isolation level.
	Isolation sql.IsolationLevel
	// Commit makes the work durable. Without it the transaction is rolled
	// back even on success.
	Commit bool
}

// Stats counts connection handles handed out and returned.
type Stats struct {
	Acquired int64
	Released int64
}

// Manager hands out sessions bound to a single connection and guarantees each
// is released exactly once.
type Manager struct {
	db      *sql.DB
	dialect Dialect
	logger  zerolog.Logger

	acquired atomic.Int64
	released atomic.Int64
}

// NewManager wraps db. The dialect must match the driver db was opened with.
func NewManager(db *sql.DB, dialect Dialect, logger zerolog.Logger) *Manager {
	return &Manager{
		db:      db,
		dialect: dialect,
		logger:  logger.With().Str("component", "store").Logger(),
	}
}

// DB exposes the underlying pool for maintenance tasks such as migrations.
func (m *Manager) DB() *sql.DB { return m.db }

// Dialect reports the SQL dialect in use.
func (m *Manager) Dialect() Dialect { return m.dialect }

// Stats reports how many sessions were acquired and released so far.
func (m *Manager) Stats() Stats {
	return Stats{Acquired: m.acquired.Load(), Released: m.released.Load()}
}

// Session runs fn on a plain session. Statements autocommit individually and
// nothing is committed or rolled back on exit.
func (m *Manager) Session(ctx context.Context, fn Func) error {
	return m.run(ctx, false, RunOptions{}, fn)
}

// Transaction runs fn inside a transaction that commits when fn returns nil
// and rolls back on error or panic.
func (m *Manager) Transaction(ctx context.Context, fn Func) error {
	return m.run(ctx, true, RunOptions{Commit: true}, fn)
}

// Run executes fn in a transaction with the given options. It is meant for
// startup and maintenance routines.
func (m *Manager) Run(ctx context.Context, opts RunOptions, fn Func) error {
	return m.run(ctx, true, opts, fn)
}

func (m *Manager) run(ctx context.Context, transactional bool, opts RunOptions, fn Func) (err error) {
	// Units of work run to completion once started.
	ctx = context.WithoutCancel(ctx)

	conn, err := m.db.Conn(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("acquire connection")
		return fmt.Errorf("acquire connection: %w", err)
	}
	m.acquired.Add(1)

	sess := &Session{conn: conn, dialect: m.dialect, logger: m.logger}
	defer m.release(sess)

	if transactional {
		tx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: opts.Isolation})
		if err != nil {
			m.logger.Error().Err(err).Msg("begin transaction")
			return fmt.Errorf("begin tx: %w", err)
		}
		sess.tx = tx
	}

	defer func() {
		if p := recover(); p != nil {
			sess.rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, sess); err != nil {
		sess.rollback()
		return err
	}
	if sess.aborted != nil {
		return fmt.Errorf("%w: %w", ErrSessionAborted, sess.aborted)
	}
	if sess.tx == nil {
		return nil
	}
	if !opts.Commit {
		sess.rollback()
		return nil
	}
	if err := sess.tx.Commit(); err != nil {
		sess.tx = nil
		m.logger.Error().Err(err).Msg("commit transaction")
		return fmt.Errorf("commit tx: %w", err)
	}
	sess.tx = nil
	return nil
}

func (m *Manager) release(s *Session) {
	if s.released {
		return
	}
	s.released = true
	if err := s.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		m.logger.Error().Err(err).Msg("release connection")
	}
	m.released.Add(1)
}

// Session is a handle on one connection, optionally inside a transaction. It
// belongs to the goroutine that received it and must not outlive the unit of
// work.
type Session struct {
	conn    *sql.Conn
	tx      *sql.Tx
	dialect Dialect
	logger  zerolog.Logger

	// local marks a transaction opened by atomic on a plain session.
	local    bool
	aborted  error
	released bool
}

// InTransaction reports whether statements run inside a transaction.
func (s *Session) InTransaction() bool { return s.tx != nil }

// Dialect reports the SQL dialect of the session.
func (s *Session) Dialect() Dialect { return s.dialect }

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Session) querier() (querier, error) {
	if s.aborted != nil {
		return nil, ErrSessionAborted
	}
	if s.tx != nil {
		return s.tx, nil
	}
	return s.conn, nil
}

func (s *Session) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	q, err := s.querier()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := q.ExecContext(ctx, query, args...)
	s.trace(query, start, err)
	return res, err
}

func (s *Session) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	q, err := s.querier()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := q.QueryContext(ctx, query, args...)
	s.trace(query, start, err)
	return rows, err
}

func (s *Session) trace(query string, start time.Time, err error) {
	s.logger.Debug().
		Str("query", query).
		Dur("duration_ms", time.Since(start)).
		Err(err).
		Msg("database query")
}

// fail rolls back the enclosing transaction after a failed write. A
// transaction owned by the manager stays aborted so the rest of the unit of
// work cannot commit partial results.
func (s *Session) fail(cause error) {
	if s.tx == nil {
		return
	}
	s.rollback()
	if !s.local {
		s.aborted = cause
	}
}

func (s *Session) rollback() {
	if s.tx == nil {
		return
	}
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.Error().Err(err).Msg("rollback transaction")
	}
	s.tx = nil
}

// atomic runs fn all-or-nothing. Inside a transaction it simply runs fn;
// on a plain session it opens a transaction for the duration of fn.
func (s *Session) atomic(ctx context.Context, fn func() error) error {
	if s.tx != nil {
		return fn()
	}
	if s.aborted != nil {
		return ErrSessionAborted
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	s.tx, s.local = tx, true
	defer func() {
		s.rollback()
		s.local = false
	}()

	if err := fn(); err != nil {
		return err
	}
	if s.tx == nil {
		return ErrSessionAborted
	}
	err = s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
