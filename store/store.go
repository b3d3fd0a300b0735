// Package store is the SQLite document store behind the ledger.
//
// It provides the three primitives the engine depends on: single-statement
// atomic increments, transactions whose version-guarded writes fail with
// errs.ErrConcurrencyConflict when the snapshot went stale (retried by
// RunInTx), and indexed equality/range queries with a stable secondary sort.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/fintrack/errs"
)

// Options configures Open. Zero values fall back to the defaults below.
type Options struct {
	Path         string
	BusyTimeout  time.Duration
	TxLock       string // "immediate" or "deferred"
	MaxOpenConns int
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

const (
	DefaultBusyTimeout  = 5 * time.Second
	DefaultTxLock       = "immediate"
	DefaultMaxOpenConns = 8
	DefaultMaxRetries   = 5
	DefaultRetryBackoff = 10 * time.Millisecond
)

type Store struct {
	db         *sql.DB
	log        *slog.Logger
	now        func() time.Time
	maxRetries int
	backoff    time.Duration
}

// Open opens (or creates) the database at opts.Path and applies Schema.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.New("store: path is required")
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}
	if opts.TxLock == "" {
		opts.TxLock = DefaultTxLock
	}
	if opts.TxLock != "immediate" && opts.TxLock != "deferred" {
		return nil, fmt.Errorf("store: unknown tx lock mode %q", opts.TxLock)
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = DefaultMaxOpenConns
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	q := url.Values{}
	q.Set("_busy_timeout", strconv.FormatInt(opts.BusyTimeout.Milliseconds(), 10))
	q.Set("_foreign_keys", "on")
	q.Set("_txlock", opts.TxLock)
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")

	db, err := sql.Open("sqlite3", "file:"+opts.Path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", opts.Path, err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxOpenConns)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{
		db:         db,
		log:        opts.Logger,
		now:        opts.Now,
		maxRetries: opts.MaxRetries,
		backoff:    opts.RetryBackoff,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only consumers such as exports.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Queries returns a query set that runs each statement in its own implicit
// transaction. Increments issued through it are atomic on their own.
func (s *Store) Queries() *Queries {
	return &Queries{q: s.db, now: s.now}
}

// RunInTx runs fn inside a database transaction and commits if fn returns
// nil. When fn or the commit fails with errs.ErrConcurrencyConflict the
// transaction is rolled back and fn is run again on a fresh snapshot, up to
// the configured retry count. fn must therefore be free of side effects
// outside q.
//
// Once an attempt has begun it is not interrupted by ctx cancellation; ctx is
// only consulted between attempts.
func (s *Store) RunInTx(ctx context.Context, fn func(q *Queries) error) error {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = s.runOnce(context.WithoutCancel(ctx), fn)
		if err == nil || !errors.Is(err, errs.ErrConcurrencyConflict) {
			return err
		}
		s.log.Debug("store: transaction conflict", "attempt", attempt, "err", err)
		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * s.backoff):
			}
		}
	}
	s.log.Warn("store: giving up after conflicts", "attempts", s.maxRetries, "err", err)
	return fmt.Errorf("after %d attempts: %w", s.maxRetries, err)
}

func (s *Store) runOnce(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&Queries{q: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	committed = true
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every statement the engine issues. It is bound either to the
// database handle or to one transaction.
type Queries struct {
	q   querier
	now func() time.Time
}

// classify maps driver errors onto the error taxonomy. Busy/locked
// databases and unique-key races are conflicts the caller may retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.Code == sqlite3.ErrBusy, se.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", errs.ErrConcurrencyConflict, err)
		case se.ExtendedCode == sqlite3.ErrConstraintUnique, se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", errs.ErrConcurrencyConflict, err)
		case se.ExtendedCode == sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %v", errs.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
}

func isUnique(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// expectOne turns a conditional write that matched no row into a conflict.
func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n != 1 {
		return fmt.Errorf("%s: %w: row changed since read", what, errs.ErrConcurrencyConflict)
	}
	return nil
}

func ts(t time.Time) int64 {
	return t.UnixNano()
}

func fromTS(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scanner interface {
	Scan(dest ...any) error
}
