package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"storefront/internal/domain"
)

// TxFunc runs inside a unit of work. It must use tx (never the pool) for every
// statement so that all of its effects commit or roll back together.
type TxFunc func(ctx context.Context, tx *sqlx.Tx) error

// Store owns the unit-of-work boundary.
type Store struct {
	DB        *sqlx.DB
	TxTimeout time.Duration
	LockWait  time.Duration
}

func NewStore(db *sqlx.DB, txTimeout, lockWait time.Duration) *Store {
	return &Store{DB: db, TxTimeout: txTimeout, LockWait: lockWait}
}

// WithTransaction runs fn in a single transaction bounded by TxTimeout. Any error
// from fn, a timeout, or a failed commit rolls everything back.
func (s *Store) WithTransaction(ctx context.Context, fn TxFunc) error {
	if s.TxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.TxTimeout)
		defer cancel()
	}

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return classify(ctx, fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if s.DB.DriverName() == driverPostgres && s.LockWait > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.LockWait.Milliseconds())); err != nil {
			return classify(ctx, err)
		}
	}

	if err := fn(ctx, tx); err != nil {
		return classify(ctx, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(ctx, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func classify(ctx context.Context, err error) error {
	switch {
	case domain.IsRetryable(err):
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrTransactionTimeout, err)
	case isLockTimeout(err):
		return fmt.Errorf("%w: %v", domain.ErrLockTimeout, err)
	}
	return err
}

func isLockTimeout(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "55P03" || pe.Code == "57014"
	}
	return false
}

// IsUniqueViolation reports whether err is a unique-constraint failure from either driver.
func IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}
