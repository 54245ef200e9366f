package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"storefront/internal/domain"
)

const (
	orderNumberPrefix = "ORD-"
	orderNumberLock   = "order_number"
)

// FormatOrderNumber zero-pads n to six digits. Larger numbers keep all their digits.
func FormatOrderNumber(n int64) string {
	return fmt.Sprintf("%s%06d", orderNumberPrefix, n)
}

// ParseOrderNumber returns the numeric suffix of an ORD- number.
func ParseOrderNumber(s string) (int64, bool) {
	digits, ok := strings.CutPrefix(s, orderNumberPrefix)
	if !ok || digits == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// OrderSequencer hands out order numbers. Next must run in the transaction that
// inserts the order: it takes the write lock on the order_number row of
// sequence_locks, which every other allocator needs too, and holds it until
// that transaction ends.
type OrderSequencer struct {
	Timeout time.Duration
}

func NewOrderSequencer(timeout time.Duration) *OrderSequencer {
	return &OrderSequencer{Timeout: timeout}
}

func (s *OrderSequencer) Next(ctx context.Context, tx *sqlx.Tx) (string, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	if err := s.lock(ctx, tx); err != nil {
		return "", s.timeoutOr(ctx, fmt.Errorf("lock order sequence: %w", err))
	}

	// Numbers past 999999 are longer, so length sorts before the text.
	var last string
	err := tx.GetContext(ctx, &last, `
		SELECT order_number FROM orders
		ORDER BY LENGTH(order_number) DESC, order_number DESC
		LIMIT 1`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", s.timeoutOr(ctx, fmt.Errorf("read last order number: %w", err))
	}

	next := int64(1)
	if last != "" {
		n, ok := ParseOrderNumber(last)
		if !ok {
			return "", fmt.Errorf("malformed order number %q", last)
		}
		next = n + 1
	}
	return FormatOrderNumber(next), nil
}

func (s *OrderSequencer) lock(ctx context.Context, tx *sqlx.Tx) error {
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE sequence_locks SET locked_at = ? WHERE name = ?`), now, orderNumberLock)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// row missing (schema seeded by hand); create it, then lock it
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO sequence_locks(name, locked_at) VALUES(?, ?)
		ON CONFLICT(name) DO NOTHING`), orderNumberLock, now); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE sequence_locks SET locked_at = ? WHERE name = ?`), now, orderNumberLock)
	return err
}

func (s *OrderSequencer) timeoutOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || isLockTimeout(err) {
		return fmt.Errorf("%w: %v", domain.ErrSequencingTimeout, err)
	}
	return err
}
