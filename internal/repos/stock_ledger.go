package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"storefront/internal/domain"
)

// StockLedger reads and moves inventory counters. A line with a variant draws on
// the variant's counter; a line without one draws on the product's counter when
// the product is tracked and is unlimited otherwise.
type StockLedger struct{ db *sqlx.DB }

func NewStockLedger(db *sqlx.DB) *StockLedger { return &StockLedger{db: db} }

// Validate compares every line of the cart with current stock outside any
// transaction. The result is advisory; ReserveAndDecrement is the real gate.
func (l *StockLedger) Validate(ctx context.Context, cartID string) ([]domain.StockIssue, error) {
	var exists int
	err := l.db.GetContext(ctx, &exists, l.db.Rebind(`SELECT COUNT(*) FROM carts WHERE id = ?`), cartID)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("cart %s: %w", cartID, domain.ErrNotFound)
	}
	items, err := loadCartItems(ctx, l.db, cartID)
	if err != nil {
		return nil, err
	}
	return Shortfalls(items), nil
}

// Shortfalls lists every line whose requested quantity exceeds what the joined stock shows.
func Shortfalls(items []domain.CartItem) []domain.StockIssue {
	issues := []domain.StockIssue{}
	for _, it := range items {
		if it.HasVariant() {
			if it.VariantStock < it.Quantity {
				issues = append(issues, domain.StockIssue{ProductName: it.DisplayName(), Requested: it.Quantity, Available: it.VariantStock})
			}
			continue
		}
		if !it.ProductStock.Covers(it.Quantity) {
			avail, _ := it.ProductStock.Quantity()
			issues = append(issues, domain.StockIssue{ProductName: it.DisplayName(), Requested: it.Quantity, Available: avail})
		}
	}
	return issues
}

// ReserveAndDecrement re-reads each counter inside tx and takes the requested
// units. The first short line aborts with *domain.StockUnavailableError; the
// caller's transaction discards any decrements already made.
func (l *StockLedger) ReserveAndDecrement(ctx context.Context, tx *sqlx.Tx, items []domain.CartItem) error {
	ordered := make([]domain.CartItem, len(items))
	copy(ordered, items)
	// counters are always locked in the same order so concurrent checkouts cannot deadlock
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ProductID != ordered[j].ProductID {
			return ordered[i].ProductID < ordered[j].ProductID
		}
		return ordered[i].VariantID < ordered[j].VariantID
	})

	for _, it := range ordered {
		var err error
		if it.HasVariant() {
			err = takeVariant(ctx, tx, it)
		} else {
			err = takeProduct(ctx, tx, it)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func takeVariant(ctx context.Context, tx *sqlx.Tx, it domain.CartItem) error {
	var avail int
	err := tx.GetContext(ctx, &avail, tx.Rebind(
		`SELECT stock_quantity FROM product_variants WHERE id = ? AND product_id = ?`+forUpdate(tx.DriverName())),
		it.VariantID, it.ProductID)
	if errors.Is(err, sql.ErrNoRows) {
		return shortOf(it, 0)
	}
	if err != nil {
		return fmt.Errorf("read variant stock: %w", err)
	}
	if avail < it.Quantity {
		return shortOf(it, avail)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE product_variants SET stock_quantity = stock_quantity - ?
		WHERE id = ? AND stock_quantity >= ?`), it.Quantity, it.VariantID, it.Quantity)
	if err != nil {
		return fmt.Errorf("decrement variant stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shortOf(it, avail)
	}
	return nil
}

func takeProduct(ctx context.Context, tx *sqlx.Tx, it domain.CartItem) error {
	var stock sql.NullInt64
	err := tx.GetContext(ctx, &stock, tx.Rebind(
		`SELECT stock_quantity FROM products WHERE id = ?`+forUpdate(tx.DriverName())), it.ProductID)
	if errors.Is(err, sql.ErrNoRows) {
		return shortOf(it, 0)
	}
	if err != nil {
		return fmt.Errorf("read product stock: %w", err)
	}
	level := stockLevel(stock)
	if !level.IsTracked() {
		return nil
	}
	avail, _ := level.Quantity()
	if avail < it.Quantity {
		return shortOf(it, avail)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE products SET stock_quantity = stock_quantity - ?
		WHERE id = ? AND stock_quantity IS NOT NULL AND stock_quantity >= ?`), it.Quantity, it.ProductID, it.Quantity)
	if err != nil {
		return fmt.Errorf("decrement product stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shortOf(it, avail)
	}
	return nil
}

func shortOf(it domain.CartItem, available int) error {
	return &domain.StockUnavailableError{
		ProductID:   it.ProductID,
		VariantID:   it.VariantID,
		ProductName: it.DisplayName(),
		Requested:   it.Quantity,
		Available:   available,
	}
}

// ProductStock reads a product's counter.
func (l *StockLedger) ProductStock(ctx context.Context, productID string) (domain.StockLevel, error) {
	var stock sql.NullInt64
	err := l.db.GetContext(ctx, &stock, l.db.Rebind(`SELECT stock_quantity FROM products WHERE id = ?`), productID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StockLevel{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.StockLevel{}, err
	}
	return stockLevel(stock), nil
}

func (l *StockLedger) VariantStock(ctx context.Context, variantID string) (int, error) {
	var n int
	err := l.db.GetContext(ctx, &n, l.db.Rebind(`SELECT stock_quantity FROM product_variants WHERE id = ?`), variantID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("variant %s: %w", variantID, domain.ErrNotFound)
	}
	return n, err
}

// SetProductStock overwrites a product counter; Untracked clears it.
func (l *StockLedger) SetProductStock(ctx context.Context, productID string, level domain.StockLevel) error {
	val := sql.NullInt64{}
	if n, ok := level.Quantity(); ok {
		if n < 0 {
			return fmt.Errorf("stock %d: %w", n, domain.ErrInvalidInput)
		}
		val = sql.NullInt64{Int64: int64(n), Valid: true}
	}
	res, err := l.db.ExecContext(ctx, l.db.Rebind(`UPDATE products SET stock_quantity = ? WHERE id = ?`), val, productID)
	return affectedOne(res, err, "product "+productID)
}

func (l *StockLedger) SetVariantStock(ctx context.Context, variantID string, n int) error {
	if n < 0 {
		return fmt.Errorf("stock %d: %w", n, domain.ErrInvalidInput)
	}
	res, err := l.db.ExecContext(ctx, l.db.Rebind(`UPDATE product_variants SET stock_quantity = ? WHERE id = ?`), n, variantID)
	return affectedOne(res, err, "variant "+variantID)
}

func affectedOne(res sql.Result, err error, what string) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}
