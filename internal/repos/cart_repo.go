package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"storefront/internal/domain"
)

type CartRepo struct{ db *sqlx.DB }

func NewCartRepo(db *sqlx.DB) *CartRepo { return &CartRepo{db: db} }

type cartItemRow struct {
	ID           string        `db:"id"`
	CartID       string        `db:"cart_id"`
	ProductID    string        `db:"product_id"`
	VariantID    string        `db:"variant_id"`
	Quantity     int           `db:"quantity"`
	ProductName  string        `db:"product_name"`
	ProductPrice int64         `db:"product_price"`
	ProductStock sql.NullInt64 `db:"product_stock"`
	VariantName  string        `db:"variant_name"`
	VariantPrice sql.NullInt64 `db:"variant_price"`
	VariantStock int           `db:"variant_stock"`
}

func (r cartItemRow) toDomain() domain.CartItem {
	it := domain.CartItem{
		ID:           r.ID,
		CartID:       r.CartID,
		ProductID:    r.ProductID,
		VariantID:    r.VariantID,
		Quantity:     r.Quantity,
		ProductName:  r.ProductName,
		VariantName:  r.VariantName,
		ProductPrice: r.ProductPrice,
		ProductStock: stockLevel(r.ProductStock),
		VariantStock: r.VariantStock,
	}
	if r.VariantPrice.Valid {
		p := r.VariantPrice.Int64
		it.VariantPrice = &p
	}
	return it
}

func stockLevel(n sql.NullInt64) domain.StockLevel {
	if !n.Valid {
		return domain.Untracked()
	}
	return domain.Tracked(int(n.Int64))
}

// cartItemsQuery lists a cart's lines in insertion order joined to their product and variant.
const cartItemsQuery = `
	SELECT ci.id, ci.cart_id, ci.product_id, ci.variant_id, ci.quantity,
	       p.name AS product_name, p.price AS product_price, p.stock_quantity AS product_stock,
	       COALESCE(v.name, '') AS variant_name, v.price AS variant_price,
	       COALESCE(v.stock_quantity, 0) AS variant_stock
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id
	LEFT JOIN product_variants v ON v.id = ci.variant_id AND v.product_id = ci.product_id
	WHERE ci.cart_id = ?
	ORDER BY ci.line_no`

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func loadCartItems(ctx context.Context, q queryer, cartID string) ([]domain.CartItem, error) {
	var rows []cartItemRow
	if err := sqlx.SelectContext(ctx, q, &rows, q.Rebind(cartItemsQuery), cartID); err != nil {
		return nil, err
	}
	items := make([]domain.CartItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toDomain())
	}
	return items, nil
}

// Create opens a new empty cart, optionally owned by userID.
func (r *CartRepo) Create(ctx context.Context, userID string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO carts(id, user_id, created_at, updated_at) VALUES(?, ?, ?, ?)`),
		id, nullString(userID), now, now)
	if err != nil {
		return "", err
	}
	return id, nil
}

// AddItem inserts a line or, if the (product, variant) pair is already in the cart, adds to its quantity.
func (r *CartRepo) AddItem(ctx context.Context, cartID, productID, variantID string, qty int) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO cart_items(id, cart_id, product_id, variant_id, quantity, line_no, created_at)
		VALUES(?, ?, ?, ?, ?, (SELECT COALESCE(MAX(line_no), 0) + 1 FROM cart_items WHERE cart_id = ?), ?)
		ON CONFLICT(cart_id, product_id, variant_id) DO UPDATE
		SET quantity = cart_items.quantity + excluded.quantity
	`), uuid.NewString(), cartID, productID, variantID, qty, cartID, now)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(`UPDATE carts SET updated_at = ? WHERE id = ?`), now, cartID)
	return err
}

// Load returns the cart with its items. A missing cart is domain.ErrNotFound.
func (r *CartRepo) Load(ctx context.Context, cartID string) (domain.Cart, error) {
	return loadCart(ctx, r.db, cartID)
}

// LoadTx is Load inside tx, so the lines read are the lines the transaction retires.
func (r *CartRepo) LoadTx(ctx context.Context, tx *sqlx.Tx, cartID string) (domain.Cart, error) {
	return loadCart(ctx, tx, cartID)
}

func loadCart(ctx context.Context, q queryer, cartID string) (domain.Cart, error) {
	var head struct {
		ID     string         `db:"id"`
		UserID sql.NullString `db:"user_id"`
	}
	err := sqlx.GetContext(ctx, q, &head, q.Rebind(`SELECT id, user_id FROM carts WHERE id = ?`), cartID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{}, fmt.Errorf("cart %s: %w", cartID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Cart{}, err
	}
	items, err := loadCartItems(ctx, q, cartID)
	if err != nil {
		return domain.Cart{}, err
	}
	return domain.Cart{ID: head.ID, UserID: head.UserID.String, Items: items}, nil
}

// Delete removes the cart and its items. Deleting a cart that is already gone is not an error.
func (r *CartRepo) Delete(ctx context.Context, cartID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := deleteCart(ctx, tx, cartID); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteCart reports whether a cart row was actually removed.
func deleteCart(ctx context.Context, tx *sqlx.Tx, cartID string) (bool, error) {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM cart_items WHERE cart_id = ?`), cartID); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM carts WHERE id = ?`), cartID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
