package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"storefront/internal/domain"
)

type ProductRepo struct{ db *sqlx.DB }

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

type productRow struct {
	ID          string        `db:"id"`
	Name        string        `db:"name"`
	Price       int64         `db:"price"`
	Stock       sql.NullInt64 `db:"stock_quantity"`
	WeightGrams sql.NullInt64 `db:"weight_grams"`
	Active      bool          `db:"active"`
}

func (r productRow) toDomain() domain.Product {
	return domain.Product{
		ID:          r.ID,
		Name:        r.Name,
		Price:       r.Price,
		Stock:       stockLevel(r.Stock),
		WeightGrams: nullInt64Ptr(r.WeightGrams),
		Active:      r.Active,
	}
}

type variantRow struct {
	ID          string        `db:"id"`
	ProductID   string        `db:"product_id"`
	Name        string        `db:"name"`
	Price       sql.NullInt64 `db:"price"`
	Stock       int           `db:"stock_quantity"`
	WeightGrams sql.NullInt64 `db:"weight_grams"`
}

func (r variantRow) toDomain() domain.ProductVariant {
	return domain.ProductVariant{
		ID:          r.ID,
		ProductID:   r.ProductID,
		Name:        r.Name,
		Price:       nullInt64Ptr(r.Price),
		Stock:       r.Stock,
		WeightGrams: nullInt64Ptr(r.WeightGrams),
	}
}

func (r *ProductRepo) Get(ctx context.Context, id string) (domain.Product, error) {
	var row productRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT id, name, price, stock_quantity, weight_grams, active
		FROM products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Product{}, err
	}
	return row.toDomain(), nil
}

func (r *ProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	var rows []productRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT id, name, price, stock_quantity, weight_grams, active
		FROM products WHERE active = TRUE ORDER BY name`); err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *ProductRepo) Variant(ctx context.Context, id string) (domain.ProductVariant, error) {
	var row variantRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT id, product_id, name, price, stock_quantity, weight_grams
		FROM product_variants WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductVariant{}, fmt.Errorf("variant %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ProductVariant{}, err
	}
	return row.toDomain(), nil
}

func (r *ProductRepo) Variants(ctx context.Context, productID string) ([]domain.ProductVariant, error) {
	var rows []variantRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, product_id, name, price, stock_quantity, weight_grams
		FROM product_variants WHERE product_id = ? ORDER BY name`), productID); err != nil {
		return nil, err
	}
	out := make([]domain.ProductVariant, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// Save inserts or replaces a product row.
func (r *ProductRepo) Save(ctx context.Context, p domain.Product) error {
	stock := sql.NullInt64{}
	if n, ok := p.Stock.Quantity(); ok {
		stock = sql.NullInt64{Int64: int64(n), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO products(id, name, price, stock_quantity, weight_grams, active, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  name = excluded.name, price = excluded.price, stock_quantity = excluded.stock_quantity,
		  weight_grams = excluded.weight_grams, active = excluded.active, updated_at = excluded.created_at
	`), p.ID, p.Name, p.Price, stock, int64PtrNull(p.WeightGrams), p.Active, time.Now().UTC())
	return err
}

func (r *ProductRepo) SaveVariant(ctx context.Context, v domain.ProductVariant) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO product_variants(id, product_id, name, price, stock_quantity, weight_grams)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  name = excluded.name, price = excluded.price,
		  stock_quantity = excluded.stock_quantity, weight_grams = excluded.weight_grams
	`), v.ID, v.ProductID, v.Name, int64PtrNull(v.Price), v.Stock, int64PtrNull(v.WeightGrams))
	return err
}

// UpdatePrice changes the catalog price. Existing order lines keep their snapshot.
func (r *ProductRepo) UpdatePrice(ctx context.Context, id string, price int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE products SET price = ?, updated_at = ? WHERE id = ?`),
		price, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func nullInt64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func int64PtrNull(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
