package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"storefront/internal/domain"
)

// ShippingRepo is the rate-policy lookup: it only stores and returns methods.
type ShippingRepo struct{ db *sqlx.DB }

func NewShippingRepo(db *sqlx.DB) *ShippingRepo { return &ShippingRepo{db: db} }

type shippingRow struct {
	ID                    string        `db:"id"`
	Name                  string        `db:"name"`
	RateType              string        `db:"rate_type"`
	FlatRate              sql.NullInt64 `db:"flat_rate"`
	FreeShippingThreshold sql.NullInt64 `db:"free_shipping_threshold"`
	IsActive              bool          `db:"is_active"`
}

func (r *ShippingRepo) Get(ctx context.Context, id string) (domain.ShippingMethod, error) {
	var row shippingRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT id, name, rate_type, flat_rate, free_shipping_threshold, is_active
		FROM shipping_methods WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ShippingMethod{}, fmt.Errorf("shipping method %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ShippingMethod{}, err
	}
	return r.hydrate(ctx, row)
}

func (r *ShippingRepo) ListActive(ctx context.Context) ([]domain.ShippingMethod, error) {
	var rows []shippingRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT id, name, rate_type, flat_rate, free_shipping_threshold, is_active
		FROM shipping_methods WHERE is_active = TRUE ORDER BY name`); err != nil {
		return nil, err
	}
	out := make([]domain.ShippingMethod, 0, len(rows))
	for _, row := range rows {
		m, err := r.hydrate(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *ShippingRepo) hydrate(ctx context.Context, row shippingRow) (domain.ShippingMethod, error) {
	m := domain.ShippingMethod{
		ID:                    row.ID,
		Name:                  row.Name,
		RateType:              domain.RateType(row.RateType),
		FlatRate:              nullInt64Ptr(row.FlatRate),
		FreeShippingThreshold: nullInt64Ptr(row.FreeShippingThreshold),
		IsActive:              row.IsActive,
	}
	err := r.db.SelectContext(ctx, &m.PriceRates, r.db.Rebind(`
		SELECT min_price, max_price, rate
		FROM shipping_price_rates WHERE method_id = ? ORDER BY seq`), row.ID)
	return m, err
}

// Save replaces a method and its price brackets.
func (r *ShippingRepo) Save(ctx context.Context, m domain.ShippingMethod) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO shipping_methods(id, name, rate_type, flat_rate, free_shipping_threshold, is_active)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  name = excluded.name, rate_type = excluded.rate_type, flat_rate = excluded.flat_rate,
		  free_shipping_threshold = excluded.free_shipping_threshold, is_active = excluded.is_active
	`), m.ID, m.Name, string(m.RateType), int64PtrNull(m.FlatRate), int64PtrNull(m.FreeShippingThreshold), m.IsActive); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM shipping_price_rates WHERE method_id = ?`), m.ID); err != nil {
		return err
	}
	for i, pr := range m.PriceRates {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO shipping_price_rates(method_id, seq, min_price, max_price, rate) VALUES(?, ?, ?, ?, ?)
		`), m.ID, i, pr.MinPrice, pr.MaxPrice, pr.Rate); err != nil {
			return err
		}
	}
	return tx.Commit()
}
