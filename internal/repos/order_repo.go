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

type OrderRepo struct{ db *sqlx.DB }

func NewOrderRepo(db *sqlx.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderColumns = `id, order_number, cart_id, COALESCE(user_id, '') AS user_id, email,
	ship_name, ship_street, ship_city, ship_state, ship_postal, ship_country,
	shipping_method_id, shipping_cost, subtotal, total, payment_ref, status,
	carrier, tracking_number, created_at`

type orderRow struct {
	ID             string    `db:"id"`
	Number         string    `db:"order_number"`
	CartID         string    `db:"cart_id"`
	UserID         string    `db:"user_id"`
	Email          string    `db:"email"`
	ShipName       string    `db:"ship_name"`
	ShipStreet     string    `db:"ship_street"`
	ShipCity       string    `db:"ship_city"`
	ShipState      string    `db:"ship_state"`
	ShipPostal     string    `db:"ship_postal"`
	ShipCountry    string    `db:"ship_country"`
	MethodID       string    `db:"shipping_method_id"`
	ShippingCost   int64     `db:"shipping_cost"`
	Subtotal       int64     `db:"subtotal"`
	Total          int64     `db:"total"`
	PaymentRef     string    `db:"payment_ref"`
	Status         string    `db:"status"`
	Carrier        string    `db:"carrier"`
	TrackingNumber string    `db:"tracking_number"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r orderRow) toDomain() domain.Order {
	return domain.Order{
		ID:     r.ID,
		Number: r.Number,
		CartID: r.CartID,
		UserID: r.UserID,
		Email:  r.Email,
		Shipping: domain.ShippingInfo{
			Name:       r.ShipName,
			Street:     r.ShipStreet,
			City:       r.ShipCity,
			State:      r.ShipState,
			PostalCode: r.ShipPostal,
			Country:    r.ShipCountry,
			MethodID:   r.MethodID,
			Cost:       r.ShippingCost,
		},
		Subtotal:       r.Subtotal,
		Total:          r.Total,
		PaymentRef:     r.PaymentRef,
		Status:         domain.OrderStatus(r.Status),
		Carrier:        r.Carrier,
		TrackingNumber: r.TrackingNumber,
		CreatedAt:      r.CreatedAt,
	}
}

func (r *OrderRepo) one(ctx context.Context, where string, arg any) (domain.Order, error) {
	var row orderRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+orderColumns+` FROM orders WHERE `+where), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, err
	}
	o := row.toDomain()
	if err := r.db.SelectContext(ctx, &o.Items, r.db.Rebind(`
		SELECT id, order_id, product_id, variant_id, product_name, price, quantity
		FROM order_items WHERE order_id = ? ORDER BY line_no`), o.ID); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *OrderRepo) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.one(ctx, "id = ?", id)
}

func (r *OrderRepo) ByNumber(ctx context.Context, number string) (domain.Order, error) {
	return r.one(ctx, "order_number = ?", number)
}

// ByPaymentRef is the idempotency lookup for webhook deliveries.
func (r *OrderRepo) ByPaymentRef(ctx context.Context, ref string) (domain.Order, error) {
	return r.one(ctx, "payment_ref = ?", ref)
}

// ListLatest returns order headers newest first, without items.
func (r *OrderRepo) ListLatest(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, order_number DESC LIMIT ?`), limit); err != nil {
		return nil, err
	}
	return toOrders(rows), nil
}

func (r *OrderRepo) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_at DESC`), userID); err != nil {
		return nil, err
	}
	return toOrders(rows), nil
}

func toOrders(rows []orderRow) []domain.Order {
	out := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}

// UpdateStatus moves an order along its lifecycle. Carrier and tracking number
// are only written when non-empty. The current status is re-checked in the
// UPDATE so two racing admins cannot both apply a transition.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id string, next domain.OrderStatus, carrier, tracking string) (domain.Order, error) {
	cur, err := r.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !cur.Status.CanTransitionTo(next) {
		return domain.Order{}, fmt.Errorf("%s -> %s: %w", cur.Status, next, domain.ErrInvalidTransition)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE orders SET status = ?,
		  carrier = CASE WHEN ? = '' THEN carrier ELSE ? END,
		  tracking_number = CASE WHEN ? = '' THEN tracking_number ELSE ? END,
		  updated_at = ?
		WHERE id = ? AND status = ?`),
		string(next), carrier, carrier, tracking, tracking, time.Now().UTC(), id, string(cur.Status))
	if err != nil {
		return domain.Order{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Order{}, fmt.Errorf("%s changed concurrently: %w", id, domain.ErrInvalidTransition)
	}
	return r.Get(ctx, id)
}
