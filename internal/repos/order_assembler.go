package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"storefront/internal/domain"
)

// OrderAssembler turns a cart into order rows. It never talks to anything
// outside the transaction it is handed; the OrderCreated outbox row is the
// only trace it leaves for post-commit work.
type OrderAssembler struct{}

func NewOrderAssembler() *OrderAssembler { return &OrderAssembler{} }

// Write inserts the order and its items, records an OrderCreated event, and
// deletes the cart. A cart that no longer exists means another checkout
// consumed it first, and the whole write fails with domain.ErrNotFound.
func (a *OrderAssembler) Write(ctx context.Context, tx *sqlx.Tx, cart domain.Cart, number string, d domain.OrderDraft) (domain.Order, error) {
	now := time.Now().UTC()
	o := domain.Order{
		ID:         uuid.NewString(),
		Number:     number,
		CartID:     cart.ID,
		UserID:     d.UserID,
		Email:      d.Email,
		Shipping:   d.Shipping,
		Subtotal:   d.Subtotal,
		Total:      d.Total,
		PaymentRef: d.PaymentRef,
		Status:     domain.StatusPending,
		CreatedAt:  now,
	}

	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO orders(id, order_number, cart_id, user_id, email,
		  ship_name, ship_street, ship_city, ship_state, ship_postal, ship_country,
		  shipping_method_id, shipping_cost, subtotal, total, payment_ref, status, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		o.ID, o.Number, o.CartID, nullString(o.UserID), o.Email,
		o.Shipping.Name, o.Shipping.Street, o.Shipping.City, o.Shipping.State, o.Shipping.PostalCode, o.Shipping.Country,
		o.Shipping.MethodID, o.Shipping.Cost, o.Subtotal, o.Total, o.PaymentRef, string(o.Status), now, now)
	if err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	o.Items = make([]domain.OrderItem, 0, len(cart.Items))
	for i, it := range cart.Items {
		oi := domain.OrderItem{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			ProductName: it.DisplayName(),
			Price:       it.EffectivePrice(),
			Quantity:    it.Quantity,
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO order_items(id, order_id, product_id, variant_id, product_name, price, quantity, line_no)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?)`),
			oi.ID, oi.OrderID, oi.ProductID, oi.VariantID, oi.ProductName, oi.Price, oi.Quantity, i+1); err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
		o.Items = append(o.Items, oi)
	}

	if err := insertOutboxEvent(ctx, tx, EventOrderCreated, o.ID, orderCreated(o)); err != nil {
		return domain.Order{}, err
	}

	deleted, err := deleteCart(ctx, tx, cart.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("delete cart: %w", err)
	}
	if !deleted {
		return domain.Order{}, fmt.Errorf("cart %s: %w", cart.ID, domain.ErrNotFound)
	}
	return o, nil
}

func orderCreated(o domain.Order) domain.OrderCreated {
	ev := domain.OrderCreated{
		OrderID:    o.ID,
		Number:     o.Number,
		Email:      o.Email,
		Total:      o.Total,
		PaymentRef: o.PaymentRef,
		CreatedAt:  o.CreatedAt,
		Items:      make([]domain.OrderCreatedLn, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		ev.Items = append(ev.Items, domain.OrderCreatedLn{
			ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity, Price: it.Price,
		})
	}
	return ev
}

func insertOutboxEvent(ctx context.Context, tx *sqlx.Tx, eventType, aggregateID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO outbox_events(id, event_type, aggregate_id, payload, created_at) VALUES(?, ?, ?, ?, ?)`),
		uuid.NewString(), eventType, aggregateID, string(body), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
