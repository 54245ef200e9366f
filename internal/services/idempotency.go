package services

import (
	"context"
	"errors"

	"storefront/internal/domain"
	"storefront/internal/repos"
)

// IdempotencyGuard recognises payment sessions that have already produced an order.
type IdempotencyGuard struct {
	Orders *repos.OrderRepo
	Carts  *repos.CartRepo
}

// Existing returns the order already recorded for paymentRef, if any. On a hit
// it also makes sure the order's cart is gone, which is a no-op when it already is.
func (g *IdempotencyGuard) Existing(ctx context.Context, paymentRef string) (domain.Order, bool, error) {
	o, err := g.Orders.ByPaymentRef(ctx, paymentRef)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, err
	}
	if err := g.Carts.Delete(ctx, o.CartID); err != nil {
		return domain.Order{}, false, err
	}
	return o, true, nil
}
