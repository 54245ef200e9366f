package services

import (
	"context"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/repos"
)

type OrderService struct {
	Orders *repos.OrderRepo
}

func NewOrderService(orders *repos.OrderRepo) *OrderService {
	return &OrderService{Orders: orders}
}

func (s *OrderService) ByNumber(ctx context.Context, number string) (domain.Order, error) {
	return s.Orders.ByNumber(ctx, number)
}

func (s *OrderService) Latest(ctx context.Context, limit int) ([]domain.Order, error) {
	return s.Orders.ListLatest(ctx, limit)
}

func (s *OrderService) ForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.Orders.ListByUser(ctx, userID)
}

// UpdateStatus applies an admin status change. Carrier and tracking number
// may only be set when the order ships.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, status, carrier, tracking string) (domain.Order, error) {
	next, ok := domain.ParseOrderStatus(status)
	if !ok {
		return domain.Order{}, fmt.Errorf("status %q: %w", status, domain.ErrInvalidInput)
	}
	if next != domain.StatusShipped && (carrier != "" || tracking != "") {
		return domain.Order{}, fmt.Errorf("carrier details need status %s: %w", domain.StatusShipped, domain.ErrInvalidInput)
	}
	return s.Orders.UpdateStatus(ctx, orderID, next, carrier, tracking)
}
