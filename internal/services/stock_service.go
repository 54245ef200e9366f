package services

import (
	"context"

	"storefront/internal/domain"
	"storefront/internal/repos"
)

type StockService struct {
	Ledger *repos.StockLedger
}

func NewStockService(ledger *repos.StockLedger) *StockService {
	return &StockService{Ledger: ledger}
}

// ValidateStock lists every short line in the cart. It reads without locking
// and may be stale by the time a checkout commits.
func (s *StockService) ValidateStock(ctx context.Context, cartID string) ([]domain.StockIssue, error) {
	return s.Ledger.Validate(ctx, cartID)
}

// CheckStock is ValidateStock as an error: nil when the cart can be fulfilled,
// *domain.StockValidationError otherwise.
func (s *StockService) CheckStock(ctx context.Context, cartID string) error {
	issues, err := s.ValidateStock(ctx, cartID)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return &domain.StockValidationError{Issues: issues}
	}
	return nil
}

func (s *StockService) SetProductStock(ctx context.Context, productID string, level domain.StockLevel) error {
	return s.Ledger.SetProductStock(ctx, productID, level)
}

func (s *StockService) SetVariantStock(ctx context.Context, variantID string, n int) error {
	return s.Ledger.SetVariantStock(ctx, variantID, n)
}

// Availability buckets a counter for display. Untracked products are always in stock.
func (s *StockService) Availability(ctx context.Context, productID, variantID string) (domain.Availability, error) {
	var level domain.StockLevel
	if variantID != "" {
		n, err := s.Ledger.VariantStock(ctx, variantID)
		if err != nil {
			return domain.Availability{}, err
		}
		level = domain.Tracked(n)
	} else {
		l, err := s.Ledger.ProductStock(ctx, productID)
		if err != nil {
			return domain.Availability{}, err
		}
		level = l
	}
	return domain.AvailabilityOf(level), nil
}
