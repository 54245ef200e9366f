package services

import (
	"context"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/repos"
)

type CatalogService struct {
	Prods    *repos.ProductRepo
	Shipping *repos.ShippingRepo
}

func NewCatalogService(prods *repos.ProductRepo, shipping *repos.ShippingRepo) *CatalogService {
	return &CatalogService{Prods: prods, Shipping: shipping}
}

type ProductDetail struct {
	domain.Product
	Variants []domain.ProductVariant
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.Prods.List(ctx)
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (ProductDetail, error) {
	p, err := s.Prods.Get(ctx, id)
	if err != nil {
		return ProductDetail{}, err
	}
	if !p.Active {
		return ProductDetail{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	vs, err := s.Prods.Variants(ctx, id)
	if err != nil {
		return ProductDetail{}, err
	}
	return ProductDetail{Product: p, Variants: vs}, nil
}

func (s *CatalogService) ShippingMethods(ctx context.Context) ([]domain.ShippingMethod, error) {
	return s.Shipping.ListActive(ctx)
}
