package services

import (
	"context"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/repos"
)

type CartService struct {
	Carts *repos.CartRepo
	Prods *repos.ProductRepo
}

func NewCartService(carts *repos.CartRepo, prods *repos.ProductRepo) *CartService {
	return &CartService{Carts: carts, Prods: prods}
}

func (s *CartService) Create(ctx context.Context, userID string) (string, error) {
	return s.Carts.Create(ctx, userID)
}

// Add puts qty units of a product (optionally a variant of it) into the cart.
// Adding the same product/variant again increases the existing line.
func (s *CartService) Add(ctx context.Context, cartID, productID, variantID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("quantity %d: %w", qty, domain.ErrInvalidInput)
	}
	if _, err := s.Carts.Load(ctx, cartID); err != nil {
		return err
	}
	p, err := s.Prods.Get(ctx, productID)
	if err != nil {
		return err
	}
	if !p.Active {
		return fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if variantID != "" {
		v, err := s.Prods.Variant(ctx, variantID)
		if err != nil {
			return err
		}
		if v.ProductID != productID {
			return fmt.Errorf("variant %s is not a variant of %s: %w", variantID, productID, domain.ErrInvalidInput)
		}
	}
	return s.Carts.AddItem(ctx, cartID, productID, variantID, qty)
}

type CartLine struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"lineTotal"`
}

type CartView struct {
	ID       string     `json:"id"`
	Items    []CartLine `json:"items"`
	Subtotal int64      `json:"subtotal"`
}

// View shows the cart at current catalog prices.
func (s *CartService) View(ctx context.Context, cartID string) (CartView, error) {
	cart, err := s.Carts.Load(ctx, cartID)
	if err != nil {
		return CartView{}, err
	}
	v := CartView{ID: cart.ID, Items: make([]CartLine, 0, len(cart.Items)), Subtotal: cart.Subtotal()}
	for _, it := range cart.Items {
		price := it.EffectivePrice()
		v.Items = append(v.Items, CartLine{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      it.DisplayName(),
			UnitPrice: price,
			Quantity:  it.Quantity,
			LineTotal: price * int64(it.Quantity),
		})
	}
	return v, nil
}
