package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/domain"
)

func ptr(n int64) *int64 { return &n }

// SeedDemo loads a small catalog and the shipping methods. Products and
// variants that already exist keep their current price and stock; shipping
// methods are rewritten. An admin account is created only when adminPassword is set.
func SeedDemo(ctx context.Context, db *sqlx.DB, adminEmail, adminPassword string) error {
	products := NewProductRepo(db)
	for _, p := range []domain.Product{
		{ID: "p-keyboard", Name: "Mechanical Keyboard", Price: 8900, Stock: domain.Tracked(25), WeightGrams: ptr(950), Active: true},
		{ID: "p-mouse", Name: "Wireless Mouse", Price: 2900, Stock: domain.Tracked(40), WeightGrams: ptr(120), Active: true},
		{ID: "p-ebook", Name: "Go Concurrency Handbook (PDF)", Price: 1500, Stock: domain.Untracked(), Active: true},
		{ID: "p-tshirt", Name: "Gopher T-Shirt", Price: 2000, Stock: domain.Untracked(), WeightGrams: ptr(180), Active: true},
	} {
		if _, err := products.Get(ctx, p.ID); err == nil {
			continue
		}
		if err := products.Save(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	for _, v := range []domain.ProductVariant{
		{ID: "v-tshirt-s", ProductID: "p-tshirt", Name: "S", Stock: 10},
		{ID: "v-tshirt-m", ProductID: "p-tshirt", Name: "M", Stock: 15},
		{ID: "v-tshirt-xl", ProductID: "p-tshirt", Name: "XL", Price: ptr(2200), Stock: 5},
	} {
		if _, err := products.Variant(ctx, v.ID); err == nil {
			continue
		}
		if err := products.SaveVariant(ctx, v); err != nil {
			return fmt.Errorf("seed variant %s: %w", v.ID, err)
		}
	}

	shipping := NewShippingRepo(db)
	for _, m := range []domain.ShippingMethod{
		{ID: "standard", Name: "Standard", RateType: domain.RateFlat, FlatRate: ptr(700), IsActive: true},
		{ID: "tiered", Name: "Tiered by order value", RateType: domain.RatePriceBased, IsActive: true,
			PriceRates: []domain.PriceRate{{MinPrice: 0, MaxPrice: 5000, Rate: 500}, {MinPrice: 5001, MaxPrice: 10000, Rate: 1000}}},
		{ID: "free-over-50", Name: "Free over $50", RateType: domain.RateFree, FlatRate: ptr(700), FreeShippingThreshold: ptr(5000), IsActive: true},
		{ID: "freight", Name: "Freight", RateType: domain.RateWeightBased, FlatRate: ptr(1500), IsActive: true},
	} {
		if err := shipping.Save(ctx, m); err != nil {
			return fmt.Errorf("seed shipping %s: %w", m.ID, err)
		}
	}

	if adminPassword == "" {
		return nil
	}
	users := NewUserRepo(db)
	if _, err := users.ByEmail(ctx, adminEmail); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = users.Create(ctx, adminEmail, "Admin", string(hash), "ADMIN")
	return err
}
