// Package repotest opens throwaway databases and loads fixtures for tests.
package repotest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	"storefront/internal/repos"
)

// Open returns a migrated SQLite database in a file under t.TempDir(), so
// every pooled connection shares it and locking behaves as in production.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := repos.OpenDB(filepath.Join(t.TempDir(), "store.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Store(db *sqlx.DB) *repos.Store {
	return repos.NewStore(db, 30*time.Second, 5*time.Second)
}

func Price(n int64) *int64 { return &n }

func Product(t testing.TB, db *sqlx.DB, id string, price int64, stock domain.StockLevel) {
	t.Helper()
	err := repos.NewProductRepo(db).Save(context.Background(), domain.Product{
		ID: id, Name: "Product " + id, Price: price, Stock: stock, Active: true,
	})
	require.NoError(t, err)
}

// Variant adds a variant; a nil price inherits the product's.
func Variant(t testing.TB, db *sqlx.DB, id, productID string, price *int64, stock int) {
	t.Helper()
	err := repos.NewProductRepo(db).SaveVariant(context.Background(), domain.ProductVariant{
		ID: id, ProductID: productID, Name: "Variant " + id, Price: price, Stock: stock,
	})
	require.NoError(t, err)
}

type Line struct {
	ProductID string
	VariantID string
	Qty       int
}

// Cart creates a cart holding lines and returns its id.
func Cart(t testing.TB, db *sqlx.DB, lines ...Line) string {
	t.Helper()
	ctx := context.Background()
	carts := repos.NewCartRepo(db)
	id, err := carts.Create(ctx, "")
	require.NoError(t, err)
	for _, l := range lines {
		require.NoError(t, carts.AddItem(ctx, id, l.ProductID, l.VariantID, l.Qty))
	}
	return id
}

func FlatShipping(t testing.TB, db *sqlx.DB, id string, rate int64) {
	t.Helper()
	require.NoError(t, repos.NewShippingRepo(db).Save(context.Background(), domain.ShippingMethod{
		ID: id, Name: "Flat " + id, RateType: domain.RateFlat, FlatRate: &rate, IsActive: true,
	}))
}

// Shipping is a complete address for method.
func Shipping(method string) domain.ShippingInfo {
	return domain.ShippingInfo{
		Name: "Ann Example", Street: "1 Main St", City: "Springfield", State: "IL",
		PostalCode: "62701", Country: "US", MethodID: method,
	}
}

func ProductStock(t testing.TB, db *sqlx.DB, id string) domain.StockLevel {
	t.Helper()
	l, err := repos.NewStockLedger(db).ProductStock(context.Background(), id)
	require.NoError(t, err)
	return l
}

func VariantStock(t testing.TB, db *sqlx.DB, id string) int {
	t.Helper()
	n, err := repos.NewStockLedger(db).VariantStock(context.Background(), id)
	require.NoError(t, err)
	return n
}

func Count(t testing.TB, db *sqlx.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, db.Rebind(query), args...))
	return n
}
