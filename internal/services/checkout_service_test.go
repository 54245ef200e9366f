package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	"storefront/internal/payment"
	"storefront/internal/repos"
	"storefront/internal/repos/repotest"
	"storefront/internal/services"
)

func newCheckout(t *testing.T) (*services.CheckoutService, *sqlx.DB, *payment.MemoryGateway) {
	t.Helper()
	db := repotest.Open(t)
	gw := payment.NewMemoryGateway(false)
	svc := services.NewCheckoutService(repotest.Store(db), repos.NewOrderSequencer(5*time.Second), gw)
	svc.PublicBaseURL = "https://shop.example"
	repotest.FlatShipping(t, db, "standard", 700)
	return svc, db, gw
}

func request(cartID, ref string) services.CheckoutRequest {
	return services.CheckoutRequest{
		CartID: cartID, Shipping: repotest.Shipping("standard"), PaymentRef: ref,
		Email: "ann@example.com", Subtotal: 1000, Total: 1700,
	}
}

// paidSession registers a paid provider session for cartID.
func paidSession(gw *payment.MemoryGateway, id, cartID string, subtotal int64) {
	ship := repotest.Shipping("standard")
	ship.Cost = 700
	gw.Put(payment.Session{
		ID:            id,
		PaymentStatus: payment.StatusPaid,
		Metadata: payment.CheckoutMetadata{
			CartID: cartID, Email: "ann@example.com", Shipping: ship,
		}.Encode(),
		AmountSubtotal: subtotal,
		AmountTotal:    subtotal + 700,
	})
}

func TestCheckoutFromCartCreatesOrder(t *testing.T) {
	svc, db, _ := newCheckout(t)
	ctx := context.Background()
	repotest.Product(t, db, "p1", 500, domain.Tracked(5))
	cartID := repotest.Cart(t, db, repotest.Line{ProductID: "p1", Qty: 2})

	o, err := svc.CheckoutFromCart(ctx, request(cartID, "direct-1"))
	require.NoError(t, err)
	assert.Equal(t, "ORD-000001", o.Number)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, int64(1700), o.Total)
	lvl, _ := repotest.ProductStock(t, db, "p1").Quantity()
	assert.Equal(t, 3, lvl)

	_, err = svc.Carts.Load(ctx, cartID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, 1, repotest.Count(t, db, `SELECT COUNT(*) FROM outbox_events`))
}

func TestCheckoutEmptyAndMissingCart(t *testing.T) {
	svc, db, _ := newCheckout(t)
	ctx := context.Background()

	_, err := svc.CheckoutFromCart(ctx, request(repotest.Cart(t, db), "r1"))
	assert.True(t, errors.Is(err, domain.ErrEmptyCart))

	_, err = svc.CheckoutFromCart(ctx, request("no-such-cart", "r2"))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Zero(t, repotest.Count(t, db, `SELECT COUNT(*) FROM orders`))
}

func TestCheckoutRetiresCart(t *testing.T) {
	svc, db, _ := newCheckout(t)
	repotest.Product(t, db, "p1", 500, domain.Untracked())
	cartID := repotest.Cart(t, db, repotest.Line{ProductID: "p1", Qty: 1})

	_, err := svc.CheckoutFromCart(context.Background(), request(cartID, "r1"))
	require.NoError(t, err)
	_, err = svc.CheckoutFromCart(context.Background(), request(cartID, "r2"))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, 1, repotest.Count(t, db, `SELECT COUNT(*) FROM orders`))
}

func TestCheckoutStockShortfallChangesNothing(t *testing.T) {
	svc, db, _ := newCheckout(t)
	repotest.Product(t, db, "a", 100, domain.Tracked(10))
	repotest.Product(t, db, "b", 100, domain.Tracked(1))
	cartID := repotest.Cart(t, db, repotest.Line{ProductID: "a", Qty: 2}, repotest.Line{ProductID: "b", Qty: 2})

	_, err := svc.CheckoutFromCart(context.Background(), request(cartID, "r1"))
	var su *domain.StockUnavailableError
	require.ErrorAs(t, err, &su)
	assert.Equal(t, "b", su.ProductID)
	assert.True(t, domain.IsRetryable(err))

	a, _ := repotest.ProductStock(t, db, "a").Quantity()
	assert.Equal(t, 10, a)
	_, err = svc.Carts.Load(context.Background(), cartID)
	assert.NoError(t, err)
	assert.Zero(t, repotest.Count(t, db, `SELECT COUNT(*) FROM orders`))
}

type failingSequencer struct{}

func (failingSequencer) Next(context.Context, *sqlx.Tx) (string, error) {
	return "", fmt.Errorf("allocate: %w", domain.ErrSequencingTimeout)
}

func TestCheckoutIsAtomicWhenNumberingFails(t *testing.T) {
	svc, db, _ := newCheckout(t)
	svc.Sequencer = failingSequencer{}
	repotest.Product(t, db, "p1", 100, domain.Tracked(4))
	repotest.Product(t, db, "p2", 100, domain.Untracked())
	repotest.Variant(t, db, "v1", "p2", nil, 2)
	cartID := repotest.Cart(t, db, repotest.Line{ProductID: "p1", Qty: 4}, repotest.Line{ProductID: "p2", VariantID: "v1", Qty: 1})

	_, err := svc.CheckoutFromCart(context.Background(), request(cartID, "r1"))
	require.True(t, errors.Is(err, domain.ErrSequencingTimeout))

	n, _ := repotest.ProductStock(t, db, "p1").Quantity()
	assert.Equal(t, 4, n)
	assert.Equal(t, 2, repotest.VariantStock(t, db, "v1"))
	cart, err := svc.Carts.Load(context.Background(), cartID)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	assert.Zero(t, repotest.Count(t, db, `SELECT COUNT(*) FROM orders`))
	assert.Zero(t, repotest.Count(t, db, `SELECT COUNT(*) FROM order_items`))
	assert.Zero(t, repotest.Count(t, db, `SELECT COUNT(*) FROM outbox_events`))
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	svc, db, _ := newCheckout(t)
	const stock, shoppers = 3, 8
	repotest.Product(t, db, "hot", 100, domain.Tracked(stock))
	carts := make([]string, shoppers)
	for i := range carts {
		carts[i] = repotest.Cart(t, db, repotest.Line{ProductID: "hot", Qty: 1})
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		placed  []string
		short   int
		unknown []error
	)
	for i, cartID := range carts {
		wg.Add(1)
		go func(i int, cartID string) {
			defer wg.Done()
			o, err := svc.CheckoutFromCart(context.Background(), request(cartID, fmt.Sprintf("r%d", i)))
			mu.Lock()
			defer mu.Unlock()
			var su *domain.StockUnavailableError
			switch {
			case err == nil:
				placed = append(placed, o.Number)
			case errors.As(err, &su):
				short++
			default:
				unknown = append(unknown, err)
			}
		}(i, cartID)
	}
	wg.Wait()

	require.Empty(t, unknown)
	assert.Len(t, placed, stock)
	assert.Equal(t, shoppers-stock, short)
	left, _ := repotest.ProductStock(t, db, "hot").Quantity()
	assert.Zero(t, left)

	// numbers are unique and contiguous
	seen := map[string]bool{}
	for _, n := range placed {
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}
	for i := 1; i <= stock; i++ {
		assert.True(t, seen[repos.FormatOrderNumber(int64(i))])
	}
}

func TestConcurrentVariantCheckoutsNeverOversell(t *testing.T) {
	svc, db, _ := newCheckout(t)
	const stock, shoppers = 5, 24
	repotest.Product(t, db, "tee", 2000, domain.Untracked())
	repotest.Variant(t, db, "tee-xl", "tee", repotest.Price(2400), stock)
	carts := make([]string, shoppers)
	for i := range carts {
		carts[i] = repotest.Cart(t, db, repotest.Line{ProductID: "tee", VariantID: "tee-xl", Qty: 1})
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		placed  int
		short   int
		unknown []error
	)
	for i, cartID := range carts {
		wg.Add(1)
		go func(i int, cartID string) {
			defer wg.Done()
			_, err := svc.CheckoutFromCart(context.Background(), request(cartID, fmt.Sprintf("v%d", i)))
			mu.Lock()
			defer mu.Unlock()
			var su *domain.StockUnavailableError
			switch {
			case err == nil:
				placed++
			case errors.As(err, &su):
				assert.Equal(t, "tee-xl", su.VariantID)
				short++
			default:
				unknown = append(unknown, err)
			}
		}(i, cartID)
	}
	wg.Wait()

	require.Empty(t, unknown)
	assert.Equal(t, stock, placed)
	assert.Equal(t, shoppers-stock, short)
	assert.Zero(t, repotest.VariantStock(t, db, "tee-xl"))
	assert.Equal(t, stock, repotest.Count(t, db, `SELECT COUNT(*) FROM order_items WHERE variant_id = ?`, "tee-xl"))
	assert.Equal(t, shoppers-stock, repotest.Count(t, db, `SELECT COUNT(*) FROM carts`))
}

func TestOrderKeepsPriceSnapshot(t *testing.T) {
	svc, db, _ := newCheckout(t)
	ctx := context.Background()
	repotest.Product(t, db, "p1", 1000, domain.Untracked())
	repotest.Variant(t, db, "v1", "p1", repotest.Price(1200), 5)
	cartID := repotest.Cart(t, db, repotest.Line{ProductID: "p1", Qty: 1}, repotest.Line{ProductID: "p1", VariantID: "v1", Qty: 2})

	o, err := svc.PlaceOrder(ctx, request(cartID, "r1"))
	require.NoError(t, err)
	assert.Equal(t, int64(3400), o.Subtotal)
	assert.Equal(t, int64(700), o.Shipping.Cost)
	assert.Equal(t, int64(4100), o.Total)

	require.NoError(t, repos.NewProductRepo(db).UpdatePrice(ctx, "p1", 9999))
	got, err := svc.Orders.ByNumber(ctx, o.Number)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, int64(1000), got.Items[0].Price)
	assert.Equal(t, int64(1200), got.Items[1].Price)
	assert.Equal(t, int64(4100), got.Total)
}

func TestPlaceOrderTotalsMatchOrderedLines(t *testing.T) {
	svc, db, _ := newCheckout(t)
	ctx := context.Background()
	repotest.Product(t, db, "p1", 300, domain.Untracked())
	repotest.Product(t, db, "p2", 450, domain.Untracked())

	for round := 0; round < 5; round++ {
		cartID := repotest.Cart(t, db, repotest.Line{ProductID: "p1", Qty: 1})
		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				// fails once the cart is gone
				_ = svc.Carts.AddItem(ctx, cartID, "p2", "", 1)
				time.Sleep(time.Millisecond)
			}
		}()

		o, err := svc.PlaceOrder(ctx, request(cartID, fmt.Sprintf("r%d", round)))
		close(stop)
		wg.Wait()
		require.NoError(t, err)

		got, err := svc.Orders.ByNumber(ctx, o.Number)
		require.NoError(t, err)
		var lines int64
		for _, it := range got.Items {
			lines += it.Price * int64(it.Quantity)
		}
		assert.Equal(t, lines, got.Subtotal, "round %d", round)
		assert.Equal(t, got.Subtotal+got.Shipping.Cost, got.Total, "round %d", round)
		assert.Equal(t, int64(700), got.Shipping.Cost)
	}
}

func TestQuote(t *testing.T) {
	svc, db, _ := newCheckout(t)
	ctx := context.Background()
	repotest.Product(t, db, "p1", 2500, domain.Untracked())
	require.NoError(t, repos.NewShippingRepo(db).Save(ctx, domain.ShippingMethod{
		ID: "free50", Name: "Free over 50", RateType: domain.RateFree,
		FreeShippingThreshold: p(5000), FlatRate: p(700), IsActive: true,
	}))
	require.NoError(t, repos.NewShippingRepo(db).Save(ctx, domain.ShippingMethod{
		ID: "retired", Name: "Retired", RateType: domain.RateFlat, FlatRate: p(100),
	}))
	cartID := repotest.Cart(t, db, repotest.Line{ProductID: "p1", Qty: 1})

	q, err := svc.Quote(ctx, cartID, "free50")
	require.NoError(t, err)
	assert.Equal(t, services.Quote{Subtotal: 2500, Shipping: 700, Total: 3200}, q)

	require.NoError(t, svc.Carts.AddItem(ctx, cartID, "p1", "", 1))
	q, err = svc.Quote(ctx, cartID, "free50")
	require.NoError(t, err)
	assert.Equal(t, services.Quote{Subtotal: 5000, Shipping: 0, Total: 5000}, q)

	_, err = svc.Quote(ctx, cartID, "retired")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = svc.Quote(ctx, cartID, "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMaterializeIsIdempotent(t *testing.T) {
	svc, db, gw := newCheckout(t)
	ctx := context.Background()
	repotest.Product(t, db, "p1", 1000, domain.Tracked(5))
	cartID := repotest.Cart(t, db, repotest.Line{ProductID: "p1", Qty: 2})
	paidSession(gw, "cs_1", cartID, 2000)

	first, err := svc.MaterializeFromPaymentSession(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "cs_1", first.PaymentRef)
	assert.Equal(t, int64(2000), first.Subtotal)
	assert.Equal(t, int64(2700), first.Total)
	assert.Equal(t, int64(700), first.Shipping.Cost)
	assert.Equal(t, 1, gw.Lookups())

	second, err := svc.MaterializeFromPaymentSession(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Number, second.Number)
	assert.Equal(t, 1, gw.Lookups(), "a known session is answered without asking the provider")

	n, _ := repotest.ProductStock(t, db, "p1").Quantity()
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, repotest.Count(t, db, `SELECT COUNT(*) FROM orders`))
	assert.Equal(t, 1, repotest.Count(t, db, `SELECT COUNT(*) FROM outbox_events`))
}

// relabelingGateway reports session ids in a different form than it was asked for.
type relabelingGateway struct{ *payment.MemoryGateway }

func (g relabelingGateway) RetrieveSession(ctx context.Context, ref string) (payment.Session, error) {
	s, err := g.MemoryGateway.RetrieveSession(ctx, ref)
	s.ID = strings.ToUpper(s.ID)
	return s, err
}

func TestMaterializeKeysOrderBySessionRef(t *testing.T) {
	svc, db, gw := newCheckout(t)
	svc.Gateway = relabelingGateway{gw}
	ctx := context.Background()
	repotest.Product(t, db, "p1", 1000, domain.Tracked(5))
	cartID := repotest.Cart(t, db, repotest.Line{ProductID: "p1", Qty: 1})
	paidSession(gw, "cs_mixed", cartID, 1000)

	first, err := svc.MaterializeFromPaymentSession(ctx, "cs_mixed")
	require.NoError(t, err)
	assert.Equal(t, "cs_mixed", first.PaymentRef)

	second, err := svc.MaterializeFromPaymentSession(ctx, "cs_mixed")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, gw.Lookups())
	n, _ := repotest.ProductStock(t, db, "p1").Quantity()
	assert.Equal(t, 4, n)
}

func TestConcurrentDuplicateDeliveries(t *testing.T) {
	svc, db, gw := newCheckout(t)
	repotest.Product(t, db, "p1", 1000, domain.Tracked(5))
	cartID := repotest.Cart(t, db, repotest.Line{ProductID: "p1", Qty: 1})
	paidSession(gw, "cs_dup", cartID, 1000)

	const deliveries = 6
	results := make([]domain.Order, deliveries)
	errs := make([]error, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.MaterializeFromPaymentSession(context.Background(), "cs_dup")
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
	}
	n, _ := repotest.ProductStock(t, db, "p1").Quantity()
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, repotest.Count(t, db, `SELECT COUNT(*) FROM orders`))
}

func TestMaterializeRejectsUnpaidAndInvalidSessions(t *testing.T) {
	svc, db, gw := newCheckout(t)
	ctx := context.Background()
	repotest.Product(t, db, "p1", 1000, domain.Tracked(5))
	cartID := repotest.Cart(t, db, repotest.Line{ProductID: "p1", Qty: 1})

	gw.Put(payment.Session{ID: "cs_unpaid", PaymentStatus: "unpaid", Metadata: map[string]string{"cart_id": cartID, "email": "a@b.co"}})
	_, err := svc.MaterializeFromPaymentSession(ctx, "cs_unpaid")
	assert.True(t, errors.Is(err, domain.ErrPaymentNotConfirmed))

	gw.Put(payment.Session{ID: "cs_bare", PaymentStatus: payment.StatusPaid, Metadata: map[string]string{"email": "a@b.co"}})
	_, err = svc.MaterializeFromPaymentSession(ctx, "cs_bare")
	assert.True(t, errors.Is(err, domain.ErrInvalidSession))

	_, err = svc.MaterializeFromPaymentSession(ctx, "cs_unknown")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	n, _ := repotest.ProductStock(t, db, "p1").Quantity()
	assert.Equal(t, 5, n)
	_, err = svc.Carts.Load(ctx, cartID)
	assert.NoError(t, err)
	assert.Zero(t, repotest.Count(t, db, `SELECT COUNT(*) FROM orders`))

	// once paid, the same session goes through
	gw.MarkPaid("cs_unpaid")
	o, err := svc.MaterializeFromPaymentSession(ctx, "cs_unpaid")
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", o.Email)
}

func TestStartPaymentSession(t *testing.T) {
	svc, db, gw := newCheckout(t)
	ctx := context.Background()
	repotest.Product(t, db, "p1", 1500, domain.Tracked(2))
	cartID := repotest.Cart(t, db, repotest.Line{ProductID: "p1", Qty: 2})

	sess, err := svc.StartPaymentSession(ctx, cartID, repotest.Shipping("standard"), "ann@example.com", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sess.ID, "cs_mem_"))
	assert.False(t, sess.Paid())
	assert.Equal(t, int64(3000), sess.AmountSubtotal)
	assert.Equal(t, int64(3700), sess.AmountTotal)
	assert.Equal(t, "https://shop.example/checkout/success?session_id="+sess.ID, sess.URL)

	md, err := payment.DecodeMetadata(sess)
	require.NoError(t, err)
	assert.Equal(t, cartID, md.CartID)
	assert.Equal(t, int64(700), md.Shipping.Cost)

	// nothing is written until the provider confirms payment
	assert.Zero(t, repotest.Count(t, db, `SELECT COUNT(*) FROM orders`))
	gw.MarkPaid(sess.ID)
	o, err := svc.MaterializeFromPaymentSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3700), o.Total)

	short := repotest.Cart(t, db, repotest.Line{ProductID: "p1", Qty: 1})
	_, err = svc.StartPaymentSession(ctx, short, repotest.Shipping("standard"), "ann@example.com", "")
	var sv *domain.StockValidationError
	require.ErrorAs(t, err, &sv)
	assert.Equal(t, 0, sv.Issues[0].Available)

	_, err = svc.StartPaymentSession(ctx, repotest.Cart(t, db), repotest.Shipping("standard"), "ann@example.com", "")
	assert.True(t, errors.Is(err, domain.ErrEmptyCart))
}
