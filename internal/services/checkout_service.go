package services

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"storefront/internal/domain"
	applog "storefront/internal/log"
	"storefront/internal/payment"
	"storefront/internal/repos"
)

// Sequencer allocates the order number inside the checkout transaction.
type Sequencer interface {
	Next(ctx context.Context, tx *sqlx.Tx) (string, error)
}

// StockReserver takes stock for the cart lines inside the checkout transaction.
type StockReserver interface {
	ReserveAndDecrement(ctx context.Context, tx *sqlx.Tx, items []domain.CartItem) error
}

// CheckoutRequest is the direct checkout input. Subtotal and Total are stored
// as given; use Quote to compute them.
type CheckoutRequest struct {
	CartID     string
	Shipping   domain.ShippingInfo
	PaymentRef string
	Email      string
	UserID     string
	Subtotal   int64
	Total      int64
}

type Quote struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type CheckoutService struct {
	Store     *repos.Store
	Carts     *repos.CartRepo
	Orders    *repos.OrderRepo
	Shipping  *repos.ShippingRepo
	Stock     StockReserver
	Sequencer Sequencer
	Assembler *repos.OrderAssembler
	Guard     *IdempotencyGuard
	Gateway   payment.Gateway

	PublicBaseURL string
	Currency      string
}

func NewCheckoutService(store *repos.Store, seq Sequencer, gw payment.Gateway) *CheckoutService {
	carts := repos.NewCartRepo(store.DB)
	orders := repos.NewOrderRepo(store.DB)
	return &CheckoutService{
		Store:     store,
		Carts:     carts,
		Orders:    orders,
		Shipping:  repos.NewShippingRepo(store.DB),
		Stock:     repos.NewStockLedger(store.DB),
		Sequencer: seq,
		Assembler: repos.NewOrderAssembler(),
		Guard:     &IdempotencyGuard{Orders: orders, Carts: carts},
		Gateway:   gw,
		Currency:  "usd",
	}
}

// CheckoutFromCart turns the cart into an order in one transaction: stock is
// re-checked and taken, a number is allocated, the order is written and the
// cart deleted. Any failure leaves the database as it was.
func (s *CheckoutService) CheckoutFromCart(ctx context.Context, req CheckoutRequest) (domain.Order, error) {
	return s.checkout(ctx, req, nil)
}

// pricer fills in the request's amounts from the cart read inside the transaction.
type pricer func(cart domain.Cart, req *CheckoutRequest)

func (s *CheckoutService) checkout(ctx context.Context, req CheckoutRequest, price pricer) (domain.Order, error) {
	cart, err := s.Carts.Load(ctx, req.CartID)
	if err != nil {
		return domain.Order{}, err
	}
	if len(cart.Items) == 0 {
		return domain.Order{}, fmt.Errorf("cart %s: %w", cart.ID, domain.ErrEmptyCart)
	}
	if req.UserID == "" {
		req.UserID = cart.UserID
	}

	var order domain.Order
	err = s.Store.WithTransaction(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		// re-read under the write lock; the cart may have changed or been consumed since
		cart, err := s.Carts.LoadTx(ctx, tx, req.CartID)
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return fmt.Errorf("cart %s: %w", cart.ID, domain.ErrEmptyCart)
		}
		if price != nil {
			price(cart, &req)
		}
		if err := s.Stock.ReserveAndDecrement(ctx, tx, cart.Items); err != nil {
			return err
		}
		number, err := s.Sequencer.Next(ctx, tx)
		if err != nil {
			return err
		}
		order, err = s.Assembler.Write(ctx, tx, cart, number, domain.OrderDraft{
			Email:      req.Email,
			UserID:     req.UserID,
			Shipping:   req.Shipping,
			PaymentRef: req.PaymentRef,
			Subtotal:   req.Subtotal,
			Total:      req.Total,
		})
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	applog.Audit(nil, "checkout.commit", map[string]any{
		"order": order.Number, "payment_ref": order.PaymentRef, "total": order.Total, "items": len(order.Items),
	})
	return order, nil
}

// MaterializeFromPaymentSession creates the order for a paid provider session.
// Calling it again for the same session returns the same order and changes nothing.
func (s *CheckoutService) MaterializeFromPaymentSession(ctx context.Context, sessionRef string) (domain.Order, error) {
	if o, ok, err := s.Guard.Existing(ctx, sessionRef); err != nil {
		return domain.Order{}, err
	} else if ok {
		applog.Info(nil, "checkout.duplicate", map[string]any{"order": o.Number, "payment_ref": sessionRef})
		return o, nil
	}

	sess, err := s.Gateway.RetrieveSession(ctx, sessionRef)
	if err != nil {
		return domain.Order{}, err
	}
	if !sess.Paid() {
		return domain.Order{}, fmt.Errorf("session %s is %q: %w", sessionRef, sess.PaymentStatus, domain.ErrPaymentNotConfirmed)
	}
	md, err := payment.DecodeMetadata(sess)
	if err != nil {
		return domain.Order{}, err
	}

	order, err := s.CheckoutFromCart(ctx, CheckoutRequest{
		CartID:     md.CartID,
		Shipping:   md.Shipping,
		PaymentRef: sessionRef,
		Email:      md.Email,
		UserID:     md.UserID,
		Subtotal:   sess.AmountSubtotal,
		Total:      sess.AmountTotal,
	})
	if err != nil {
		// A concurrent delivery of the same session may have won the race; its
		// order is the answer for this delivery too.
		if o, ok, gerr := s.Guard.Existing(ctx, sessionRef); gerr == nil && ok {
			applog.Info(nil, "checkout.duplicate", map[string]any{"order": o.Number, "payment_ref": sessionRef, "raced": true})
			return o, nil
		}
		return domain.Order{}, err
	}
	return order, nil
}

// Quote prices the cart with the given shipping method.
func (s *CheckoutService) Quote(ctx context.Context, cartID, methodID string) (Quote, error) {
	cart, err := s.Carts.Load(ctx, cartID)
	if err != nil {
		return Quote{}, err
	}
	q, _, err := s.quote(ctx, cart, methodID)
	return q, err
}

func (s *CheckoutService) quote(ctx context.Context, cart domain.Cart, methodID string) (Quote, domain.ShippingMethod, error) {
	method, err := s.activeMethod(ctx, methodID)
	if err != nil {
		return Quote{}, method, err
	}
	return priceCart(method, cart), method, nil
}

func (s *CheckoutService) activeMethod(ctx context.Context, methodID string) (domain.ShippingMethod, error) {
	method, err := s.Shipping.Get(ctx, methodID)
	if err != nil {
		return method, err
	}
	if !method.IsActive {
		return method, fmt.Errorf("shipping method %s inactive: %w", methodID, domain.ErrNotFound)
	}
	return method, nil
}

func priceCart(method domain.ShippingMethod, cart domain.Cart) Quote {
	sub := cart.Subtotal()
	ship := ComputeShippingCost(method, sub)
	return Quote{Subtotal: sub, Shipping: ship, Total: sub + ship}
}

// PlaceOrder is the direct path with server-side pricing. The amounts are
// computed from the same cart lines the order is written from.
func (s *CheckoutService) PlaceOrder(ctx context.Context, req CheckoutRequest) (domain.Order, error) {
	method, err := s.activeMethod(ctx, req.Shipping.MethodID)
	if err != nil {
		return domain.Order{}, err
	}
	return s.checkout(ctx, req, func(cart domain.Cart, r *CheckoutRequest) {
		q := priceCart(method, cart)
		r.Shipping.Cost = q.Shipping
		r.Subtotal = q.Subtotal
		r.Total = q.Total
	})
}

// StartPaymentSession opens a hosted payment page for the cart. The order is
// only created once the provider reports the session paid.
func (s *CheckoutService) StartPaymentSession(ctx context.Context, cartID string, ship domain.ShippingInfo, email, userID string) (payment.Session, error) {
	cart, err := s.Carts.Load(ctx, cartID)
	if err != nil {
		return payment.Session{}, err
	}
	if len(cart.Items) == 0 {
		return payment.Session{}, fmt.Errorf("cart %s: %w", cart.ID, domain.ErrEmptyCart)
	}
	if issues := repos.Shortfalls(cart.Items); len(issues) > 0 {
		return payment.Session{}, &domain.StockValidationError{Issues: issues}
	}
	q, method, err := s.quote(ctx, cart, ship.MethodID)
	if err != nil {
		return payment.Session{}, err
	}
	ship.Cost = q.Shipping
	if userID == "" {
		userID = cart.UserID
	}

	req := payment.SessionRequest{
		Currency:     s.Currency,
		Email:        email,
		ShippingName: method.Name,
		ShippingCost: q.Shipping,
		Metadata: payment.CheckoutMetadata{
			CartID: cart.ID, Email: email, UserID: userID, Shipping: ship,
		}.Encode(),
		SuccessURL: s.PublicBaseURL + "/checkout/success?session_id=" + payment.SessionIDPlaceholder,
		CancelURL:  s.PublicBaseURL + "/api/v1/carts/" + cart.ID,
	}
	for _, it := range cart.Items {
		req.LineItems = append(req.LineItems, payment.LineItem{
			Name: it.DisplayName(), UnitAmount: it.EffectivePrice(), Quantity: int64(it.Quantity),
		})
	}
	sess, err := s.Gateway.CreateSession(ctx, req)
	if err != nil {
		return payment.Session{}, err
	}
	applog.Info(nil, "checkout.session.created", map[string]any{"cart": cart.ID, "session": sess.ID, "total": q.Total})
	return sess, nil
}
