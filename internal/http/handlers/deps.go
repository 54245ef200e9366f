package handlers

import (
	"github.com/jmoiron/sqlx"

	"storefront/internal/config"
	"storefront/internal/payment"
	"storefront/internal/repos"
	"storefront/internal/services"
)

type Deps struct {
	Auth *services.AuthService

	AuthHandler     *AuthHandler
	CatalogHandler  *CatalogHandler
	CartHandler     *CartHandler
	CheckoutHandler *CheckoutHandler
	WebhookHandler  *WebhookHandler
	OrderHandler    *OrderHandler
	AdminHandler    *AdminHandler

	Checkout *services.CheckoutService
}

func NewDeps(db *sqlx.DB, cfg config.Config, gw payment.Gateway) *Deps {
	store := repos.NewStore(db, cfg.TxTimeout, cfg.LockWait)
	prodRepo := repos.NewProductRepo(db)
	cartRepo := repos.NewCartRepo(db)
	orderRepo := repos.NewOrderRepo(db)
	shipRepo := repos.NewShippingRepo(db)
	ledger := repos.NewStockLedger(db)

	authSvc := &services.AuthService{Users: repos.NewUserRepo(db)}
	catalogSvc := services.NewCatalogService(prodRepo, shipRepo)
	stockSvc := services.NewStockService(ledger)
	cartSvc := services.NewCartService(cartRepo, prodRepo)
	orderSvc := services.NewOrderService(orderRepo)
	checkoutSvc := services.NewCheckoutService(store, repos.NewOrderSequencer(cfg.SequenceTimeout), gw)
	checkoutSvc.PublicBaseURL = cfg.PublicBaseURL
	if cfg.Currency != "" {
		checkoutSvc.Currency = cfg.Currency
	}

	return &Deps{
		Auth:            authSvc,
		AuthHandler:     &AuthHandler{Auth: authSvc},
		CatalogHandler:  &CatalogHandler{Catalog: catalogSvc, Stock: stockSvc},
		CartHandler:     &CartHandler{Cart: cartSvc, Stock: stockSvc, Checkout: checkoutSvc},
		CheckoutHandler: &CheckoutHandler{Checkout: checkoutSvc},
		WebhookHandler:  &WebhookHandler{Checkout: checkoutSvc, Secret: cfg.StripeWebhookSecret},
		OrderHandler:    &OrderHandler{Order: orderSvc},
		AdminHandler:    &AdminHandler{Orders: orderSvc, Stock: stockSvc},
		Checkout:        checkoutSvc,
	}
}
