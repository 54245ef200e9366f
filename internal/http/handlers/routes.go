package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	applog "storefront/internal/log"
)

func isMachinePath(p string) bool {
	return strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/webhooks/")
}

// NewApp builds the fiber app with the error handler and base middleware.
func NewApp(views fiber.Views) *fiber.App {
	app := fiber.New(fiber.Config{
		Views: views,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				applog.Error(c, "server.error", err, nil)
			}
			msg := "Something went wrong. Please try again."
			if code < fiber.StatusInternalServerError && fe != nil {
				msg = fe.Message
			}
			if isMachinePath(c.Path()) {
				return c.Status(code).JSON(fiber.Map{"error": msg})
			}
			if rerr := c.Status(code).Render("notfound", fiber.Map{"Message": msg}); rerr != nil {
				return c.Status(code).SendString(msg)
			}
			return nil
		},
	})
	app.Server().MaxRequestBodySize = 1 << 20
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(helmet.New())
	return app
}

// Register mounts every route.
func Register(app *fiber.App, d *Deps) {
	app.Use(LoadUser(d.Auth))
	// HTML forms only; JSON clients and the payment provider carry no CSRF token.
	app.Use(csrf.New(csrf.Config{
		KeyLookup:      "form:csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		ContextKey:     "csrf",
		Next: func(c *fiber.Ctx) bool {
			return isMachinePath(c.Path())
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Security(c, "csrf.fail", map[string]any{"reason": err.Error()})
			return notFoundPage(c, fiber.StatusForbidden, "Security check failed. Please refresh and try again.")
		},
	}))

	api := app.Group("/api/v1")
	api.Get("/products", d.CatalogHandler.Products)
	api.Get("/products/:id", d.CatalogHandler.Product)
	api.Get("/products/:id/availability", d.CatalogHandler.Availability)
	api.Get("/shipping-methods", d.CatalogHandler.ShippingMethods)

	api.Post("/carts", d.CartHandler.Create)
	api.Get("/carts/:id", d.CartHandler.View)
	api.Post("/carts/:id/items", d.CartHandler.AddItem)
	api.Get("/carts/:id/stock", d.CartHandler.StockCheck)
	api.Get("/carts/:id/quote", d.CartHandler.Quote)

	checkoutLimiter := limiter.New(limiter.Config{
		Max:        20,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|checkout"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.checkout.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	})
	api.Post("/checkout", checkoutLimiter, d.CheckoutHandler.Direct)
	api.Post("/checkout/session", checkoutLimiter, d.CheckoutHandler.Session)
	app.Get("/checkout/success", d.CheckoutHandler.Success)
	app.Post("/webhooks/stripe", d.WebhookHandler.Stripe)

	api.Get("/orders", RequireUser(), d.OrderHandler.History)
	api.Get("/orders/:number", d.OrderHandler.JSON)
	app.Get("/order/:number", d.OrderHandler.View)

	app.Get("/login", d.AuthHandler.LoginForm)
	app.Post("/login", limiter.New(limiter.Config{
		Max:        5,
		Expiration: 10 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).Render("login", fiber.Map{"Err": "Too many attempts. Please try again later."})
		},
	}), d.AuthHandler.Login)
	app.Post("/logout", d.AuthHandler.Logout)

	admin := app.Group("/admin", RequireAdmin(d.Auth))
	admin.Get("/orders", d.AdminHandler.OrdersPage)
	admin.Post("/orders/:id/status", d.AdminHandler.UpdateOrderStatus)
	admin.Post("/stock", d.AdminHandler.UpdateStock)

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Use(func(c *fiber.Ctx) error {
		if isMachinePath(c.Path()) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
		}
		return notFoundPage(c, fiber.StatusNotFound, "Page not found")
	})
}
