package handlers

import (
	"github.com/gofiber/fiber/v2"

	"storefront/internal/domain"
	applog "storefront/internal/log"
	"storefront/internal/services"
	"storefront/internal/validate"
)

type CartHandler struct {
	Cart     *services.CartService
	Stock    *services.StockService
	Checkout *services.CheckoutService
}

func currentUserID(c *fiber.Ctx) string {
	if u, ok := c.Locals("user").(*domain.User); ok && u != nil {
		return u.ID
	}
	return ""
}

// POST /api/v1/carts
func (h *CartHandler) Create(c *fiber.Ctx) error {
	id, err := h.Cart.Create(c.UserContext(), currentUserID(c))
	if err != nil {
		return apiError(c, "cart.create", err)
	}
	applog.Info(c, "cart.create", map[string]any{"cart": id})
	c.Location("/api/v1/carts/" + id)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

type addItemBody struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// POST /api/v1/carts/:id/items
func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	cartID, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id")
	}
	var body addItemBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "body")
	}
	productID, ok := validate.ID(body.ProductID)
	if !ok {
		return badRequest(c, "productId")
	}
	if body.VariantID != "" {
		if _, ok := validate.ID(body.VariantID); !ok {
			return badRequest(c, "variantId")
		}
	}
	qty := validate.ClampQty(body.Quantity)
	if err := h.Cart.Add(c.UserContext(), cartID, productID, body.VariantID, qty); err != nil {
		return apiError(c, "cart.add", err)
	}
	cv, err := h.Cart.View(c.UserContext(), cartID)
	if err != nil {
		return apiError(c, "cart.view", err)
	}
	return c.JSON(cv)
}

// GET /api/v1/carts/:id
func (h *CartHandler) View(c *fiber.Ctx) error {
	cartID, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id")
	}
	cv, err := h.Cart.View(c.UserContext(), cartID)
	if err != nil {
		return apiError(c, "cart.view", err)
	}
	return c.JSON(cv)
}

// GET /api/v1/carts/:id/stock
func (h *CartHandler) StockCheck(c *fiber.Ctx) error {
	cartID, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id")
	}
	issues, err := h.Stock.ValidateStock(c.UserContext(), cartID)
	if err != nil {
		return apiError(c, "cart.stock", err)
	}
	return c.JSON(fiber.Map{"ok": len(issues) == 0, "issues": issues})
}

// GET /api/v1/carts/:id/quote?method=
func (h *CartHandler) Quote(c *fiber.Ctx) error {
	cartID, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id")
	}
	method, ok := validate.ID(c.Query("method"))
	if !ok {
		return badRequest(c, "method")
	}
	q, err := h.Checkout.Quote(c.UserContext(), cartID, method)
	if err != nil {
		return apiError(c, "cart.quote", err)
	}
	return c.JSON(q)
}
