package handlers

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"storefront/internal/domain"
	applog "storefront/internal/log"
	"storefront/internal/services"
)

type OrderHandler struct {
	Order *services.OrderService
}

// canSee allows the owning user, an admin, or anyone holding the payment
// reference the order was created from (the checkout success redirect carries it).
func canSee(c *fiber.Ctx, o domain.Order) bool {
	u, _ := c.Locals("user").(*domain.User)
	if u.IsAdmin() {
		return true
	}
	if u != nil && o.UserID != "" && u.ID == o.UserID {
		return true
	}
	ref := c.Query("ref")
	return ref != "" && subtle.ConstantTimeCompare([]byte(ref), []byte(o.PaymentRef)) == 1
}

func (h *OrderHandler) load(c *fiber.Ctx) (domain.Order, bool, error) {
	o, err := h.Order.ByNumber(c.UserContext(), c.Params("number"))
	if err != nil {
		return domain.Order{}, false, err
	}
	if !canSee(c, o) {
		applog.Security(c, "access.denied.order", map[string]any{"order": o.Number})
		return domain.Order{}, false, nil
	}
	return o, true, nil
}

// GET /order/:number
func (h *OrderHandler) View(c *fiber.Ctx) error {
	o, ok, err := h.load(c)
	if err != nil {
		status, _ := statusFor(err)
		if status >= fiber.StatusInternalServerError {
			applog.Error(c, "order.view.fail", err, nil)
			return notFoundPage(c, status, "Could not load the order")
		}
		return notFoundPage(c, fiber.StatusNotFound, "Order not found")
	}
	if !ok {
		return notFoundPage(c, fiber.StatusNotFound, "Order not found")
	}
	return render(c, "order", fiber.Map{"Order": o})
}

// GET /api/v1/orders/:number
func (h *OrderHandler) JSON(c *fiber.Ctx) error {
	o, ok, err := h.load(c)
	if err != nil {
		return apiError(c, "order.get", err)
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	}
	return c.JSON(o)
}

// GET /api/v1/orders lists the logged-in user's orders.
func (h *OrderHandler) History(c *fiber.Ctx) error {
	u, _ := c.Locals("user").(*domain.User)
	if u == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "login required"})
	}
	orders, err := h.Order.ForUser(c.UserContext(), u.ID)
	if err != nil {
		return apiError(c, "orders.history", err)
	}
	return c.JSON(orders)
}
