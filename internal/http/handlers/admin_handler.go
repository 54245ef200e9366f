package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"storefront/internal/domain"
	applog "storefront/internal/log"
	"storefront/internal/services"
	"storefront/internal/validate"
)

type AdminHandler struct {
	Orders *services.OrderService
	Stock  *services.StockService
}

// GET /admin/orders
func (h *AdminHandler) OrdersPage(c *fiber.Ctx) error {
	ords, err := h.Orders.Latest(c.UserContext(), 100)
	if err != nil {
		applog.Error(c, "admin.orders.list.fail", err, nil)
		return notFoundPage(c, fiber.StatusInternalServerError, "Could not load orders")
	}
	return render(c, "admin_orders", fiber.Map{"Orders": ords})
}

// POST /admin/orders/:id/status
func (h *AdminHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).SendString("missing id")
	}
	status := c.FormValue("status")
	o, err := h.Orders.UpdateStatus(c.UserContext(), id, status,
		strings.TrimSpace(c.FormValue("carrier")), strings.TrimSpace(c.FormValue("tracking")))
	if err != nil {
		code, msg := statusFor(err)
		applog.Error(c, "admin.orders.update.fail", err, map[string]any{"order_id": id, "status": status})
		return c.Status(code).SendString(msg)
	}
	applog.Audit(c, "admin.orders.update", map[string]any{"order_id": id, "order": o.Number, "status": string(o.Status)})
	return c.Redirect("/admin/orders")
}

// POST /admin/stock
// Form: product_id, optional variant_id, qty. An empty qty on a product marks it untracked.
func (h *AdminHandler) UpdateStock(c *fiber.Ctx) error {
	pid, okP := validate.ID(c.FormValue("product_id"))
	vid := strings.TrimSpace(c.FormValue("variant_id"))
	qtyStr := strings.TrimSpace(c.FormValue("qty"))
	if vid != "" {
		if _, ok := validate.ID(vid); !ok {
			return c.Status(fiber.StatusBadRequest).SendString("invalid input")
		}
	}

	var err error
	switch {
	case vid != "":
		n, cerr := strconv.Atoi(qtyStr)
		if cerr != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).SendString("invalid input")
		}
		err = h.Stock.SetVariantStock(c.UserContext(), vid, n)
	case okP && qtyStr == "":
		err = h.Stock.SetProductStock(c.UserContext(), pid, domain.Untracked())
	case okP:
		n, cerr := strconv.Atoi(qtyStr)
		if cerr != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).SendString("invalid input")
		}
		err = h.Stock.SetProductStock(c.UserContext(), pid, domain.Tracked(n))
	default:
		return c.Status(fiber.StatusBadRequest).SendString("invalid input")
	}
	fields := map[string]any{"product": pid, "variant": vid, "qty": qtyStr}
	if err != nil {
		code, msg := statusFor(err)
		applog.Error(c, "admin.stock.save.fail", err, fields)
		return c.Status(code).SendString(msg)
	}
	applog.Audit(c, "admin.stock.save", fields)
	return c.Redirect("/admin/orders")
}
