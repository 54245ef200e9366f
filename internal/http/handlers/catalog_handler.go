package handlers

import (
	"github.com/gofiber/fiber/v2"

	"storefront/internal/services"
	"storefront/internal/validate"
)

type CatalogHandler struct {
	Catalog *services.CatalogService
	Stock   *services.StockService
}

// GET /api/v1/products
func (h *CatalogHandler) Products(c *fiber.Ctx) error {
	ps, err := h.Catalog.ListProducts(c.UserContext())
	if err != nil {
		return apiError(c, "catalog.list", err)
	}
	return c.JSON(ps)
}

// GET /api/v1/products/:id
func (h *CatalogHandler) Product(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id")
	}
	p, err := h.Catalog.GetProduct(c.UserContext(), id)
	if err != nil {
		return apiError(c, "catalog.product", err)
	}
	return c.JSON(fiber.Map{"product": p.Product, "variants": p.Variants})
}

// GET /api/v1/products/:id/availability?variant=
func (h *CatalogHandler) Availability(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id")
	}
	variant := c.Query("variant")
	if variant != "" {
		if _, ok := validate.ID(variant); !ok {
			return badRequest(c, "variant")
		}
	}
	a, err := h.Stock.Availability(c.UserContext(), id, variant)
	if err != nil {
		return apiError(c, "catalog.availability", err)
	}
	return c.JSON(a)
}

// GET /api/v1/shipping-methods
func (h *CatalogHandler) ShippingMethods(c *fiber.Ctx) error {
	ms, err := h.Catalog.ShippingMethods(c.UserContext())
	if err != nil {
		return apiError(c, "catalog.shipping", err)
	}
	return c.JSON(ms)
}
