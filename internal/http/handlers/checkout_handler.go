package handlers

import (
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"storefront/internal/domain"
	applog "storefront/internal/log"
	"storefront/internal/services"
	"storefront/internal/validate"
)

type CheckoutHandler struct {
	Checkout *services.CheckoutService
}

type checkoutBody struct {
	CartID     string              `json:"cartId"`
	Email      string              `json:"email"`
	PaymentRef string              `json:"paymentRef"`
	Shipping   domain.ShippingInfo `json:"shipping"`
}

func (b checkoutBody) validate(needRef bool) (checkoutBody, []string) {
	var bad []string
	var ok bool
	if b.CartID, ok = validate.ID(b.CartID); !ok {
		bad = append(bad, "cartId")
	}
	if b.Email, ok = validate.Email(b.Email); !ok {
		bad = append(bad, "email")
	}
	if needRef {
		if b.PaymentRef, ok = validate.PaymentRef(b.PaymentRef); !ok {
			bad = append(bad, "paymentRef")
		}
	}
	var shipBad []string
	b.Shipping, shipBad = validate.Shipping(b.Shipping)
	for _, f := range shipBad {
		bad = append(bad, "shipping."+f)
	}
	return b, bad
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Direct(c *fiber.Ctx) error {
	var body checkoutBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "body")
	}
	body, bad := body.validate(true)
	if len(bad) > 0 {
		return badRequest(c, bad...)
	}
	o, err := h.Checkout.PlaceOrder(c.UserContext(), services.CheckoutRequest{
		CartID:     body.CartID,
		Shipping:   body.Shipping,
		PaymentRef: body.PaymentRef,
		Email:      body.Email,
		UserID:     currentUserID(c),
	})
	if err != nil {
		return apiError(c, "checkout.direct", err)
	}
	applog.Audit(c, "checkout.direct", map[string]any{"order": o.Number, "total": o.Total})
	c.Location("/api/v1/orders/" + o.Number)
	return c.Status(fiber.StatusCreated).JSON(o)
}

// POST /api/v1/checkout/session
func (h *CheckoutHandler) Session(c *fiber.Ctx) error {
	var body checkoutBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "body")
	}
	body, bad := body.validate(false)
	if len(bad) > 0 {
		return badRequest(c, bad...)
	}
	sess, err := h.Checkout.StartPaymentSession(c.UserContext(), body.CartID, body.Shipping, body.Email, currentUserID(c))
	if err != nil {
		return apiError(c, "checkout.session", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"sessionId": sess.ID, "url": sess.URL})
}

// GET /checkout/success?session_id=
// The provider redirects the shopper here; the webhook may or may not have
// created the order already, and either way the same order comes back.
func (h *CheckoutHandler) Success(c *fiber.Ctx) error {
	ref, ok := validate.PaymentRef(c.Query("session_id"))
	if !ok {
		return notFoundPage(c, fiber.StatusBadRequest, "Missing checkout session")
	}
	o, err := h.Checkout.MaterializeFromPaymentSession(c.UserContext(), ref)
	if err != nil {
		status, _ := statusFor(err)
		if status >= fiber.StatusInternalServerError {
			applog.Error(c, "checkout.success.fail", err, map[string]any{"session": ref})
		} else {
			applog.Info(c, "checkout.success.reject", map[string]any{"session": ref, "reason": err.Error()})
		}
		msg := "We could not complete your order. Please try again."
		if errors.Is(err, domain.ErrPaymentNotConfirmed) {
			msg = "Your payment has not been confirmed yet."
		}
		return notFoundPage(c, status, msg)
	}
	return c.Redirect("/order/" + o.Number + "?ref=" + url.QueryEscape(o.PaymentRef))
}
