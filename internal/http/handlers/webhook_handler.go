package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"storefront/internal/domain"
	applog "storefront/internal/log"
	"storefront/internal/payment"
	"storefront/internal/services"
)

type WebhookHandler struct {
	Checkout *services.CheckoutService
	Secret   string
}

// POST /webhooks/stripe
// A 2xx tells the provider to stop retrying. Only failures that may succeed
// later (timeouts, stock races, database errors) answer 5xx.
func (h *WebhookHandler) Stripe(c *fiber.Ctx) error {
	if h.Secret == "" {
		applog.Error(c, "webhook.unconfigured", errors.New("STRIPE_WEBHOOK_SECRET is not set"), nil)
		return c.SendStatus(fiber.StatusServiceUnavailable)
	}
	ev, err := payment.VerifyWebhook(c.Body(), c.Get("Stripe-Signature"), h.Secret)
	if err != nil {
		applog.Security(c, "webhook.signature.fail", map[string]any{"reason": err.Error()})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid signature"})
	}

	switch ev.Type {
	case payment.EventSessionCompleted, payment.EventAsyncPaymentSucceeded:
	default:
		return c.JSON(fiber.Map{"status": "ignored", "type": ev.Type})
	}
	if ev.SessionID == "" {
		return c.JSON(fiber.Map{"status": "ignored", "type": ev.Type})
	}

	o, err := h.Checkout.MaterializeFromPaymentSession(c.UserContext(), ev.SessionID)
	switch {
	case err == nil:
		applog.Audit(c, "webhook.order", map[string]any{"event": ev.ID, "session": ev.SessionID, "order": o.Number})
		return c.JSON(fiber.Map{"status": "ok", "order": o.Number})
	case errors.Is(err, domain.ErrPaymentNotConfirmed), errors.Is(err, domain.ErrInvalidSession), errors.Is(err, domain.ErrEmptyCart):
		applog.Info(c, "webhook.rejected", map[string]any{"event": ev.ID, "session": ev.SessionID, "reason": err.Error()})
		return c.JSON(fiber.Map{"status": "rejected"})
	case errors.Is(err, domain.ErrNotFound):
		// cart gone and no order for this session: nothing a retry can fix
		applog.Error(c, "webhook.orphaned", err, map[string]any{"event": ev.ID, "session": ev.SessionID})
		return c.JSON(fiber.Map{"status": "rejected"})
	}
	applog.Error(c, "webhook.fail", err, map[string]any{"event": ev.ID, "session": ev.SessionID, "retryable": domain.IsRetryable(err)})
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "temporary failure"})
}
