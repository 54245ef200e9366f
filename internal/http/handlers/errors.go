package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"storefront/internal/domain"
	applog "storefront/internal/log"
	"storefront/internal/repos"
)

// statusFor maps a service error onto an HTTP status and a message safe to show.
func statusFor(err error) (int, string) {
	var sv *domain.StockValidationError
	var su *domain.StockUnavailableError
	switch {
	case errors.As(err, &sv), errors.As(err, &su):
		return fiber.StatusConflict, "insufficient stock"
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrEmptyCart):
		return fiber.StatusBadRequest, "cart is empty"
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidSession):
		return fiber.StatusBadRequest, "invalid input"
	case errors.Is(err, domain.ErrInvalidTransition):
		return fiber.StatusConflict, "order cannot move to that status"
	case errors.Is(err, domain.ErrPaymentNotConfirmed):
		return fiber.StatusPaymentRequired, "payment not confirmed"
	case errors.Is(err, domain.ErrSequencingTimeout), errors.Is(err, domain.ErrTransactionTimeout), errors.Is(err, domain.ErrLockTimeout):
		return fiber.StatusServiceUnavailable, "the store is busy, please try again"
	case repos.IsUniqueViolation(err):
		return fiber.StatusConflict, "payment reference already used"
	}
	return fiber.StatusInternalServerError, "something went wrong, please try again"
}

func stockIssues(err error) []domain.StockIssue {
	var sv *domain.StockValidationError
	if errors.As(err, &sv) {
		return sv.Issues
	}
	var su *domain.StockUnavailableError
	if errors.As(err, &su) {
		return []domain.StockIssue{su.Issue()}
	}
	return nil
}

// apiError logs err under action and writes the JSON error body.
func apiError(c *fiber.Ctx, action string, err error) error {
	status, msg := statusFor(err)
	body := fiber.Map{"error": msg}
	if issues := stockIssues(err); issues != nil {
		body["issues"] = issues
	}
	if domain.IsRetryable(err) {
		body["retryable"] = true
	}
	c.Status(status)
	if status >= fiber.StatusInternalServerError {
		applog.Error(c, action+".fail", err, nil)
	} else {
		applog.Info(c, action+".reject", map[string]any{"reason": err.Error()})
	}
	return c.JSON(body)
}

func badRequest(c *fiber.Ctx, fields ...string) error {
	applog.Security(c, "validation.fail", map[string]any{"fields": fields})
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input", "fields": fields})
}
