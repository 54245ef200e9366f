package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")
	ErrInvalidSession      = errors.New("payment session is missing checkout metadata")
	ErrSequencingTimeout   = errors.New("order number allocation timed out")
	ErrTransactionTimeout  = errors.New("transaction timed out")
	ErrLockTimeout         = errors.New("lock wait timed out")
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrInvalidInput        = errors.New("invalid input")
)

type StockIssue struct {
	ProductName string `json:"productName"`
	Requested   int    `json:"requested"`
	Available   int    `json:"available"`
}

// StockValidationError collects every short line of a cart (advisory path).
type StockValidationError struct {
	Issues []StockIssue
}

func (e *StockValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: requested %d, available %d", is.ProductName, is.Requested, is.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// StockUnavailableError aborts a checkout transaction on the first short line.
type StockUnavailableError struct {
	ProductID   string
	VariantID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *StockUnavailableError) Error() string {
	return fmt.Sprintf("stock unavailable for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

func (e *StockUnavailableError) Issue() StockIssue {
	return StockIssue{ProductName: e.ProductName, Requested: e.Requested, Available: e.Available}
}

// IsRetryable reports whether the same checkout may succeed if tried again
// (after the shopper adjusts the cart, or once contention clears).
func IsRetryable(err error) bool {
	var sv *StockValidationError
	var su *StockUnavailableError
	switch {
	case errors.As(err, &sv), errors.As(err, &su):
		return true
	case errors.Is(err, ErrSequencingTimeout), errors.Is(err, ErrTransactionTimeout), errors.Is(err, ErrLockTimeout):
		return true
	}
	return false
}
