package domain

import "strconv"

// StockLevel is either Tracked(n) or Untracked. An untracked product is never
// short of stock and is never decremented.
type StockLevel struct {
	tracked bool
	qty     int
}

func Tracked(n int) StockLevel { return StockLevel{tracked: true, qty: n} }

func Untracked() StockLevel { return StockLevel{} }

func (s StockLevel) IsTracked() bool { return s.tracked }

// Quantity returns the tracked count; ok is false for untracked stock.
func (s StockLevel) Quantity() (n int, ok bool) { return s.qty, s.tracked }

// Covers reports whether requested units can be taken from this level.
func (s StockLevel) Covers(requested int) bool {
	return !s.tracked || s.qty >= requested
}

func (s StockLevel) String() string {
	if !s.tracked {
		return "untracked"
	}
	return strconv.Itoa(s.qty)
}

// MarshalJSON writes untracked stock as null.
func (s StockLevel) MarshalJSON() ([]byte, error) {
	if !s.tracked {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(s.qty)), nil
}

const lowStockBelow = 5

// Availability is the shopper-facing view of a stock counter.
type Availability struct {
	Status string `json:"status"` // IN_STOCK, LOW_STOCK or OUT_OF_STOCK
	Qty    *int   `json:"qty,omitempty"`
}

func AvailabilityOf(l StockLevel) Availability {
	n, tracked := l.Quantity()
	if !tracked {
		return Availability{Status: "IN_STOCK"}
	}
	a := Availability{Qty: &n}
	switch {
	case n >= lowStockBelow:
		a.Status = "IN_STOCK"
	case n > 0:
		a.Status = "LOW_STOCK"
	default:
		a.Status = "OUT_OF_STOCK"
	}
	return a
}
