package validate

import (
	"regexp"
	"strconv"
	"strings"

	"storefront/internal/domain"
)

var (
	reEmail   = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	reID      = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	rePostal  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 -]{1,9}$`)
	reCountry = regexp.MustCompile(`^[A-Z]{2}$`)
	reRef     = regexp.MustCompile(`^[A-Za-z0-9_-]{1,255}$`)
)

const maxQty = 50

func Email(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || len(s) > 254 {
		return "", false
	}
	return s, reEmail.MatchString(s)
}

// Qty parses a line quantity, clamping to [1, 50].
func Qty(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 1
	}
	if n > maxQty {
		return maxQty
	}
	return n
}

// ClampQty is Qty for already-decoded JSON numbers.
func ClampQty(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxQty {
		return maxQty
	}
	return n
}

// ID validates a simple resource identifier (product, variant, cart, shipping method ids).
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

// PaymentRef validates a provider session reference such as cs_test_a1B2.
func PaymentRef(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reRef.MatchString(s)
}

// Name validates a displayable name with a reasonable max length.
func Name(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 100 {
		return "", false
	}
	return s, true
}

func Status(s string) (domain.OrderStatus, bool) {
	return domain.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(s)))
}

// Shipping normalises an address and returns the names of the fields that failed.
func Shipping(in domain.ShippingInfo) (domain.ShippingInfo, []string) {
	var bad []string
	text := func(field, v string, max int) string {
		v = strings.TrimSpace(v)
		if v == "" || len(v) > max {
			bad = append(bad, field)
		}
		return v
	}
	out := domain.ShippingInfo{
		Name:   text("name", in.Name, 100),
		Street: text("street", in.Street, 200),
		City:   text("city", in.City, 100),
		State:  text("state", in.State, 100),
	}
	out.PostalCode = strings.TrimSpace(in.PostalCode)
	if !rePostal.MatchString(out.PostalCode) {
		bad = append(bad, "postalCode")
	}
	out.Country = strings.ToUpper(strings.TrimSpace(in.Country))
	if !reCountry.MatchString(out.Country) {
		bad = append(bad, "country")
	}
	var ok bool
	if out.MethodID, ok = ID(in.MethodID); !ok {
		bad = append(bad, "methodId")
	}
	return out, bad
}

// Password enforces the login password policy: 8 to 64 bytes mixing lower, upper, digit and symbol.
func Password(s string) bool {
	l := len(s)
	if l < 8 || l > 64 {
		return false
	}
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range s {
		switch {
		case 'a' <= r && r <= 'z':
			hasLower = true
		case 'A' <= r && r <= 'Z':
			hasUpper = true
		case '0' <= r && r <= '9':
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	return hasLower && hasUpper && hasDigit && hasSymbol
}
