package pie

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount bounds. Any accepted amount has at most 33 significant digits, so
// every store keeps it exactly.
const (
	maxAmountLen       = 64
	maxAmountScale     = 18
	maxAmountIntDigits = 15
)

// ParseAmount parses a non-negative real number with at most 15 integer
// digits and 18 decimal places.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	if len(s) > maxAmountLen {
		return decimal.Zero, fmt.Errorf("%w: value too long", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}
	exp := int64(d.Exponent())
	if exp < -maxAmountScale {
		return decimal.Zero, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, maxAmountScale)
	}
	if int64(len(d.Coefficient().String()))+exp > maxAmountIntDigits {
		return decimal.Zero, fmt.Errorf("%w: %q is too large", ErrInvalidAmount, s)
	}
	return d, nil
}

// FormatAmount renders an amount for chat output.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
