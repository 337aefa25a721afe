package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for amounts and balances.
const Scale = 2

var (
	ErrEmptyAmount    = errors.New("amount is required")
	ErrInvalidAmount  = errors.New("invalid amount format")
	ErrNegativeAmount = errors.New("amount cannot be negative")
)

// Parse converts a user supplied amount ("12.34", "12,34", " 5 ") into a decimal
// rounded half-up to Scale digits. Negative values are rejected; sign is carried
// elsewhere (transaction type).
func Parse(amountStr string) (decimal.Decimal, error) {
	d, err := ParseSigned(amountStr)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return d, nil
}

// ParseSigned is like Parse but accepts negative values. Used for balances,
// which may legitimately go below zero.
func ParseSigned(amountStr string) (decimal.Decimal, error) {
	s := strings.TrimSpace(amountStr)
	if s == "" {
		return decimal.Zero, ErrEmptyAmount
	}
	s, ok := decimalComma(s)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, amountStr)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, amountStr)
	}
	return d.Round(Scale), nil
}

// decimalComma accepts a single comma as the decimal separator when it is
// followed by one or two digits ("12,5", "12,34"). Any other comma is a
// grouping separator, which is rejected rather than guessed at.
func decimalComma(s string) (string, bool) {
	i := strings.IndexByte(s, ',')
	if i < 0 {
		return s, true
	}
	frac := s[i+1:]
	if strings.ContainsAny(s[:i], ".,") || len(frac) < 1 || len(frac) > 2 {
		return "", false
	}
	for _, r := range frac {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return s[:i] + "." + frac, true
}

// Format renders an amount with exactly Scale fractional digits
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// Sum adds up a list of amounts
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
