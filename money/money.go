// Package money holds the rounding and formatting rules for ledger amounts.
//
// Amounts are stored as float64 so the store can apply them with native
// atomic increments; every amount that enters the engine is first rounded to
// cents through shopspring/decimal so increments never accumulate binary
// fractions beyond that precision.
package money

import (
	"fmt"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Cents is the number of decimal places kept for cash amounts.
const Cents = 2

// Round rounds v half away from zero to cents.
func Round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(Cents).InexactFloat64()
}

// Parse reads a decimal amount such as "12.34" and rounds it to cents.
func Parse(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d.Round(Cents).InexactFloat64(), nil
}

// Allocation returns the share of an income amount routed to savings:
// amount × pct / 100 rounded to cents. A non-positive pct allocates nothing.
func Allocation(amount, pct float64) float64 {
	if pct <= 0 || amount <= 0 {
		return 0
	}
	return decimal.NewFromFloat(amount).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(Cents).
		InexactFloat64()
}

// Add sums amounts in decimal and rounds the result to cents.
func Add(vs ...float64) float64 {
	sum := decimal.Zero
	for _, v := range vs {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return sum.Round(Cents).InexactFloat64()
}

// Format renders amount in currency for display, e.g. "$1,234.50".
// Currencies unknown to go-money fall back to "1234.50 XYZ".
func Format(amount float64, currency string) string {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" || gomoney.GetCurrency(code) == nil {
		return fmt.Sprintf("%.2f %s", amount, code)
	}
	return gomoney.NewFromFloat(amount, code).Display()
}
