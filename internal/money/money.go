// Package money holds the decimal helpers every price calculation goes through.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept on monetary values.
const Places = 2

var hundred = decimal.NewFromInt(100)

// Zero is the zero amount.
var Zero = decimal.Zero

// Round2 rounds x to two fractional digits, half away from zero.
func Round2(x decimal.Decimal) decimal.Decimal {
	return x.Round(Places)
}

// ClampZero returns max(0, x).
func ClampZero(x decimal.Decimal) decimal.Decimal {
	if x.IsNegative() {
		return decimal.Zero
	}
	return x
}

// Percent returns x * pct / 100 without rounding.
func Percent(x, pct decimal.Decimal) decimal.Decimal {
	return x.Mul(pct).Div(hundred)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Fixed renders x with exactly two fractional digits.
func Fixed(x decimal.Decimal) string {
	return Round2(x).StringFixed(Places)
}

// Format renders x as a dollar amount with thousands separators, e.g. $1,234.50.
func Format(x decimal.Decimal) string {
	s := Fixed(x)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + "." + frac
}

// MustParse parses a decimal literal and panics on malformed input. Intended for constants and tests.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Parse parses a decimal literal.
func Parse(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}
