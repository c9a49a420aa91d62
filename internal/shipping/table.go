// Package shipping prices delivery methods from a flat per-item rate table.
package shipping

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/money"
)

const (
	MethodStandard = "standard"
	MethodExpress  = "express"
)

// Rate is the cost of one method: Base plus PerItem for every unit beyond the free allowance.
type Rate struct {
	Base    decimal.Decimal
	PerItem decimal.Decimal
}

// Table maps methods to rates. FreeItems units ship at the base rate only.
type Table struct {
	Standard  Rate
	Express   Rate
	FreeItems int
}

// DefaultTable returns the stock rates: standard 5.99 + 0.75/item, express 12.99 + 1.50/item above 5 units.
func DefaultTable() Table {
	return Table{
		Standard:  Rate{Base: decimal.RequireFromString("5.99"), PerItem: decimal.RequireFromString("0.75")},
		Express:   Rate{Base: decimal.RequireFromString("12.99"), PerItem: decimal.RequireFromString("1.50")},
		FreeItems: 5,
	}
}

// NormalizeMethod lower-cases method and falls back to standard for anything unknown.
func NormalizeMethod(method string) string {
	if strings.EqualFold(strings.TrimSpace(method), MethodExpress) {
		return MethodExpress
	}
	return MethodStandard
}

// Cost returns the shipping charge for itemCount units and the method actually applied.
func (t Table) Cost(method string, itemCount int) (decimal.Decimal, string) {
	resolved := NormalizeMethod(method)
	rate := t.Standard
	if resolved == MethodExpress {
		rate = t.Express
	}
	extra := itemCount - t.FreeItems
	if extra < 0 {
		extra = 0
	}
	cost := rate.Base.Add(rate.PerItem.Mul(decimal.NewFromInt(int64(extra))))
	return money.Round2(cost), resolved
}

// Methods lists the quotes for every method, used by the preview endpoint.
func (t Table) Methods(itemCount int) map[string]decimal.Decimal {
	std, _ := t.Cost(MethodStandard, itemCount)
	exp, _ := t.Cost(MethodExpress, itemCount)
	return map[string]decimal.Decimal{MethodStandard: std, MethodExpress: exp}
}
