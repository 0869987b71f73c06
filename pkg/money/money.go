// Package money holds the fixed-point helpers used for order totals and
// payouts. Values are never carried as binary floats.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits persisted for every amount.
const Scale = 2

// Round rounds half away from zero to two decimals, which is half-up for
// the non-negative amounts handled here.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Parse reads a decimal amount from user input.
func Parse(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	return d, nil
}

// Totals is the priced breakdown of an order.
type Totals struct {
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
}

// ComputeTotals applies the flat shipping fee (only for a non-empty
// subtotal) and the tax rate on the subtotal. Each component is rounded
// before it is summed.
func ComputeTotals(subtotal, shippingFee, taxRate decimal.Decimal) Totals {
	subtotal = Round(subtotal)
	fee := decimal.Zero
	if subtotal.IsPositive() {
		fee = Round(shippingFee)
	}
	tax := Round(subtotal.Mul(taxRate))
	return Totals{
		Subtotal:    subtotal,
		ShippingFee: fee,
		Tax:         tax,
		Total:       Round(subtotal.Add(fee).Add(tax)),
	}
}
