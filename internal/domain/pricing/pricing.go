// Package pricing turns cart line items into a price quote. It is pure
// computation: no I/O, no clock, deterministic for a given input.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/evermart/checkout/internal/domain/discount"
)

var hundred = decimal.NewFromInt(100)

// LineItem is a priced cart entry. The unit price is whatever the catalog
// reported at quoting time.
type LineItem struct {
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Quote is the derived price breakdown for a cart. Invariants:
// Total = Subtotal + Tax - Discount, Discount <= Subtotal + Tax, Total >= 0.
type Quote struct {
	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	DiscountCode string
}

// TotalMinorUnits returns the payable total in the gateway's minor-unit
// representation (paise for INR).
func (q Quote) TotalMinorUnits() int64 {
	return q.Total.Mul(hundred).IntPart()
}

// Engine computes quotes under a single flat tax rate.
type Engine struct {
	taxRatePercent decimal.Decimal
}

// NewEngine creates an Engine with the given flat tax rate in percent.
func NewEngine(taxRatePercent decimal.Decimal) *Engine {
	return &Engine{taxRatePercent: taxRatePercent}
}

// Quote prices the given line items, optionally applying a discount code.
//
// Tax is computed on the pre-discount subtotal; the discount is then applied
// against the tax-inclusive base. This ordering changes the payable amount
// versus discounting pre-tax and must not be reordered. All rounding is half
// away from zero at whole-currency-unit precision.
func (e *Engine) Quote(items []LineItem, code *discount.Code) Quote {
	subtotal := decimal.Zero
	for _, item := range items {
		line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
	}

	tax := subtotal.Mul(e.taxRatePercent).Div(hundred).Round(0)
	base := subtotal.Add(tax)

	q := Quote{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: decimal.Zero,
		Total:    base,
	}
	if code == nil {
		return q
	}

	q.Discount = Amount(code, base)
	q.Total = base.Sub(q.Discount)
	q.DiscountCode = code.Code
	return q
}

// Amount computes the discount a code yields against a tax-inclusive base.
// The result is clamped to the base so the payable amount never goes negative.
func Amount(code *discount.Code, base decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch code.Kind {
	case discount.KindPercentage:
		amount = base.Mul(code.Value).Div(hundred).Round(0)
	case discount.KindFixed:
		amount = code.Value
	default:
		return decimal.Zero
	}

	if amount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, base)
}
