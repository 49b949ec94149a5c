package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/pestline/pestline/internal/model"
)

var hundred = decimal.NewFromInt(100)

// ApplyDiscount applies d to the price components it targets. With
// AppliesToBoth, recurring-specific terms override the initial terms for the
// recurring price when both are set. Results are never negative.
func ApplyDiscount(initial, recurring float64, d model.CompanyDiscount) (float64, float64) {
	finalInitial, finalRecurring := initial, recurring

	switch d.AppliesToPrice {
	case model.AppliesToInitial:
		finalInitial = discounted(initial, d.DiscountType, d.DiscountValue)
	case model.AppliesToRecurring:
		finalRecurring = discounted(recurring, d.DiscountType, d.DiscountValue)
	case model.AppliesToBoth:
		finalInitial = discounted(initial, d.DiscountType, d.DiscountValue)
		if d.RecurringDiscountType != nil && d.RecurringDiscountValue != nil {
			finalRecurring = discounted(recurring, *d.RecurringDiscountType, *d.RecurringDiscountValue)
		} else {
			finalRecurring = discounted(recurring, d.DiscountType, d.DiscountValue)
		}
	}

	return floor0(finalInitial), floor0(finalRecurring)
}

// ApplyStoredDiscount applies the discount amount and percentage snapshotted
// on a line item, used when its discount record is gone or inactive: the
// amount is subtracted first, then the percentage taken off, from both
// prices.
func ApplyStoredDiscount(initial, recurring, amount, percentage float64) (float64, float64) {
	if amount == 0 && percentage == 0 {
		return floor0(initial), floor0(recurring)
	}
	apply := func(price float64) float64 {
		p := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(amount))
		p = p.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(percentage).Div(hundred)))
		return floor0(p.InexactFloat64())
	}
	return apply(initial), apply(recurring)
}

func discounted(price float64, kind model.DiscountType, value float64) float64 {
	p := decimal.NewFromFloat(price)
	v := decimal.NewFromFloat(value)
	switch kind {
	case model.DiscountPercentage:
		return p.Mul(decimal.NewFromInt(1).Sub(v.Div(hundred))).InexactFloat64()
	case model.DiscountFixedAmount:
		return decimal.Max(decimal.Zero, p.Sub(v)).InexactFloat64()
	}
	return price
}

func floor0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
