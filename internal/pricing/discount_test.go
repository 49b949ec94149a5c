package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pestline/pestline/internal/model"
)

func TestApplyDiscount_Percentage(t *testing.T) {
	d := model.CompanyDiscount{DiscountType: model.DiscountPercentage, DiscountValue: 10, AppliesToPrice: model.AppliesToInitial}
	i, r := ApplyDiscount(200, 50, d)
	assert.InDelta(t, 180, i, 0.0001)
	assert.InDelta(t, 50, r, 0.0001)

	d.AppliesToPrice = model.AppliesToRecurring
	i, r = ApplyDiscount(200, 50, d)
	assert.InDelta(t, 200, i, 0.0001)
	assert.InDelta(t, 45, r, 0.0001)

	d.AppliesToPrice = model.AppliesToBoth
	i, r = ApplyDiscount(200, 50, d)
	assert.InDelta(t, 180, i, 0.0001)
	assert.InDelta(t, 45, r, 0.0001)
}

func TestApplyDiscount_FixedAmountNeverNegative(t *testing.T) {
	d := model.CompanyDiscount{DiscountType: model.DiscountFixedAmount, DiscountValue: 75, AppliesToPrice: model.AppliesToBoth}
	i, r := ApplyDiscount(100, 50, d)
	assert.InDelta(t, 25, i, 0.0001)
	assert.Zero(t, r)
}

func TestApplyDiscount_RecurringOverride(t *testing.T) {
	rt := model.DiscountFixedAmount
	rv := 5.0
	d := model.CompanyDiscount{
		DiscountType:           model.DiscountPercentage,
		DiscountValue:          50,
		AppliesToPrice:         model.AppliesToBoth,
		RecurringDiscountType:  &rt,
		RecurringDiscountValue: &rv,
	}
	i, r := ApplyDiscount(100, 40, d)
	assert.InDelta(t, 50, i, 0.0001)
	assert.InDelta(t, 35, r, 0.0001)

	// Recurring terms only count for "both".
	d.AppliesToPrice = model.AppliesToRecurring
	i, r = ApplyDiscount(100, 40, d)
	assert.InDelta(t, 100, i, 0.0001)
	assert.InDelta(t, 20, r, 0.0001)
}

func TestApplyDiscount_PartialRecurringTermsIgnored(t *testing.T) {
	rt := model.DiscountFixedAmount
	d := model.CompanyDiscount{
		DiscountType:          model.DiscountPercentage,
		DiscountValue:         10,
		AppliesToPrice:        model.AppliesToBoth,
		RecurringDiscountType: &rt,
	}
	_, r := ApplyDiscount(100, 40, d)
	assert.InDelta(t, 36, r, 0.0001)
}

func TestApplyDiscount_FloorAtZero(t *testing.T) {
	for _, d := range []model.CompanyDiscount{
		{DiscountType: model.DiscountPercentage, DiscountValue: 150, AppliesToPrice: model.AppliesToBoth},
		{DiscountType: model.DiscountFixedAmount, DiscountValue: 1e6, AppliesToPrice: model.AppliesToBoth},
	} {
		i, r := ApplyDiscount(99.99, 49.5, d)
		assert.GreaterOrEqual(t, i, 0.0)
		assert.GreaterOrEqual(t, r, 0.0)
	}
}

func TestApplyDiscount_UnknownType(t *testing.T) {
	d := model.CompanyDiscount{DiscountType: "bogo", DiscountValue: 10, AppliesToPrice: model.AppliesToBoth}
	i, r := ApplyDiscount(100, 40, d)
	assert.InDelta(t, 100, i, 0.0001)
	assert.InDelta(t, 40, r, 0.0001)
}

func TestApplyStoredDiscount(t *testing.T) {
	i, r := ApplyStoredDiscount(140, 60, 0, 0)
	assert.InDelta(t, 140, i, 0.0001)
	assert.InDelta(t, 60, r, 0.0001)

	i, r = ApplyStoredDiscount(140, 60, 20, 0)
	assert.InDelta(t, 120, i, 0.0001)
	assert.InDelta(t, 40, r, 0.0001)

	i, r = ApplyStoredDiscount(140, 60, 20, 50)
	assert.InDelta(t, 60, i, 0.0001)
	assert.InDelta(t, 20, r, 0.0001)

	i, r = ApplyStoredDiscount(10, 0, 25, 0)
	assert.Zero(t, i)
	assert.Zero(t, r)
}
