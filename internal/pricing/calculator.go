package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/pestline/pestline/internal/model"
)

// Calculation breaks a plan price down into its base and size increases.
type Calculation struct {
	BaseInitialPrice            float64 `json:"base_initial_price"`
	BaseRecurringPrice          float64 `json:"base_recurring_price"`
	HomeSizeInitialIncrease     float64 `json:"home_size_initial_increase"`
	HomeSizeRecurringIncrease   float64 `json:"home_size_recurring_increase"`
	YardSizeInitialIncrease     float64 `json:"yard_size_initial_increase"`
	YardSizeRecurringIncrease   float64 `json:"yard_size_recurring_increase"`
	LinearFeetInitialIncrease   float64 `json:"linear_feet_initial_increase"`
	LinearFeetRecurringIncrease float64 `json:"linear_feet_recurring_increase"`
	TotalInitialPrice           float64 `json:"total_initial_price"`
	TotalRecurringPrice         float64 `json:"total_recurring_price"`
}

// CalculateTotalPricing adds the selected bracket increases to the base
// prices. Nil options contribute nothing.
func CalculateTotalPricing(baseInitial, baseRecurring float64, home, yard, linear *SizeOption) Calculation {
	c := Calculation{
		BaseInitialPrice:   baseInitial,
		BaseRecurringPrice: baseRecurring,
	}
	if home != nil {
		c.HomeSizeInitialIncrease = home.InitialIncrease
		c.HomeSizeRecurringIncrease = home.RecurringIncrease
	}
	if yard != nil {
		c.YardSizeInitialIncrease = yard.InitialIncrease
		c.YardSizeRecurringIncrease = yard.RecurringIncrease
	}
	if linear != nil {
		c.LinearFeetInitialIncrease = linear.InitialIncrease
		c.LinearFeetRecurringIncrease = linear.RecurringIncrease
	}

	c.TotalInitialPrice = sum(c.BaseInitialPrice, c.HomeSizeInitialIncrease,
		c.YardSizeInitialIncrease, c.LinearFeetInitialIncrease)
	c.TotalRecurringPrice = sum(c.BaseRecurringPrice, c.HomeSizeRecurringIncrease,
		c.YardSizeRecurringIncrease, c.LinearFeetRecurringIncrease)
	return c
}

// Sizes are the measurements a plan is priced against. A nil field means
// the measurement is unknown and adds nothing.
type Sizes struct {
	Home       *float64
	Yard       *float64
	LinearFeet *float64
}

// PricePlan computes a plan's undiscounted prices for the given sizes.
// One-time plans always get a zero recurring price.
func PricePlan(settings model.CompanyPricingSettings, plan model.ServicePlan, sizes Sizes) Calculation {
	home := lookup(sizes.Home, plan.HomeSizePricing, func() []SizeOption {
		return GenerateHomeSizeOptions(settings, plan.HomeSizePricing)
	})
	yard := lookup(sizes.Yard, plan.YardSizePricing, func() []SizeOption {
		return GenerateYardSizeOptions(settings, plan.YardSizePricing)
	})
	linear := lookup(sizes.LinearFeet, plan.LinearFeetPricing, func() []SizeOption {
		return GenerateLinearFeetOptions(settings, plan.LinearFeetPricing)
	})

	c := CalculateTotalPricing(plan.InitialPrice, plan.RecurringPrice, home, yard, linear)
	if plan.IsOneTime() {
		c.BaseRecurringPrice = 0
		c.HomeSizeRecurringIncrease = 0
		c.YardSizeRecurringIncrease = 0
		c.LinearFeetRecurringIncrease = 0
		c.TotalRecurringPrice = 0
	}
	return c
}

func lookup(value *float64, p *model.SizePricing, gen func() []SizeOption) *SizeOption {
	if value == nil || p == nil {
		return nil
	}
	opt, ok := FindSizeOption(*value, gen())
	if !ok {
		return nil
	}
	return &opt
}

func sum(vals ...float64) float64 {
	total := decimal.Zero
	for _, v := range vals {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.InexactFloat64()
}

// Sum adds money amounts without accumulating float error.
func Sum(vals ...float64) float64 {
	return sum(vals...)
}
