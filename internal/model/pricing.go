package model

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

var validate = validator.New()

// PricingMode selects how a plan's per-bracket price increase is computed.
type PricingMode string

const (
	PricingModeLinear PricingMode = "linear" // index × cost per interval
	PricingModeCustom PricingMode = "custom" // explicit price per index
)

// Plan categories.
const (
	PlanCategoryStandard = "standard"
	PlanCategoryOneTime  = "one-time"
)

// CompanyPricingSettings is a company's size bracket configuration.
// Linear feet brackets are optional; a zero LinearFeetInterval disables them.
type CompanyPricingSettings struct {
	CompanyID          string    `json:"company_id" yaml:"company_id" validate:"required"`
	BaseHomeSqFt       float64   `json:"base_home_sq_ft" yaml:"base_home_sq_ft" validate:"gte=0"`
	HomeSqFtInterval   float64   `json:"home_sq_ft_interval" yaml:"home_sq_ft_interval" validate:"gt=0"`
	MaxHomeSqFt        float64   `json:"max_home_sq_ft" yaml:"max_home_sq_ft" validate:"gtefield=BaseHomeSqFt"`
	BaseYardAcres      float64   `json:"base_yard_acres" yaml:"base_yard_acres" validate:"gte=0"`
	YardAcresInterval  float64   `json:"yard_acres_interval" yaml:"yard_acres_interval" validate:"gt=0"`
	MaxYardAcres       float64   `json:"max_yard_acres" yaml:"max_yard_acres" validate:"gtefield=BaseYardAcres"`
	BaseLinearFeet     float64   `json:"base_linear_feet" yaml:"base_linear_feet" validate:"gte=0"`
	LinearFeetInterval float64   `json:"linear_feet_interval" yaml:"linear_feet_interval" validate:"gte=0"`
	MaxLinearFeet      float64   `json:"max_linear_feet" yaml:"max_linear_feet" validate:"gte=0"`
	UpdatedAt          time.Time `json:"updated_at" yaml:"-"`
}

// HasLinearFeet reports whether linear feet brackets are configured.
func (s *CompanyPricingSettings) HasLinearFeet() bool {
	return s.LinearFeetInterval > 0
}

// Validate checks interval > 0 and max ≥ base for every configured dimension.
func (s *CompanyPricingSettings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return eris.Wrap(err, "model: invalid pricing settings")
	}
	if s.HasLinearFeet() && s.MaxLinearFeet < s.BaseLinearFeet {
		return eris.New("model: invalid pricing settings: max_linear_feet must be >= base_linear_feet")
	}
	return nil
}

// SizePricing holds one dimension's pricing rules for a service plan.
type SizePricing struct {
	PricingMode              PricingMode `json:"pricing_mode" yaml:"pricing_mode" validate:"omitempty,oneof=linear custom"`
	InitialCostPerInterval   float64     `json:"initial_cost_per_interval,omitempty" yaml:"initial_cost_per_interval" validate:"gte=0"`
	RecurringCostPerInterval float64     `json:"recurring_cost_per_interval,omitempty" yaml:"recurring_cost_per_interval" validate:"gte=0"`
	CustomInitialPrices      []float64   `json:"custom_initial_prices,omitempty" yaml:"custom_initial_prices"`
	CustomRecurringPrices    []float64   `json:"custom_recurring_prices,omitempty" yaml:"custom_recurring_prices"`
}

// ServicePlan is a priced service a company sells.
type ServicePlan struct {
	ID                string       `json:"id" yaml:"id" validate:"required"`
	CompanyID         string       `json:"company_id" yaml:"company_id" validate:"required"`
	PlanName          string       `json:"plan_name" yaml:"plan_name" validate:"required,max=255"`
	PlanCategory      string       `json:"plan_category" yaml:"plan_category" validate:"omitempty,oneof=standard one-time"`
	InitialPrice      float64      `json:"initial_price" yaml:"initial_price" validate:"gte=0"`
	RecurringPrice    float64      `json:"recurring_price" yaml:"recurring_price" validate:"gte=0"`
	BillingFrequency  string       `json:"billing_frequency,omitempty" yaml:"billing_frequency"`
	HomeSizePricing   *SizePricing `json:"home_size_pricing,omitempty" yaml:"home_size_pricing" validate:"omitempty"`
	YardSizePricing   *SizePricing `json:"yard_size_pricing,omitempty" yaml:"yard_size_pricing" validate:"omitempty"`
	LinearFeetPricing *SizePricing `json:"linear_feet_pricing,omitempty" yaml:"linear_feet_pricing" validate:"omitempty"`
	IsActive          bool         `json:"is_active" yaml:"is_active"`
}

// IsOneTime reports whether the plan must never carry a recurring price.
func (p *ServicePlan) IsOneTime() bool {
	return p.PlanCategory == PlanCategoryOneTime
}

// HasSizePricing reports whether the plan is priced by home or yard size.
// Linear feet pricing only adds to such a plan; on its own it does not make
// the plan size-priced.
func (p *ServicePlan) HasSizePricing() bool {
	return p.HomeSizePricing != nil || p.YardSizePricing != nil
}

// Validate checks the plan's fields and pricing rules.
func (p *ServicePlan) Validate() error {
	if err := validate.Struct(p); err != nil {
		return eris.Wrapf(err, "model: invalid service plan %s", p.ID)
	}
	return nil
}
