package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// DiscountType is how a discount value is interpreted.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// DiscountTarget names the price component(s) a discount touches.
type DiscountTarget string

const (
	AppliesToInitial   DiscountTarget = "initial"
	AppliesToRecurring DiscountTarget = "recurring"
	AppliesToBoth      DiscountTarget = "both"
)

// CompanyDiscount is a discount a company can attach to quote line items.
type CompanyDiscount struct {
	ID                     string         `json:"id" yaml:"id"`
	CompanyID              string         `json:"company_id" yaml:"company_id" validate:"required"`
	DiscountName           string         `json:"discount_name" yaml:"discount_name"`
	DiscountType           DiscountType   `json:"discount_type" yaml:"discount_type" validate:"oneof=percentage fixed_amount"`
	DiscountValue          float64        `json:"discount_value" yaml:"discount_value" validate:"gte=0"`
	AppliesToPrice         DiscountTarget `json:"applies_to_price" yaml:"applies_to_price" validate:"oneof=initial recurring both"`
	RecurringDiscountType  *DiscountType  `json:"recurring_discount_type,omitempty" yaml:"recurring_discount_type" validate:"omitempty,oneof=percentage fixed_amount"`
	RecurringDiscountValue *float64       `json:"recurring_discount_value,omitempty" yaml:"recurring_discount_value" validate:"omitempty,gte=0"`
	IsActive               bool           `json:"is_active" yaml:"is_active"`
}

// Validate checks the discount's type, target and value bounds.
func (d *CompanyDiscount) Validate() error {
	if err := validate.Struct(d); err != nil {
		return eris.Wrap(err, "model: invalid discount")
	}
	if d.DiscountType == DiscountPercentage && d.DiscountValue > 100 {
		return eris.New("model: invalid discount: percentage must be <= 100")
	}
	if d.RecurringDiscountType != nil && *d.RecurringDiscountType == DiscountPercentage &&
		d.RecurringDiscountValue != nil && *d.RecurringDiscountValue > 100 {
		return eris.New("model: invalid discount: recurring percentage must be <= 100")
	}
	return nil
}

// ServiceAddress is a customer location with its measured size selections.
type ServiceAddress struct {
	ID              string    `json:"id"`
	CompanyID       string    `json:"company_id"`
	CustomerID      string    `json:"customer_id"`
	StreetAddress   string    `json:"street_address,omitempty"`
	City            string    `json:"city,omitempty"`
	State           string    `json:"state,omitempty"`
	ZipCode         string    `json:"zip_code,omitempty"`
	HomeSizeRange   string    `json:"home_size_range,omitempty"`
	YardSizeRange   string    `json:"yard_size_range,omitempty"`
	LinearFeetRange string    `json:"linear_feet_range,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SizeSelection holds the persisted size range tokens for a location.
type SizeSelection struct {
	HomeSizeRange   string `json:"home_size_range"`
	YardSizeRange   string `json:"yard_size_range"`
	LinearFeetRange string `json:"linear_feet_range"`
}

// Quote is a priced offer to a customer.
type Quote struct {
	ID                  string          `json:"id"`
	CompanyID           string          `json:"company_id"`
	CustomerID          string          `json:"customer_id"`
	LeadID              string          `json:"lead_id,omitempty"`
	ServiceAddressID    string          `json:"service_address_id,omitempty"`
	HomeSizeRange       string          `json:"home_size_range,omitempty"`
	YardSizeRange       string          `json:"yard_size_range,omitempty"`
	LinearFeetRange     string          `json:"linear_feet_range,omitempty"`
	TotalInitialPrice   float64         `json:"total_initial_price"`
	TotalRecurringPrice float64         `json:"total_recurring_price"`
	QuoteStatus         string          `json:"quote_status"`
	Version             int64           `json:"version"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	LineItems           []QuoteLineItem `json:"line_items,omitempty"`
}

// Sizes returns the quote's size selection.
func (q *Quote) Sizes() SizeSelection {
	return SizeSelection{
		HomeSizeRange:   q.HomeSizeRange,
		YardSizeRange:   q.YardSizeRange,
		LinearFeetRange: q.LinearFeetRange,
	}
}

// QuoteLineItem is one service plan priced on a quote. Items with
// IsCustomPriced set are manual overrides and never recalculated.
type QuoteLineItem struct {
	ID                  string       `json:"id"`
	QuoteID             string       `json:"quote_id"`
	ServicePlanID       string       `json:"service_plan_id"`
	PlanName            string       `json:"plan_name"`
	InitialPrice        float64      `json:"initial_price"`
	RecurringPrice      float64      `json:"recurring_price"`
	FinalInitialPrice   float64      `json:"final_initial_price"`
	FinalRecurringPrice float64      `json:"final_recurring_price"`
	DiscountID          *string      `json:"discount_id,omitempty"`
	DiscountPercentage  float64      `json:"discount_percentage"`
	DiscountAmount      float64      `json:"discount_amount"`
	IsCustomPriced      bool         `json:"is_custom_priced"`
	DisplayOrder        int          `json:"display_order"`
	ServicePlan         *ServicePlan `json:"service_plan,omitempty"`
}

// LineItemPrices is the computed price set written back onto a line item.
type LineItemPrices struct {
	InitialPrice        float64
	RecurringPrice      float64
	FinalInitialPrice   float64
	FinalRecurringPrice float64
}
