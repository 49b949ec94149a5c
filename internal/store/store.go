package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/pestline/pestline/internal/model"
	"github.com/pestline/pestline/internal/quote"
	"github.com/pestline/pestline/internal/sesevents"
)

// Store defines the persistence interface for quotes, pricing configuration
// and email events.
type Store interface {
	quote.Store
	sesevents.Store

	// Pricing configuration
	UpsertPricingSettings(ctx context.Context, s model.CompanyPricingSettings) error
	ListServicePlans(ctx context.Context, companyID string) ([]model.ServicePlan, error)
	UpsertServicePlans(ctx context.Context, plans []model.ServicePlan) (int64, error)
	UpsertDiscount(ctx context.Context, d model.CompanyDiscount) error

	// Leads
	AppendLeadComment(ctx context.Context, leadID, note string) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// planRow scans a service plan whose columns may all be NULL (LEFT JOIN).
type planRow struct {
	ID               *string
	CompanyID        *string
	PlanName         *string
	PlanCategory     *string
	InitialPrice     *float64
	RecurringPrice   *float64
	BillingFrequency *string
	HomePricing      []byte
	YardPricing      []byte
	LinearPricing    []byte
	IsActive         *bool
}

func (r *planRow) dest() []any {
	return []any{
		&r.ID, &r.CompanyID, &r.PlanName, &r.PlanCategory, &r.InitialPrice, &r.RecurringPrice,
		&r.BillingFrequency, &r.HomePricing, &r.YardPricing, &r.LinearPricing, &r.IsActive,
	}
}

// plan returns nil when the joined plan row is absent.
func (r *planRow) plan() (*model.ServicePlan, error) {
	if r.ID == nil {
		return nil, nil
	}
	p := &model.ServicePlan{
		ID:               *r.ID,
		CompanyID:        deref(r.CompanyID),
		PlanName:         deref(r.PlanName),
		PlanCategory:     deref(r.PlanCategory),
		BillingFrequency: deref(r.BillingFrequency),
	}
	if r.InitialPrice != nil {
		p.InitialPrice = *r.InitialPrice
	}
	if r.RecurringPrice != nil {
		p.RecurringPrice = *r.RecurringPrice
	}
	if r.IsActive != nil {
		p.IsActive = *r.IsActive
	}

	var err error
	if p.HomeSizePricing, err = decodePricing(r.HomePricing); err != nil {
		return nil, eris.Wrapf(err, "store: decode home pricing for plan %s", p.ID)
	}
	if p.YardSizePricing, err = decodePricing(r.YardPricing); err != nil {
		return nil, eris.Wrapf(err, "store: decode yard pricing for plan %s", p.ID)
	}
	if p.LinearFeetPricing, err = decodePricing(r.LinearPricing); err != nil {
		return nil, eris.Wrapf(err, "store: decode linear feet pricing for plan %s", p.ID)
	}
	return p, nil
}

func decodePricing(data []byte) (*model.SizePricing, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var p model.SizePricing
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// encodePricing returns nil for a nil pricing so the column stays NULL.
func encodePricing(p *model.SizePricing) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullable maps "" to NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func discountFrom(id, companyID, name, kind string, value float64, applies string, recKind *string, recValue *float64, active bool) *model.CompanyDiscount {
	d := &model.CompanyDiscount{
		ID:                     id,
		CompanyID:              companyID,
		DiscountName:           name,
		DiscountType:           model.DiscountType(kind),
		DiscountValue:          value,
		AppliesToPrice:         model.DiscountTarget(applies),
		RecurringDiscountValue: recValue,
		IsActive:               active,
	}
	if recKind != nil {
		t := model.DiscountType(*recKind)
		d.RecurringDiscountType = &t
	}
	return d
}

func recurringKind(d model.CompanyDiscount) *string {
	if d.RecurringDiscountType == nil {
		return nil
	}
	s := string(*d.RecurringDiscountType)
	return &s
}
