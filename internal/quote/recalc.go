// Package quote recalculates quote line item prices and totals when a
// quote's size selections change.
package quote

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pestline/pestline/internal/model"
	"github.com/pestline/pestline/internal/pricing"
)

// SizeUpdate carries new size range tokens. Nil fields keep the quote's
// stored value.
type SizeUpdate struct {
	Home       *string
	Yard       *string
	LinearFeet *string
}

func (u SizeUpdate) empty() bool {
	return u.Home == nil && u.Yard == nil && u.LinearFeet == nil
}

// sizeUpdateTo sets every dimension to the values in s.
func sizeUpdateTo(s model.SizeSelection) SizeUpdate {
	return SizeUpdate{Home: &s.HomeSizeRange, Yard: &s.YardSizeRange, LinearFeet: &s.LinearFeetRange}
}

func (u SizeUpdate) apply(cur model.SizeSelection) model.SizeSelection {
	if u.Home != nil {
		cur.HomeSizeRange = *u.Home
	}
	if u.Yard != nil {
		cur.YardSizeRange = *u.Yard
	}
	if u.LinearFeet != nil {
		cur.LinearFeetRange = *u.LinearFeet
	}
	return cur
}

// Recalculator reprices a quote's line items from its size selections.
type Recalculator struct {
	store       Store
	log         *zap.Logger
	concurrency int
}

// Option configures a Recalculator.
type Option func(*Recalculator)

// WithLogger sets the logger. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(r *Recalculator) { r.log = l }
}

// WithConcurrency bounds how many quotes RecalculateCompany reprices at once.
func WithConcurrency(n int) Option {
	return func(r *Recalculator) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewRecalculator creates a Recalculator over s.
func NewRecalculator(s Store, opts ...Option) *Recalculator {
	r := &Recalculator{store: s, log: zap.L(), concurrency: 4}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Recalculate reprices every non custom-priced line item of a quote and
// rewrites the quote totals. The whole run is one transaction. A missing
// quote or missing company settings is a no-op.
func (r *Recalculator) Recalculate(ctx context.Context, quoteID string, upd SizeUpdate) error {
	return r.store.InTx(ctx, func(tx Store) error {
		return r.recalculate(ctx, tx, quoteID, upd)
	})
}

func (r *Recalculator) recalculate(ctx context.Context, tx Store, quoteID string, upd SizeUpdate) error {
	log := r.log.With(zap.String("quote_id", quoteID))

	q, err := tx.LockQuote(ctx, quoteID)
	if err != nil {
		return eris.Wrapf(err, "quote: load quote %s", quoteID)
	}
	if q == nil {
		log.Debug("quote: quote not found, skipping recalculation")
		return nil
	}

	sizes := upd.apply(q.Sizes())
	if !upd.empty() {
		if err := tx.UpdateQuoteSizes(ctx, quoteID, sizes); err != nil {
			return eris.Wrapf(err, "quote: update sizes %s", quoteID)
		}
	}

	settings, err := tx.GetPricingSettings(ctx, q.CompanyID)
	if err != nil {
		return eris.Wrapf(err, "quote: load pricing settings for company %s", q.CompanyID)
	}
	if settings == nil {
		log.Debug("quote: no pricing settings, skipping recalculation", zap.String("company_id", q.CompanyID))
		return nil
	}

	items, err := tx.ListLineItems(ctx, quoteID)
	if err != nil {
		return eris.Wrapf(err, "quote: list line items %s", quoteID)
	}

	measured := measurements(sizes)
	var repriced int
	for _, item := range items {
		if item.IsCustomPriced {
			continue
		}
		if item.ServicePlan == nil {
			log.Warn("quote: line item plan missing", zap.String("line_item_id", item.ID), zap.String("service_plan_id", item.ServicePlanID))
			continue
		}
		if !item.ServicePlan.HasSizePricing() {
			continue
		}

		prices, err := r.priceItem(ctx, tx, *settings, item, measured)
		if err != nil {
			return err
		}
		if err := tx.UpdateLineItemPrices(ctx, item.ID, prices); err != nil {
			return eris.Wrapf(err, "quote: update line item %s", item.ID)
		}
		repriced++
	}

	items, err = tx.ListLineItems(ctx, quoteID)
	if err != nil {
		return eris.Wrapf(err, "quote: reload line items %s", quoteID)
	}
	initials := make([]float64, 0, len(items))
	recurrings := make([]float64, 0, len(items))
	for _, item := range items {
		initials = append(initials, item.FinalInitialPrice)
		recurrings = append(recurrings, item.FinalRecurringPrice)
	}
	totalInitial, totalRecurring := pricing.Sum(initials...), pricing.Sum(recurrings...)

	if err := tx.UpdateQuoteTotals(ctx, quoteID, q.Version, totalInitial, totalRecurring); err != nil {
		return eris.Wrapf(err, "quote: update totals %s", quoteID)
	}

	log.Info("quote: recalculated",
		zap.Int("line_items", len(items)),
		zap.Int("repriced", repriced),
		zap.Float64("total_initial_price", totalInitial),
		zap.Float64("total_recurring_price", totalRecurring),
	)
	return nil
}

// priceItem computes a line item's prices from the quote sizes and its
// discount.
func (r *Recalculator) priceItem(ctx context.Context, tx Store, settings model.CompanyPricingSettings, item model.QuoteLineItem, sizes pricing.Sizes) (model.LineItemPrices, error) {
	plan := *item.ServicePlan
	calc := pricing.PricePlan(settings, plan, sizes)

	finalInitial, finalRecurring, err := r.discount(ctx, tx, item, calc.TotalInitialPrice, calc.TotalRecurringPrice)
	if err != nil {
		return model.LineItemPrices{}, err
	}
	if plan.IsOneTime() {
		finalRecurring = 0
	}

	return model.LineItemPrices{
		InitialPrice:        calc.TotalInitialPrice,
		RecurringPrice:      calc.TotalRecurringPrice,
		FinalInitialPrice:   finalInitial,
		FinalRecurringPrice: finalRecurring,
	}, nil
}

// discount applies the item's discount record, or the discount fields stored
// on the item when the record is missing or inactive.
func (r *Recalculator) discount(ctx context.Context, tx Store, item model.QuoteLineItem, initial, recurring float64) (float64, float64, error) {
	if item.DiscountID != nil && *item.DiscountID != "" {
		d, err := tx.GetDiscount(ctx, *item.DiscountID)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "quote: load discount %s", *item.DiscountID)
		}
		if d != nil && d.IsActive {
			fi, fr := pricing.ApplyDiscount(initial, recurring, *d)
			return fi, fr, nil
		}
		r.log.Debug("quote: discount unavailable, using stored discount fields",
			zap.String("line_item_id", item.ID), zap.String("discount_id", *item.DiscountID))
	}
	fi, fr := pricing.ApplyStoredDiscount(initial, recurring, item.DiscountAmount, item.DiscountPercentage)
	return fi, fr, nil
}

// measurements turns size tokens into the representative value of each
// range, its start. An empty token measures 0 and lands in the first
// bracket; a malformed token counts as unknown.
func measurements(s model.SizeSelection) pricing.Sizes {
	return pricing.Sizes{
		Home:       rangeStart(s.HomeSizeRange),
		Yard:       rangeStart(s.YardSizeRange),
		LinearFeet: rangeStart(s.LinearFeetRange),
	}
}

func rangeStart(token string) *float64 {
	if strings.TrimSpace(token) == "" {
		zero := 0.0
		return &zero
	}
	v, ok := pricing.RangeStart(token)
	if !ok {
		return nil
	}
	return &v
}

// ForServiceAddress stores new sizes on a service address and recalculates
// every quote priced against it. Returns the recalculated quote ids.
func (r *Recalculator) ForServiceAddress(ctx context.Context, addressID string, upd SizeUpdate) ([]string, error) {
	var quoteIDs []string
	err := r.store.InTx(ctx, func(tx Store) error {
		addr, err := tx.GetServiceAddress(ctx, addressID)
		if err != nil {
			return eris.Wrapf(err, "quote: load service address %s", addressID)
		}
		if addr == nil {
			return nil
		}
		cur := model.SizeSelection{
			HomeSizeRange:   addr.HomeSizeRange,
			YardSizeRange:   addr.YardSizeRange,
			LinearFeetRange: addr.LinearFeetRange,
		}
		sizes := upd.apply(cur)
		if err := tx.UpdateServiceAddressSizes(ctx, addressID, sizes); err != nil {
			return eris.Wrapf(err, "quote: update service address %s", addressID)
		}

		ids, err := tx.ListQuoteIDsByServiceAddress(ctx, addressID)
		if err != nil {
			return eris.Wrapf(err, "quote: list quotes for service address %s", addressID)
		}
		for _, id := range ids {
			if err := r.recalculate(ctx, tx, id, sizeUpdateTo(sizes)); err != nil {
				return err
			}
		}
		quoteIDs = ids
		return nil
	})
	return quoteIDs, err
}

// CompanyResult summarizes a company-wide recalculation.
type CompanyResult struct {
	Quotes int
	Failed []string
}

// RecalculateCompany reprices every quote of a company with its stored
// sizes, typically after the company's pricing settings change. Each quote
// runs in its own transaction; failures are collected, not fatal.
func (r *Recalculator) RecalculateCompany(ctx context.Context, companyID string) (*CompanyResult, error) {
	ids, err := r.store.ListQuoteIDsByCompany(ctx, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "quote: list quotes for company %s", companyID)
	}

	failed := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := r.Recalculate(gctx, id, SizeUpdate{}); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.log.Error("quote: recalculation failed", zap.String("quote_id", id), zap.Error(err))
				failed[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "quote: recalculate company")
	}

	res := &CompanyResult{Quotes: len(ids)}
	for i, f := range failed {
		if f {
			res.Failed = append(res.Failed, ids[i])
		}
	}
	return res, nil
}
