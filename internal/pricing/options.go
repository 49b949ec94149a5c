// Package pricing turns a company's size bracket configuration and a
// service plan's per-bracket pricing into quoted prices.
package pricing

import (
	"fmt"
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pestline/pestline/internal/model"
)

// SizeOption is one generated bracket. RangeEnd is nil for the unbounded top
// bracket.
type SizeOption struct {
	Value             string   `json:"value"`
	Label             string   `json:"label"`
	IntervalIndex     int      `json:"interval_index"`
	InitialIncrease   float64  `json:"initial_increase"`
	RecurringIncrease float64  `json:"recurring_increase"`
	RangeStart        float64  `json:"range_start"`
	RangeEnd          *float64 `json:"range_end"`
}

// Range returns the bracket as a SizeRange.
func (o SizeOption) Range() SizeRange {
	if o.RangeEnd == nil {
		return UnboundedRange{From: o.RangeStart}
	}
	return BoundedRange{From: o.RangeStart, To: *o.RangeEnd}
}

// dimension describes how one measurement is bracketed and rendered.
type dimension struct {
	base     float64
	interval float64
	max      float64
	step     float64
	decimals int
	unit     string
	label    func(float64) string
}

var printer = message.NewPrinter(language.English)

func groupedInt(v float64) string {
	return printer.Sprintf("%d", int64(math.Round(v)))
}

func homeDimension(s model.CompanyPricingSettings) dimension {
	return dimension{
		base: s.BaseHomeSqFt, interval: s.HomeSqFtInterval, max: s.MaxHomeSqFt,
		step: 1, decimals: 0, unit: "Sq Ft", label: groupedInt,
	}
}

func yardDimension(s model.CompanyPricingSettings) dimension {
	return dimension{
		base: s.BaseYardAcres, interval: s.YardAcresInterval, max: s.MaxYardAcres,
		step: 0.01, decimals: 2, unit: "Acres", label: FormatAcresFractional,
	}
}

func linearDimension(s model.CompanyPricingSettings) dimension {
	return dimension{
		base: s.BaseLinearFeet, interval: s.LinearFeetInterval, max: s.MaxLinearFeet,
		step: 1, decimals: 0, unit: "Linear Ft", label: groupedInt,
	}
}

// GenerateHomeSizeOptions returns the home square footage brackets, priced
// with plan when it is non-nil.
func GenerateHomeSizeOptions(s model.CompanyPricingSettings, plan *model.SizePricing) []SizeOption {
	return generate(homeDimension(s), plan)
}

// GenerateYardSizeOptions returns the yard acreage brackets.
func GenerateYardSizeOptions(s model.CompanyPricingSettings, plan *model.SizePricing) []SizeOption {
	return generate(yardDimension(s), plan)
}

// GenerateLinearFeetOptions returns the linear feet brackets, or nil when the
// company has no linear feet interval configured.
func GenerateLinearFeetOptions(s model.CompanyPricingSettings, plan *model.SizePricing) []SizeOption {
	if !s.HasLinearFeet() {
		return nil
	}
	return generate(linearDimension(s), plan)
}

// generate walks brackets 0..base, base+step..base+interval, ... until a
// bracket end meets max; that bracket is left open.
func generate(d dimension, plan *model.SizePricing) []SizeOption {
	var opts []SizeOption
	start := 0.0

	for idx := 0; ; idx++ {
		end := d.base
		if idx > 0 {
			end = round3(d.base + float64(idx)*d.interval)
		}
		last := end >= d.max || (idx > 0 && d.interval <= 0)

		initial, recurring := increases(plan, idx)
		opt := SizeOption{
			IntervalIndex:     idx,
			InitialIncrease:   initial,
			RecurringIncrease: recurring,
			RangeStart:        start,
		}
		if last {
			opt.Value = formatNumber(start, d.decimals) + "+"
			opt.Label = fmt.Sprintf("%s+ %s", d.label(start), d.unit)
		} else {
			e := end
			opt.RangeEnd = &e
			opt.Value = formatNumber(start, d.decimals) + "-" + formatNumber(end, d.decimals)
			opt.Label = fmt.Sprintf("%s-%s %s", d.label(start), d.label(end), d.unit)
		}
		if plan != nil && idx > 0 {
			opt.Label += fmt.Sprintf(" (+$%.2f initial, +$%.2f/month)", initial, recurring)
		}
		opts = append(opts, opt)

		if last {
			return opts
		}
		start = round3(end + d.step)
	}
}

func increases(plan *model.SizePricing, idx int) (float64, float64) {
	if plan == nil {
		return 0, 0
	}
	if plan.PricingMode == model.PricingModeCustom {
		return priceAt(plan.CustomInitialPrices, idx), priceAt(plan.CustomRecurringPrices, idx)
	}
	n := float64(idx)
	return n * plan.InitialCostPerInterval, n * plan.RecurringCostPerInterval
}

func priceAt(prices []float64, idx int) float64 {
	if idx < 0 || idx >= len(prices) {
		return 0
	}
	return prices[idx]
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

var quarterFractions = [4]string{"", "1/4", "1/2", "3/4"}

// FormatAcresFractional renders acres to the quarter acre below it:
// 0.24 → "0", 0.26 → "1/4", 1.25 → "1 1/4", 2 → "2".
func FormatAcresFractional(acres float64) string {
	quarters := int64(math.Floor(acres*4 + 1e-9))
	if quarters <= 0 {
		return "0"
	}
	whole, frac := quarters/4, quarters%4
	switch {
	case whole == 0:
		return quarterFractions[frac]
	case frac == 0:
		return strconv.FormatInt(whole, 10)
	default:
		return strconv.FormatInt(whole, 10) + " " + quarterFractions[frac]
	}
}

// FindSizeOption returns the bracket containing value. A value between one
// bracket's end and the next one's start belongs to the next bracket, so
// every non-negative value is found when options is non-empty.
func FindSizeOption(value float64, options []SizeOption) (SizeOption, bool) {
	if value < 0 || math.IsNaN(value) || len(options) == 0 {
		return SizeOption{}, false
	}
	for _, o := range options {
		if o.RangeEnd == nil || value <= *o.RangeEnd {
			return o, true
		}
	}
	return SizeOption{}, false
}
