// Package export renders a company's size brackets and per-plan price
// increases as an XLSX workbook.
package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/pestline/pestline/internal/model"
	"github.com/pestline/pestline/internal/pricing"
)

// Sheet names.
const (
	SheetHome       = "Home"
	SheetYard       = "Yard"
	SheetLinearFeet = "Linear Feet"
	SheetPlans      = "Plans"
)

type dimension struct {
	sheet    string
	generate func(model.CompanyPricingSettings, *model.SizePricing) []pricing.SizeOption
	pricing  func(*model.ServicePlan) *model.SizePricing
}

var dimensions = []dimension{
	{SheetHome, pricing.GenerateHomeSizeOptions, func(p *model.ServicePlan) *model.SizePricing { return p.HomeSizePricing }},
	{SheetYard, pricing.GenerateYardSizeOptions, func(p *model.ServicePlan) *model.SizePricing { return p.YardSizePricing }},
	{SheetLinearFeet, pricing.GenerateLinearFeetOptions, func(p *model.ServicePlan) *model.SizePricing { return p.LinearFeetPricing }},
}

// PricingSheet builds the workbook. Each dimension sheet lists the brackets
// with one initial/recurring increase column pair per plan. The linear feet
// sheet is omitted when the company has no linear feet interval.
func PricingSheet(settings model.CompanyPricingSettings, plans []model.ServicePlan) (*xlsx.File, error) {
	f := xlsx.NewFile()
	header := xlsx.NewStyle()
	header.Font.Bold = true
	header.ApplyFont = true

	for _, d := range dimensions {
		base := d.generate(settings, nil)
		if len(base) == 0 {
			continue
		}
		sheet, err := f.AddSheet(d.sheet)
		if err != nil {
			return nil, eris.Wrapf(err, "export: add sheet %s", d.sheet)
		}

		cols := []string{"Value", "Label", "Range Start", "Range End"}
		perPlan := make([][]pricing.SizeOption, len(plans))
		for i := range plans {
			cols = append(cols, plans[i].PlanName+" Initial", plans[i].PlanName+" Recurring")
			perPlan[i] = d.generate(settings, d.pricing(&plans[i]))
		}
		addHeader(sheet, header, cols)

		for idx, opt := range base {
			row := sheet.AddRow()
			row.AddCell().SetString(opt.Value)
			row.AddCell().SetString(opt.Label)
			row.AddCell().SetFloat(opt.RangeStart)
			end := row.AddCell()
			if opt.RangeEnd != nil {
				end.SetFloat(*opt.RangeEnd)
			}
			for i := range plans {
				var initial, recurring float64
				if idx < len(perPlan[i]) {
					initial, recurring = perPlan[i][idx].InitialIncrease, perPlan[i][idx].RecurringIncrease
				}
				if plans[i].IsOneTime() {
					recurring = 0
				}
				row.AddCell().SetFloat(initial)
				row.AddCell().SetFloat(recurring)
			}
		}
	}

	sheet, err := f.AddSheet(SheetPlans)
	if err != nil {
		return nil, eris.Wrap(err, "export: add plans sheet")
	}
	addHeader(sheet, header, []string{"ID", "Plan", "Category", "Initial Price", "Recurring Price", "Billing Frequency", "Active"})
	for _, p := range plans {
		row := sheet.AddRow()
		row.AddCell().SetString(p.ID)
		row.AddCell().SetString(p.PlanName)
		row.AddCell().SetString(p.PlanCategory)
		row.AddCell().SetFloat(p.InitialPrice)
		row.AddCell().SetFloat(p.RecurringPrice)
		row.AddCell().SetString(p.BillingFrequency)
		row.AddCell().SetBool(p.IsActive)
	}

	return f, nil
}

// WritePricingSheet builds the workbook and writes it to w.
func WritePricingSheet(w io.Writer, settings model.CompanyPricingSettings, plans []model.ServicePlan) error {
	f, err := PricingSheet(settings, plans)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

func addHeader(sheet *xlsx.Sheet, style *xlsx.Style, cols []string) {
	row := sheet.AddRow()
	for _, c := range cols {
		cell := row.AddCell()
		cell.SetString(c)
		cell.SetStyle(style)
	}
}
