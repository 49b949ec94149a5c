package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pestline/pestline/internal/model"
	"github.com/pestline/pestline/pkg/slybroadcast"
)

func showSettings() model.CompanyPricingSettings {
	return model.CompanyPricingSettings{
		CompanyID:         "c1",
		BaseHomeSqFt:      1500,
		HomeSqFtInterval:  500,
		MaxHomeSqFt:       3000,
		BaseYardAcres:     0.25,
		YardAcresInterval: 0.25,
		MaxYardAcres:      1,
	}
}

func TestFormatSizeOptions(t *testing.T) {
	var buf bytes.Buffer
	formatSizeOptions(&buf, showSettings(), nil)
	out := buf.String()

	assert.Contains(t, out, "Home\n")
	assert.Contains(t, out, "Yard\n")
	assert.NotContains(t, out, "Linear Feet")
	assert.Contains(t, out, "1501-2000")
	assert.Contains(t, out, "1,501-2,000 Sq Ft")
	assert.Contains(t, out, "2501+")
}

func TestFormatSizeOptions_OneTimePlan(t *testing.T) {
	plan := &model.ServicePlan{
		ID:           "plan-2",
		PlanCategory: model.PlanCategoryOneTime,
		HomeSizePricing: &model.SizePricing{
			PricingMode:              model.PricingModeLinear,
			InitialCostPerInterval:   25,
			RecurringCostPerInterval: 10,
		},
	}

	var buf bytes.Buffer
	formatSizeOptions(&buf, showSettings(), plan)
	out := buf.String()

	assert.Contains(t, out, "25.00")
	assert.Contains(t, out, "75.00")
	for _, line := range strings.Split(out, "\n") {
		assert.False(t, strings.HasSuffix(strings.TrimSpace(line), "10.00"), "recurring increase shown for one-time plan: %q", line)
	}
}

func TestFormatQuote(t *testing.T) {
	q := &model.Quote{
		ID:                  "q1",
		Version:             3,
		HomeSizeRange:       "1501-2000",
		TotalInitialPrice:   125,
		TotalRecurringPrice: 60,
	}
	items := []model.QuoteLineItem{{PlanName: "Quarterly Pest", InitialPrice: 125, RecurringPrice: 60, FinalInitialPrice: 125, FinalRecurringPrice: 60}}

	var buf bytes.Buffer
	formatQuote(&buf, q, items)
	out := buf.String()

	assert.Contains(t, out, "Quote q1 (version 3)")
	assert.Contains(t, out, "home=1501-2000 yard=- linear=-")
	assert.Contains(t, out, "Quarterly Pest")
	assert.Contains(t, out, "Total: 125.00 initial, 60.00 recurring")
}

func TestFormatAudioFiles(t *testing.T) {
	var buf bytes.Buffer
	formatAudioFiles(&buf, []slybroadcast.AudioFile{
		{ID: "spring.wav", Name: "Spring Promo", CreatedDate: "2026-03-01"},
	})
	out := buf.String()

	assert.Contains(t, out, "spring.wav")
	assert.Contains(t, out, "Spring Promo")
	assert.Contains(t, out, "2026-03-01")
}
