package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pestline/pestline/internal/model"
	"github.com/pestline/pestline/internal/quote"
)

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func ptr[T any](v T) *T { return &v }

func testSettings() model.CompanyPricingSettings {
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

func testPlan() model.ServicePlan {
	return model.ServicePlan{
		ID:             "plan-1",
		CompanyID:      "c1",
		PlanName:       "Quarterly Pest",
		InitialPrice:   100,
		RecurringPrice: 50,
		HomeSizePricing: &model.SizePricing{
			PricingMode:              model.PricingModeLinear,
			InitialCostPerInterval:   25,
			RecurringCostPerInterval: 10,
		},
		IsActive: true,
	}
}

// seedQuote inserts settings, one plan and a quote with a single line item.
func seedQuote(t *testing.T, st *SQLiteStore) *model.Quote {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertPricingSettings(ctx, testSettings()))
	_, err := st.UpsertServicePlans(ctx, []model.ServicePlan{testPlan()})
	require.NoError(t, err)

	_, err = st.db.ExecContext(ctx,
		`INSERT INTO service_addresses (id, company_id, customer_id, street_address, home_size_range) VALUES ('addr-1', 'c1', 'cust-1', '1 Main St', '0-1500')`)
	require.NoError(t, err)

	q := &model.Quote{
		CompanyID:        "c1",
		CustomerID:       "cust-1",
		ServiceAddressID: "addr-1",
		HomeSizeRange:    "2001-2500",
		LineItems: []model.QuoteLineItem{{
			ServicePlanID:       "plan-1",
			PlanName:            "Quarterly Pest",
			InitialPrice:        100,
			RecurringPrice:      50,
			FinalInitialPrice:   100,
			FinalRecurringPrice: 50,
		}},
	}
	require.NoError(t, st.CreateQuote(ctx, q))
	return q
}

func TestSQLite_PricingSettings_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	got, err := st.GetPricingSettings(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, st.UpsertPricingSettings(ctx, testSettings()))
	s := testSettings()
	s.MaxHomeSqFt = 6000
	require.NoError(t, st.UpsertPricingSettings(ctx, s))

	got, err = st.GetPricingSettings(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1500.0, got.BaseHomeSqFt)
	assert.Equal(t, 6000.0, got.MaxHomeSqFt)
	assert.False(t, got.HasLinearFeet())
}

func TestSQLite_ServicePlans_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	oneTime := model.ServicePlan{
		ID:           "plan-2",
		CompanyID:    "c1",
		PlanName:     "Termite Inspection",
		PlanCategory: model.PlanCategoryOneTime,
		InitialPrice: 200,
		YardSizePricing: &model.SizePricing{
			PricingMode:         model.PricingModeCustom,
			CustomInitialPrices: []float64{0, 15, 40},
		},
	}
	n, err := st.UpsertServicePlans(ctx, []model.ServicePlan{testPlan(), oneTime})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := st.GetServicePlan(ctx, "plan-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.PlanCategoryStandard, got.PlanCategory)
	require.NotNil(t, got.HomeSizePricing)
	assert.Equal(t, 25.0, got.HomeSizePricing.InitialCostPerInterval)
	assert.Nil(t, got.YardSizePricing)
	assert.True(t, got.IsActive)

	got, err = st.GetServicePlan(ctx, "plan-2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsOneTime())
	require.NotNil(t, got.YardSizePricing)
	assert.Equal(t, []float64{0, 15, 40}, got.YardSizePricing.CustomInitialPrices)

	missing, err := st.GetServicePlan(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_ListServicePlans(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	other := testPlan()
	other.ID = "plan-other"
	other.CompanyID = "c2"
	second := testPlan()
	second.ID = "plan-2"
	second.PlanName = "Annual"
	_, err := st.UpsertServicePlans(ctx, []model.ServicePlan{testPlan(), second, other})
	require.NoError(t, err)

	plans, err := st.ListServicePlans(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "plan-2", plans[0].ID)
	assert.Equal(t, "plan-1", plans[1].ID)
	require.NotNil(t, plans[1].HomeSizePricing)

	none, err := st.ListServicePlans(ctx, "c3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_Discount_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rt := model.DiscountFixedAmount
	require.NoError(t, st.UpsertDiscount(ctx, model.CompanyDiscount{
		ID:                     "d1",
		CompanyID:              "c1",
		DiscountName:           "Spring",
		DiscountType:           model.DiscountPercentage,
		DiscountValue:          10,
		AppliesToPrice:         model.AppliesToBoth,
		RecurringDiscountType:  &rt,
		RecurringDiscountValue: ptr(5.0),
		IsActive:               true,
	}))

	d, err := st.GetDiscount(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, model.DiscountPercentage, d.DiscountType)
	require.NotNil(t, d.RecurringDiscountType)
	assert.Equal(t, model.DiscountFixedAmount, *d.RecurringDiscountType)
	assert.Equal(t, 5.0, *d.RecurringDiscountValue)
	assert.True(t, d.IsActive)

	missing, err := st.GetDiscount(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_Quote_CreateAndListItems(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	q := seedQuote(t, st)

	got, err := st.GetQuote(ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "draft", got.QuoteStatus)
	assert.Equal(t, "addr-1", got.ServiceAddressID)
	assert.Empty(t, got.LeadID)

	items, err := st.ListLineItems(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].ServicePlan)
	assert.Equal(t, "Quarterly Pest", items[0].ServicePlan.PlanName)
	assert.Nil(t, items[0].DiscountID)

	missing, err := st.GetQuote(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_ListLineItems_MissingPlan(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	q := &model.Quote{
		CompanyID:  "c1",
		CustomerID: "cust-1",
		LineItems:  []model.QuoteLineItem{{ServicePlanID: "deleted-plan", DiscountID: ptr("d9")}},
	}
	require.NoError(t, st.CreateQuote(ctx, q))

	items, err := st.ListLineItems(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].ServicePlan)
	require.NotNil(t, items[0].DiscountID)
	assert.Equal(t, "d9", *items[0].DiscountID)
}

func TestSQLite_UpdateQuoteTotals_VersionCheck(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	q := seedQuote(t, st)

	require.NoError(t, st.UpdateQuoteTotals(ctx, q.ID, 1, 150, 70))

	err := st.UpdateQuoteTotals(ctx, q.ID, 1, 1, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, quote.ErrStaleQuote))

	got, err := st.GetQuote(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, 150.0, got.TotalInitialPrice)
	assert.Equal(t, 70.0, got.TotalRecurringPrice)
}

func TestSQLite_InTx_RollsBack(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	q := seedQuote(t, st)

	boom := errors.New("boom")
	err := st.InTx(ctx, func(tx quote.Store) error {
		if err := tx.UpdateQuoteSizes(ctx, q.ID, model.SizeSelection{HomeSizeRange: "2501+"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := st.GetQuote(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "2001-2500", got.HomeSizeRange)
}

func TestSQLite_UpdateMissingRows(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	err := st.UpdateLineItemPrices(ctx, "nope", model.LineItemPrices{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line item not found")

	err = st.UpdateServiceAddressSizes(ctx, "nope", model.SizeSelection{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service address not found")
}

func TestSQLite_ServiceAddress(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	q := seedQuote(t, st)

	require.NoError(t, st.UpdateServiceAddressSizes(ctx, "addr-1", model.SizeSelection{HomeSizeRange: "2501+", YardSizeRange: "0.26-0.50"}))

	a, err := st.GetServiceAddress(ctx, "addr-1")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "2501+", a.HomeSizeRange)
	assert.Equal(t, "0.26-0.50", a.YardSizeRange)

	primary, err := st.GetPrimaryServiceAddress(ctx, "cust-1")
	require.NoError(t, err)
	require.NotNil(t, primary)
	assert.Equal(t, "addr-1", primary.ID)

	none, err := st.GetPrimaryServiceAddress(ctx, "cust-404")
	require.NoError(t, err)
	assert.Nil(t, none)

	ids, err := st.ListQuoteIDsByServiceAddress(ctx, "addr-1")
	require.NoError(t, err)
	assert.Equal(t, []string{q.ID}, ids)

	ids, err = st.ListQuoteIDsByCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{q.ID}, ids)
}

func TestSQLite_EmailLog_Update(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.db.ExecContext(ctx,
		`INSERT INTO email_logs (id, company_id, customer_id, campaign_id, message_id, recipient_email, updated_at) VALUES ('log-1', 'c1', 'cust-1', 'camp-1', 'msg-1', 'a@b.com', ?)`,
		time.Now().UTC())
	require.NoError(t, err)

	l, err := st.GetEmailLogByMessageID(ctx, "msg-1")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, model.EmailStatusSent, l.Status)
	assert.Equal(t, "camp-1", l.CampaignID)
	assert.Nil(t, l.DeliveredAt)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpdateEmailLog(ctx, l.ID, model.EmailLogUpdate{
		Status:      model.EmailStatusDelivered,
		DeliveredAt: &ts,
		Event:       json.RawMessage(`{"eventType":"Delivery"}`),
	}))
	require.NoError(t, st.UpdateEmailLog(ctx, l.ID, model.EmailLogUpdate{
		Status:     model.EmailStatusBounced,
		BounceType: ptr("Permanent"),
	}))

	l, err = st.GetEmailLogByMessageID(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, model.EmailStatusBounced, l.Status)
	assert.Equal(t, "Permanent", l.BounceType)
	require.NotNil(t, l.DeliveredAt)
	assert.True(t, ts.Equal(*l.DeliveredAt))
	assert.JSONEq(t, `{"eventType":"Delivery"}`, string(l.LastEvent))

	missing, err := st.GetEmailLogByMessageID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_Suppression_Lowercases(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry := model.SuppressionEntry{
		CompanyID: "c1",
		Email:     " Jane@Example.COM ",
		Reason:    model.SuppressionReasonBounce,
		Source:    model.SuppressionSourceHard,
	}
	require.NoError(t, st.UpsertSuppression(ctx, entry))
	entry.Reason = model.SuppressionReasonComplaint
	require.NoError(t, st.UpsertSuppression(ctx, entry))

	var email, reason string
	var n int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_suppression_list`).Scan(&n))
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT email_address, suppression_reason FROM email_suppression_list`).Scan(&email, &reason))
	assert.Equal(t, 1, n)
	assert.Equal(t, "jane@example.com", email)
	assert.Equal(t, model.SuppressionReasonComplaint, reason)
}

func TestSQLite_LeadAndActivity(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	none, err := st.FindCampaignLead(ctx, "c1", "cust-1", "camp-1")
	require.NoError(t, err)
	assert.Nil(t, none)

	lead := &model.Lead{
		CompanyID:  "c1",
		CustomerID: "cust-1",
		CampaignID: "camp-1",
		LeadSource: model.LeadSourceCampaign,
		LeadStatus: model.LeadStatusQuoted,
	}
	require.NoError(t, st.CreateLead(ctx, lead))
	assert.NotEmpty(t, lead.ID)

	found, err := st.FindCampaignLead(ctx, "c1", "cust-1", "camp-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, lead.ID, found.ID)
	assert.Empty(t, found.ServiceAddressID)

	act := &model.Activity{
		CompanyID:    "c1",
		EntityType:   "lead",
		EntityID:     lead.ID,
		ActivityType: "campaign_click",
		Metadata:     map[string]any{"link": "https://example.com"},
	}
	require.NoError(t, st.CreateActivity(ctx, act))

	var meta string
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT metadata FROM activities WHERE id = ?`, act.ID).Scan(&meta))
	assert.JSONEq(t, `{"link":"https://example.com"}`, meta)
}

func TestSQLite_AppendLeadComment(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	lead := &model.Lead{CompanyID: "c1", CustomerID: "cust-1", LeadSource: model.LeadSourceCampaign}
	require.NoError(t, st.CreateLead(ctx, lead))

	require.NoError(t, st.AppendLeadComment(ctx, lead.ID, "first"))
	require.NoError(t, st.AppendLeadComment(ctx, lead.ID, "second"))

	var comments string
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT comments FROM leads WHERE id = ?`, lead.ID).Scan(&comments))
	assert.Equal(t, "first\n\nsecond", comments)

	err := st.AppendLeadComment(ctx, "missing", "x")
	assert.ErrorContains(t, err, "lead not found")
}

func TestSQLite_Recalculate_EndToEnd(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	q := seedQuote(t, st)

	r := quote.NewRecalculator(st, quote.WithLogger(zap.NewNop()))
	require.NoError(t, r.Recalculate(ctx, q.ID, quote.SizeUpdate{}))

	got, err := st.GetQuote(ctx, q.ID)
	require.NoError(t, err)
	// 2001-2500 is bracket 2: +50 initial, +20 recurring.
	assert.Equal(t, 150.0, got.TotalInitialPrice)
	assert.Equal(t, 70.0, got.TotalRecurringPrice)
	assert.Equal(t, int64(2), got.Version)

	items, err := st.ListLineItems(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 150.0, items[0].FinalInitialPrice)
	assert.Equal(t, 70.0, items[0].FinalRecurringPrice)

	ids, err := r.ForServiceAddress(ctx, "addr-1", quote.SizeUpdate{Home: ptr("0-1500")})
	require.NoError(t, err)
	assert.Equal(t, []string{q.ID}, ids)

	got, err = st.GetQuote(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.TotalInitialPrice)
	assert.Equal(t, 50.0, got.TotalRecurringPrice)
	assert.Equal(t, int64(3), got.Version)
}
