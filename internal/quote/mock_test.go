package quote

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/pestline/pestline/internal/model"
)

// fakeData is the table state of fakeStore.
type fakeData struct {
	quotes    map[string]model.Quote
	settings  map[string]model.CompanyPricingSettings
	plans     map[string]model.ServicePlan
	items     map[string]model.QuoteLineItem
	discounts map[string]model.CompanyDiscount
	addresses map[string]model.ServiceAddress
}

func (d fakeData) clone() fakeData {
	return fakeData{
		quotes:    maps.Clone(d.quotes),
		settings:  maps.Clone(d.settings),
		plans:     maps.Clone(d.plans),
		items:     maps.Clone(d.items),
		discounts: maps.Clone(d.discounts),
		addresses: maps.Clone(d.addresses),
	}
}

// fakeStore implements Store in memory. InTx snapshots the tables and
// restores them when fn fails.
type fakeStore struct {
	txMu sync.Mutex
	fakeData

	itemWrites      []string
	failItemWrite   string
	failQuoteID     string
	beforeTotals    func(quoteID string)
	settingsLookups int
}

func newFakeStore() *fakeStore {
	return &fakeStore{fakeData: fakeData{
		quotes:    map[string]model.Quote{},
		settings:  map[string]model.CompanyPricingSettings{},
		plans:     map[string]model.ServicePlan{},
		items:     map[string]model.QuoteLineItem{},
		discounts: map[string]model.CompanyDiscount{},
		addresses: map[string]model.ServiceAddress{},
	}}
}

func (f *fakeStore) InTx(_ context.Context, fn func(tx Store) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	snapshot := f.fakeData.clone()
	writes := len(f.itemWrites)
	if err := fn(f); err != nil {
		f.fakeData = snapshot
		f.itemWrites = f.itemWrites[:writes]
		return err
	}
	return nil
}

func (f *fakeStore) GetQuote(_ context.Context, id string) (*model.Quote, error) {
	q, ok := f.quotes[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (f *fakeStore) LockQuote(ctx context.Context, id string) (*model.Quote, error) {
	if id == f.failQuoteID {
		return nil, eris.New("connection reset")
	}
	return f.GetQuote(ctx, id)
}

func (f *fakeStore) GetPricingSettings(_ context.Context, companyID string) (*model.CompanyPricingSettings, error) {
	f.settingsLookups++
	s, ok := f.settings[companyID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeStore) ListLineItems(_ context.Context, quoteID string) ([]model.QuoteLineItem, error) {
	var out []model.QuoteLineItem
	for _, it := range f.items {
		if it.QuoteID != quoteID {
			continue
		}
		if p, ok := f.plans[it.ServicePlanID]; ok {
			it.ServicePlan = &p
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out, nil
}

func (f *fakeStore) GetDiscount(_ context.Context, id string) (*model.CompanyDiscount, error) {
	d, ok := f.discounts[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (f *fakeStore) UpdateLineItemPrices(_ context.Context, itemID string, p model.LineItemPrices) error {
	if itemID == f.failItemWrite {
		return eris.New("write failed")
	}
	it := f.items[itemID]
	it.InitialPrice = p.InitialPrice
	it.RecurringPrice = p.RecurringPrice
	it.FinalInitialPrice = p.FinalInitialPrice
	it.FinalRecurringPrice = p.FinalRecurringPrice
	f.items[itemID] = it
	f.itemWrites = append(f.itemWrites, itemID)
	return nil
}

func (f *fakeStore) UpdateQuoteSizes(_ context.Context, quoteID string, s model.SizeSelection) error {
	q := f.quotes[quoteID]
	q.HomeSizeRange = s.HomeSizeRange
	q.YardSizeRange = s.YardSizeRange
	q.LinearFeetRange = s.LinearFeetRange
	f.quotes[quoteID] = q
	return nil
}

func (f *fakeStore) UpdateQuoteTotals(_ context.Context, quoteID string, version int64, initial, recurring float64) error {
	if f.beforeTotals != nil {
		f.beforeTotals(quoteID)
	}
	q := f.quotes[quoteID]
	if q.Version != version {
		return ErrStaleQuote
	}
	q.TotalInitialPrice = initial
	q.TotalRecurringPrice = recurring
	q.Version++
	f.quotes[quoteID] = q
	return nil
}

func (f *fakeStore) GetServiceAddress(_ context.Context, id string) (*model.ServiceAddress, error) {
	a, ok := f.addresses[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (f *fakeStore) UpdateServiceAddressSizes(_ context.Context, id string, s model.SizeSelection) error {
	a := f.addresses[id]
	a.HomeSizeRange = s.HomeSizeRange
	a.YardSizeRange = s.YardSizeRange
	a.LinearFeetRange = s.LinearFeetRange
	f.addresses[id] = a
	return nil
}

func (f *fakeStore) ListQuoteIDsByServiceAddress(_ context.Context, addressID string) ([]string, error) {
	var ids []string
	for id, q := range f.quotes {
		if q.ServiceAddressID == addressID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) ListQuoteIDsByCompany(_ context.Context, companyID string) ([]string, error) {
	var ids []string
	for id, q := range f.quotes {
		if q.CompanyID == companyID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
